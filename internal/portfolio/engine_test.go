package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroomsim/market-engine/internal/model"
	"github.com/classroomsim/market-engine/internal/tradeengine"
)

func lookupFor(days map[int]DayPrices) PriceLookup {
	return func(dayIndex int) (DayPrices, bool, bool) {
		p, ok := days[dayIndex]
		if !ok {
			return nil, false, dayIndex < 10
		}
		return p, true, true
	}
}

func TestAdvanceExecutesBuyAtNextDayOpen(t *testing.T) {
	player := model.Player{Cash: 1000, Holdings: map[string]model.Holding{}}
	submitted := []SubmittedTrade{
		{Pending: tradeengine.PendingTrade{Ticker: "AAPL", Action: model.ActionBuy, Shares: 2}, Recommendation: model.Buy},
	}
	lookup := lookupFor(map[int]DayPrices{
		1: {"AAPL": {Open: 100, Close: 110}},
	})

	result := Advance(player, 0, submitted, lookup, 10)

	require.Len(t, result.Player.Trades, 1)
	trade := result.Player.Trades[0]
	assert.Equal(t, 1, trade.DayExecuted)
	assert.Equal(t, 100.0, trade.Price)
	assert.Equal(t, 800.0, result.Player.Cash)
	assert.Equal(t, 2, result.Player.Holdings["AAPL"].Shares)
	require.Len(t, result.Player.PortfolioHist, 1)
	assert.Equal(t, 1020.0, result.Player.PortfolioHist[0].PortfolioValue)
}

func TestAdvanceSkipsToNextTradingDayWhenImmediateDayIsClosed(t *testing.T) {
	player := model.Player{Cash: 1000, Holdings: map[string]model.Holding{}}
	submitted := []SubmittedTrade{
		{Pending: tradeengine.PendingTrade{Ticker: "AAPL", Action: model.ActionBuy, Shares: 1}, Recommendation: model.Buy},
	}
	lookup := lookupFor(map[int]DayPrices{
		2: {"AAPL": {Open: 50, Close: 55}},
	})

	result := Advance(player, 0, submitted, lookup, 10)
	require.Len(t, result.Player.Trades, 1)
	assert.Equal(t, 2, result.Player.Trades[0].DayExecuted)
}

func TestAdvanceOrdersSellsBeforeBuysThenTickerAscending(t *testing.T) {
	player := model.Player{
		Cash: 1000,
		Holdings: map[string]model.Holding{
			"ZZZ": {Shares: 5, AvgCost: 10},
		},
	}
	submitted := []SubmittedTrade{
		{Pending: tradeengine.PendingTrade{Ticker: "AAPL", Action: model.ActionBuy, Shares: 1}, Recommendation: model.Buy},
		{Pending: tradeengine.PendingTrade{Ticker: "ZZZ", Action: model.ActionSell, Shares: 5}, Recommendation: model.Hold},
	}
	lookup := lookupFor(map[int]DayPrices{
		1: {"AAPL": {Open: 10, Close: 10}, "ZZZ": {Open: 20, Close: 20}},
	})

	result := Advance(player, 0, submitted, lookup, 10)
	require.Len(t, result.Player.Trades, 2)
	assert.Equal(t, "ZZZ", result.Player.Trades[0].Ticker)
	assert.Equal(t, "AAPL", result.Player.Trades[1].Ticker)
}

func TestAdvanceRejectsTradeWhenTickerHasNoPriceThatDay(t *testing.T) {
	player := model.Player{Cash: 1000, Holdings: map[string]model.Holding{}}
	submitted := []SubmittedTrade{
		{Pending: tradeengine.PendingTrade{Ticker: "MSFT", Action: model.ActionBuy, Shares: 1}, Recommendation: model.Buy},
	}
	lookup := lookupFor(map[int]DayPrices{
		1: {"AAPL": {Open: 10, Close: 10}},
	})

	result := Advance(player, 0, submitted, lookup, 10)
	assert.Empty(t, result.Player.Trades)
	require.Len(t, result.Rejected, 1)
}

func TestAdvanceComputesRealizedPnLOnSaleAgainstAvgCostAtSaleTime(t *testing.T) {
	player := model.Player{
		Cash:     0,
		Holdings: map[string]model.Holding{"AAPL": {Shares: 10, AvgCost: 100}},
	}
	submitted := []SubmittedTrade{
		{Pending: tradeengine.PendingTrade{Ticker: "AAPL", Action: model.ActionSell, Shares: 4}, Recommendation: model.Hold},
	}
	lookup := lookupFor(map[int]DayPrices{
		1: {"AAPL": {Open: 130, Close: 130}},
	})

	result := Advance(player, 0, submitted, lookup, 10)
	require.Len(t, result.Player.Trades, 1)
	assert.Equal(t, 100.0, result.Player.Trades[0].AvgCostAtSale)
	require.Len(t, result.Player.PortfolioHist, 1)
	assert.Equal(t, 120.0, result.Player.PortfolioHist[0].RealizedPnL)

	// A later buy re-averages the remaining position but must not change
	// the realized P&L already booked on the earlier sale.
	second := Advance(result.Player, 1, []SubmittedTrade{
		{Pending: tradeengine.PendingTrade{Ticker: "AAPL", Action: model.ActionBuy, Shares: 2}, Recommendation: model.Buy},
	}, lookupFor(map[int]DayPrices{
		2: {"AAPL": {Open: 150, Close: 150}},
	}), 10)
	require.Len(t, second.Player.PortfolioHist, 2)
	assert.Equal(t, 120.0, second.Player.PortfolioHist[1].RealizedPnL)
}

func TestAdvanceComputesWeightedAverageCostOnRepeatBuys(t *testing.T) {
	player := model.Player{
		Cash:     2000,
		Holdings: map[string]model.Holding{"AAPL": {Shares: 10, AvgCost: 100}},
	}
	submitted := []SubmittedTrade{
		{Pending: tradeengine.PendingTrade{Ticker: "AAPL", Action: model.ActionBuy, Shares: 10}, Recommendation: model.Buy},
	}
	lookup := lookupFor(map[int]DayPrices{
		1: {"AAPL": {Open: 120, Close: 120}},
	})

	result := Advance(player, 0, submitted, lookup, 10)
	h := result.Player.Holdings["AAPL"]
	assert.Equal(t, 20, h.Shares)
	assert.Equal(t, 110.0, h.AvgCost)
}
