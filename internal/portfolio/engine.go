// Package portfolio implements the portfolio engine: applying a batch
// of validated trades at day k+1 open and producing the next player
// state plus a PortfolioSnapshot. The fill-simulation idiom is grounded
// on broker_paper.go (price a trade at a known reference price, return
// a normalized fill) and the avg-cost bookkeeping in trader.go's
// Position/book(side) pattern.
package portfolio

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/classroomsim/market-engine/internal/model"
	"github.com/classroomsim/market-engine/internal/tradeengine"
)

// DayPrices is the open/close for every ticker on one game day. A missing
// ticker entry or a nil map means the day has no market data at all (a
// non-trading day).
type DayPrices map[string]struct{ Open, Close float64 }

// PriceLookup resolves DayPrices for a given game day index; ok is false
// past the end of the game slice.
type PriceLookup func(dayIndex int) (prices DayPrices, isTradingDay bool, ok bool)

// SubmittedTrade pairs a day-k pending trade with the recommendation that
// was in force when it was validated, so Advance can re-validate it.
type SubmittedTrade struct {
	Pending        tradeengine.PendingTrade
	Recommendation model.Recommendation
}

// AdvanceResult is Advance's output: the updated player plus the trades
// that were rejected on re-validation (logged but not executed).
type AdvanceResult struct {
	Player   model.Player
	Rejected []RejectedTrade
}

// RejectedTrade records a race-loser trade and why it was dropped at
// execution time.
type RejectedTrade struct {
	Pending tradeengine.PendingTrade
	Reason  tradeengine.Reason
}

// Advance applies trades submitted on dayK to player's state, executing at
// dayK+1's open (or the next trading day's open if dayK+1 is not a trading
// day), and appends a PortfolioSnapshot valued at the execution day's
// close. numDays is the total length of the room's GameSlice.
func Advance(player model.Player, dayK int, submitted []SubmittedTrade, prices PriceLookup, numDays int) AdvanceResult {
	out := AdvanceResult{Player: clonePlayer(player)}

	dayExecuted := dayK + 1
	var dayPrices DayPrices
	for dayExecuted < numDays {
		p, isTradingDay, ok := prices(dayExecuted)
		if !ok {
			break
		}
		if isTradingDay {
			dayPrices = p
			break
		}
		dayExecuted++
	}

	if dayPrices != nil {
		for _, st := range canonicalOrder(submitted) {
			px, have := dayPrices[st.Pending.Ticker]
			if !have {
				out.Rejected = append(out.Rejected, RejectedTrade{Pending: st.Pending, Reason: tradeengine.ReasonInsufficientCash})
				continue
			}

			reval := tradeengine.Validate(model.StatusInProgress, out.Player, dayK, st.Pending, st.Recommendation, px.Open)
			if !reval.OK {
				out.Rejected = append(out.Rejected, RejectedTrade{Pending: st.Pending, Reason: reval.Reason})
				continue
			}

			shares := int(st.Pending.Shares)
			total := float64(shares) * px.Open
			entry := model.TradeLedgerEntry{
				ID:           uuid.New().String(),
				DaySubmitted: dayK,
				DayExecuted:  dayExecuted,
				Ticker:       st.Pending.Ticker,
				Action:       st.Pending.Action,
				Shares:       shares,
				Price:        px.Open,
				Total:        total,
				SubmittedAt:  time.Now().UTC(),
				ExecutedAt:   time.Now().UTC(),
			}
			if st.Pending.Action == model.ActionSell {
				entry.AvgCostAtSale = out.Player.Holdings[st.Pending.Ticker].AvgCost
			}
			applyFill(&out.Player, entry)
			out.Player.Trades = append(out.Player.Trades, entry)
		}
	}

	out.Player.CurrentDay = dayExecuted
	out.Player.LastActionAt = time.Now().UTC()
	out.Player.PortfolioHist = append(out.Player.PortfolioHist, valueAt(out.Player, dayExecuted, dayPrices, startingValue(player)))
	return out
}

// canonicalOrder applies the contractual SELL-before-BUY, then
// ticker-ascending ordering.
func canonicalOrder(submitted []SubmittedTrade) []SubmittedTrade {
	ordered := append([]SubmittedTrade(nil), submitted...)
	sort.SliceStable(ordered, func(i, j int) bool {
		ai, aj := ordered[i], ordered[j]
		if ai.Pending.Action != aj.Pending.Action {
			return ai.Pending.Action == model.ActionSell
		}
		return ai.Pending.Ticker < aj.Pending.Ticker
	})
	return ordered
}

// applyFill mutates p's cash and holdings for one executed trade,
// recomputing avg_cost by weighted average on buys and leaving avg_cost
// untouched on sells.
func applyFill(p *model.Player, t model.TradeLedgerEntry) {
	h := p.Holdings[t.Ticker]
	switch t.Action {
	case model.ActionBuy:
		newShares := h.Shares + t.Shares
		newCostBasis := h.AvgCost*float64(h.Shares) + t.Total
		h.Shares = newShares
		h.AvgCost = newCostBasis / float64(newShares)
		p.Cash -= t.Total
	case model.ActionSell:
		h.Shares -= t.Shares
		p.Cash += t.Total
	}
	if h.Shares == 0 {
		delete(p.Holdings, t.Ticker)
	} else {
		p.Holdings[t.Ticker] = h
	}
}

// valueAt builds the PortfolioSnapshot for dayExecuted using dayPrices'
// closing prices. initialValue is the player's starting cash, used to
// compute return_pct/return_usd.
func valueAt(p model.Player, day int, dayPrices DayPrices, initialValue float64) model.PortfolioSnapshot {
	holdingsValue := 0.0
	costBasis := 0.0
	for ticker, h := range p.Holdings {
		if px, ok := dayPrices[ticker]; ok {
			holdingsValue += float64(h.Shares) * px.Close
		} else {
			holdingsValue += float64(h.Shares) * h.AvgCost
		}
		costBasis += float64(h.Shares) * h.AvgCost
	}
	portfolioValue := p.Cash + holdingsValue
	returnUSD := portfolioValue - initialValue
	returnPct := 0.0
	if initialValue > 0 {
		returnPct = round2(100 * returnUSD / initialValue)
	}
	return model.PortfolioSnapshot{
		Day:            day,
		PortfolioValue: portfolioValue,
		Cash:           p.Cash,
		HoldingsValue:  holdingsValue,
		ReturnPct:      returnPct,
		ReturnUSD:      returnUSD,
		RealizedPnL:    realizedPnL(p),
		UnrealizedPnL:  holdingsValue - costBasis,
	}
}

// realizedPnL sums (price - avg_cost_at_sale) * shares across every SELL
// in the player's trade ledger, giving cumulative realized P&L to date.
// avg_cost_at_sale is captured on the ledger entry at the moment of the
// sale, so later buys re-averaging the position don't retroactively
// change it.
func realizedPnL(p model.Player) float64 {
	total := 0.0
	for _, t := range p.Trades {
		if t.Action != model.ActionSell {
			continue
		}
		total += (t.Price - t.AvgCostAtSale) * float64(t.Shares)
	}
	return total
}

func startingValue(p model.Player) float64 {
	if len(p.PortfolioHist) == 0 {
		return p.Cash
	}
	return p.PortfolioHist[0].PortfolioValue - p.PortfolioHist[0].ReturnUSD
}

func round2(v float64) float64 {
	return float64(int(v*100+sign(v)*0.5)) / 100
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func clonePlayer(p model.Player) model.Player {
	cp := p
	cp.Holdings = make(map[string]model.Holding, len(p.Holdings))
	for k, v := range p.Holdings {
		cp.Holdings[k] = v
	}
	cp.Trades = append([]model.TradeLedgerEntry(nil), p.Trades...)
	cp.PortfolioHist = append([]model.PortfolioSnapshot(nil), p.PortfolioHist...)
	return cp
}
