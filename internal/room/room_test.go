package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroomsim/market-engine/internal/apperr"
	"github.com/classroomsim/market-engine/internal/gameslice"
	"github.com/classroomsim/market-engine/internal/historicalstore"
	"github.com/classroomsim/market-engine/internal/model"
	"github.com/classroomsim/market-engine/internal/tradeengine"
)

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	gw := historicalstore.NewMemoryGateway(date("2025-01-01"))
	for _, ticker := range []string{"AAPL", "MSFT"} {
		var days []model.MarketDay
		for i := 0; i < 5; i++ {
			days = append(days, model.MarketDay{
				Ticker: ticker, Date: date("2025-02-01").AddDate(0, 0, i),
				Open: 100, High: 105, Low: 95, Close: 100, Volume: 1000,
			})
		}
		gw.SeedPrices(ticker, days)
		gw.SeedRecommendation(model.RecommendationRecord{
			Ticker: ticker, Date: date("2025-02-01"), Recommendation: model.StrongBuy, Confidence: 0.9,
		})
	}

	return NewRegistry(store, gameslice.New(gw))
}

func testConfig() model.GameConfig {
	return model.GameConfig{InitialCash: 10000, NumDays: 5, Tickers: []string{"AAPL", "MSFT"}, Difficulty: model.Medium}
}

func TestCreateRoomRejectsInvalidConfig(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.CreateRoom(context.Background(), CreateRoomInput{
		CreatedBy: "alice", Mode: model.ModeAsync,
		Config: model.GameConfig{InitialCash: 0, NumDays: 5, Tickers: []string{"AAPL"}, Difficulty: model.Medium},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestJoinIsCaseInsensitiveAndIdempotent(t *testing.T) {
	reg := newTestRegistry(t)
	r, err := reg.CreateRoom(context.Background(), CreateRoomInput{
		CreatedBy: "alice", Mode: model.ModeAsync, StartDate: date("2025-02-01"), EndDate: date("2025-02-05"),
		Config: testConfig(),
	})
	require.NoError(t, err)

	p1, err := r.Join(context.Background(), "Bob", nil)
	require.NoError(t, err)

	p2, err := r.Join(context.Background(), "bob", nil)
	require.NoError(t, err)
	assert.Equal(t, p1.PlayerID, p2.PlayerID)
	assert.Len(t, r.Players(), 1)
}

func TestStartOnlyCreatorMayStart(t *testing.T) {
	reg := newTestRegistry(t)
	r, err := reg.CreateRoom(context.Background(), CreateRoomInput{
		CreatedBy: "alice", Mode: model.ModeSync, StartDate: date("2025-02-01"), EndDate: date("2025-02-05"),
		Config: testConfig(),
	})
	require.NoError(t, err)

	err = r.Start(context.Background(), "mallory")
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
	assert.Equal(t, model.StatusWaiting, r.View().Status)
}

func TestStartIsIdempotentOnceInProgress(t *testing.T) {
	reg := newTestRegistry(t)
	r, err := reg.CreateRoom(context.Background(), CreateRoomInput{
		CreatedBy: "alice", Mode: model.ModeSync, StartDate: date("2025-02-01"), EndDate: date("2025-02-05"),
		Config: testConfig(),
	})
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background(), "alice"))
	require.NoError(t, r.Start(context.Background(), "alice"))
	assert.Equal(t, model.StatusInProgress, r.View().Status)
	assert.Equal(t, 0, r.View().CurrentDay)
}

func TestAdvanceDayExecutesPendingTradesAndResetsReady(t *testing.T) {
	reg := newTestRegistry(t)
	r, err := reg.CreateRoom(context.Background(), CreateRoomInput{
		CreatedBy: "alice", Mode: model.ModeSync, StartDate: date("2025-02-01"), EndDate: date("2025-02-05"),
		Config: testConfig(),
	})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background(), "alice"))

	p, err := r.Join(context.Background(), "bob", nil)
	require.NoError(t, err)
	require.NoError(t, r.MarkReady(context.Background(), p.PlayerID))

	// carol never submits a trade on day 0; she must still be swept
	// forward alongside bob, not left stuck on day 0.
	carol, err := r.Join(context.Background(), "carol", nil)
	require.NoError(t, err)
	require.NoError(t, r.MarkReady(context.Background(), carol.PlayerID))

	_, err = r.SubmitTrade(context.Background(), p.PlayerID, tradeengine.PendingTrade{
		Ticker: "AAPL", Action: model.ActionBuy, Shares: 10,
	})
	require.NoError(t, err)

	require.NoError(t, r.AdvanceDay(context.Background(), nil))

	updated, ok := r.Player(p.PlayerID)
	require.True(t, ok)
	assert.False(t, updated.IsReady)
	assert.Len(t, updated.Trades, 1)
	assert.Equal(t, 9000.0, updated.Cash)
	assert.Equal(t, 1, updated.CurrentDay)
	require.Len(t, updated.PortfolioHist, 1)

	updatedCarol, ok := r.Player(carol.PlayerID)
	require.True(t, ok)
	assert.Equal(t, 1, updatedCarol.CurrentDay)
	require.Len(t, updatedCarol.PortfolioHist, 1)
	assert.Equal(t, 10000.0, updatedCarol.PortfolioHist[0].PortfolioValue)
	assert.Empty(t, updatedCarol.Trades)

	assert.Equal(t, 1, r.View().CurrentDay)
}

func TestAdvanceDayFinishesRoomAndFreezesScores(t *testing.T) {
	reg := newTestRegistry(t)
	cfg := testConfig()
	cfg.NumDays = 1
	r, err := reg.CreateRoom(context.Background(), CreateRoomInput{
		CreatedBy: "alice", Mode: model.ModeSync, StartDate: date("2025-02-01"), EndDate: date("2025-02-01"),
		Config: cfg,
	})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background(), "alice"))

	_, err = r.Join(context.Background(), "bob", nil)
	require.NoError(t, err)

	require.NoError(t, r.AdvanceDay(context.Background(), nil))
	assert.Equal(t, model.StatusFinished, r.View().Status)

	players := r.Players()
	require.Len(t, players, 1)
	assert.True(t, players[0].IsFinished)
	assert.NotEmpty(t, players[0].Grade)

	// bob never submitted a trade on day 0; he must still be swept
	// forward every day like any other player, not left behind with a
	// stale portfolio_history/current_day.
	assert.Equal(t, 1, players[0].CurrentDay)
	require.Len(t, players[0].PortfolioHist, 1)
	assert.Equal(t, 10000.0, players[0].PortfolioHist[0].PortfolioValue)

	// Re-running EndGame/AdvanceDay on a finished room is a no-op.
	require.NoError(t, r.AdvanceDay(context.Background(), nil))
	require.NoError(t, r.EndGame(context.Background(), "alice"))
}

func TestEndGameRequiresCreator(t *testing.T) {
	reg := newTestRegistry(t)
	r, err := reg.CreateRoom(context.Background(), CreateRoomInput{
		CreatedBy: "alice", Mode: model.ModeSync, StartDate: date("2025-02-01"), EndDate: date("2025-02-05"),
		Config: testConfig(),
	})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background(), "alice"))

	err = r.EndGame(context.Background(), "mallory")
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
}

func TestLeaderboardRanksByScoreThenPortfolioValueThenJoinOrder(t *testing.T) {
	reg := newTestRegistry(t)
	r, err := reg.CreateRoom(context.Background(), CreateRoomInput{
		CreatedBy: "alice", Mode: model.ModeAsync, StartDate: date("2025-02-01"), EndDate: date("2025-02-05"),
		Config: testConfig(),
	})
	require.NoError(t, err)

	first, err := r.Join(context.Background(), "first", nil)
	require.NoError(t, err)
	second, err := r.Join(context.Background(), "second", nil)
	require.NoError(t, err)

	board := r.Leaderboard()
	require.Len(t, board, 2)
	assert.Equal(t, first.PlayerID, board[0].PlayerID)
	assert.Equal(t, second.PlayerID, board[1].PlayerID)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, 2, board[1].Rank)
}

func TestGetRoomReloadsFromStoreOnColdCacheMiss(t *testing.T) {
	reg := newTestRegistry(t)
	r, err := reg.CreateRoom(context.Background(), CreateRoomInput{
		CreatedBy: "alice", Mode: model.ModeAsync, StartDate: date("2025-02-01"), EndDate: date("2025-02-05"),
		Config: testConfig(),
	})
	require.NoError(t, err)
	_, err = r.Join(context.Background(), "bob", nil)
	require.NoError(t, err)

	code := r.View().RoomCode

	// Simulate a process restart: a fresh registry over the same store.
	reloaded, err := NewRegistry(reg.store, reg.slices).GetRoom(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, code, reloaded.View().RoomCode)
	assert.Len(t, reloaded.Players(), 1)
}

func TestGetRoomReturnsNotFoundForUnknownCode(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.GetRoom(context.Background(), "ZZZZZZ")
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}
