package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroomsim/market-engine/internal/gameslice"
	"github.com/classroomsim/market-engine/internal/historicalstore"
	"github.com/classroomsim/market-engine/internal/model"
	"github.com/classroomsim/market-engine/internal/room"
)

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func newTestRegistry(t *testing.T) *room.Registry {
	t.Helper()
	store, err := room.OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	gw := historicalstore.NewMemoryGateway(date("2025-01-01"))
	var days []model.MarketDay
	for i := 0; i < 5; i++ {
		days = append(days, model.MarketDay{
			Ticker: "AAPL", Date: date("2025-02-01").AddDate(0, 0, i),
			Open: 100, High: 105, Low: 95, Close: 100, Volume: 1000,
		})
	}
	gw.SeedPrices("AAPL", days)

	return room.NewRegistry(store, gameslice.New(gw))
}

func TestFireAdvancesRoomPastExpiredTimer(t *testing.T) {
	reg := newTestRegistry(t)
	r, err := reg.CreateRoom(context.Background(), room.CreateRoomInput{
		CreatedBy: "alice", Mode: model.ModeSyncAuto,
		StartDate: date("2025-02-01"), EndDate: date("2025-02-05"),
		Config: model.GameConfig{InitialCash: 10000, NumDays: 5, Tickers: []string{"AAPL"}, Difficulty: model.Medium},
	})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background(), "alice"))
	require.NoError(t, r.SetTimer(context.Background(), 0))

	s := New(reg, zerolog.Nop())
	s.fire(context.Background(), r)

	assert.Equal(t, 1, r.View().CurrentDay)
}

func TestFireSkipsRoomsWithoutAnArmedTimer(t *testing.T) {
	reg := newTestRegistry(t)
	r, err := reg.CreateRoom(context.Background(), room.CreateRoomInput{
		CreatedBy: "alice", Mode: model.ModeSyncAuto,
		StartDate: date("2025-02-01"), EndDate: date("2025-02-05"),
		Config: model.GameConfig{InitialCash: 10000, NumDays: 5, Tickers: []string{"AAPL"}, Difficulty: model.Medium},
	})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background(), "alice"))

	s := New(reg, zerolog.Nop())
	s.fire(context.Background(), r)

	assert.Equal(t, 0, r.View().CurrentDay)
}

func TestFireIgnoresSyncModeRooms(t *testing.T) {
	reg := newTestRegistry(t)
	r, err := reg.CreateRoom(context.Background(), room.CreateRoomInput{
		CreatedBy: "alice", Mode: model.ModeSync,
		StartDate: date("2025-02-01"), EndDate: date("2025-02-05"),
		Config: model.GameConfig{InitialCash: 10000, NumDays: 5, Tickers: []string{"AAPL"}, Difficulty: model.Medium},
	})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background(), "alice"))

	s := New(reg, zerolog.Nop())
	s.fire(context.Background(), r)

	assert.Equal(t, 0, r.View().CurrentDay)
}

func TestNextWakeReturnsIdlePollWithoutAnArmedTimer(t *testing.T) {
	reg := newTestRegistry(t)
	r, err := reg.CreateRoom(context.Background(), room.CreateRoomInput{
		CreatedBy: "alice", Mode: model.ModeSyncAuto,
		StartDate: date("2025-02-01"), EndDate: date("2025-02-05"),
		Config: model.GameConfig{InitialCash: 10000, NumDays: 5, Tickers: []string{"AAPL"}, Difficulty: model.Medium},
	})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background(), "alice"))

	s := New(reg, zerolog.Nop())
	assert.Equal(t, idlePoll, s.nextWake(r))
}

func TestRunDiscoversAndAutoAdvancesSyncAutoRoom(t *testing.T) {
	reg := newTestRegistry(t)
	r, err := reg.CreateRoom(context.Background(), room.CreateRoomInput{
		CreatedBy: "alice", Mode: model.ModeSyncAuto,
		StartDate: date("2025-02-01"), EndDate: date("2025-02-05"),
		Config: model.GameConfig{InitialCash: 10000, NumDays: 5, Tickers: []string{"AAPL"}, Difficulty: model.Medium},
	})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background(), "alice"))
	require.NoError(t, r.SetTimer(context.Background(), 1))

	s := New(reg, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool {
		return r.View().CurrentDay >= 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRunStopsPromptlyOnStop(t *testing.T) {
	reg := newTestRegistry(t)
	s := New(reg, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	s.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
