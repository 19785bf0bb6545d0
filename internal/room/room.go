package room

import (
	"context"
	"sync"
	"time"

	"github.com/classroomsim/market-engine/internal/gameslice"
	"github.com/classroomsim/market-engine/internal/model"
)

// Room is one in-memory, persisted game room: the authoritative copy of
// model.Room plus its players, guarded by a single RWMutex. Apply is the
// one path every mutation goes through, grounded on Trader.apply(fn
// func(*Trader)) (trader.go) and its pervasive mu.Lock(); defer
// mu.Unlock() style — adapted here to return an error and to persist
// inside the critical section, since room transitions must be strictly
// linearizable.
type Room struct {
	mu sync.RWMutex

	state   model.Room
	players map[string]model.Player // by player_id

	store  *Store
	slices *gameslice.Builder
	slice  *model.GameSlice
}

func newRoom(state model.Room, store *Store, slices *gameslice.Builder) *Room {
	return &Room{
		state:   state,
		players: map[string]model.Player{},
		store:   store,
		slices:  slices,
	}
}

// Apply serializes fn under the room's write lock. fn is responsible for
// persisting anything it changes before returning (persistence happens
// inside the critical section so a reader taking the lock right after
// never observes a window where memory and store disagree).
func (r *Room) Apply(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn()
}

// View returns a copy of the room's current state for reads.
func (r *Room) View() model.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Players returns a copy of every player in the room.
func (r *Room) Players() []model.Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	return out
}

// Player returns one player by id.
func (r *Room) Player(playerID string) (model.Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[playerID]
	return p, ok
}

// Slice returns the room's resolved GameSlice, building (and caching) it
// on first use. Caller must hold r.mu for writing (every caller runs
// inside Apply).
func (r *Room) Slice(ctx context.Context) (*model.GameSlice, error) {
	if r.slice != nil {
		return r.slice, nil
	}

	slice, err := r.slices.Build(ctx, r.state.Config, r.state.StartDate, r.state.EndDate)
	if err != nil {
		return nil, err
	}

	r.slice = slice
	return slice, nil
}

// TimeRemaining computes time_remaining server-side from day_started_at
// — never trusted from the client.
func (r *Room) TimeRemaining(now time.Time) *int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state.DayStartedAt == nil || r.state.DayTimeLimit == nil {
		return nil
	}
	deadline := r.state.DayStartedAt.Add(time.Duration(*r.state.DayTimeLimit) * time.Second)
	remaining := int(deadline.Sub(now).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}
