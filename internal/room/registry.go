package room

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/classroomsim/market-engine/internal/apperr"
	"github.com/classroomsim/market-engine/internal/gameslice"
	"github.com/classroomsim/market-engine/internal/model"
)

const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Registry is the process-wide collection of live rooms, keyed by
// room_code. It is the entry point the Read API and the Clock Scheduler
// use to look up a Room.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	store  *Store
	slices *gameslice.Builder
}

// NewRegistry builds a Registry backed by store and slices.
func NewRegistry(store *Store, slices *gameslice.Builder) *Registry {
	return &Registry{rooms: map[string]*Room{}, store: store, slices: slices}
}

// CreateRoomInput is the validated, typed room-creation request: a
// GameConfig plus room-level fields.
type CreateRoomInput struct {
	CreatedBy          string
	RoomName           string
	Mode               model.RoomMode
	Config             model.GameConfig
	StartDate          time.Time
	EndDate            time.Time
	DayDurationSeconds *int
}

// CreateRoom validates cfg and creates a new room in the waiting state.
func (reg *Registry) CreateRoom(ctx context.Context, in CreateRoomInput) (*Room, error) {
	if err := validateConfig(in.Config); err != nil {
		return nil, err
	}
	if in.Mode != model.ModeAsync && in.Mode != model.ModeSync && in.Mode != model.ModeSyncAuto {
		return nil, apperr.New(apperr.Validation, "game_mode must be async, sync, or sync_auto")
	}

	code, err := reg.freshRoomCode(ctx)
	if err != nil {
		return nil, err
	}

	state := model.Room{
		RoomCode:  code,
		CreatedBy: in.CreatedBy,
		RoomName:  in.RoomName,
		Mode:      in.Mode,
		Status:    model.StatusWaiting,
		Config:    in.Config,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
	}
	if in.DayDurationSeconds != nil {
		state.DayTimeLimit = in.DayDurationSeconds
	}

	r := newRoom(state, reg.store, reg.slices)
	if err := reg.store.SaveRoom(ctx, state); err != nil {
		return nil, err
	}

	reg.mu.Lock()
	reg.rooms[code] = r
	reg.mu.Unlock()
	return r, nil
}

// GetRoom looks up a live room by code, loading it from the store on a
// cold cache miss (e.g. after a process restart).
func (reg *Registry) GetRoom(ctx context.Context, code string) (*Room, error) {
	reg.mu.RLock()
	r, ok := reg.rooms[code]
	reg.mu.RUnlock()
	if ok {
		return r, nil
	}

	state, err := reg.store.LoadRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	players, err := reg.store.ListPlayers(ctx, code)
	if err != nil {
		return nil, err
	}

	r = newRoom(state, reg.store, reg.slices)
	for _, p := range players {
		r.players[p.PlayerID] = p
	}

	reg.mu.Lock()
	if existing, ok := reg.rooms[code]; ok {
		reg.mu.Unlock()
		return existing, nil
	}
	reg.rooms[code] = r
	reg.mu.Unlock()
	return r, nil
}

// Rooms returns every currently live room, for the scheduler to scan.
func (reg *Registry) Rooms() []*Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		out = append(out, r)
	}
	return out
}

func (reg *Registry) freshRoomCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 20; attempt++ {
		code, err := generateRoomCode()
		if err != nil {
			return "", apperr.Wrap(apperr.Internal, "generate room code", err)
		}
		if _, err := reg.store.LoadRoom(ctx, code); apperr.KindOf(err) == apperr.NotFound {
			return code, nil
		}
	}
	return "", apperr.New(apperr.Internal, "could not allocate a unique room code")
}

func generateRoomCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, 6)
	for i, b := range buf {
		out[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return string(out), nil
}

func validateConfig(cfg model.GameConfig) error {
	if cfg.InitialCash <= 0 {
		return apperr.New(apperr.Validation, "initial_cash must be positive")
	}
	if cfg.NumDays < 1 || cfg.NumDays > 90 {
		return apperr.New(apperr.Validation, "num_days must be in [1,90]")
	}
	if len(cfg.Tickers) == 0 {
		return apperr.New(apperr.Validation, "tickers must be non-empty")
	}
	seen := map[string]bool{}
	for _, t := range cfg.Tickers {
		if seen[t] {
			return apperr.New(apperr.Validation, "tickers must be unique")
		}
		seen[t] = true
	}
	switch cfg.Difficulty {
	case model.Easy, model.Medium, model.Hard:
	default:
		return apperr.New(apperr.Validation, "difficulty must be easy, medium, or hard")
	}
	return nil
}
