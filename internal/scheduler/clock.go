// Package scheduler implements the clock scheduler: one cooperative
// task per sync_auto room that advances the day when its timer expires.
// The cancellable-timer-per-entity shape is grounded on the live trading
// loop in trader.go (runner goroutines, armed/disarmed per position) —
// retargeted here from a runner's trailing-stop timer to a room's day
// timer.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/classroomsim/market-engine/internal/metrics"
	"github.com/classroomsim/market-engine/internal/model"
	"github.com/classroomsim/market-engine/internal/room"
)

// discoverInterval bounds how long a newly created sync_auto room can sit
// before the scheduler notices it and spawns its watcher; it has no
// bearing on day-advance precision, which comes from each room's own
// time.Timer.
const discoverInterval = 2 * time.Second

// idlePoll is how often a watched room with no armed timer (waiting or
// between SetTimer calls) is re-checked for one appearing.
const idlePoll = 2 * time.Second

// Scheduler runs one goroutine per sync_auto room, each sleeping on a
// time.Timer set to that room's own day_started_at + day_time_limit
// deadline and reset fresh (recomputed from the room's current state,
// never from the previous wake) after every wake — so it never drifts
// off a stale sleep. A coarse discovery loop is the only shared polling:
// it exists solely to notice rooms entering sync_auto and spawn their
// watcher, not to drive the advance-day timing itself.
type Scheduler struct {
	registry *room.Registry
	log      zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	watched map[string]struct{}
}

// New builds a Scheduler over registry.
func New(registry *room.Registry, log zerolog.Logger) *Scheduler {
	return &Scheduler{registry: registry, log: log, watched: map[string]struct{}{}}
}

// Run blocks, discovering newly created sync_auto rooms and spawning a
// per-room watcher for each, until ctx is cancelled. Callers typically
// run this in its own goroutine from main.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	ticker := time.NewTicker(discoverInterval)
	defer ticker.Stop()

	s.discover(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.discover(ctx)
		}
	}
}

// Stop cancels the scheduler's context. Every per-room watcher derives
// its context from this one, so cancellation cascades to all of them;
// in-flight advance-day calls finish before their watcher exits.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// discover spawns a watcher goroutine for every sync_auto room that
// doesn't already have one.
func (s *Scheduler) discover(ctx context.Context) {
	for _, r := range s.registry.Rooms() {
		view := r.View()
		if view.Mode != model.ModeSyncAuto || view.Status == model.StatusFinished {
			continue
		}

		s.mu.Lock()
		_, already := s.watched[view.RoomCode]
		if !already {
			s.watched[view.RoomCode] = struct{}{}
		}
		s.mu.Unlock()

		if !already {
			go s.watch(ctx, view.RoomCode, r)
		}
	}
}

// watch is the one-goroutine-per-room loop: sleep until the room's
// current deadline, wake, attempt an advance-day, then recompute the
// next deadline from the room's fresh post-advance state and reset the
// timer. Exits once the room finishes or the scheduler is stopped.
func (s *Scheduler) watch(ctx context.Context, roomCode string, r *room.Room) {
	defer func() {
		s.mu.Lock()
		delete(s.watched, roomCode)
		s.mu.Unlock()
	}()

	timer := time.NewTimer(s.nextWake(r))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if r.View().Status == model.StatusFinished {
				return
			}
			s.fire(ctx, r)
			if r.View().Status == model.StatusFinished {
				return
			}
			timer.Reset(s.nextWake(r))
		}
	}
}

// fire attempts one advance-day for r, if r is a sync_auto room and its
// timer has actually expired; AdvanceDay is a no-op if a concurrent instructor click
// already advanced (or finished) the room — the room's own mutex
// serializes this against any other transition attempt.
func (s *Scheduler) fire(ctx context.Context, r *room.Room) {
	view := r.View()
	if view.Mode != model.ModeSyncAuto || view.Status != model.StatusInProgress || view.DayStartedAt == nil || view.DayTimeLimit == nil {
		return
	}
	deadline := view.DayStartedAt.Add(time.Duration(*view.DayTimeLimit) * time.Second)
	if time.Now().UTC().Before(deadline) {
		return
	}

	start := time.Now()
	defer func() { metrics.SchedulerTickSeconds.Observe(time.Since(start).Seconds()) }()

	if err := r.AdvanceDay(ctx, nil); err != nil {
		metrics.AutoTickFailures.Inc()
		s.log.Warn().Err(err).Str("room_code", view.RoomCode).Msg("auto-tick advance-day failed; will retry next wake")
	}
}

// nextWake computes how long to sleep before the room's watcher should
// next check in: exactly until its armed deadline, or idlePoll if the
// room has no timer armed yet (waiting to start, or between rounds
// before SetTimer re-arms it).
func (s *Scheduler) nextWake(r *room.Room) time.Duration {
	view := r.View()
	if view.Status == model.StatusFinished {
		return 0
	}
	if view.DayStartedAt == nil || view.DayTimeLimit == nil {
		return idlePoll
	}
	deadline := view.DayStartedAt.Add(time.Duration(*view.DayTimeLimit) * time.Second)
	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	return d
}
