package room

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/classroomsim/market-engine/internal/apperr"
	"github.com/classroomsim/market-engine/internal/metrics"
	"github.com/classroomsim/market-engine/internal/model"
	"github.com/classroomsim/market-engine/internal/portfolio"
	"github.com/classroomsim/market-engine/internal/scoring"
	"github.com/classroomsim/market-engine/internal/tradeengine"
)

// Start transitions waiting -> in_progress. Reposting start on an
// already-started room is a no-op.
func (r *Room) Start(ctx context.Context, startedBy string) error {
	return r.Apply(func() error {
		if r.state.Status != model.StatusWaiting {
			return nil
		}
		if startedBy != r.state.CreatedBy {
			return apperr.New(apperr.Forbidden, "only the room's creator may start the game")
		}
		if _, err := r.Slice(ctx); err != nil {
			return err
		}

		now := time.Now().UTC()
		r.state.Status = model.StatusInProgress
		r.state.CurrentDay = 0
		r.state.GameStartedAt = &now
		r.state.DayStartedAt = &now
		r.resetReadyLocked()
		return r.persistLocked(ctx)
	})
}

// AdvanceDay implements both the host-initiated and scheduler-initiated
// (auto-tick) day advance. It is a no-op once the room is finished.
func (r *Room) AdvanceDay(ctx context.Context, dayTimeLimit *int) error {
	return r.Apply(func() error {
		if r.state.Status == model.StatusFinished {
			return nil
		}
		if r.state.Status != model.StatusInProgress {
			return apperr.New(apperr.RuleViolation, "room is not in progress")
		}
		if r.state.Mode == model.ModeAsync {
			return apperr.New(apperr.RuleViolation, "advance-day does not apply to async rooms; players advance independently")
		}

		if err := r.executeDayLocked(ctx, r.state.CurrentDay); err != nil {
			return err
		}

		next := r.state.CurrentDay + 1
		now := time.Now().UTC()
		if next >= r.state.Config.NumDays {
			r.finishLocked(now)
		} else {
			r.state.CurrentDay = next
			r.state.DayStartedAt = &now
			if dayTimeLimit != nil {
				r.state.DayTimeLimit = dayTimeLimit
			}
			r.resetReadyLocked()
		}
		return r.persistLocked(ctx)
	})
}

// EndGame forces the room to finished regardless of current_day. No-op
// if already finished.
func (r *Room) EndGame(ctx context.Context, endedBy string) error {
	return r.Apply(func() error {
		if r.state.Status == model.StatusFinished {
			return nil
		}
		if r.state.Status != model.StatusInProgress {
			return apperr.New(apperr.RuleViolation, "room is not in progress")
		}
		if endedBy != r.state.CreatedBy {
			return apperr.New(apperr.Forbidden, "only the room's creator may end the game")
		}
		r.finishLocked(time.Now().UTC())
		return r.persistLocked(ctx)
	})
}

// SetTimer re-arms the sync_auto scheduler's wake time.
func (r *Room) SetTimer(ctx context.Context, durationSeconds int) error {
	return r.Apply(func() error {
		if r.state.Status != model.StatusInProgress {
			return apperr.New(apperr.RuleViolation, "room is not in progress")
		}
		if r.state.Mode != model.ModeSyncAuto {
			return apperr.New(apperr.RuleViolation, "set-timer only applies to sync_auto rooms")
		}
		now := time.Now().UTC()
		r.state.DayStartedAt = &now
		r.state.DayTimeLimit = &durationSeconds
		return r.persistLocked(ctx)
	})
}

// finishLocked marks the room finished and freezes every player's score.
// Caller must hold r.mu.
func (r *Room) finishLocked(now time.Time) {
	r.state.Status = model.StatusFinished
	r.state.GameEndedAt = &now
	for id, p := range r.players {
		p.IsFinished = true
		p.ScoreBreakdown = scoring.Score(p, r.state.AIReturnPct, r.state.Config.Difficulty)
		p.Score = p.ScoreBreakdown.Total
		p.Grade = p.ScoreBreakdown.Grade
		r.players[id] = p
	}
}

// resetReadyLocked clears every player's is_ready flag, as every
// transition that moves the room into a new day does. Caller must hold
// r.mu.
func (r *Room) resetReadyLocked() {
	for id, p := range r.players {
		p.IsReady = false
		r.players[id] = p
	}
}

// executeDayLocked runs the Portfolio Engine for every player, applying
// whatever trades they have pending from dayK (possibly none) using the
// room's GameSlice for pricing. Every player is swept forward exactly
// once per call, trades or not, so portfolio_history and current_day
// stay in lockstep with the room's day counter. Caller must hold r.mu.
func (r *Room) executeDayLocked(ctx context.Context, dayK int) error {
	slice, err := r.Slice(ctx)
	if err != nil {
		return err
	}
	lookup := priceLookup(slice)

	for id, p := range r.players {
		var submitted []portfolio.SubmittedTrade
		var keep []model.PendingSubmission
		for _, ps := range p.PendingTrades {
			if ps.DaySubmitted != dayK {
				keep = append(keep, ps)
				continue
			}
			submitted = append(submitted, portfolio.SubmittedTrade{
				Pending: tradeengine.PendingTrade{
					Ticker: ps.Ticker,
					Action: ps.Action,
					Shares: float64(ps.Shares),
				},
				Recommendation: ps.RecommendationAtSubmission,
			})
		}
		result := portfolio.Advance(p, dayK, submitted, lookup, r.state.Config.NumDays)
		result.Player.PendingTrades = keep
		result.Player.ScoreBreakdown = scoring.Score(result.Player, r.state.AIReturnPct, r.state.Config.Difficulty)
		result.Player.Score = result.Player.ScoreBreakdown.Total
		result.Player.Grade = result.Player.ScoreBreakdown.Grade
		r.players[id] = result.Player
	}
	return nil
}

// priceLookup adapts a GameSlice into the portfolio.PriceLookup shape.
func priceLookup(slice *model.GameSlice) portfolio.PriceLookup {
	return func(dayIndex int) (portfolio.DayPrices, bool, bool) {
		if dayIndex < 0 || dayIndex >= len(slice.Days) {
			return nil, false, false
		}
		day := slice.Days[dayIndex]
		prices := make(portfolio.DayPrices, len(day.Prices))
		for ticker, md := range day.Prices {
			prices[ticker] = struct{ Open, Close float64 }{Open: md.Open, Close: md.Close}
		}
		return prices, day.IsTradingDay, true
	}
}

// Join implements the join/resume operation: name is case-insensitive
// unique per room; an existing name resumes the existing player_id with
// its state untouched.
func (r *Room) Join(ctx context.Context, name string, email *string) (model.Player, error) {
	var result model.Player
	err := r.Apply(func() error {
		for _, p := range r.players {
			if lower(p.Name) == lower(name) {
				result = p
				return nil
			}
		}
		if r.state.Status == model.StatusFinished {
			return apperr.New(apperr.Conflict, "room has finished")
		}
		now := time.Now().UTC()
		p := model.Player{
			PlayerID:     uuid.New().String(),
			RoomCode:     r.state.RoomCode,
			Name:         name,
			Cash:         r.state.Config.InitialCash,
			Holdings:     map[string]model.Holding{},
			JoinedAt:     now,
			LastActionAt: now,
		}
		if email != nil {
			p.Email = *email
		}
		r.players[p.PlayerID] = p
		result = p
		return r.store.SavePlayer(ctx, p)
	})
	return result, err
}

// MarkReady sets a player's is_ready flag (sync modes only).
func (r *Room) MarkReady(ctx context.Context, playerID string) error {
	return r.Apply(func() error {
		p, ok := r.players[playerID]
		if !ok {
			return apperr.New(apperr.NotFound, "player not found")
		}
		p.IsReady = true
		p.LastActionAt = time.Now().UTC()
		r.players[playerID] = p
		return r.store.SavePlayer(ctx, p)
	})
}

// SubmitTrade validates pending via the trade rule engine against the
// player's current state and the room's day-k recommendation, and queues
// it for execution at day k+1. It does not mutate player state beyond
// queuing; rejected trades leave the player untouched.
func (r *Room) SubmitTrade(ctx context.Context, playerID string, pending tradeengine.PendingTrade) (tradeengine.Result, error) {
	var result tradeengine.Result
	err := r.Apply(func() error {
		p, ok := r.players[playerID]
		if !ok {
			return apperr.New(apperr.NotFound, "player not found")
		}

		slice, err := r.Slice(ctx)
		if err != nil {
			return err
		}

		dayK := r.dayIndexFor(p)
		if dayK < 0 || dayK >= len(slice.Days) {
			result = tradeengine.Result{OK: false, Reason: tradeengine.ReasonGameNotActive}
			return nil
		}
		day := slice.Days[dayK]
		rec := day.Recommendations[pending.Ticker].Recommendation

		projectedOpen := 0.0
		if dayK+1 < len(slice.Days) {
			if md, ok := slice.Days[dayK+1].Prices[pending.Ticker]; ok {
				projectedOpen = md.Open
			}
		}

		result = tradeengine.Validate(r.state.Status, p, dayK, pending, rec, projectedOpen)
		if result.OK {
			for _, ps := range p.PendingTrades {
				if ps.DaySubmitted == dayK && ps.Ticker == pending.Ticker {
					result = tradeengine.Result{OK: false, Reason: tradeengine.ReasonDuplicateSameDay}
					break
				}
			}
		}
		if !result.OK {
			metrics.ObserveTradeResult(string(result.Reason))
			return nil
		}
		metrics.ObserveTradeResult("")

		p.PendingTrades = append(p.PendingTrades, model.PendingSubmission{
			Ticker:                     pending.Ticker,
			Action:                     pending.Action,
			Shares:                     int(pending.Shares),
			DaySubmitted:               dayK,
			RecommendationAtSubmission: rec,
		})
		p.LastActionAt = time.Now().UTC()
		r.players[playerID] = p
		return r.store.SavePlayer(ctx, p)
	})
	return result, err
}

// dayIndexFor returns the day index a trade submitted by p is evaluated
// against: the room's current_day in sync/sync_auto, or the player's own
// current_day in async mode ("advisory only").
func (r *Room) dayIndexFor(p model.Player) int {
	if r.state.Mode == model.ModeAsync {
		return p.CurrentDay
	}
	return r.state.CurrentDay
}

// AdvancePlayer runs the Portfolio Engine for one player's own pending
// trades and moves their current_day forward; this is the async-mode
// per-player equivalent of the room-level AdvanceDay transition.
func (r *Room) AdvancePlayer(ctx context.Context, playerID string) (model.Player, error) {
	var out model.Player
	err := r.Apply(func() error {
		p, ok := r.players[playerID]
		if !ok {
			return apperr.New(apperr.NotFound, "player not found")
		}
		if p.IsFinished {
			out = p
			return nil
		}
		slice, err := r.Slice(ctx)
		if err != nil {
			return err
		}
		lookup := priceLookup(slice)

		dayK := p.CurrentDay
		var submitted []portfolio.SubmittedTrade
		var keep []model.PendingSubmission
		for _, ps := range p.PendingTrades {
			if ps.DaySubmitted != dayK {
				keep = append(keep, ps)
				continue
			}
			submitted = append(submitted, portfolio.SubmittedTrade{
				Pending: tradeengine.PendingTrade{
					Ticker: ps.Ticker,
					Action: ps.Action,
					Shares: float64(ps.Shares),
				},
				Recommendation: ps.RecommendationAtSubmission,
			})
		}

		result := portfolio.Advance(p, dayK, submitted, lookup, r.state.Config.NumDays)
		result.Player.PendingTrades = keep
		if result.Player.CurrentDay >= r.state.Config.NumDays-1 {
			result.Player.IsFinished = true
		}
		result.Player.ScoreBreakdown = scoring.Score(result.Player, r.state.AIReturnPct, r.state.Config.Difficulty)
		result.Player.Score = result.Player.ScoreBreakdown.Total
		result.Player.Grade = result.Player.ScoreBreakdown.Grade

		r.players[playerID] = result.Player
		out = result.Player
		return r.store.SavePlayer(ctx, result.Player)
	})
	return out, err
}

// UpdatePlayer applies a full player-state patch pushed by an async
// client after it has computed its own day advance locally against the
// same deterministic GameSlice. The server does not re-run the engine
// here; it only enforces its invariants — non-negative cash,
// positive-integer holdings, and an append-only trade ledger — rejecting
// anything that violates them.
func (r *Room) UpdatePlayer(ctx context.Context, playerID string, patch model.Player) (model.Player, error) {
	var out model.Player
	err := r.Apply(func() error {
		existing, ok := r.players[playerID]
		if !ok {
			return apperr.New(apperr.NotFound, "player not found")
		}
		if existing.IsFinished {
			return apperr.New(apperr.Conflict, "player has finished")
		}
		if patch.Cash < 0 {
			return apperr.New(apperr.Validation, "cash must be non-negative")
		}
		for ticker, h := range patch.Holdings {
			if h.Shares <= 0 {
				return apperr.New(apperr.Validation, "holdings shares must be a positive integer: "+ticker)
			}
		}
		if len(patch.Trades) < len(existing.Trades) {
			return apperr.New(apperr.Conflict, "trade ledger is append-only")
		}
		for i, t := range existing.Trades {
			if patch.Trades[i].ID != t.ID {
				return apperr.New(apperr.Conflict, "trade ledger is append-only")
			}
		}

		updated := existing
		updated.CurrentDay = patch.CurrentDay
		updated.Cash = patch.Cash
		updated.Holdings = patch.Holdings
		updated.Trades = patch.Trades
		updated.PortfolioHist = patch.PortfolioHist
		updated.Score = patch.Score
		updated.Grade = patch.Grade
		updated.ScoreBreakdown = patch.ScoreBreakdown
		updated.IsFinished = patch.IsFinished
		updated.LastActionAt = time.Now().UTC()

		r.players[playerID] = updated
		out = updated
		return r.store.SavePlayer(ctx, updated)
	})
	return out, err
}

// LeaderboardEntry is one ranked row of the leaderboard read.
type LeaderboardEntry struct {
	Rank           int
	PlayerID       string
	PlayerName     string
	Score          float64
	Grade          string
	PortfolioValue float64
	TotalReturnPct float64
	CurrentDay     int
	IsFinished     bool
}

// Leaderboard returns players ranked descending by score, ties broken by
// descending portfolio_value, then ascending joined_at.
func (r *Room) Leaderboard() []LeaderboardEntry {
	players := r.Players()
	sort.SliceStable(players, func(i, j int) bool {
		if players[i].Score != players[j].Score {
			return players[i].Score > players[j].Score
		}
		pi, pj := latestPortfolioValue(players[i]), latestPortfolioValue(players[j])
		if pi != pj {
			return pi > pj
		}
		return players[i].JoinedAt.Before(players[j].JoinedAt)
	})

	out := make([]LeaderboardEntry, len(players))
	for i, p := range players {
		returnPct := 0.0
		if n := len(p.PortfolioHist); n > 0 {
			returnPct = p.PortfolioHist[n-1].ReturnPct
		}
		out[i] = LeaderboardEntry{
			Rank:           i + 1,
			PlayerID:       p.PlayerID,
			PlayerName:     p.Name,
			Score:          p.Score,
			Grade:          p.Grade,
			PortfolioValue: latestPortfolioValue(p),
			TotalReturnPct: returnPct,
			CurrentDay:     p.CurrentDay,
			IsFinished:     p.IsFinished,
		}
	}
	return out
}

func latestPortfolioValue(p model.Player) float64 {
	if n := len(p.PortfolioHist); n > 0 {
		return p.PortfolioHist[n-1].PortfolioValue
	}
	return p.Cash
}

// persistLocked writes the room and every player to the store. Caller
// must hold r.mu.
func (r *Room) persistLocked(ctx context.Context) error {
	if err := r.store.SaveRoom(ctx, r.state); err != nil {
		return err
	}
	for _, p := range r.players {
		if err := r.store.SavePlayer(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
