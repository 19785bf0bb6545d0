// Package tradeengine implements the trade rule engine: a pure
// validation function with no side effects, grounded on step()'s doc
// comment describing a strict, deterministic evaluation order (step.go:
// "evaluates exits ... then evaluates a new entry ... in that strict
// order"). Callers queue validated trades for day k+1 execution.
package tradeengine

import (
	"github.com/classroomsim/market-engine/internal/model"
)

// Reason is the closed set of rejection reasons a trade validation can
// return.
type Reason string

const (
	ReasonNotABuyDay           Reason = "NOT_A_BUY_DAY"
	ReasonInsufficientHoldings Reason = "INSUFFICIENT_HOLDINGS"
	ReasonInsufficientCash     Reason = "INSUFFICIENT_CASH"
	ReasonNonPositiveShares    Reason = "NON_POSITIVE_SHARES"
	ReasonNonIntegerShares     Reason = "NON_INTEGER_SHARES"
	ReasonDuplicateSameDay     Reason = "DUPLICATE_SAME_DAY"
	ReasonGameNotActive        Reason = "GAME_NOT_ACTIVE"
)

// PendingTrade is a trade a player wants to submit on day k, executed at
// day k+1 open.
type PendingTrade struct {
	Ticker string
	Action model.TradeAction
	Shares float64 // validated as an integer count; float64 so NON_INTEGER_SHARES can be detected
}

// Result is the outcome of Validate: either OK, or REJECTED with a reason.
type Result struct {
	OK     bool
	Reason Reason
}

func ok() Result                 { return Result{OK: true} }
func rejected(r Reason) Result   { return Result{OK: false, Reason: r} }

// Validate checks pending against the player's current holdings/cash and
// the day-k recommendation. It performs no I/O and mutates nothing;
// projectedOpenPrice is the opening price of day k+1 for
// ticker, used for the cash pre-check (the engine re-checks at execution).
func Validate(roomStatus model.RoomStatus, player model.Player, dayK int, pending PendingTrade, dayKRecommendation model.Recommendation, projectedOpenPrice float64) Result {
	if roomStatus != model.StatusInProgress {
		return rejected(ReasonGameNotActive)
	}

	if pending.Shares != float64(int(pending.Shares)) {
		return rejected(ReasonNonIntegerShares)
	}
	shares := int(pending.Shares)
	if shares <= 0 {
		return rejected(ReasonNonPositiveShares)
	}

	for _, t := range player.Trades {
		if t.DaySubmitted == dayK && t.Ticker == pending.Ticker {
			return rejected(ReasonDuplicateSameDay)
		}
	}

	switch pending.Action {
	case model.ActionBuy:
		if dayKRecommendation != model.Buy && dayKRecommendation != model.StrongBuy {
			return rejected(ReasonNotABuyDay)
		}
		if projectedOpenPrice > 0 && float64(shares)*projectedOpenPrice > player.Cash {
			return rejected(ReasonInsufficientCash)
		}
	case model.ActionSell:
		h, exists := player.Holdings[pending.Ticker]
		if !exists || h.Shares < shares {
			return rejected(ReasonInsufficientHoldings)
		}
	}

	return ok()
}
