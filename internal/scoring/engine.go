// Package scoring implements the scoring engine: pure functions from
// portfolio history to score/grade/breakdown. The small, pure,
// side-effect-free function shape is grounded on model.go's
// sigmoid/clamp helpers for a tiny scoring-style computation.
package scoring

import (
	"math"

	"github.com/classroomsim/market-engine/internal/model"
)

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Score computes the full breakdown for a player given their trade ledger,
// portfolio history, and the AI benchmark's return for the room.
func Score(player model.Player, aiReturnPct float64, difficulty model.Difficulty) model.ScoreBreakdown {
	totalReturnPct := finalReturnPct(player)

	returnComponent := clamp(math.Round(500*math.Max(0, totalReturnPct/50)), 0, 500)
	disciplineComponent := 50 * float64(disciplinedTradeCount(player))
	beatAIBonus := 200 * clamp((totalReturnPct-aiReturnPct)/20, 0, 1)
	drawdownPenalty := -200 * clamp(maxDrawdownPct(player)/40, 0, 1)

	total := returnComponent + disciplineComponent + beatAIBonus + drawdownPenalty

	return model.ScoreBreakdown{
		ReturnComponent:     returnComponent,
		DisciplineComponent: disciplineComponent,
		BeatAIBonus:         beatAIBonus,
		DrawdownPenalty:     drawdownPenalty,
		Total:               total,
		Grade:               Grade(total, difficulty),
	}
}

func finalReturnPct(player model.Player) float64 {
	if len(player.PortfolioHist) == 0 {
		return 0
	}
	return player.PortfolioHist[len(player.PortfolioHist)-1].ReturnPct
}

// disciplinedTradeCount counts BUY trades made on a STRONG_BUY/BUY day
// whose post-execution 5-day return is positive, capped at 10
// (discipline_component).
func disciplinedTradeCount(player model.Player) int {
	snapshotByDay := map[int]model.PortfolioSnapshot{}
	for _, s := range player.PortfolioHist {
		snapshotByDay[s.Day] = s
	}

	count := 0
	for _, t := range player.Trades {
		if t.Action != model.ActionBuy {
			continue
		}
		start, startOK := snapshotByDay[t.DayExecuted]
		end, endOK := snapshotByDay[t.DayExecuted+5]
		if !startOK || !endOK {
			continue
		}
		if end.PortfolioValue > start.PortfolioValue {
			count++
		}
	}
	if count > 10 {
		count = 10
	}
	return count
}

// maxDrawdownPct is the largest peak-to-trough decline across
// portfolio_history, as a positive percentage.
func maxDrawdownPct(player model.Player) float64 {
	peak := math.Inf(-1)
	maxDD := 0.0
	for _, s := range player.PortfolioHist {
		if s.PortfolioValue > peak {
			peak = s.PortfolioValue
		}
		if peak > 0 {
			dd := (peak - s.PortfolioValue) / peak * 100
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// Grade maps a point score to a letter grade; easy/hard shift the medium
// thresholds by ±100 (point-based grade is canonical, not return-based;
// see DESIGN.md).
func Grade(score float64, difficulty model.Difficulty) string {
	offset := 0.0
	switch difficulty {
	case model.Easy:
		offset = 100
	case model.Hard:
		offset = -100
	}
	switch {
	case score >= 700+offset:
		return "A"
	case score >= 550+offset:
		return "B"
	case score >= 400+offset:
		return "C"
	case score >= 250+offset:
		return "D"
	default:
		return "F"
	}
}
