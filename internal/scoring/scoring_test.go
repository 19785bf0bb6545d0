package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/classroomsim/market-engine/internal/model"
)

func TestGradeThresholdsMedium(t *testing.T) {
	assert.Equal(t, "A", Grade(700, model.Medium))
	assert.Equal(t, "B", Grade(600, model.Medium))
	assert.Equal(t, "C", Grade(450, model.Medium))
	assert.Equal(t, "D", Grade(300, model.Medium))
	assert.Equal(t, "F", Grade(0, model.Medium))
}

func TestGradeThresholdsShiftByDifficulty(t *testing.T) {
	assert.Equal(t, "C", Grade(600, model.Easy))
	assert.Equal(t, "A", Grade(600, model.Hard))
	assert.Equal(t, "A", Grade(601, model.Hard))
}

func TestScoreZeroedPlayerIsAllZeroExceptGrade(t *testing.T) {
	breakdown := Score(model.Player{}, 0, model.Medium)
	assert.Equal(t, 0.0, breakdown.ReturnComponent)
	assert.Equal(t, 0.0, breakdown.DisciplineComponent)
	assert.Equal(t, "F", breakdown.Grade)
}

func TestScoreRewardsBeatingAIBenchmark(t *testing.T) {
	player := model.Player{
		PortfolioHist: []model.PortfolioSnapshot{{Day: 0, PortfolioValue: 10000, ReturnPct: 30}},
	}
	beatsAI := Score(player, 5, model.Medium)
	tiesAI := Score(player, 30, model.Medium)
	assert.Greater(t, beatsAI.BeatAIBonus, tiesAI.BeatAIBonus)
}

func TestScorePenalizesDrawdown(t *testing.T) {
	player := model.Player{
		PortfolioHist: []model.PortfolioSnapshot{
			{Day: 0, PortfolioValue: 10000},
			{Day: 1, PortfolioValue: 6000},
			{Day: 2, PortfolioValue: 9000, ReturnPct: -10},
		},
	}
	breakdown := Score(player, 0, model.Medium)
	assert.Less(t, breakdown.DrawdownPenalty, 0.0)
}

func TestScoreCountsDisciplinedTradesWithFiveDayLookahead(t *testing.T) {
	player := model.Player{
		Trades: []model.TradeLedgerEntry{{Action: model.ActionBuy, DayExecuted: 0}},
		PortfolioHist: []model.PortfolioSnapshot{
			{Day: 0, PortfolioValue: 10000},
			{Day: 5, PortfolioValue: 11000},
		},
	}
	breakdown := Score(player, 0, model.Medium)
	assert.Equal(t, 50.0, breakdown.DisciplineComponent)
}
