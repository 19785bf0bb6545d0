package gameslice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroomsim/market-engine/internal/historicalstore"
	"github.com/classroomsim/market-engine/internal/model"
)

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func seededStore() *historicalstore.MemoryGateway {
	store := historicalstore.NewMemoryGateway(date("2025-01-01"))
	for _, ticker := range []string{"AAPL", "MSFT"} {
		var days []model.MarketDay
		for i := 0; i < 10; i++ {
			days = append(days, model.MarketDay{
				Ticker: ticker, Date: date("2025-02-01").AddDate(0, 0, i),
				Open: 100, High: 105, Low: 95, Close: 101, Volume: 1000,
			})
		}
		store.SeedPrices(ticker, days)
		store.SeedRecommendation(model.RecommendationRecord{
			Ticker: ticker, Date: date("2025-02-01"), Recommendation: model.Buy, Confidence: 0.8,
		})
	}
	return store
}

func TestBuildWithExplicitStartResolvesDeterministicWindow(t *testing.T) {
	builder := New(seededStore())
	cfg := model.GameConfig{InitialCash: 10000, NumDays: 5, Tickers: []string{"AAPL", "MSFT"}, Difficulty: model.Medium}

	slice, err := builder.Build(context.Background(), cfg, date("2025-02-01"), date("2025-02-05"))
	require.NoError(t, err)
	assert.Len(t, slice.Days, 5)
	assert.True(t, slice.Days[0].IsTradingDay)
	assert.Equal(t, 101.0, slice.Days[0].Prices["AAPL"].Close)
}

func TestBuildIsCachedAcrossCalls(t *testing.T) {
	builder := New(seededStore())
	cfg := model.GameConfig{InitialCash: 10000, NumDays: 5, Tickers: []string{"AAPL", "MSFT"}, Difficulty: model.Medium}

	first, err := builder.Build(context.Background(), cfg, date("2025-02-01"), date("2025-02-05"))
	require.NoError(t, err)
	second, err := builder.Build(context.Background(), cfg, date("2025-02-01"), date("2025-02-05"))
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestBuildRejectsStartDateBeforeEarliestAllowed(t *testing.T) {
	builder := New(seededStore())
	cfg := model.GameConfig{InitialCash: 10000, NumDays: 5, Tickers: []string{"AAPL"}, Difficulty: model.Medium}

	_, err := builder.Build(context.Background(), cfg, date("2024-01-01"), date("2024-01-05"))
	require.Error(t, err)
}

func TestBuildFallsBackToSyntheticRecommendationWhenNoneIngested(t *testing.T) {
	store := historicalstore.NewMemoryGateway(date("2025-01-01"))
	var days []model.MarketDay
	for i := 0; i < 3; i++ {
		days = append(days, model.MarketDay{Ticker: "AAPL", Date: date("2025-03-01").AddDate(0, 0, i), Open: 10, High: 10, Low: 10, Close: 10, Volume: 1})
	}
	store.SeedPrices("AAPL", days)
	builder := New(store)
	cfg := model.GameConfig{InitialCash: 10000, NumDays: 3, Tickers: []string{"AAPL"}, Difficulty: model.Medium}

	slice, err := builder.Build(context.Background(), cfg, date("2025-03-01"), date("2025-03-03"))
	require.NoError(t, err)
	rec := slice.Days[0].Recommendations["AAPL"]
	assert.True(t, rec.Synthetic)
	assert.Equal(t, model.Hold, rec.Recommendation)
}
