package historicalstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroomsim/market-engine/internal/model"
)

func openTestGateway(t *testing.T) *SQLiteGateway {
	t.Helper()
	g, err := OpenSQLiteGateway(":memory:", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g
}

func TestSQLiteGatewayRoundTripsMarketPrices(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	day := model.MarketDay{Ticker: "AAPL", Date: date("2025-02-01"), Open: 100, High: 102, Low: 99, Close: 101, Volume: 5000}
	require.NoError(t, g.InsertMarketDay(ctx, day))

	has, err := g.HasPriceOn(ctx, "AAPL", date("2025-02-01"))
	require.NoError(t, err)
	assert.True(t, has)

	rows, err := g.Prices(ctx, "AAPL", date("2025-02-01"), date("2025-02-01"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 101.0, rows[0].Close)
}

func TestSQLiteGatewayRejectsReadsBeforeEarliestAllowed(t *testing.T) {
	g := openTestGateway(t)
	_, err := g.Prices(context.Background(), "AAPL", date("2020-01-01"), date("2020-01-02"))
	require.Error(t, err)
}

func TestSQLiteGatewayRecommendationUpsertKeepsLatestValues(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	rec := model.RecommendationRecord{Ticker: "AAPL", Date: date("2025-02-01"), Recommendation: model.Hold, Confidence: 0.1}
	require.NoError(t, g.InsertRecommendation(ctx, rec))
	rec.Recommendation = model.StrongBuy
	rec.Confidence = 0.9
	require.NoError(t, g.InsertRecommendation(ctx, rec))

	got, err := g.Recommendation(ctx, "AAPL", date("2025-02-01"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StrongBuy, got.Recommendation)
}

func TestSQLiteGatewayRecommendationMissingReturnsNil(t *testing.T) {
	g := openTestGateway(t)
	got, err := g.Recommendation(context.Background(), "AAPL", date("2025-02-01"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}
