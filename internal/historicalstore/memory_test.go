package historicalstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroomsim/market-engine/internal/model"
)

func TestMemoryGatewayHasPriceOnlyForSeededDates(t *testing.T) {
	g := NewMemoryGateway(date("2025-01-01"))
	g.SeedPrices("AAPL", []model.MarketDay{
		{Ticker: "AAPL", Date: date("2025-02-01"), Close: 100},
	})

	has, err := g.HasPriceOn(context.Background(), "AAPL", date("2025-02-01"))
	require.NoError(t, err)
	assert.True(t, has)

	has, err = g.HasPriceOn(context.Background(), "AAPL", date("2025-02-02"))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestMemoryGatewayNewsBackfillsNewestFirstUpToMinCount(t *testing.T) {
	g := NewMemoryGateway(date("2025-01-01"))
	g.SeedNews("AAPL", []model.NewsItem{
		{Ticker: "AAPL", PublishedAt: date("2025-02-01"), Headline: "old"},
		{Ticker: "AAPL", PublishedAt: date("2025-02-03"), Headline: "new"},
		{Ticker: "AAPL", PublishedAt: date("2025-02-02"), Headline: "middle"},
	})

	items, err := g.News(context.Background(), "AAPL", date("2025-02-03"), 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "new", items[0].Headline)
	assert.Equal(t, "middle", items[1].Headline)
}

func TestMemoryGatewayRecommendationMissingIsNil(t *testing.T) {
	g := NewMemoryGateway(date("2025-01-01"))
	rec, err := g.Recommendation(context.Background(), "AAPL", date("2025-02-01"))
	require.NoError(t, err)
	assert.Nil(t, rec)
}
