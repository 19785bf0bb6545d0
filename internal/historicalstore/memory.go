package historicalstore

import (
	"context"
	"sort"
	"time"

	"github.com/classroomsim/market-engine/internal/model"
)

// MemoryGateway is the in-memory fixture implementation used by tests, the
// same role broker_paper.go plays against the network brokers: no I/O, a
// deterministic in-process dataset.
type MemoryGateway struct {
	earliest        time.Time
	prices          map[string][]model.MarketDay // ticker -> ascending by date
	technicals      map[string]map[string]model.TechnicalSnapshot
	recommendations map[string]map[string]model.RecommendationRecord
	news            map[string][]model.NewsItem // ticker -> descending by PublishedAt
}

// NewMemoryGateway builds an empty fixture store; call the Seed* helpers to
// populate it.
func NewMemoryGateway(earliest time.Time) *MemoryGateway {
	return &MemoryGateway{
		earliest:        earliest,
		prices:          map[string][]model.MarketDay{},
		technicals:      map[string]map[string]model.TechnicalSnapshot{},
		recommendations: map[string]map[string]model.RecommendationRecord{},
		news:            map[string][]model.NewsItem{},
	}
}

func dateKey(t time.Time) string { return t.Format("2006-01-02") }

// SeedPrices adds ascending-by-date MarketDay rows for a ticker.
func (g *MemoryGateway) SeedPrices(ticker string, days []model.MarketDay) {
	cp := make([]model.MarketDay, len(days))
	copy(cp, days)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Date.Before(cp[j].Date) })
	g.prices[ticker] = cp
}

// SeedRecommendation sets the recommendation for one (ticker, date).
func (g *MemoryGateway) SeedRecommendation(r model.RecommendationRecord) {
	if g.recommendations[r.Ticker] == nil {
		g.recommendations[r.Ticker] = map[string]model.RecommendationRecord{}
	}
	g.recommendations[r.Ticker][dateKey(r.Date)] = r
}

// SeedTechnical sets the technical snapshot for one (ticker, date).
func (g *MemoryGateway) SeedTechnical(t model.TechnicalSnapshot) {
	if g.technicals[t.Ticker] == nil {
		g.technicals[t.Ticker] = map[string]model.TechnicalSnapshot{}
	}
	g.technicals[t.Ticker][dateKey(t.Date)] = t
}

// SeedNews appends news items for a ticker (any order; News sorts).
func (g *MemoryGateway) SeedNews(ticker string, items []model.NewsItem) {
	g.news[ticker] = append(g.news[ticker], items...)
	sort.Slice(g.news[ticker], func(i, j int) bool {
		return g.news[ticker][i].PublishedAt.After(g.news[ticker][j].PublishedAt)
	})
}

func (g *MemoryGateway) EarliestAllowedDate() time.Time { return g.earliest }

func (g *MemoryGateway) Prices(_ context.Context, ticker string, from, to time.Time) ([]model.MarketDay, error) {
	if from.Before(g.earliest) {
		return nil, outOfRangeErr(from, g.earliest)
	}
	var out []model.MarketDay
	for _, d := range g.prices[ticker] {
		if !d.Date.Before(from) && !d.Date.After(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (g *MemoryGateway) HasPriceOn(_ context.Context, ticker string, date time.Time) (bool, error) {
	for _, d := range g.prices[ticker] {
		if d.Date.Equal(date) {
			return true, nil
		}
	}
	return false, nil
}

func (g *MemoryGateway) Indicators(_ context.Context, ticker string, date time.Time) (*model.TechnicalSnapshot, error) {
	if byDate, ok := g.technicals[ticker]; ok {
		if t, ok := byDate[dateKey(date)]; ok {
			return &t, nil
		}
	}
	return nil, nil
}

func (g *MemoryGateway) News(_ context.Context, ticker string, date time.Time, minCount int) ([]model.NewsItem, error) {
	var out []model.NewsItem
	for _, n := range g.news[ticker] {
		if n.PublishedAt.After(date) {
			continue
		}
		out = append(out, n)
		if len(out) >= minCount {
			break
		}
	}
	return out, nil
}

func (g *MemoryGateway) Recommendation(_ context.Context, ticker string, date time.Time) (*model.RecommendationRecord, error) {
	if byDate, ok := g.recommendations[ticker]; ok {
		if r, ok := byDate[dateKey(date)]; ok {
			return &r, nil
		}
	}
	return nil, nil
}
