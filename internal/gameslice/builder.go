// Package gameslice implements the game slice builder: given a
// GameConfig it computes the deterministic, ordered list of game days a
// room plays through. Caching dedupes concurrent builders racing on the
// same resolved key via singleflight, the way stadam23-Eve-flipper's API
// layer dedupes concurrent upstream calls.
package gameslice

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/classroomsim/market-engine/internal/apperr"
	"github.com/classroomsim/market-engine/internal/historicalstore"
	"github.com/classroomsim/market-engine/internal/model"
)

// Builder resolves and caches GameSlices. Safe for concurrent use.
type Builder struct {
	store historicalstore.Gateway

	mu    sync.RWMutex
	cache map[string]*model.GameSlice

	group singleflight.Group
}

// New builds a Builder backed by store.
func New(store historicalstore.Gateway) *Builder {
	return &Builder{store: store, cache: map[string]*model.GameSlice{}}
}

// Build resolves (and caches) the GameSlice for cfg, given optional
// start/end dates (either may be the zero time.Time to mean "unset").
func (b *Builder) Build(ctx context.Context, cfg model.GameConfig, startDate, endDate time.Time) (*model.GameSlice, error) {
	key, resolvedStart, resolvedEnd, err := b.resolveWindow(ctx, cfg, startDate, endDate)
	if err != nil {
		return nil, err
	}

	if slice := b.lookup(key); slice != nil {
		return slice, nil
	}

	v, err, _ := b.group.Do(key, func() (interface{}, error) {
		if slice := b.lookup(key); slice != nil {
			return slice, nil
		}
		slice, err := b.buildSlice(ctx, cfg, key, resolvedStart, resolvedEnd)
		if err != nil {
			return nil, err
		}
		b.store_(key, slice)
		return slice, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.GameSlice), nil
}

func (b *Builder) lookup(key string) *model.GameSlice {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cache[key]
}

func (b *Builder) store_(key string, slice *model.GameSlice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache[key] = slice
}

// cacheKey builds the deterministic string key: sorted tickers, num_days,
// resolved start date.
func cacheKey(tickers []string, numDays int, start time.Time) string {
	sorted := append([]string(nil), tickers...)
	sort.Strings(sorted)
	return fmt.Sprintf("%s|%d|%s", strings.Join(sorted, ","), numDays, start.Format("2006-01-02"))
}

// resolveWindow applies the three window-resolution rules and returns the
// cache key plus the resolved [start,end] window.
func (b *Builder) resolveWindow(ctx context.Context, cfg model.GameConfig, start, end time.Time) (string, time.Time, time.Time, error) {
	earliest := b.store.EarliestAllowedDate()

	switch {
	case !start.IsZero() && !end.IsZero():
		if start.Before(earliest) {
			return "", time.Time{}, time.Time{}, apperr.New(apperr.OutOfRange, "start_date before earliest allowed date")
		}
		expectedEnd := start.AddDate(0, 0, cfg.NumDays-1)
		if !expectedEnd.Equal(end) {
			return "", time.Time{}, time.Time{}, apperr.New(apperr.InsufficientData, "start_date + (num_days-1) must equal end_date")
		}
		tradingDays, err := b.countTradingDays(ctx, cfg.Tickers, start, end)
		if err != nil {
			return "", time.Time{}, time.Time{}, err
		}
		if tradingDays < minTradingDays(cfg.NumDays) {
			return "", time.Time{}, time.Time{}, apperr.New(apperr.InsufficientData, "insufficient trading-day coverage for requested window")
		}
		return cacheKey(cfg.Tickers, cfg.NumDays, start), start, end, nil

	case !start.IsZero():
		if start.Before(earliest) {
			return "", time.Time{}, time.Time{}, apperr.New(apperr.OutOfRange, "start_date before earliest allowed date")
		}
		end := start.AddDate(0, 0, cfg.NumDays-1)
		return cacheKey(cfg.Tickers, cfg.NumDays, start), start, end, nil

	default:
		resolvedStart, resolvedEnd, err := b.findMostRecentWindow(ctx, cfg)
		if err != nil {
			return "", time.Time{}, time.Time{}, err
		}
		return cacheKey(cfg.Tickers, cfg.NumDays, resolvedStart), resolvedStart, resolvedEnd, nil
	}
}

func minTradingDays(numDays int) int {
	return int(math.Ceil(0.6 * float64(numDays)))
}

func (b *Builder) countTradingDays(ctx context.Context, tickers []string, start, end time.Time) (int, error) {
	count := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		allHave := true
		for _, tk := range tickers {
			ok, err := b.store.HasPriceOn(ctx, tk, d)
			if err != nil {
				return 0, err
			}
			if !ok {
				allHave = false
				break
			}
		}
		if allHave {
			count++
		}
	}
	return count, nil
}

// findMostRecentWindow scans backward from the most recent price available
// for the first ticker, looking for a window of cfg.NumDays calendar days
// where every ticker has a price on every trading day in the window.
func (b *Builder) findMostRecentWindow(ctx context.Context, cfg model.GameConfig) (time.Time, time.Time, error) {
	if len(cfg.Tickers) == 0 {
		return time.Time{}, time.Time{}, apperr.New(apperr.Validation, "tickers must be non-empty")
	}
	anchor := cfg.Tickers[0]
	prices, err := b.store.Prices(ctx, anchor, b.store.EarliestAllowedDate(), time.Now().UTC())
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if len(prices) == 0 {
		return time.Time{}, time.Time{}, apperr.New(apperr.InsufficientData, "no price history for anchor ticker")
	}

	latest := prices[len(prices)-1].Date
	for candidateEnd := latest; ; candidateEnd = candidateEnd.AddDate(0, 0, -1) {
		candidateStart := candidateEnd.AddDate(0, 0, -(cfg.NumDays - 1))
		if candidateStart.Before(b.store.EarliestAllowedDate()) {
			return time.Time{}, time.Time{}, apperr.New(apperr.InsufficientData, "no window with full ticker coverage found")
		}

		// The window is usable when, for every calendar day in it, the set
		// of tickers with a price is either all of them or none of them —
		// any partial mismatch means at least one ticker is simply missing
		// data this window should have had, which disqualifies it.
		complete := true
		for d := candidateStart; !d.After(candidateEnd) && complete; d = d.AddDate(0, 0, 1) {
			have, missing := 0, 0
			for _, tk := range cfg.Tickers {
				ok, err := b.store.HasPriceOn(ctx, tk, d)
				if err != nil {
					return time.Time{}, time.Time{}, err
				}
				if ok {
					have++
				} else {
					missing++
				}
			}
			if have > 0 && missing > 0 {
				complete = false
			}
		}
		if complete {
			return candidateStart, candidateEnd, nil
		}
	}
}

// buildSlice materializes the per-day, per-ticker payload for the resolved
// window.
func (b *Builder) buildSlice(ctx context.Context, cfg model.GameConfig, key string, start, end time.Time) (*model.GameSlice, error) {
	days := make([]model.GameDay, cfg.NumDays)

	for k := 0; k < cfg.NumDays; k++ {
		date := start.AddDate(0, 0, k)
		gd := model.GameDay{
			Day:             k,
			Date:            date,
			Prices:          map[string]model.MarketDay{},
			Recommendations: map[string]model.RecommendationRecord{},
			Technicals:      map[string]model.TechnicalSnapshot{},
			News:            map[string][]model.NewsItem{},
		}

		isTradingDay := true
		for _, tk := range cfg.Tickers {
			ok, err := b.store.HasPriceOn(ctx, tk, date)
			if err != nil {
				return nil, err
			}
			if !ok {
				isTradingDay = false
				break
			}
		}
		gd.IsTradingDay = isTradingDay

		for _, tk := range cfg.Tickers {
			if isTradingDay {
				prices, err := b.store.Prices(ctx, tk, date, date)
				if err == nil && len(prices) == 1 {
					gd.Prices[tk] = prices[0]
				}
			}

			rec, err := b.resolveRecommendation(ctx, tk, date)
			if err != nil {
				return nil, err
			}
			gd.Recommendations[tk] = rec

			if tech, err := b.store.Indicators(ctx, tk, date); err == nil && tech != nil {
				gd.Technicals[tk] = *tech
			}

			news, err := b.store.News(ctx, tk, date, 10)
			if err == nil {
				gd.News[tk] = news
			}
		}

		days[k] = gd
	}

	return &model.GameSlice{Key: key, Tickers: cfg.Tickers, StartDate: start, EndDate: end, Days: days}, nil
}

// resolveRecommendation looks up day's recommendation, falling back to the
// most recent earlier calendar day that has one (looking back at most 31
// days, and not before EarliestAllowedDate), and finally to a synthetic
// HOLD/0-confidence value.
func (b *Builder) resolveRecommendation(ctx context.Context, ticker string, date time.Time) (model.RecommendationRecord, error) {
	for d := date; !d.Before(b.store.EarliestAllowedDate()); d = d.AddDate(0, 0, -1) {
		rec, err := b.store.Recommendation(ctx, ticker, d)
		if err != nil {
			return model.RecommendationRecord{}, err
		}
		if rec != nil {
			return *rec, nil
		}
		// Only walk back a bounded number of days to avoid scanning the
		// entire history when nothing was ever ingested for this ticker.
		if date.Sub(d) > 30*24*time.Hour {
			break
		}
	}
	return model.RecommendationRecord{
		Ticker:           ticker,
		Date:             date,
		Recommendation:   model.Hold,
		Confidence:       0,
		TechnicalSignal:  model.Neutral,
		SentimentSignal:  model.Neutral,
		RiskLevel:        model.Neutral,
		RationaleSummary: "no recommendation available",
		Synthetic:        true,
	}, nil
}
