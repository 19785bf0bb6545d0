// Package historicalstore is the read-only gateway over prices, technical
// indicators, news, and recommendations. Its interface shape is
// grounded on the Broker interface (broker.go): a narrow,
// context-first contract with exactly one production implementation and
// one in-memory fixture used by tests, the same split as
// broker_paper.go vs. the network brokers.
package historicalstore

import (
	"context"
	"time"

	"github.com/classroomsim/market-engine/internal/apperr"
	"github.com/classroomsim/market-engine/internal/model"
)

// Gateway is the minimal read-only surface the game core needs from the
// historical store. No write operations exist on this interface.
type Gateway interface {
	// Prices returns the ordered sequence of MarketDay rows for ticker in
	// [from, to], inclusive. Empty if the ticker has no prices in range.
	Prices(ctx context.Context, ticker string, from, to time.Time) ([]model.MarketDay, error)

	// Indicators returns the TechnicalSnapshot for (ticker, date), or nil
	// if none was computed ("absence means neutral signal").
	Indicators(ctx context.Context, ticker string, date time.Time) (*model.TechnicalSnapshot, error)

	// News returns up to minCount items for ticker published on or before
	// date, newest first, so older items fill in when date itself has
	// fewer. It returns fewer than minCount only when the store runs out,
	// and never more than minCount.
	News(ctx context.Context, ticker string, date time.Time, minCount int) ([]model.NewsItem, error)

	// Recommendation returns the recommendation for (ticker, date), or nil
	// if the store has none (caller applies the prior-trading-day/synthetic
	// fallback).
	Recommendation(ctx context.Context, ticker string, date time.Time) (*model.RecommendationRecord, error)

	// EarliestAllowedDate is the fixed contractual lower bound for reads.
	EarliestAllowedDate() time.Time

	// HasPriceOn reports whether ticker has a price for date — the
	// building block for "is_trading_day".
	HasPriceOn(ctx context.Context, ticker string, date time.Time) (bool, error)
}

// outOfRangeErr builds the OUT_OF_RANGE *apperr.Error that Prices returns
// when from is before EarliestAllowedDate.
func outOfRangeErr(date, earliest time.Time) error {
	return apperr.New(apperr.OutOfRange,
		"date "+date.Format("2006-01-02")+" is before the earliest allowed date "+earliest.Format("2006-01-02"))
}
