// Synthetic recommendation generation adapted from strategy.go's
// Signal/decide(): a moving-average regime filter turned into a
// BUY/HOLD/SELL label instead of a live trading intent. This runs only
// inside the seed CLI command, never in the request path — offline
// recommendation synthesis is an external collaborator's job; this is
// strictly a stand-in for classroom fixtures/tests.
package historicalstore

import (
	"context"
	"math"

	"github.com/classroomsim/market-engine/internal/model"
)

// SeedFromPrices derives recommendations and technicals for a price
// history and writes them through gw. It is meant for the seed CLI and
// for populating SQLiteGateway fixtures in tests, not for production use.
func SeedFromPrices(ctx context.Context, gw *SQLiteGateway, ticker string, days []model.MarketDay) error {
	for _, d := range days {
		if err := gw.InsertMarketDay(ctx, d); err != nil {
			return err
		}
	}
	for _, snap := range SnapshotsFromPrices(ticker, days) {
		if err := gw.InsertTechnicalSnapshot(ctx, snap); err != nil {
			return err
		}
	}
	for _, rec := range synthesizeRecommendations(ticker, days) {
		if err := gw.InsertRecommendation(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// synthesizeRecommendations turns an MA10-vs-MA30 regime read into a
// recommendation label, the same shape as decide().
func synthesizeRecommendations(ticker string, days []model.MarketDay) []model.RecommendationRecord {
	ma10 := SMA(days, 10)
	ma30 := SMA(days, 30)
	rsi14 := RSI(days, 14)
	out := make([]model.RecommendationRecord, len(days))
	for i, d := range days {
		rec := model.Hold
		conf := 0.5
		techSig := model.Neutral
		if !math.IsNaN(ma10[i]) && !math.IsNaN(ma30[i]) {
			spread := (ma10[i] - ma30[i]) / ma30[i]
			switch {
			case spread > 0.03:
				rec, conf, techSig = model.StrongBuy, 0.85, model.Bullish
			case spread > 0.005:
				rec, conf, techSig = model.Buy, 0.65, model.Bullish
			case spread < -0.03:
				rec, conf, techSig = model.StrongSell, 0.85, model.Bearish
			case spread < -0.005:
				rec, conf, techSig = model.Sell, 0.65, model.Bearish
			}
		}
		sentSig := model.Neutral
		risk := model.Neutral
		if rsi14[i] > 70 {
			risk = model.Bearish // overbought
		} else if rsi14[i] < 30 && rsi14[i] > 0 {
			risk = model.Bullish // oversold, bounce risk favors the long side
		}
		out[i] = model.RecommendationRecord{
			Ticker:           ticker,
			Date:             d.Date,
			Recommendation:   rec,
			Confidence:       conf,
			TechnicalSignal:  techSig,
			SentimentSignal:  sentSig,
			RiskLevel:        risk,
			RationaleSummary: "synthetic fixture: MA10/MA30 regime + RSI14",
		}
	}
	return out
}
