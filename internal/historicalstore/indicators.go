// Indicator math adapted from indicators.go (SMA/RSI/ZScore over
// Candle), retyped to operate on model.MarketDay. Used only by the seed
// tool (cmd/server seed-market-data) to synthesize TechnicalSnapshot
// fixtures for local/test data — never called from the request path;
// recomputing signals live is out of scope.
package historicalstore

import "github.com/classroomsim/market-engine/internal/model"

import "math"

// SMA returns the n-period simple moving average of Close, aligned to days.
// Indices before the first full window hold NaN.
func SMA(days []model.MarketDay, n int) []float64 {
	out := make([]float64, len(days))
	if n <= 0 || len(days) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	var sum float64
	for i := range days {
		sum += days[i].Close
		if i >= n {
			sum -= days[i-n].Close
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// RSI returns the n-period Relative Strength Index using Wilder's smoothing.
func RSI(days []model.MarketDay, n int) []float64 {
	out := make([]float64, len(days))
	if n <= 0 || len(days) == 0 {
		return out
	}
	var gain, loss float64
	for i := 1; i < len(days); i++ {
		d := days[i].Close - days[i-1].Close
		if i <= n {
			if d > 0 {
				gain += d
			} else {
				loss -= d
			}
			if i == n {
				avgGain := gain / float64(n)
				avgLoss := loss / float64(n)
				if avgLoss == 0 {
					if avgGain == 0 {
						out[i] = 50.0
					} else {
						out[i] = 100.0
					}
				} else {
					rs := avgGain / avgLoss
					out[i] = 100.0 - (100.0 / (1.0 + rs))
				}
			}
		} else {
			if d > 0 {
				gain = (gain*float64(n-1) + d) / float64(n)
				loss = (loss * float64(n-1)) / float64(n)
			} else {
				gain = (gain * float64(n-1)) / float64(n)
				loss = (loss*float64(n-1) - d) / float64(n)
			}
			if loss == 0 {
				if gain == 0 {
					out[i] = 50.0
				} else {
					out[i] = 100.0
				}
				continue
			}
			rs := gain / loss
			out[i] = 100.0 - (100.0 / (1.0 + rs))
		}
	}
	return out
}

// ZScore returns the rolling z-score of Close over window n, aligned to days.
func ZScore(days []model.MarketDay, n int) []float64 {
	out := make([]float64, len(days))
	if n <= 1 || len(days) == 0 {
		return out
	}
	var sum, sumSq float64
	for i := range days {
		x := days[i].Close
		sum += x
		sumSq += x * x
		if i >= n {
			y := days[i-n].Close
			sum -= y
			sumSq -= y * y
		}
		if i >= n-1 {
			mean := sum / float64(n)
			variance := (sumSq / float64(n)) - (mean * mean)
			std := math.Sqrt(math.Max(variance, 1e-12))
			out[i] = (x - mean) / std
		}
	}
	return out
}

// SnapshotsFromPrices derives a TechnicalSnapshot per day from a price
// history, for seeding fixture/test data only.
func SnapshotsFromPrices(ticker string, days []model.MarketDay) []model.TechnicalSnapshot {
	sma20 := SMA(days, 20)
	rsi14 := RSI(days, 14)
	z20 := ZScore(days, 20)
	out := make([]model.TechnicalSnapshot, len(days))
	for i, d := range days {
		trend := 0.0
		if !math.IsNaN(sma20[i]) && sma20[i] != 0 {
			trend = (d.Close - sma20[i]) / sma20[i]
		}
		momentum := 0.0
		if i > 0 && days[i-1].Close != 0 {
			momentum = (d.Close - days[i-1].Close) / days[i-1].Close
		}
		rangeValue := 0.0
		if d.Close != 0 {
			rangeValue = (d.High - d.Low) / d.Close
		}
		out[i] = model.TechnicalSnapshot{
			Ticker:       ticker,
			Date:         d.Date,
			Momentum:     momentum,
			Trend:        trend,
			RangeValue:   rangeValue,
			Reversion:    rsi14[i] / 100.0,
			VolumeSignal: z20[i],
		}
	}
	return out
}
