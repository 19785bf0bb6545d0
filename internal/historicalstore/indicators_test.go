package historicalstore

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroomsim/market-engine/internal/model"
)

func flatDays(n int, closes []float64) []model.MarketDay {
	out := make([]model.MarketDay, n)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		out[i] = model.MarketDay{Date: base.AddDate(0, 0, i), Close: closes[i], High: closes[i] + 1, Low: closes[i] - 1}
	}
	return out
}

func TestSMABeforeFullWindowIsNaN(t *testing.T) {
	days := flatDays(3, []float64{100, 101, 102})
	sma := SMA(days, 5)
	for _, v := range sma {
		assert.True(t, math.IsNaN(v))
	}
}

func TestSMAConstantSeriesEqualsTheConstant(t *testing.T) {
	days := flatDays(5, []float64{100, 100, 100, 100, 100})
	sma := SMA(days, 3)
	require.False(t, math.IsNaN(sma[4]))
	assert.InDelta(t, 100.0, sma[4], 1e-9)
}

func TestRSIAllGainsSaturatesAt100(t *testing.T) {
	days := flatDays(20, []float64{10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29})
	rsi := RSI(days, 14)
	assert.InDelta(t, 100.0, rsi[14], 1e-6)
}

func TestZScoreFlatSeriesIsZero(t *testing.T) {
	days := flatDays(5, []float64{50, 50, 50, 50, 50})
	z := ZScore(days, 3)
	assert.InDelta(t, 0.0, z[4], 1e-6)
}

func TestSnapshotsFromPricesProducesOneSnapshotPerDay(t *testing.T) {
	days := flatDays(25, func() []float64 {
		closes := make([]float64, 25)
		for i := range closes {
			closes[i] = 100 + float64(i)
		}
		return closes
	}())
	snaps := SnapshotsFromPrices("AAPL", days)
	require.Len(t, snaps, 25)
	assert.Equal(t, "AAPL", snaps[0].Ticker)
	assert.Greater(t, snaps[24].Trend, 0.0)
}
