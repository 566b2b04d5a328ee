package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/aestimo/internal/marketdata"
)

func trendCandles(n int, start, step float64) []marketdata.Candle {
	candles := make([]marketdata.Candle, n)
	base := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		price := start + step*float64(i)
		candles[i] = marketdata.Candle{
			Date:   base.AddDate(0, 0, i),
			Open:   price - 0.5,
			High:   price + 1,
			Low:    price - 1,
			Close:  price,
			Volume: 1_000_000,
		}
	}
	return candles
}

func TestAnalyzeTechnicalRequiresHistory(t *testing.T) {
	_, err := AnalyzeTechnical("AAPL", trendCandles(10, 100, 1))
	assert.Error(t, err)
}

func TestAnalyzeTechnicalUptrend(t *testing.T) {
	report, err := AnalyzeTechnical("AAPL", trendCandles(60, 100, 1))
	require.NoError(t, err)

	assert.Equal(t, SignalBullish, report.OverallSignal)
	assert.Greater(t, report.Confidence, 50.0)
	assert.Equal(t, SignalBullish, report.MovingAverages.Trend)
	assert.Equal(t, SignalBullish, report.Trend.Direction)
	assert.Equal(t, ZoneOverbought, report.Momentum.RSIZone, "a steady climb reads overbought")
	assert.Greater(t, report.MovingAverages.SMA20, report.MovingAverages.SMA50)
	assert.InDelta(t, 159.0, report.Price, 0.001)
}

func TestAnalyzeTechnicalDowntrend(t *testing.T) {
	report, err := AnalyzeTechnical("AAPL", trendCandles(60, 200, -1))
	require.NoError(t, err)

	assert.Equal(t, SignalBearish, report.OverallSignal)
	assert.Equal(t, SignalBearish, report.MovingAverages.Trend)
	assert.Equal(t, SignalBearish, report.Trend.Direction)
	assert.Equal(t, ZoneOversold, report.Momentum.RSIZone)
}

func TestAnalyzeTechnicalLevels(t *testing.T) {
	report, err := AnalyzeTechnical("AAPL", trendCandles(60, 100, 1))
	require.NoError(t, err)

	levels := report.Levels
	assert.Greater(t, levels.Resistance1, levels.Pivot)
	assert.Less(t, levels.Support1, levels.Pivot)
	assert.Greater(t, levels.NearestResistance, report.Price)
	assert.Less(t, levels.NearestSupport, report.Price)
	assert.Greater(t, levels.DistanceToResistance, 0.0)
	assert.Greater(t, levels.DistanceToSupport, 0.0)
}

func TestAnalyzeTechnicalVolumeProfile(t *testing.T) {
	candles := trendCandles(60, 100, 0.5)
	// Spike the last day's volume
	candles[len(candles)-1].Volume = 5_000_000

	report, err := AnalyzeTechnical("AAPL", candles)
	require.NoError(t, err)

	assert.Equal(t, "high", report.Volume.VolumeSignal)
	assert.Greater(t, report.Volume.VolumeRatio, 1.5)
}
