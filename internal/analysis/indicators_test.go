package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSMA(t *testing.T) {
	assert.InDelta(t, 3.0, SMA([]float64{1, 2, 3, 4, 5}, 5), 0.0001)
	assert.InDelta(t, 4.5, SMA([]float64{1, 2, 3, 4, 5}, 2), 0.0001)
	assert.Equal(t, 0.0, SMA([]float64{1, 2}, 5), "insufficient data returns zero")
	assert.Equal(t, 0.0, SMA(nil, 0))
}

func TestEMAConstantSeries(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = 42.0
	}
	assert.InDelta(t, 42.0, EMA(values, 10), 0.0001)
}

func TestEMATracksRecentValues(t *testing.T) {
	// A step up should pull the EMA above the old level but below the new one
	values := make([]float64, 40)
	for i := range values {
		if i < 20 {
			values[i] = 10
		} else {
			values[i] = 20
		}
	}
	ema := EMA(values, 10)
	assert.Greater(t, ema, 15.0)
	assert.Less(t, ema, 20.0)
}

func TestRSIExtremes(t *testing.T) {
	rising := make([]float64, 30)
	falling := make([]float64, 30)
	flat := make([]float64, 30)
	for i := range rising {
		rising[i] = float64(100 + i)
		falling[i] = float64(100 - i)
		flat[i] = 100
	}

	assert.InDelta(t, 100.0, RSI(rising, 14), 0.0001, "all gains")
	assert.InDelta(t, 0.0, RSI(falling, 14), 0.0001, "all losses")
	assert.InDelta(t, 50.0, RSI(flat, 14), 0.0001, "no movement")
	assert.Equal(t, 0.0, RSI(rising[:5], 14), "insufficient data")
}

func TestRSIMixedSeriesStaysInRange(t *testing.T) {
	values := []float64{44, 44.3, 44.1, 43.6, 44.3, 44.8, 45.1, 45.4, 45.8, 46.1,
		45.9, 46.3, 46.1, 46.0, 46.4, 46.2, 45.6, 46.2, 46.2, 46.0}
	rsi := RSI(values, 14)
	assert.Greater(t, rsi, 50.0, "mostly gains should read above midline")
	assert.Less(t, rsi, 100.0)
}

func TestMACDConstantSeriesIsZero(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 100
	}
	result := MACD(values, 12, 26, 9)
	assert.InDelta(t, 0.0, result.MACD, 0.0001)
	assert.InDelta(t, 0.0, result.Signal, 0.0001)
	assert.InDelta(t, 0.0, result.Histogram, 0.0001)
}

func TestMACDUptrendIsPositive(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 100 * (1 + 0.01*float64(i))
	}
	result := MACD(values, 12, 26, 9)
	assert.Greater(t, result.MACD, 0.0, "fast average leads in an uptrend")
}

func TestBollingerConstantSeries(t *testing.T) {
	values := make([]float64, 25)
	for i := range values {
		values[i] = 50
	}
	bb := Bollinger(values, 20, 2)
	assert.InDelta(t, 50.0, bb.Middle, 0.0001)
	assert.InDelta(t, 50.0, bb.Upper, 0.0001)
	assert.InDelta(t, 50.0, bb.Lower, 0.0001)
	assert.InDelta(t, 50.0, bb.Position, 0.0001, "degenerate band reads midline")
}

func TestBollingerUptrendReadsHigh(t *testing.T) {
	values := make([]float64, 25)
	for i := range values {
		values[i] = float64(100 + i)
	}
	bb := Bollinger(values, 20, 2)
	assert.Greater(t, bb.Upper, bb.Middle)
	assert.Greater(t, bb.Middle, bb.Lower)
	assert.Greater(t, bb.Position, 80.0, "latest close sits near the upper band")
}

func TestATRConstantRange(t *testing.T) {
	n := 30
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		closes[i] = 100
		highs[i] = 102
		lows[i] = 98
	}
	assert.InDelta(t, 4.0, ATR(highs, lows, closes, 14), 0.0001)
}

func TestOBV(t *testing.T) {
	closes := []float64{10, 11, 10.5, 10.5, 12}
	volumes := []int64{100, 200, 150, 80, 300}
	// +200 (up), -150 (down), 0 (flat), +300 (up)
	assert.InDelta(t, 350.0, OBV(closes, volumes), 0.0001)
}
