package analysis

import "math"

// SMA returns the simple moving average of the last period values, or 0 when
// there is not enough data.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// EMA returns the exponential moving average of the last value in the series
func EMA(values []float64, period int) float64 {
	series := emaSeries(values, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// emaSeries computes the running EMA, seeded with the SMA of the first
// period values. The returned slice is aligned to values[period-1:].
func emaSeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	seed := 0.0
	for _, v := range values[:period] {
		seed += v
	}
	seed /= float64(period)

	k := 2.0 / float64(period+1)
	series := make([]float64, 0, len(values)-period+1)
	series = append(series, seed)
	prev := seed
	for _, v := range values[period:] {
		prev = v*k + prev*(1-k)
		series = append(series, prev)
	}
	return series
}

// RSI returns the Wilder-smoothed relative strength index. All-gain windows
// return 100, all-loss windows return 0.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 0
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACDResult holds the fast/slow crossover values for the latest bar
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD computes the 12/26/9 moving average convergence divergence
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	if len(closes) < slow+signal {
		return MACDResult{}
	}

	fastSeries := emaSeries(closes, fast)
	slowSeries := emaSeries(closes, slow)

	// Align the fast series to the slow one
	offset := len(fastSeries) - len(slowSeries)
	macdLine := make([]float64, len(slowSeries))
	for i := range slowSeries {
		macdLine[i] = fastSeries[i+offset] - slowSeries[i]
	}

	signalSeries := emaSeries(macdLine, signal)
	if len(signalSeries) == 0 {
		return MACDResult{}
	}

	macd := macdLine[len(macdLine)-1]
	sig := signalSeries[len(signalSeries)-1]
	return MACDResult{MACD: macd, Signal: sig, Histogram: macd - sig}
}

// BollingerResult holds the 20-period, 2-sigma band values
type BollingerResult struct {
	Upper    float64
	Middle   float64
	Lower    float64
	Position float64 // percentage of band width, 0 at lower and 100 at upper
}

// Bollinger computes the Bollinger Bands over the last period closes
func Bollinger(closes []float64, period int, stdDevs float64) BollingerResult {
	if period <= 0 || len(closes) < period {
		return BollingerResult{Position: 50}
	}

	window := closes[len(closes)-period:]
	mean := SMA(closes, period)

	variance := 0.0
	for _, v := range window {
		variance += (v - mean) * (v - mean)
	}
	stddev := math.Sqrt(variance / float64(period))

	result := BollingerResult{
		Upper:    mean + stdDevs*stddev,
		Middle:   mean,
		Lower:    mean - stdDevs*stddev,
		Position: 50,
	}
	if result.Upper > result.Lower {
		current := closes[len(closes)-1]
		result.Position = (current - result.Lower) / (result.Upper - result.Lower) * 100
	}
	return result
}

// ATR returns the Wilder-smoothed average true range
func ATR(highs, lows, closes []float64, period int) float64 {
	n := len(closes)
	if period <= 0 || n < period+1 || len(highs) != n || len(lows) != n {
		return 0
	}

	trs := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		tr := highs[i] - lows[i]
		if hc := math.Abs(highs[i] - closes[i-1]); hc > tr {
			tr = hc
		}
		if lc := math.Abs(lows[i] - closes[i-1]); lc > tr {
			tr = lc
		}
		trs = append(trs, tr)
	}

	atr := 0.0
	for _, tr := range trs[:period] {
		atr += tr
	}
	atr /= float64(period)
	for _, tr := range trs[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr
}

// OBV returns the on-balance volume for the full series
func OBV(closes []float64, volumes []int64) float64 {
	if len(closes) != len(volumes) || len(closes) == 0 {
		return 0
	}
	obv := 0.0
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			obv += float64(volumes[i])
		case closes[i] < closes[i-1]:
			obv -= float64(volumes[i])
		}
	}
	return obv
}
