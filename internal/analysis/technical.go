// Package analysis computes technical indicators and investor-style scoring
// from raw market data. Results feed the generation prompts and the final
// report.
package analysis

import (
	"fmt"

	"github.com/ternarybob/aestimo/internal/marketdata"
)

// Signal is a directional reading
type Signal string

const (
	SignalBullish Signal = "bullish"
	SignalBearish Signal = "bearish"
	SignalNeutral Signal = "neutral"
)

// Zone is an extension reading for oscillators
type Zone string

const (
	ZoneOverbought Zone = "overbought"
	ZoneOversold   Zone = "oversold"
	ZoneNeutral    Zone = "neutral"
)

// minCandles is the minimum history needed for a meaningful reading. The
// 200-day average simply reads zero when the series is shorter.
const minCandles = 40

// MovingAverages summarizes the price position against its averages
type MovingAverages struct {
	SMA20          float64 `json:"sma_20"`
	SMA50          float64 `json:"sma_50"`
	SMA200         float64 `json:"sma_200"`
	EMA8           float64 `json:"ema_8"`
	EMA21          float64 `json:"ema_21"`
	PriceVsSMA20   float64 `json:"price_vs_sma_20"`
	PriceVsSMA50   float64 `json:"price_vs_sma_50"`
	PriceVsSMA200  float64 `json:"price_vs_sma_200"`
	Trend          Signal  `json:"trend"`
	GoldenCross    bool    `json:"golden_cross"`
	DeathCross     bool    `json:"death_cross"`
}

// Momentum summarizes oscillator readings
type Momentum struct {
	RSI       float64 `json:"rsi"`
	RSIZone   Zone    `json:"rsi_zone"`
	ROC       float64 `json:"roc"`
	ROCSignal Signal  `json:"roc_signal"`
}

// Trend summarizes the MACD crossover state
type Trend struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
	Direction Signal  `json:"direction"`
}

// Volatility summarizes band and range readings
type Volatility struct {
	BBUpper    float64 `json:"bb_upper"`
	BBMiddle   float64 `json:"bb_middle"`
	BBLower    float64 `json:"bb_lower"`
	BBPosition float64 `json:"bb_position"`
	BBZone     Zone    `json:"bb_zone"`
	ATR        float64 `json:"atr"`
	ATRPercent float64 `json:"atr_percent"`
	Regime     string  `json:"regime"` // high or low
}

// VolumeProfile summarizes trading activity
type VolumeProfile struct {
	OBV          float64 `json:"obv"`
	VolumeSMA    float64 `json:"volume_sma"`
	VolumeRatio  float64 `json:"volume_ratio"`
	VolumeSignal string  `json:"volume_signal"` // high, low, normal
}

// Levels holds classic pivot-point support and resistance
type Levels struct {
	Pivot                float64 `json:"pivot"`
	Resistance1          float64 `json:"resistance_1"`
	Resistance2          float64 `json:"resistance_2"`
	Resistance3          float64 `json:"resistance_3"`
	Support1             float64 `json:"support_1"`
	Support2             float64 `json:"support_2"`
	Support3             float64 `json:"support_3"`
	NearestResistance    float64 `json:"nearest_resistance"`
	NearestSupport       float64 `json:"nearest_support"`
	DistanceToResistance float64 `json:"distance_to_resistance"`
	DistanceToSupport    float64 `json:"distance_to_support"`
}

// TechnicalReport is the combined indicator view for one ticker
type TechnicalReport struct {
	Ticker         string         `json:"ticker"`
	Price          float64        `json:"price"`
	OverallSignal  Signal         `json:"overall_signal"`
	Confidence     float64        `json:"confidence"`
	BullishWeight  float64        `json:"bullish_weight"`
	BearishWeight  float64        `json:"bearish_weight"`
	MovingAverages MovingAverages `json:"moving_averages"`
	Momentum       Momentum       `json:"momentum"`
	Trend          Trend          `json:"trend"`
	Volatility     Volatility     `json:"volatility"`
	Volume         VolumeProfile  `json:"volume"`
	Levels         Levels         `json:"levels"`
}

// AnalyzeTechnical computes the full indicator suite over daily candles,
// oldest first.
func AnalyzeTechnical(ticker string, candles []marketdata.Candle) (*TechnicalReport, error) {
	if len(candles) < minCandles {
		return nil, fmt.Errorf("need at least %d candles for technical analysis, got %d", minCandles, len(candles))
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	volumes := make([]int64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}
	price := closes[len(closes)-1]

	report := &TechnicalReport{
		Ticker:         ticker,
		Price:          price,
		MovingAverages: analyzeMovingAverages(closes, price),
		Momentum:       analyzeMomentum(closes),
		Trend:          analyzeTrend(closes),
		Volatility:     analyzeVolatility(highs, lows, closes, price),
		Volume:         analyzeVolume(closes, volumes),
		Levels:         analyzeLevels(highs, lows, closes),
	}
	report.score()
	return report, nil
}

func analyzeMovingAverages(closes []float64, price float64) MovingAverages {
	ma := MovingAverages{
		SMA20:  SMA(closes, 20),
		SMA50:  SMA(closes, 50),
		SMA200: SMA(closes, 200),
		EMA8:   EMA(closes, 8),
		EMA21:  EMA(closes, 21),
		Trend:  SignalNeutral,
	}
	if ma.SMA20 > 0 {
		ma.PriceVsSMA20 = (price/ma.SMA20 - 1) * 100
	}
	if ma.SMA50 > 0 {
		ma.PriceVsSMA50 = (price/ma.SMA50 - 1) * 100
	}
	if ma.SMA200 > 0 {
		ma.PriceVsSMA200 = (price/ma.SMA200 - 1) * 100
	}

	if ma.SMA200 > 0 {
		if ma.SMA20 > ma.SMA50 && ma.SMA50 > ma.SMA200 {
			ma.Trend = SignalBullish
		} else if ma.SMA20 < ma.SMA50 && ma.SMA50 < ma.SMA200 {
			ma.Trend = SignalBearish
		}
	} else if ma.SMA50 > 0 {
		if ma.SMA20 > ma.SMA50 {
			ma.Trend = SignalBullish
		} else if ma.SMA20 < ma.SMA50 {
			ma.Trend = SignalBearish
		}
	}

	// Crossover check against the previous bar's averages
	if len(closes) > 200 {
		prev := closes[:len(closes)-1]
		sma50Prev := SMA(prev, 50)
		sma200Prev := SMA(prev, 200)
		ma.GoldenCross = ma.SMA50 > ma.SMA200 && sma50Prev <= sma200Prev
		ma.DeathCross = ma.SMA50 < ma.SMA200 && sma50Prev >= sma200Prev
	}

	return ma
}

func analyzeMomentum(closes []float64) Momentum {
	m := Momentum{
		RSI:     RSI(closes, 14),
		RSIZone: ZoneNeutral,
	}
	if m.RSI > 70 {
		m.RSIZone = ZoneOverbought
	} else if m.RSI < 30 {
		m.RSIZone = ZoneOversold
	}

	if len(closes) > 10 {
		base := closes[len(closes)-11]
		if base != 0 {
			m.ROC = (closes[len(closes)-1]/base - 1) * 100
		}
	}
	if m.ROC > 0 {
		m.ROCSignal = SignalBullish
	} else {
		m.ROCSignal = SignalBearish
	}
	return m
}

func analyzeTrend(closes []float64) Trend {
	macd := MACD(closes, 12, 26, 9)
	t := Trend{
		MACD:      macd.MACD,
		Signal:    macd.Signal,
		Histogram: macd.Histogram,
		Direction: SignalBearish,
	}
	if macd.MACD > macd.Signal {
		t.Direction = SignalBullish
	}
	return t
}

func analyzeVolatility(highs, lows, closes []float64, price float64) Volatility {
	bb := Bollinger(closes, 20, 2)
	v := Volatility{
		BBUpper:    bb.Upper,
		BBMiddle:   bb.Middle,
		BBLower:    bb.Lower,
		BBPosition: bb.Position,
		BBZone:     ZoneNeutral,
		ATR:        ATR(highs, lows, closes, 14),
		Regime:     "low",
	}
	if bb.Position > 80 {
		v.BBZone = ZoneOverbought
	} else if bb.Position < 20 {
		v.BBZone = ZoneOversold
	}
	if price > 0 {
		v.ATRPercent = v.ATR / price * 100
	}
	if v.ATRPercent > 3 {
		v.Regime = "high"
	}
	return v
}

func analyzeVolume(closes []float64, volumes []int64) VolumeProfile {
	floatVolumes := make([]float64, len(volumes))
	for i, v := range volumes {
		floatVolumes[i] = float64(v)
	}

	vp := VolumeProfile{
		OBV:          OBV(closes, volumes),
		VolumeSMA:    SMA(floatVolumes, 20),
		VolumeRatio:  1,
		VolumeSignal: "normal",
	}
	current := floatVolumes[len(floatVolumes)-1]
	if vp.VolumeSMA > 0 {
		vp.VolumeRatio = current / vp.VolumeSMA
	}
	if vp.VolumeRatio > 1.5 {
		vp.VolumeSignal = "high"
	} else if vp.VolumeRatio < 0.5 {
		vp.VolumeSignal = "low"
	}
	return vp
}

func analyzeLevels(highs, lows, closes []float64) Levels {
	n := len(closes)
	lastHigh := highs[n-2]
	lastLow := lows[n-2]
	lastClose := closes[n-2]
	price := closes[n-1]

	pivot := (lastHigh + lastLow + lastClose) / 3
	l := Levels{
		Pivot:       pivot,
		Resistance1: 2*pivot - lastLow,
		Resistance2: pivot + (lastHigh - lastLow),
		Resistance3: lastHigh + 2*(pivot-lastLow),
		Support1:    2*pivot - lastHigh,
		Support2:    pivot - (lastHigh - lastLow),
		Support3:    lastLow - 2*(lastHigh-pivot),
	}

	l.NearestResistance = l.Resistance1
	for _, r := range []float64{l.Resistance1, l.Resistance2, l.Resistance3} {
		if r > price && (l.NearestResistance <= price || r < l.NearestResistance) {
			l.NearestResistance = r
		}
	}
	l.NearestSupport = l.Support1
	for _, s := range []float64{l.Support1, l.Support2, l.Support3} {
		if s < price && (l.NearestSupport >= price || s > l.NearestSupport) {
			l.NearestSupport = s
		}
	}
	if price > 0 {
		l.DistanceToResistance = (l.NearestResistance - price) / price * 100
		l.DistanceToSupport = (price - l.NearestSupport) / price * 100
	}
	return l
}

// score combines the indicator groups into a weighted directional call.
// Moving averages and MACD carry double weight.
func (r *TechnicalReport) score() {
	type vote struct {
		weight  float64
		bullish bool
		bearish bool
	}

	votes := []vote{
		{2, r.MovingAverages.Trend == SignalBullish, r.MovingAverages.Trend == SignalBearish},
		{1, r.Momentum.RSIZone == ZoneOversold, r.Momentum.RSIZone == ZoneOverbought},
		{2, r.Trend.Direction == SignalBullish, r.Trend.Direction == SignalBearish},
		{1, r.Volatility.BBZone == ZoneOversold, r.Volatility.BBZone == ZoneOverbought},
	}

	total := 0.0
	for _, v := range votes {
		total += v.weight
		if v.bullish {
			r.BullishWeight += v.weight
		}
		if v.bearish {
			r.BearishWeight += v.weight
		}
	}

	switch {
	case r.BullishWeight > r.BearishWeight:
		r.OverallSignal = SignalBullish
		r.Confidence = r.BullishWeight / total * 100
	case r.BearishWeight > r.BullishWeight:
		r.OverallSignal = SignalBearish
		r.Confidence = r.BearishWeight / total * 100
	default:
		r.OverallSignal = SignalNeutral
		r.Confidence = 50
	}
}
