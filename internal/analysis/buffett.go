package analysis

import (
	"fmt"
	"strings"

	"github.com/ternarybob/aestimo/internal/marketdata"
)

// Pillar is one scored dimension of an investor-style analysis
type Pillar struct {
	Name     string   `json:"name"`
	Score    int      `json:"score"`
	MaxScore int      `json:"max_score"`
	Details  []string `json:"details"`
}

func (p *Pillar) add(points int, detail string) {
	p.Score += points
	p.Details = append(p.Details, detail)
}

// BuffettReport scores a company against value-investing criteria: return on
// equity, debt discipline, margins, earnings quality, and price versus the
// analyst consensus as a margin-of-safety proxy.
type BuffettReport struct {
	Ticker         string   `json:"ticker"`
	TotalScore     int      `json:"total_score"`
	MaxScore       int      `json:"max_score"`
	ScorePercent   float64  `json:"score_percent"`
	MarginOfSafety *float64 `json:"margin_of_safety,omitempty"`
	Signal         Signal   `json:"signal"`
	Confidence     float64  `json:"confidence"`
	Reasoning      string   `json:"reasoning"`
	Pillars        []Pillar `json:"pillars"`
}

// AnalyzeBuffett scores fundamentals the way a conservative value investor
// would. quote may be nil when no current price is available; the margin of
// safety is then omitted.
func AnalyzeBuffett(ticker string, f *marketdata.Fundamentals, quote *marketdata.Quote) *BuffettReport {
	report := &BuffettReport{Ticker: ticker}

	pillars := []Pillar{
		scoreBuffettFundamentals(f),
		scoreBuffettMoat(f),
		scoreBuffettConsistency(f),
		scoreBuffettManagement(f),
	}
	for _, p := range pillars {
		report.TotalScore += p.Score
		report.MaxScore += p.MaxScore
	}
	report.Pillars = pillars
	if report.MaxScore > 0 {
		report.ScorePercent = float64(report.TotalScore) / float64(report.MaxScore) * 100
	}

	if quote != nil && quote.Price > 0 && f.TargetMeanPrice > 0 {
		mos := (f.TargetMeanPrice - quote.Price) / quote.Price
		report.MarginOfSafety = &mos
	}

	report.signal()
	return report
}

func scoreBuffettFundamentals(f *marketdata.Fundamentals) Pillar {
	p := Pillar{Name: "fundamentals", MaxScore: 8}

	switch {
	case f.ReturnOnEquity > 0.20:
		p.add(2, fmt.Sprintf("Exceptional ROE of %.1f%% (>20%% target)", f.ReturnOnEquity*100))
	case f.ReturnOnEquity > 0.15:
		p.add(2, fmt.Sprintf("Excellent ROE of %.1f%% (>15%% target)", f.ReturnOnEquity*100))
	case f.ReturnOnEquity > 0.10:
		p.add(1, fmt.Sprintf("Good ROE of %.1f%%", f.ReturnOnEquity*100))
	case f.ReturnOnEquity > 0:
		p.add(0, fmt.Sprintf("Weak ROE of %.1f%% (<10%%)", f.ReturnOnEquity*100))
	default:
		p.Details = append(p.Details, "ROE data not available")
	}

	if f.DebtToEquity > 0 {
		// The API reports debt-to-equity as a percentage
		debtRatio := f.DebtToEquity
		if debtRatio > 10 {
			debtRatio /= 100
		}
		// Large caps get more lenient debt thresholds
		largeCap := f.MarketCap > 500e9
		switch {
		case largeCap && debtRatio < 0.4, !largeCap && debtRatio < 0.3:
			p.add(2, fmt.Sprintf("Conservative debt levels (%.2f)", debtRatio))
		case largeCap && debtRatio < 0.7, !largeCap && debtRatio < 0.5:
			p.add(1, fmt.Sprintf("Moderate debt levels (%.2f)", debtRatio))
		default:
			p.add(0, fmt.Sprintf("High debt levels (%.2f)", debtRatio))
		}
	} else {
		p.Details = append(p.Details, "Debt-to-equity data not available")
	}

	switch {
	case f.CurrentRatio > 1.5:
		p.add(2, fmt.Sprintf("Strong liquidity with current ratio of %.2f", f.CurrentRatio))
	case f.CurrentRatio > 1.0:
		p.add(1, fmt.Sprintf("Adequate liquidity with current ratio of %.2f", f.CurrentRatio))
	case f.CurrentRatio > 0:
		p.add(0, fmt.Sprintf("Weak liquidity with current ratio of %.2f", f.CurrentRatio))
	default:
		p.Details = append(p.Details, "Current ratio data not available")
	}

	switch {
	case f.OperatingMargin > 0.20:
		p.add(2, fmt.Sprintf("Excellent operating margin of %.1f%%", f.OperatingMargin*100))
	case f.OperatingMargin > 0.10:
		p.add(1, fmt.Sprintf("Decent operating margin of %.1f%%", f.OperatingMargin*100))
	case f.OperatingMargin > 0:
		p.add(0, fmt.Sprintf("Thin operating margin of %.1f%%", f.OperatingMargin*100))
	default:
		p.Details = append(p.Details, "Operating margin data not available")
	}

	return p
}

func scoreBuffettMoat(f *marketdata.Fundamentals) Pillar {
	p := Pillar{Name: "economic_moat", MaxScore: 6}

	if f.ReturnOnEquity > 0.15 {
		p.add(2, "Sustained high returns on equity suggest a durable moat")
	}
	switch {
	case f.GrossMargin > 0.40:
		p.add(2, fmt.Sprintf("Strong pricing power with gross margin of %.1f%%", f.GrossMargin*100))
	case f.GrossMargin > 0.25:
		p.add(1, fmt.Sprintf("Moderate gross margin of %.1f%%", f.GrossMargin*100))
	}
	switch {
	case f.ProfitMargin > 0.15:
		p.add(2, fmt.Sprintf("High profit margin of %.1f%% indicates competitive advantage", f.ProfitMargin*100))
	case f.ProfitMargin > 0.08:
		p.add(1, fmt.Sprintf("Reasonable profit margin of %.1f%%", f.ProfitMargin*100))
	}

	return p
}

func scoreBuffettConsistency(f *marketdata.Fundamentals) Pillar {
	p := Pillar{Name: "consistency", MaxScore: 4}

	switch {
	case f.EarningsGrowth > 0.10:
		p.add(2, fmt.Sprintf("Strong earnings growth of %.1f%%", f.EarningsGrowth*100))
	case f.EarningsGrowth > 0:
		p.add(1, fmt.Sprintf("Positive earnings growth of %.1f%%", f.EarningsGrowth*100))
	default:
		p.Details = append(p.Details, "Earnings growth flat or negative")
	}
	switch {
	case f.RevenueGrowth > 0.05:
		p.add(2, fmt.Sprintf("Healthy revenue growth of %.1f%%", f.RevenueGrowth*100))
	case f.RevenueGrowth > 0:
		p.add(1, fmt.Sprintf("Modest revenue growth of %.1f%%", f.RevenueGrowth*100))
	default:
		p.Details = append(p.Details, "Revenue growth flat or negative")
	}

	return p
}

func scoreBuffettManagement(f *marketdata.Fundamentals) Pillar {
	p := Pillar{Name: "management", MaxScore: 4}

	if f.FreeCashflow > 0 {
		p.add(2, "Positive free cash flow shows disciplined capital allocation")
	} else {
		p.Details = append(p.Details, "Free cash flow negative or unavailable")
	}
	if f.DividendYield > 0 {
		p.add(1, fmt.Sprintf("Returns cash to shareholders (%.2f%% yield)", f.DividendYield*100))
	}
	if f.ReturnOnEquity > 0.12 {
		p.add(1, "Management earns strong returns on retained capital")
	}

	return p
}

// signal applies the score and margin-of-safety bands
func (r *BuffettReport) signal() {
	confidence := r.ScorePercent
	if confidence > 95 {
		confidence = 95
	}

	var reasoning []string
	mos := r.MarginOfSafety

	switch {
	case r.ScorePercent >= 75:
		switch {
		case mos != nil && *mos >= 0.25:
			r.Signal = SignalBullish
			confidence = min95(confidence + 10)
			reasoning = append(reasoning, "Strong fundamentals with excellent margin of safety")
		case mos != nil && *mos >= 0.10:
			r.Signal = SignalBullish
			reasoning = append(reasoning, "Strong fundamentals with adequate margin of safety")
		case mos != nil && *mos < -0.20:
			r.Signal = SignalNeutral
			confidence *= 0.7
			reasoning = append(reasoning, "Strong fundamentals but stock appears overvalued")
		default:
			r.Signal = SignalBullish
			reasoning = append(reasoning, "Strong fundamentals justify investment")
		}
	case r.ScorePercent >= 50:
		switch {
		case mos != nil && *mos >= 0.30:
			r.Signal = SignalBullish
			reasoning = append(reasoning, "Decent fundamentals with strong margin of safety")
		case mos != nil && *mos < -0.15:
			r.Signal = SignalBearish
			reasoning = append(reasoning, "Weak fundamentals and overvaluation concerns")
		default:
			r.Signal = SignalNeutral
			reasoning = append(reasoning, "Mixed fundamentals require careful consideration")
		}
	default:
		r.Signal = SignalBearish
		reasoning = append(reasoning, "Weak fundamentals don't meet value investing criteria")
	}

	if mos != nil {
		reasoning = append(reasoning, fmt.Sprintf("Margin of safety: %.1f%%", *mos*100))
	}
	reasoning = append(reasoning, fmt.Sprintf("Overall quality score: %.1f%%", r.ScorePercent))

	r.Confidence = confidence
	r.Reasoning = strings.Join(reasoning, ". ")
}

func min95(v float64) float64 {
	if v > 95 {
		return 95
	}
	return v
}
