package analysis

import (
	"fmt"
	"strings"

	"github.com/ternarybob/aestimo/internal/marketdata"
)

// LynchReport scores a company for growth at a reasonable price: PEG ratio
// first, then growth consistency, business quality, and market position.
type LynchReport struct {
	Ticker       string   `json:"ticker"`
	TotalScore   int      `json:"total_score"`
	MaxScore     int      `json:"max_score"`
	ScorePercent float64  `json:"score_percent"`
	Category     string   `json:"category"`
	Signal       Signal   `json:"signal"`
	Confidence   float64  `json:"confidence"`
	Reasoning    string   `json:"reasoning"`
	Pillars      []Pillar `json:"pillars"`
}

// growthSectors get a market-position point; complex financials do not
var growthSectors = []string{"Technology", "Healthcare", "Consumer Discretionary", "Consumer Cyclical", "Consumer Staples", "Industrials"}

// AnalyzeLynch scores fundamentals against GARP criteria
func AnalyzeLynch(ticker string, f *marketdata.Fundamentals) *LynchReport {
	report := &LynchReport{
		Ticker:   ticker,
		Category: lynchCategory(f),
	}

	garp := scoreLynchGARP(f)
	pillars := []Pillar{
		garp,
		scoreLynchGrowth(f),
		scoreLynchQuality(f),
		scoreLynchPosition(f),
	}
	for _, p := range pillars {
		report.TotalScore += p.Score
		report.MaxScore += p.MaxScore
	}
	report.Pillars = pillars
	if report.MaxScore > 0 {
		report.ScorePercent = float64(report.TotalScore) / float64(report.MaxScore) * 100
	}

	garpPercent := float64(garp.Score) / float64(garp.MaxScore) * 100
	report.signal(f.PEGRatio, garpPercent)
	return report
}

// lynchCategory buckets the company by earnings growth rate
func lynchCategory(f *marketdata.Fundamentals) string {
	switch {
	case f.EarningsGrowth > 0.20:
		return "fast grower"
	case f.EarningsGrowth > 0.10:
		return "stalwart"
	case f.EarningsGrowth > 0:
		return "slow grower"
	default:
		return "turnaround"
	}
}

func scoreLynchGARP(f *marketdata.Fundamentals) Pillar {
	p := Pillar{Name: "garp", MaxScore: 10}

	switch {
	case f.PEGRatio > 0 && f.PEGRatio < 0.5:
		p.add(4, fmt.Sprintf("Excellent PEG ratio of %.2f", f.PEGRatio))
	case f.PEGRatio > 0 && f.PEGRatio < 1.0:
		p.add(3, fmt.Sprintf("Attractive PEG ratio of %.2f (target <1.0)", f.PEGRatio))
	case f.PEGRatio > 0 && f.PEGRatio < 1.5:
		p.add(2, fmt.Sprintf("Reasonable PEG ratio of %.2f", f.PEGRatio))
	case f.PEGRatio > 0 && f.PEGRatio < 2.0:
		p.add(1, fmt.Sprintf("Borderline PEG ratio of %.2f", f.PEGRatio))
	case f.PEGRatio >= 2.0:
		p.add(0, fmt.Sprintf("High PEG ratio of %.2f", f.PEGRatio))
	default:
		p.Details = append(p.Details, "PEG ratio not available")
	}

	switch {
	case f.PERatio > 0 && f.PERatio < 15:
		p.add(2, fmt.Sprintf("Low P/E of %.1f", f.PERatio))
	case f.PERatio > 0 && f.PERatio < 25:
		p.add(1, fmt.Sprintf("Moderate P/E of %.1f", f.PERatio))
	case f.PERatio >= 25:
		p.add(0, fmt.Sprintf("Elevated P/E of %.1f", f.PERatio))
	}

	switch {
	case f.EarningsGrowth >= 0.15 && f.EarningsGrowth <= 0.30:
		p.add(3, fmt.Sprintf("Earnings growth of %.1f%% in the preferred range", f.EarningsGrowth*100))
	case f.EarningsGrowth > 0.30:
		p.add(2, fmt.Sprintf("Very high earnings growth of %.1f%% may not be sustainable", f.EarningsGrowth*100))
	case f.EarningsGrowth > 0.05:
		p.add(2, fmt.Sprintf("Solid earnings growth of %.1f%%", f.EarningsGrowth*100))
	case f.EarningsGrowth > 0:
		p.add(1, fmt.Sprintf("Modest earnings growth of %.1f%%", f.EarningsGrowth*100))
	}

	if f.RevenueGrowth > 0.10 {
		p.add(1, fmt.Sprintf("Revenue growth of %.1f%% supports the earnings story", f.RevenueGrowth*100))
	}

	if p.Score > p.MaxScore {
		p.Score = p.MaxScore
	}
	return p
}

func scoreLynchGrowth(f *marketdata.Fundamentals) Pillar {
	p := Pillar{Name: "growth_consistency", MaxScore: 8}

	switch {
	case f.EarningsGrowth > 0.20:
		p.add(3, fmt.Sprintf("Fast grower with %.1f%% earnings growth", f.EarningsGrowth*100))
	case f.EarningsGrowth > 0.10:
		p.add(2, fmt.Sprintf("Stalwart-level earnings growth of %.1f%%", f.EarningsGrowth*100))
	case f.EarningsGrowth > 0:
		p.add(1, fmt.Sprintf("Slow but positive earnings growth of %.1f%%", f.EarningsGrowth*100))
	default:
		p.Details = append(p.Details, "Earnings shrinking, possible turnaround case")
	}

	switch {
	case f.RevenueGrowth > 0.15:
		p.add(3, fmt.Sprintf("Strong revenue growth of %.1f%%", f.RevenueGrowth*100))
	case f.RevenueGrowth > 0.05:
		p.add(2, fmt.Sprintf("Steady revenue growth of %.1f%%", f.RevenueGrowth*100))
	case f.RevenueGrowth > 0:
		p.add(1, fmt.Sprintf("Slow revenue growth of %.1f%%", f.RevenueGrowth*100))
	}

	if f.EarningsGrowth > 0 && f.RevenueGrowth > 0 && f.EarningsGrowth >= f.RevenueGrowth {
		p.add(2, "Earnings growing at least as fast as revenue shows operating leverage")
	}

	if p.Score > p.MaxScore {
		p.Score = p.MaxScore
	}
	return p
}

func scoreLynchQuality(f *marketdata.Fundamentals) Pillar {
	p := Pillar{Name: "business_quality", MaxScore: 6}

	switch {
	case f.ProfitMargin > 0.15:
		p.add(2, fmt.Sprintf("High profit margin of %.1f%%", f.ProfitMargin*100))
	case f.ProfitMargin > 0.08:
		p.add(1, fmt.Sprintf("Decent profit margin of %.1f%%", f.ProfitMargin*100))
	}
	switch {
	case f.ReturnOnEquity > 0.15:
		p.add(2, fmt.Sprintf("Strong ROE of %.1f%%", f.ReturnOnEquity*100))
	case f.ReturnOnEquity > 0.10:
		p.add(1, fmt.Sprintf("Solid ROE of %.1f%%", f.ReturnOnEquity*100))
	}
	if f.FreeCashflow > 0 {
		p.add(1, "Generates free cash flow")
	}
	if f.CurrentRatio > 1.0 {
		p.add(1, fmt.Sprintf("Healthy balance sheet with current ratio of %.2f", f.CurrentRatio))
	}

	if p.Score > p.MaxScore {
		p.Score = p.MaxScore
	}
	return p
}

func scoreLynchPosition(f *marketdata.Fundamentals) Pillar {
	p := Pillar{Name: "market_position", MaxScore: 4}

	switch {
	case f.MarketCap >= 2e9 && f.MarketCap <= 50e9:
		p.add(2, fmt.Sprintf("Ideal market cap of $%.1fB (preferred mid-cap range)", f.MarketCap/1e9))
	case f.MarketCap >= 500e6 && f.MarketCap < 2e9:
		p.add(1, fmt.Sprintf("Small cap of $%.0fM with growth potential", f.MarketCap/1e6))
	case f.MarketCap > 100e9:
		p.add(0, fmt.Sprintf("Large cap of $%.1fB with limited growth runway", f.MarketCap/1e9))
	}

	for _, sector := range growthSectors {
		if strings.Contains(f.Sector, sector) {
			p.add(1, fmt.Sprintf("Favorable sector: %s", f.Sector))
			break
		}
	}

	if f.DividendYield > 0 && f.EarningsGrowth > 0.10 {
		p.add(1, "Pays a dividend while still growing")
	}

	if p.Score > p.MaxScore {
		p.Score = p.MaxScore
	}
	return p
}

// signal applies the GARP-weighted score bands. A sub-1.0 PEG boosts a
// strong score; an excellent PEG can rescue a middling one.
func (r *LynchReport) signal(pegRatio, garpPercent float64) {
	confidence := min95(r.ScorePercent)
	var reasoning []string

	switch {
	case r.ScorePercent >= 70:
		switch {
		case pegRatio > 0 && pegRatio < 1.0:
			r.Signal = SignalBullish
			confidence = min95(confidence + 15)
			reasoning = append(reasoning, fmt.Sprintf("Meets GARP criteria: PEG ratio %.2f < 1.0", pegRatio))
		case garpPercent >= 60:
			r.Signal = SignalBullish
			reasoning = append(reasoning, "Strong growth at reasonable price metrics")
		default:
			r.Signal = SignalNeutral
			reasoning = append(reasoning, "Good overall quality but mixed GARP metrics")
		}
	case r.ScorePercent >= 50:
		if pegRatio > 0 && pegRatio < 0.75 {
			r.Signal = SignalBullish
			reasoning = append(reasoning, fmt.Sprintf("Excellent PEG ratio %.2f compensates for other weaknesses", pegRatio))
		} else {
			r.Signal = SignalNeutral
			reasoning = append(reasoning, "Mixed signals require further analysis")
		}
	default:
		r.Signal = SignalBearish
		reasoning = append(reasoning, "Does not meet GARP investment criteria")
	}

	reasoning = append(reasoning, fmt.Sprintf("Overall quality score: %.1f%%", r.ScorePercent))

	r.Confidence = confidence
	r.Reasoning = strings.Join(reasoning, ". ")
}
