// Package prompts builds generation requests for each analysis component.
// Callers fill in sampling parameters; these builders only produce the
// system and user text.
package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/aestimo/internal/analysis"
	"github.com/ternarybob/aestimo/internal/llm"
	"github.com/ternarybob/aestimo/internal/marketdata"
)

const (
	technicalSystem = "You are a professional technical analyst with expertise in stock market technical analysis. " +
		"Provide detailed, actionable insights based on comprehensive technical data including momentum, trend, volatility, and volume metrics."

	fundamentalSystem = "You are a professional fundamental analyst specializing in company valuation and financial statement analysis. " +
		"Provide clear, data-driven assessments of business quality and valuation."

	newsSystem = "You are a financial news analyst. Assess sentiment, materiality, and likely price impact of recent news. " +
		"Distinguish noise from information that changes the investment case."

	buffettSystem = "You are an analyst applying Warren Buffett's value investing principles: durable competitive advantages, " +
		"high returns on equity, conservative debt, and buying with a margin of safety."

	lynchSystem = "You are an analyst applying Peter Lynch's growth-at-a-reasonable-price philosophy: PEG ratio first, " +
		"invest in what you understand, and favor companies with room to grow."

	recommendationSystem = "You are a senior investment strategist. Synthesize technical, fundamental, and news analysis " +
		"into a single clear recommendation with conviction level and risks."

	summarySystem = "You are an investment writer. Produce a concise executive summary that a busy reader can absorb in one minute."
)

// Technical builds the technical analysis request
func Technical(ticker string, report *analysis.TechnicalReport, quote *marketdata.Quote) *llm.Request {
	data, _ := json.MarshalIndent(report, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "Provide a comprehensive technical analysis for %s.\n\n", ticker)
	writeQuoteContext(&b, quote)
	fmt.Fprintf(&b, "Technical indicator data:\n%s\n\n", data)
	fmt.Fprintf(&b, "Overall signal: %s (confidence: %.1f%%)\n\n", report.OverallSignal, report.Confidence)
	b.WriteString(`Cover the following:

1. MOMENTUM: RSI overbought/oversold conditions and rate-of-change acceleration.
2. TREND: MACD crossover state, moving average alignment, and any golden/death cross.
3. VOLATILITY: Bollinger Band position and ATR-based risk assessment.
4. VOLUME: on-balance volume direction and unusual activity.
5. KEY LEVELS: nearest support and resistance with specific prices.
6. ACTIONABLE VIEW: entry/exit considerations, stop-loss guidance based on ATR, and what would invalidate the signal.

Use clear section headers and specific price levels.`)

	return &llm.Request{System: technicalSystem, Prompt: b.String()}
}

// Fundamental builds the fundamental analysis request
func Fundamental(ticker string, f *marketdata.Fundamentals, quote *marketdata.Quote) *llm.Request {
	data, _ := json.MarshalIndent(f, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "Provide a fundamental analysis for %s (%s, %s sector).\n\n", ticker, f.Name, f.Sector)
	writeQuoteContext(&b, quote)
	fmt.Fprintf(&b, "Fundamental metrics:\n%s\n\n", data)
	b.WriteString(`Cover the following:

1. VALUATION: P/E, forward P/E, PEG, and price-to-book versus what the growth profile justifies.
2. PROFITABILITY: margins and return on equity, and whether they are improving or deteriorating.
3. BALANCE SHEET: debt levels and liquidity.
4. GROWTH: earnings and revenue trajectory and its durability.
5. VERDICT: is the stock cheap, fair, or expensive relative to its quality, and why.`)

	return &llm.Request{System: fundamentalSystem, Prompt: b.String()}
}

// News builds the news analysis request. Articles with extracted content
// include it; others contribute title and summary only.
func News(ticker string, articles []marketdata.NewsArticle, quote *marketdata.Quote) *llm.Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze recent news for %s and its likely impact on the stock.\n\n", ticker)
	writeQuoteContext(&b, quote)

	fmt.Fprintf(&b, "Recent articles (%d):\n\n", len(articles))
	for i, a := range articles {
		fmt.Fprintf(&b, "--- Article %d ---\nTitle: %s\nPublisher: %s\nPublished: %s\n", i+1, a.Title, a.Publisher, a.PublishedAt.Format("2006-01-02"))
		if a.Content != "" {
			fmt.Fprintf(&b, "Content:\n%s\n", a.Content)
		} else if a.Summary != "" {
			fmt.Fprintf(&b, "Summary: %s\n", a.Summary)
		}
		b.WriteString("\n")
	}

	b.WriteString(`Cover the following:

1. SENTIMENT: overall tone across the articles (positive/negative/mixed) with the key drivers.
2. MATERIAL EVENTS: earnings, guidance, products, regulation, or management changes that alter the thesis.
3. PRICE IMPACT: which items the market has likely priced in versus genuine new information.
4. WATCH LIST: upcoming catalysts or risks flagged by the coverage.`)

	return &llm.Request{System: newsSystem, Prompt: b.String()}
}

// Buffett builds the value-investing analysis request
func Buffett(ticker string, report *analysis.BuffettReport, f *marketdata.Fundamentals) *llm.Request {
	data, _ := json.MarshalIndent(report, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "Evaluate %s (%s) as a long-term value investment.\n\n", ticker, f.Name)
	fmt.Fprintf(&b, "Quantitative scoring against value criteria:\n%s\n\n", data)
	fmt.Fprintf(&b, "The screen reads %s with %.0f%% confidence: %s\n\n", report.Signal, report.Confidence, report.Reasoning)
	b.WriteString(`Interpret the scoring in plain language:

1. MOAT: does the business show evidence of a durable competitive advantage?
2. MANAGEMENT: is capital being allocated sensibly?
3. FINANCIAL STRENGTH: debt discipline and earnings consistency.
4. PRICE: is there a margin of safety at the current valuation?
5. VERDICT: would a patient value investor buy, hold, or avoid this stock, and at what price would the answer change?`)

	return &llm.Request{System: buffettSystem, Prompt: b.String()}
}

// Lynch builds the growth-at-a-reasonable-price analysis request
func Lynch(ticker string, report *analysis.LynchReport, f *marketdata.Fundamentals) *llm.Request {
	data, _ := json.MarshalIndent(report, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "Evaluate %s (%s) as a growth-at-a-reasonable-price investment.\n\n", ticker, f.Name)
	fmt.Fprintf(&b, "Quantitative GARP scoring:\n%s\n\n", data)
	fmt.Fprintf(&b, "The company classifies as a %s. The screen reads %s with %.0f%% confidence.\n\n", report.Category, report.Signal, report.Confidence)
	b.WriteString(`Interpret the scoring in plain language:

1. PEG STORY: does the price paid for growth make sense?
2. CATEGORY: what does the growth category imply for expectations and position sizing?
3. EARNINGS QUALITY: is the growth backed by revenue and cash flow?
4. VERDICT: buy, watch, or pass, and the one number that matters most to monitor.`)

	return &llm.Request{System: lynchSystem, Prompt: b.String()}
}

// Recommendation builds the synthesis request from completed component
// analyses. Empty sections are marked unavailable rather than omitted.
func Recommendation(ticker string, quote *marketdata.Quote, technical, fundamental, news string) *llm.Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Produce an investment recommendation for %s by synthesizing the analyses below.\n\n", ticker)
	writeQuoteContext(&b, quote)
	writeSection(&b, "TECHNICAL ANALYSIS", technical)
	writeSection(&b, "FUNDAMENTAL ANALYSIS", fundamental)
	writeSection(&b, "NEWS ANALYSIS", news)
	b.WriteString(`Deliver:

1. RECOMMENDATION: buy, hold, or sell with a conviction level.
2. RATIONALE: the two or three strongest points driving the call, noting where the analyses agree or conflict.
3. PRICE CONTEXT: reasonable entry zone and a level that invalidates the thesis.
4. RISKS: the top risks to this position.
5. TIME HORIZON: whether this is a trade or an investment.`)

	return &llm.Request{System: recommendationSystem, Prompt: b.String()}
}

// Summary builds the executive summary request from all prior outputs
func Summary(ticker string, quote *marketdata.Quote, technical, fundamental, news, recommendation string) *llm.Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Write an executive summary of the full analysis for %s.\n\n", ticker)
	writeQuoteContext(&b, quote)
	writeSection(&b, "TECHNICAL ANALYSIS", technical)
	writeSection(&b, "FUNDAMENTAL ANALYSIS", fundamental)
	writeSection(&b, "NEWS ANALYSIS", news)
	writeSection(&b, "RECOMMENDATION", recommendation)
	b.WriteString(`Produce at most five short paragraphs: the verdict, the technical picture, the fundamental picture, what the news flow means, and the key risk. No preamble.`)

	return &llm.Request{System: summarySystem, Prompt: b.String()}
}

func writeQuoteContext(b *strings.Builder, quote *marketdata.Quote) {
	if quote == nil {
		return
	}
	fmt.Fprintf(b, "Current price: %.2f %s (%+.2f%% on the day), 52-week range %.2f - %.2f.\n\n",
		quote.Price, quote.Currency, quote.ChangePercent, quote.FiftyTwoWeekLow, quote.FiftyTwoWeekHigh)
}

func writeSection(b *strings.Builder, header, content string) {
	fmt.Fprintf(b, "=== %s ===\n", header)
	if strings.TrimSpace(content) == "" {
		b.WriteString("(not available)\n\n")
		return
	}
	b.WriteString(content)
	b.WriteString("\n\n")
}
