// Package marketdata provides a client for Yahoo Finance quote, history,
// fundamentals, and news endpoints. This package centralizes all market data
// interactions for the application.
package marketdata

import (
	"fmt"
	"time"
)

// Quote is a current price snapshot for one ticker
type Quote struct {
	Ticker           string    `json:"ticker"`
	Name             string    `json:"name"`
	Currency         string    `json:"currency"`
	Price            float64   `json:"price"`
	PreviousClose    float64   `json:"previous_close"`
	Change           float64   `json:"change"`
	ChangePercent    float64   `json:"change_percent"`
	Volume           int64     `json:"volume"`
	MarketCap        float64   `json:"market_cap"`
	FiftyTwoWeekHigh float64   `json:"fifty_two_week_high"`
	FiftyTwoWeekLow  float64   `json:"fifty_two_week_low"`
	AsOf             time.Time `json:"as_of"`
}

// Candle is one daily price bar
type Candle struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adj_close"`
	Volume   int64     `json:"volume"`
}

// Fundamentals carries the valuation and balance sheet metrics the analysis
// layer scores against. Missing values are zero; scorers treat zero as
// unavailable.
type Fundamentals struct {
	Ticker            string  `json:"ticker"`
	Name              string  `json:"name"`
	Sector            string  `json:"sector"`
	Industry          string  `json:"industry"`
	MarketCap         float64 `json:"market_cap"`
	PERatio           float64 `json:"pe_ratio"`
	ForwardPE         float64 `json:"forward_pe"`
	PEGRatio          float64 `json:"peg_ratio"`
	PriceToBook       float64 `json:"price_to_book"`
	ReturnOnEquity    float64 `json:"return_on_equity"`
	DebtToEquity      float64 `json:"debt_to_equity"`
	CurrentRatio      float64 `json:"current_ratio"`
	GrossMargin       float64 `json:"gross_margin"`
	OperatingMargin   float64 `json:"operating_margin"`
	ProfitMargin      float64 `json:"profit_margin"`
	EarningsGrowth    float64 `json:"earnings_growth"`
	RevenueGrowth     float64 `json:"revenue_growth"`
	DividendYield     float64 `json:"dividend_yield"`
	FreeCashflow      float64 `json:"free_cashflow"`
	Beta              float64 `json:"beta"`
	TargetMeanPrice   float64 `json:"target_mean_price"`
	RecommendationKey string  `json:"recommendation_key"`
}

// NewsArticle is one news item for a ticker. Content is populated separately
// by FetchArticleContent when the caller wants the full text.
type NewsArticle struct {
	Title       string    `json:"title"`
	Publisher   string    `json:"publisher"`
	Link        string    `json:"link"`
	Summary     string    `json:"summary"`
	Content     string    `json:"content,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// APIError represents an error response from Yahoo Finance
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("market data API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// RateLimitError indicates the client-side limiter or the API refused the
// request.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("market data rate limit exceeded, retry after %s", e.RetryAfter)
}
