package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the Yahoo Finance query host.
	DefaultBaseURL = "https://query1.finance.yahoo.com"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 5

	// userAgent identifies the client; Yahoo rejects empty agents.
	userAgent = "Mozilla/5.0 (compatible; aestimo/1.0)"
)

// Client is a Yahoo Finance API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a new Yahoo Finance client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// get performs a GET request against the API.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &RateLimitError{RetryAfter: time.Second}
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	if c.logger != nil {
		c.logger.Debug().
			Str("url", c.baseURL+path).
			Msg("Market data API request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{RetryAfter: 30 * time.Second}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// chartResponse is the wire format of the v8 chart endpoint
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				PreviousClose      float64 `json:"chartPreviousClose"`
				LongName           string  `json:"longName"`
				FiftyTwoWeekHigh   float64 `json:"fiftyTwoWeekHigh"`
				FiftyTwoWeekLow    float64 `json:"fiftyTwoWeekLow"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []int64   `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// GetQuote retrieves the current price snapshot for a ticker.
func (c *Client) GetQuote(ctx context.Context, ticker string) (*Quote, error) {
	params := url.Values{}
	params.Set("range", "5d")
	params.Set("interval", "1d")

	var result chartResponse
	if err := c.get(ctx, "/v8/finance/chart/"+url.PathEscape(ticker), params, &result); err != nil {
		return nil, err
	}
	if result.Chart.Error != nil {
		return nil, &APIError{Message: result.Chart.Error.Description, Endpoint: "/v8/finance/chart"}
	}
	if len(result.Chart.Result) == 0 {
		return nil, fmt.Errorf("no quote data for ticker %s", ticker)
	}

	meta := result.Chart.Result[0].Meta
	quote := &Quote{
		Ticker:           meta.Symbol,
		Name:             meta.LongName,
		Currency:         meta.Currency,
		Price:            meta.RegularMarketPrice,
		PreviousClose:    meta.PreviousClose,
		FiftyTwoWeekHigh: meta.FiftyTwoWeekHigh,
		FiftyTwoWeekLow:  meta.FiftyTwoWeekLow,
		AsOf:             time.Unix(meta.RegularMarketTime, 0),
	}
	if quote.PreviousClose > 0 {
		quote.Change = quote.Price - quote.PreviousClose
		quote.ChangePercent = quote.Change / quote.PreviousClose * 100
	}

	// Latest bar fills in volume
	res := result.Chart.Result[0]
	if len(res.Indicators.Quote) > 0 {
		volumes := res.Indicators.Quote[0].Volume
		if len(volumes) > 0 {
			quote.Volume = volumes[len(volumes)-1]
		}
	}

	return quote, nil
}

// GetHistory retrieves daily price bars covering the given range, oldest
// first. Supported ranges follow the chart API: "1mo", "3mo", "6mo", "1y",
// "2y", "5y".
func (c *Client) GetHistory(ctx context.Context, ticker, dataRange string) ([]Candle, error) {
	if dataRange == "" {
		dataRange = "1y"
	}
	params := url.Values{}
	params.Set("range", dataRange)
	params.Set("interval", "1d")
	params.Set("events", "div,split")

	var result chartResponse
	if err := c.get(ctx, "/v8/finance/chart/"+url.PathEscape(ticker), params, &result); err != nil {
		return nil, err
	}
	if result.Chart.Error != nil {
		return nil, &APIError{Message: result.Chart.Error.Description, Endpoint: "/v8/finance/chart"}
	}
	if len(result.Chart.Result) == 0 || len(result.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no history data for ticker %s", ticker)
	}

	res := result.Chart.Result[0]
	bars := res.Indicators.Quote[0]
	var adjClose []float64
	if len(res.Indicators.AdjClose) > 0 {
		adjClose = res.Indicators.AdjClose[0].AdjClose
	}

	candles := make([]Candle, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		if i >= len(bars.Close) || bars.Close[i] == 0 {
			continue
		}
		candle := Candle{
			Date:   time.Unix(ts, 0).UTC(),
			Open:   bars.Open[i],
			High:   bars.High[i],
			Low:    bars.Low[i],
			Close:  bars.Close[i],
			Volume: bars.Volume[i],
		}
		if i < len(adjClose) {
			candle.AdjClose = adjClose[i]
		} else {
			candle.AdjClose = candle.Close
		}
		candles = append(candles, candle)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("ticker", ticker).
			Str("range", dataRange).
			Int("candles", len(candles)).
			Msg("Retrieved price history")
	}

	return candles, nil
}

// quoteSummaryResponse is the wire format of the quoteSummary endpoint
type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			AssetProfile *struct {
				Sector   string `json:"sector"`
				Industry string `json:"industry"`
			} `json:"assetProfile"`
			SummaryDetail *struct {
				TrailingPE    rawValue `json:"trailingPE"`
				ForwardPE     rawValue `json:"forwardPE"`
				DividendYield rawValue `json:"dividendYield"`
				Beta          rawValue `json:"beta"`
				MarketCap     rawValue `json:"marketCap"`
			} `json:"summaryDetail"`
			DefaultKeyStatistics *struct {
				PegRatio     rawValue `json:"pegRatio"`
				PriceToBook  rawValue `json:"priceToBook"`
				ProfitMargin rawValue `json:"profitMargins"`
			} `json:"defaultKeyStatistics"`
			FinancialData *struct {
				ReturnOnEquity    rawValue `json:"returnOnEquity"`
				DebtToEquity      rawValue `json:"debtToEquity"`
				CurrentRatio      rawValue `json:"currentRatio"`
				GrossMargins      rawValue `json:"grossMargins"`
				OperatingMargins  rawValue `json:"operatingMargins"`
				ProfitMargins     rawValue `json:"profitMargins"`
				EarningsGrowth    rawValue `json:"earningsGrowth"`
				RevenueGrowth     rawValue `json:"revenueGrowth"`
				FreeCashflow      rawValue `json:"freeCashflow"`
				TargetMeanPrice   rawValue `json:"targetMeanPrice"`
				RecommendationKey string   `json:"recommendationKey"`
			} `json:"financialData"`
			Price *struct {
				LongName  string `json:"longName"`
				ShortName string `json:"shortName"`
			} `json:"price"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

// rawValue is Yahoo's {raw, fmt} number wrapper
type rawValue struct {
	Raw float64 `json:"raw"`
}

// GetFundamentals retrieves valuation and balance sheet metrics for a ticker.
func (c *Client) GetFundamentals(ctx context.Context, ticker string) (*Fundamentals, error) {
	params := url.Values{}
	params.Set("modules", "assetProfile,summaryDetail,defaultKeyStatistics,financialData,price")

	var result quoteSummaryResponse
	if err := c.get(ctx, "/v10/finance/quoteSummary/"+url.PathEscape(ticker), params, &result); err != nil {
		return nil, err
	}
	if result.QuoteSummary.Error != nil {
		return nil, &APIError{Message: result.QuoteSummary.Error.Description, Endpoint: "/v10/finance/quoteSummary"}
	}
	if len(result.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("no fundamentals data for ticker %s", ticker)
	}

	res := result.QuoteSummary.Result[0]
	f := &Fundamentals{Ticker: ticker}

	if res.Price != nil {
		f.Name = res.Price.LongName
		if f.Name == "" {
			f.Name = res.Price.ShortName
		}
	}
	if res.AssetProfile != nil {
		f.Sector = res.AssetProfile.Sector
		f.Industry = res.AssetProfile.Industry
	}
	if res.SummaryDetail != nil {
		f.PERatio = res.SummaryDetail.TrailingPE.Raw
		f.ForwardPE = res.SummaryDetail.ForwardPE.Raw
		f.DividendYield = res.SummaryDetail.DividendYield.Raw
		f.Beta = res.SummaryDetail.Beta.Raw
		f.MarketCap = res.SummaryDetail.MarketCap.Raw
	}
	if res.DefaultKeyStatistics != nil {
		f.PEGRatio = res.DefaultKeyStatistics.PegRatio.Raw
		f.PriceToBook = res.DefaultKeyStatistics.PriceToBook.Raw
	}
	if res.FinancialData != nil {
		f.ReturnOnEquity = res.FinancialData.ReturnOnEquity.Raw
		f.DebtToEquity = res.FinancialData.DebtToEquity.Raw
		f.CurrentRatio = res.FinancialData.CurrentRatio.Raw
		f.GrossMargin = res.FinancialData.GrossMargins.Raw
		f.OperatingMargin = res.FinancialData.OperatingMargins.Raw
		f.ProfitMargin = res.FinancialData.ProfitMargins.Raw
		f.EarningsGrowth = res.FinancialData.EarningsGrowth.Raw
		f.RevenueGrowth = res.FinancialData.RevenueGrowth.Raw
		f.FreeCashflow = res.FinancialData.FreeCashflow.Raw
		f.TargetMeanPrice = res.FinancialData.TargetMeanPrice.Raw
		f.RecommendationKey = res.FinancialData.RecommendationKey
	}

	return f, nil
}

// searchResponse is the wire format of the search endpoint's news section
type searchResponse struct {
	News []struct {
		Title               string `json:"title"`
		Publisher           string `json:"publisher"`
		Link                string `json:"link"`
		ProviderPublishTime int64  `json:"providerPublishTime"`
	} `json:"news"`
}

// GetNews retrieves recent news articles for a ticker, newest first.
func (c *Client) GetNews(ctx context.Context, ticker string, limit int) ([]NewsArticle, error) {
	if limit <= 0 {
		limit = 10
	}
	params := url.Values{}
	params.Set("q", ticker)
	params.Set("newsCount", fmt.Sprintf("%d", limit))
	params.Set("quotesCount", "0")

	var result searchResponse
	if err := c.get(ctx, "/v1/finance/search", params, &result); err != nil {
		return nil, err
	}

	articles := make([]NewsArticle, 0, len(result.News))
	for _, item := range result.News {
		if item.Title == "" || item.Link == "" {
			continue
		}
		articles = append(articles, NewsArticle{
			Title:       item.Title,
			Publisher:   item.Publisher,
			Link:        item.Link,
			PublishedAt: time.Unix(item.ProviderPublishTime, 0).UTC(),
		})
		if len(articles) >= limit {
			break
		}
	}

	return articles, nil
}
