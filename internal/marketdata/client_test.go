package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chartPayload = `{
  "chart": {
    "result": [{
      "meta": {
        "currency": "USD",
        "symbol": "AAPL",
        "longName": "Apple Inc.",
        "regularMarketPrice": 230.5,
        "chartPreviousClose": 228.0,
        "fiftyTwoWeekHigh": 260.1,
        "fiftyTwoWeekLow": 164.08,
        "regularMarketTime": 1756400400
      },
      "timestamp": [1756227600, 1756314000, 1756400400],
      "indicators": {
        "quote": [{
          "open": [226.0, 227.5, 229.0],
          "high": [228.5, 230.0, 231.2],
          "low": [225.1, 226.8, 228.4],
          "close": [227.9, 229.4, 230.5],
          "volume": [41000000, 38000000, 45000000]
        }],
        "adjclose": [{"adjclose": [227.9, 229.4, 230.5]}]
      }
    }],
    "error": null
  }
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(WithBaseURL(server.URL), WithRateLimit(1000))
}

func TestGetQuote(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		w.Write([]byte(chartPayload))
	})

	quote, err := client.GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", quote.Ticker)
	assert.Equal(t, "Apple Inc.", quote.Name)
	assert.InDelta(t, 230.5, quote.Price, 0.001)
	assert.InDelta(t, 2.5, quote.Change, 0.001)
	assert.InDelta(t, 1.096, quote.ChangePercent, 0.01)
	assert.Equal(t, int64(45000000), quote.Volume)
}

func TestGetHistory(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1y", r.URL.Query().Get("range"))
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		w.Write([]byte(chartPayload))
	})

	candles, err := client.GetHistory(context.Background(), "AAPL", "1y")
	require.NoError(t, err)

	require.Len(t, candles, 3)
	assert.InDelta(t, 227.9, candles[0].Close, 0.001)
	assert.InDelta(t, 230.5, candles[2].Close, 0.001)
	assert.True(t, candles[0].Date.Before(candles[2].Date), "candles must be oldest first")
}

func TestGetHistorySkipsZeroCloseBars(t *testing.T) {
	payload := `{"chart":{"result":[{"meta":{"symbol":"AAPL"},
	  "timestamp":[1756227600,1756314000],
	  "indicators":{"quote":[{"open":[226.0,0],"high":[228.5,0],"low":[225.1,0],"close":[227.9,0],"volume":[41000000,0]}]}}],"error":null}}`
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	})

	candles, err := client.GetHistory(context.Background(), "AAPL", "1mo")
	require.NoError(t, err)
	assert.Len(t, candles, 1)
}

func TestGetFundamentals(t *testing.T) {
	payload := `{"quoteSummary":{"result":[{
	  "assetProfile": {"sector": "Technology", "industry": "Consumer Electronics"},
	  "summaryDetail": {"trailingPE": {"raw": 35.2}, "forwardPE": {"raw": 28.9}, "dividendYield": {"raw": 0.0042}, "beta": {"raw": 1.21}, "marketCap": {"raw": 3450000000000}},
	  "defaultKeyStatistics": {"pegRatio": {"raw": 2.1}, "priceToBook": {"raw": 47.3}},
	  "financialData": {"returnOnEquity": {"raw": 1.38}, "debtToEquity": {"raw": 146.9}, "currentRatio": {"raw": 0.95}, "grossMargins": {"raw": 0.46}, "earningsGrowth": {"raw": 0.11}, "revenueGrowth": {"raw": 0.06}, "recommendationKey": "buy"},
	  "price": {"longName": "Apple Inc."}
	}],"error":null}}`
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v10/finance/quoteSummary/AAPL", r.URL.Path)
		w.Write([]byte(payload))
	})

	f, err := client.GetFundamentals(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, "Apple Inc.", f.Name)
	assert.Equal(t, "Technology", f.Sector)
	assert.InDelta(t, 35.2, f.PERatio, 0.001)
	assert.InDelta(t, 2.1, f.PEGRatio, 0.001)
	assert.InDelta(t, 1.38, f.ReturnOnEquity, 0.001)
	assert.InDelta(t, 146.9, f.DebtToEquity, 0.001)
	assert.Equal(t, "buy", f.RecommendationKey)
}

func TestGetNews(t *testing.T) {
	payload := `{"news":[
	  {"title": "Apple unveils new chip", "publisher": "Reuters", "link": "https://example.com/a", "providerPublishTime": 1756300000},
	  {"title": "", "publisher": "Skipped", "link": "https://example.com/b", "providerPublishTime": 1756300001},
	  {"title": "Apple earnings preview", "publisher": "Bloomberg", "link": "https://example.com/c", "providerPublishTime": 1756300002}
	]}`
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/finance/search", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("q"))
		w.Write([]byte(payload))
	})

	articles, err := client.GetNews(context.Background(), "AAPL", 10)
	require.NoError(t, err)

	require.Len(t, articles, 2, "articles without titles are dropped")
	assert.Equal(t, "Apple unveils new chip", articles[0].Title)
	assert.Equal(t, "Bloomberg", articles[1].Publisher)
}

func TestGetQuoteAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`not found`))
	})

	_, err := client.GetQuote(context.Background(), "NOPE")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestGetQuoteRateLimitStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.GetQuote(context.Background(), "AAPL")
	var rlErr *RateLimitError
	require.ErrorAs(t, err, &rlErr)
}

func TestExtractArticleMarkdown(t *testing.T) {
	html := `<html><head><title>t</title><script>junk()</script></head>
	<body><nav>menu</nav>
	<article><h2>Apple rallies</h2><p>Shares rose on <strong>strong</strong> earnings.</p></article>
	<footer>copyright</footer></body></html>`

	markdown, err := extractArticleMarkdown(html, "https://example.com/a")
	require.NoError(t, err)

	assert.Contains(t, markdown, "Apple rallies")
	assert.Contains(t, markdown, "**strong**")
	assert.NotContains(t, markdown, "junk")
	assert.NotContains(t, markdown, "menu")
}
