package marketdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// articleSelectors are tried in order when locating the article body
var articleSelectors = []string{
	"article",
	".caas-body",
	".article-body",
	".story-body",
	"main",
}

// maxArticleLength caps extracted article text so news prompts stay inside
// the model's input budget.
const maxArticleLength = 8000

// FetchArticleContent downloads an article and fills in its Content field as
// markdown. Extraction failures leave Content empty and return the error;
// callers typically fall back to the article summary.
func (c *Client) FetchArticleContent(ctx context.Context, article *NewsArticle) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &RateLimitError{RetryAfter: 0}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, article.Link, nil)
	if err != nil {
		return fmt.Errorf("failed to create article request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch article: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: "article fetch failed", Endpoint: article.Link}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return fmt.Errorf("failed to read article body: %w", err)
	}

	content, err := extractArticleMarkdown(string(body), article.Link)
	if err != nil {
		return err
	}

	article.Content = content
	if c.logger != nil {
		c.logger.Debug().
			Str("url", article.Link).
			Int("content_length", len(content)).
			Msg("Extracted article content")
	}
	return nil
}

// extractArticleMarkdown locates the article body in raw HTML and converts
// it to markdown.
func extractArticleMarkdown(html, sourceURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse article HTML: %w", err)
	}

	doc.Find("script, style, nav, footer, aside, iframe, form").Remove()

	var selection *goquery.Selection
	for _, selector := range articleSelectors {
		if s := doc.Find(selector).First(); s.Length() > 0 {
			selection = s
			break
		}
	}
	if selection == nil {
		selection = doc.Find("body")
	}

	bodyHTML, err := selection.Html()
	if err != nil {
		return "", fmt.Errorf("failed to serialize article body: %w", err)
	}

	converter := md.NewConverter(sourceURL, true, nil)
	markdown, err := converter.ConvertString(bodyHTML)
	if err != nil {
		return "", fmt.Errorf("failed to convert article to markdown: %w", err)
	}

	markdown = strings.TrimSpace(markdown)
	if len(markdown) > maxArticleLength {
		markdown = markdown[:maxArticleLength]
	}
	return markdown, nil
}
