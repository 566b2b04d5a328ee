// Package report renders completed analyses into markdown files, with
// optional PDF output.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/aestimo/internal/analysis"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/marketdata"
	"github.com/ternarybob/aestimo/internal/tokens"
)

// Section is one generated analysis block, rendered in order
type Section struct {
	Title string
	Body  string
}

// Data carries everything the writer needs for a single report
type Data struct {
	Ticker      string
	GeneratedAt time.Time
	Quote       *marketdata.Quote
	Technical   *analysis.TechnicalReport
	Buffett     *analysis.BuffettReport
	Lynch       *analysis.LynchReport
	Sections    []Section
	Usage       *tokens.Summary
}

// Writer renders and persists analysis reports
type Writer struct {
	dir    string
	format string
	logger arbor.ILogger
}

// NewWriter creates a report writer from config
func NewWriter(cfg *common.ReportsConfig, logger arbor.ILogger) *Writer {
	dir := cfg.Dir
	if dir == "" {
		dir = "./reports"
	}
	format := cfg.Format
	if format == "" {
		format = "markdown"
	}
	return &Writer{dir: dir, format: format, logger: logger}
}

// Write renders the report and saves it under the configured directory.
// It returns the path of the markdown file; when PDF output is enabled a
// sibling .pdf is written as well.
func (w *Writer) Write(d *Data) (string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}

	markdown := w.BuildMarkdown(d)

	stamp := d.GeneratedAt.Format("20060102_150405")
	base := fmt.Sprintf("%s_%s", strings.ToUpper(d.Ticker), stamp)
	mdPath := filepath.Join(w.dir, base+".md")

	if err := os.WriteFile(mdPath, []byte(markdown), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	w.logger.Info().Str("path", mdPath).Msg("Report written")

	if w.format == "pdf" {
		pdfBytes, err := ConvertMarkdownToPDF(markdown, w.logger)
		if err != nil {
			return mdPath, fmt.Errorf("failed to render PDF: %w", err)
		}
		pdfPath := filepath.Join(w.dir, base+".pdf")
		if err := os.WriteFile(pdfPath, pdfBytes, 0644); err != nil {
			return mdPath, fmt.Errorf("failed to write PDF: %w", err)
		}
		w.logger.Info().Str("path", pdfPath).Msg("PDF report written")
	}

	return mdPath, nil
}

// BuildMarkdown assembles the full report as a markdown document
func (w *Writer) BuildMarkdown(d *Data) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s Stock Analysis\n\n", strings.ToUpper(d.Ticker))
	fmt.Fprintf(&b, "Generated: %s\n\n", d.GeneratedAt.Format("2006-01-02 15:04 MST"))

	writeQuoteTable(&b, d.Quote)
	writeSignalTable(&b, d)

	for _, section := range d.Sections {
		body := strings.TrimSpace(section.Body)
		if body == "" {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", section.Title, body)
	}

	writeUsageFooter(&b, d.Usage)

	return b.String()
}

func writeQuoteTable(b *strings.Builder, q *marketdata.Quote) {
	if q == nil {
		return
	}
	b.WriteString("## Market Snapshot\n\n")
	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(b, "| Price | %.2f %s |\n", q.Price, q.Currency)
	fmt.Fprintf(b, "| Change | %+.2f (%+.2f%%) |\n", q.Change, q.ChangePercent)
	if q.Volume > 0 {
		fmt.Fprintf(b, "| Volume | %d |\n", q.Volume)
	}
	if q.MarketCap > 0 {
		fmt.Fprintf(b, "| Market Cap | %s |\n", formatLarge(q.MarketCap))
	}
	if q.FiftyTwoWeekHigh > 0 {
		fmt.Fprintf(b, "| 52-Week Range | %.2f - %.2f |\n", q.FiftyTwoWeekLow, q.FiftyTwoWeekHigh)
	}
	b.WriteString("\n")
}

func writeSignalTable(b *strings.Builder, d *Data) {
	if d.Technical == nil && d.Buffett == nil && d.Lynch == nil {
		return
	}
	b.WriteString("## Signal Summary\n\n")
	b.WriteString("| Screen | Signal | Confidence |\n|---|---|---|\n")
	if d.Technical != nil {
		fmt.Fprintf(b, "| Technical | %s | %.0f%% |\n", d.Technical.OverallSignal, d.Technical.Confidence)
	}
	if d.Buffett != nil {
		fmt.Fprintf(b, "| Value (Buffett) | %s | %.0f%% |\n", d.Buffett.Signal, d.Buffett.Confidence)
	}
	if d.Lynch != nil {
		fmt.Fprintf(b, "| GARP (Lynch) | %s | %.0f%% |\n", d.Lynch.Signal, d.Lynch.Confidence)
	}
	b.WriteString("\n")
}

func writeUsageFooter(b *strings.Builder, summary *tokens.Summary) {
	if summary == nil || summary.TotalCalls == 0 {
		return
	}
	b.WriteString("---\n\n")
	fmt.Fprintf(b, "*%d generation calls, %d tokens, estimated cost $%.4f, completed in %s.*\n",
		summary.TotalCalls, summary.TotalTokens, summary.TotalCost, summary.Duration.Round(time.Second))
}

func formatLarge(v float64) string {
	switch {
	case v >= 1e12:
		return fmt.Sprintf("%.2fT", v/1e12)
	case v >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}
