package tokens

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

// pricing is USD per 1M tokens. Unknown models cost zero.
type modelPricing struct {
	Input  float64
	Output float64
}

var pricing = map[string]map[string]modelPricing{
	"gemini": {
		"gemini-2.5-flash":      {Input: 0.15, Output: 0.60},
		"gemini-2.5-pro":        {Input: 1.25, Output: 10.00},
		"gemini-2.0-flash":      {Input: 0.075, Output: 0.40},
		"gemini-2.0-flash-lite": {Input: 0.075, Output: 0.30},
		"gemini-1.5-flash":      {Input: 0.075, Output: 0.30},
		"gemini-1.5-flash-8b":   {Input: 0.0375, Output: 0.15},
		"gemini-1.5-pro":        {Input: 1.25, Output: 5.00},
	},
	"claude": {
		"claude-sonnet-4-20250514":   {Input: 3.00, Output: 15.00},
		"claude-3-5-haiku-20241022":  {Input: 0.80, Output: 4.00},
		"claude-3-5-sonnet-20241022": {Input: 3.00, Output: 15.00},
	},
}

// Usage is one recorded backend call
type Usage struct {
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Operation    string    `json:"operation"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Timestamp    time.Time `json:"timestamp"`
}

// TotalTokens returns input plus output tokens
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// Cost returns the estimated USD cost of this call based on public pricing
func (u Usage) Cost() float64 {
	models, ok := pricing[strings.ToLower(u.Provider)]
	if !ok {
		return 0
	}
	p, ok := models[strings.ToLower(u.Model)]
	if !ok {
		return 0
	}
	return float64(u.InputTokens)/1_000_000*p.Input + float64(u.OutputTokens)/1_000_000*p.Output
}

// OperationStats aggregates usage for one operation kind
type OperationStats struct {
	Operation    string  `json:"operation"`
	Calls        int     `json:"calls"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Cost         float64 `json:"cost"`
}

// Summary is the aggregate view over all recorded calls
type Summary struct {
	TotalCalls        int              `json:"total_calls"`
	TotalInputTokens  int              `json:"total_input_tokens"`
	TotalOutputTokens int              `json:"total_output_tokens"`
	TotalTokens       int              `json:"total_tokens"`
	TotalCost         float64          `json:"total_cost"`
	ByOperation       []OperationStats `json:"by_operation"`
	Duration          time.Duration    `json:"duration"`
}

// Tracker records token usage and estimated cost across backend calls.
// Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	records []Usage
	started time.Time
	logger  arbor.ILogger
}

// NewTracker creates an empty usage tracker
func NewTracker(logger arbor.ILogger) *Tracker {
	return &Tracker{
		started: time.Now(),
		logger:  logger,
	}
}

// Record adds one backend call to the ledger
func (t *Tracker) Record(provider, model, operation string, inputTokens, outputTokens int) {
	usage := Usage{
		Provider:     strings.ToLower(provider),
		Model:        strings.ToLower(model),
		Operation:    operation,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Timestamp:    time.Now(),
	}

	t.mu.Lock()
	t.records = append(t.records, usage)
	t.mu.Unlock()

	t.logger.Debug().
		Str("operation", operation).
		Str("model", model).
		Int("input_tokens", inputTokens).
		Int("output_tokens", outputTokens).
		Float64("cost_usd", usage.Cost()).
		Msg("Recorded token usage")
}

// Summarize returns aggregate usage, with operations sorted by total tokens
// descending.
func (t *Tracker) Summarize() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	summary := Summary{Duration: time.Since(t.started)}
	byOp := make(map[string]*OperationStats)

	for _, u := range t.records {
		cost := u.Cost()
		summary.TotalCalls++
		summary.TotalInputTokens += u.InputTokens
		summary.TotalOutputTokens += u.OutputTokens
		summary.TotalTokens += u.TotalTokens()
		summary.TotalCost += cost

		op, ok := byOp[u.Operation]
		if !ok {
			op = &OperationStats{Operation: u.Operation}
			byOp[u.Operation] = op
		}
		op.Calls++
		op.InputTokens += u.InputTokens
		op.OutputTokens += u.OutputTokens
		op.TotalTokens += u.TotalTokens()
		op.Cost += cost
	}

	for _, op := range byOp {
		summary.ByOperation = append(summary.ByOperation, *op)
	}
	sort.Slice(summary.ByOperation, func(i, j int) bool {
		return summary.ByOperation[i].TotalTokens > summary.ByOperation[j].TotalTokens
	})

	return summary
}

// LogSummary writes the aggregate usage to the log, one line per operation
func (t *Tracker) LogSummary() {
	summary := t.Summarize()
	if summary.TotalCalls == 0 {
		t.logger.Info().Msg("No backend calls were made during this run")
		return
	}

	for _, op := range summary.ByOperation {
		t.logger.Info().
			Str("operation", op.Operation).
			Int("calls", op.Calls).
			Int("total_tokens", op.TotalTokens).
			Str("cost", fmt.Sprintf("$%.4f", op.Cost)).
			Msg("Token usage by operation")
	}

	t.logger.Info().
		Int("total_calls", summary.TotalCalls).
		Int("input_tokens", summary.TotalInputTokens).
		Int("output_tokens", summary.TotalOutputTokens).
		Str("total_cost", fmt.Sprintf("$%.4f", summary.TotalCost)).
		Dur("duration", summary.Duration).
		Msg("Token usage summary")
}
