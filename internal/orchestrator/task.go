package orchestrator

import (
	"time"

	"github.com/ternarybob/aestimo/internal/llm"
)

// Kind identifies one analysis component
type Kind string

const (
	KindTechnical      Kind = "technical"
	KindFundamental    Kind = "fundamental"
	KindNews           Kind = "news"
	KindBuffett        Kind = "warren_buffett"
	KindLynch          Kind = "peter_lynch"
	KindRecommendation Kind = "recommendation"
	KindSummary        Kind = "summary"
)

// Task is one unit of generation work. Independent tasks carry a ready
// Request. Dependent tasks leave Request nil and build it from earlier
// results through Compose; they always run after the independent wave, in
// declared order, so a later dependent task can read an earlier one's output.
type Task struct {
	ID      string
	Kind    Kind
	Request *llm.Request
	Compose func(done map[Kind]Result) (*llm.Request, error)
}

// Dependent reports whether the task builds its request from prior results
func (t *Task) Dependent() bool {
	return t.Compose != nil
}

// Result is the outcome of one task. A failed task carries Err and empty
// Text; its siblings are unaffected.
type Result struct {
	TaskID   string
	Kind     Kind
	Text     string
	Model    string
	Err      error
	Duration time.Duration
}

// Failed reports whether the task produced no usable text
func (r Result) Failed() bool {
	return r.Err != nil
}
