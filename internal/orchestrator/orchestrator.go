package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/keypool"
	"github.com/ternarybob/aestimo/internal/llm"
)

// Orchestrator fans analysis tasks out across the credential pool. Tasks run
// in parallel only when at least two credentials and two independent tasks
// are available; otherwise the batch degrades to sequential execution over
// the same executor.
type Orchestrator struct {
	executor     *llm.Executor
	pool         *keypool.Pool
	batchTimeout time.Duration
	logger       arbor.ILogger
}

// New creates an orchestrator sharing a pool with its executor
func New(executor *llm.Executor, pool *keypool.Pool, cfg *common.Config, logger arbor.ILogger) *Orchestrator {
	batchTimeout := common.Duration(cfg.Orchestrator.BatchTimeout)
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Minute
	}
	return &Orchestrator{
		executor:     executor,
		pool:         pool,
		batchTimeout: batchTimeout,
		logger:       logger,
	}
}

// RunSingle executes one task and returns its result. Dependent tasks are
// composed against the provided done map, which may be nil for independent
// tasks.
func (o *Orchestrator) RunSingle(ctx context.Context, task *Task, done map[Kind]Result) Result {
	return o.run(ctx, task, "", done)
}

// RunBatch executes all tasks and returns results keyed by kind. Independent
// tasks run first, in parallel when the pool allows it; dependent tasks
// follow sequentially in declared order with the accumulated results. A
// failed task records its error and never cancels siblings.
func (o *Orchestrator) RunBatch(ctx context.Context, tasks []*Task) map[Kind]Result {
	ctx, cancel := context.WithTimeout(ctx, o.batchTimeout)
	defer cancel()

	var independent, dependent []*Task
	for _, task := range tasks {
		if task.Dependent() {
			dependent = append(dependent, task)
		} else {
			independent = append(independent, task)
		}
	}

	results := make(map[Kind]Result, len(tasks))

	creds := o.pool.AcquireMany(0)
	if len(creds) >= 2 && len(independent) >= 2 {
		o.logger.Info().
			Int("tasks", len(independent)).
			Int("credentials", len(creds)).
			Msg("Running analysis tasks in parallel")
		o.runParallel(ctx, independent, creds, results)
	} else {
		o.logger.Info().
			Int("tasks", len(independent)).
			Int("credentials", len(creds)).
			Msg("Running analysis tasks sequentially")
		for _, task := range independent {
			results[task.Kind] = o.run(ctx, task, "", nil)
		}
	}

	for _, task := range dependent {
		results[task.Kind] = o.run(ctx, task, "", results)
	}

	return results
}

// runParallel dispatches independent tasks to panic-protected workers. Each
// task gets a round-robin starting credential as an advisory hint; the pool
// remains the source of truth for availability.
func (o *Orchestrator) runParallel(ctx context.Context, tasks []*Task, creds []keypool.Credential, results map[Kind]Result) {
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		task := task
		hint := creds[i%len(creds)].ID()

		common.SafeGo(o.logger, fmt.Sprintf("analysis-%s", task.Kind), func() {
			defer wg.Done()
			result := o.run(ctx, task, hint, nil)
			mu.Lock()
			results[task.Kind] = result
			mu.Unlock()
		})
	}

	wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context, task *Task, hint string, done map[Kind]Result) Result {
	start := time.Now()
	result := Result{TaskID: task.ID, Kind: task.Kind}

	req := task.Request
	if task.Dependent() {
		var err error
		req, err = task.Compose(done)
		if err != nil {
			result.Err = fmt.Errorf("failed to compose %s request: %w", task.Kind, err)
			result.Duration = time.Since(start)
			o.logger.Warn().
				Str("task", task.ID).
				Str("kind", string(task.Kind)).
				Err(result.Err).
				Msg("Task composition failed")
			return result
		}
	}
	if req == nil {
		result.Err = fmt.Errorf("task %s has no request", task.ID)
		result.Duration = time.Since(start)
		return result
	}

	resp, err := o.executor.ExecuteHinted(ctx, string(task.Kind), req, hint)
	result.Duration = time.Since(start)
	if err != nil {
		result.Err = err
		o.logger.Warn().
			Str("task", task.ID).
			Str("kind", string(task.Kind)).
			Dur("duration", result.Duration).
			Err(err).
			Msg("Analysis task failed")
		return result
	}

	result.Text = resp.Text
	result.Model = resp.Model
	o.logger.Info().
		Str("task", task.ID).
		Str("kind", string(task.Kind)).
		Str("model", resp.Model).
		Dur("duration", result.Duration).
		Int("length", len(resp.Text)).
		Msg("Analysis task completed")
	return result
}
