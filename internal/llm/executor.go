package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/keypool"
	"github.com/ternarybob/aestimo/internal/tokens"
)

// maxAttemptsPerModel caps attempts for one model; bounded by pool size so a
// burst of failures tries each credential at most once.
const maxAttemptsPerModel = 4

// Response is the result of a successful Execute call
type Response struct {
	Text     string
	Model    string
	Provider string
}

// Executor runs one logical request against the backend with model fallback,
// a hard per-call timeout, and credential rotation on rate limits. It never
// propagates a raw transport error; callers see classified outcomes only.
type Executor struct {
	pool        *keypool.Pool
	backend     Backend
	retry       keypool.RetryPolicy
	models      []string
	callTimeout time.Duration
	tracker     *tokens.Tracker
	logger      arbor.ILogger
}

// NewExecutor creates a call executor. models is the ordered (primary,
// fallback) list; tracker may be nil to disable token accounting.
func NewExecutor(pool *keypool.Pool, backend Backend, models []string, cfg *common.Config, tracker *tokens.Tracker, logger arbor.ILogger) (*Executor, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("at least one model is required")
	}

	e := &Executor{
		pool:        pool,
		backend:     backend,
		retry:       keypool.NewRetryPolicy(cfg.Retry),
		models:      models,
		callTimeout: common.Duration(cfg.LLM.CallTimeout),
		tracker:     tracker,
		logger:      logger,
	}
	if e.callTimeout <= 0 {
		e.callTimeout = 60 * time.Second
	}

	logger.Info().
		Str("provider", backend.Name()).
		Strs("models", models).
		Dur("call_timeout", e.callTimeout).
		Msg("Initialized call executor")

	return e, nil
}

// Execute runs the request against each model in order until one succeeds.
func (e *Executor) Execute(ctx context.Context, operation string, req *Request) (*Response, error) {
	return e.ExecuteHinted(ctx, operation, req, "")
}

// ExecuteHinted is Execute with an advisory starting credential. The hint is
// only consulted for the first attempt; every subsequent acquire goes through
// normal risk-scored selection.
func (e *Executor) ExecuteHinted(ctx context.Context, operation string, req *Request, hint string) (*Response, error) {
	var lastErr error
	totalAttempts := 0

	for _, model := range e.models {
		text, err := e.tryModel(ctx, model, operation, req, hint, &totalAttempts)
		hint = "" // the hint applies to the first attempt only
		if err == nil {
			return &Response{Text: text, Model: model, Provider: e.backend.Name()}, nil
		}
		lastErr = err

		switch Classify(err) {
		case OutcomePoolExhausted:
			// Every credential is locked out for minutes; trying another
			// model burns the same pool. Fail fast.
			return nil, err
		case OutcomeModelUnavailable:
			e.logger.Warn().
				Str("model", model).
				Err(err).
				Msg("Model not available, trying fallback")
		case OutcomeTimeout:
			e.logger.Warn().
				Str("model", model).
				Err(err).
				Msg("Model appears degraded, trying fallback")
		default:
			e.logger.Warn().
				Str("model", model).
				Err(err).
				Msg("Model failed, trying fallback")
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	return nil, &ExhaustedError{Models: e.models, Attempts: totalAttempts, Last: lastErr}
}

// tryModel attempts one model up to min(poolSize, 4) times, rotating
// credentials. It returns a classified error when the model should be
// abandoned or its attempt budget is spent.
func (e *Executor) tryModel(ctx context.Context, model, operation string, req *Request, hint string, totalAttempts *int) (string, error) {
	maxAttempts := e.pool.Size()
	if maxAttempts > maxAttemptsPerModel {
		maxAttempts = maxAttemptsPerModel
	}

	consecutiveTimeouts := 0
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		*totalAttempts++

		cred, ok := e.acquire(ctx, hint, attempt)
		hint = ""
		if !ok {
			if e.pool.ShouldAbort() {
				return "", &PoolExhaustedError{Summary: e.pool.Summary()}
			}
			lastErr = fmt.Errorf("no credential available within backoff window")
			continue
		}

		e.logger.Info().
			Str("model", model).
			Str("operation", operation).
			Str("key", cred.Redacted()).
			Int("attempt", attempt+1).
			Int("max_attempts", maxAttempts).
			Msg("Calling backend")

		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		text, usage, err := e.backend.Generate(callCtx, cred.Key(), model, req)
		cancel()
		elapsed := time.Since(start)

		if err == nil {
			e.pool.RecordSuccess(cred.ID())
			if e.tracker != nil {
				e.tracker.Record(e.backend.Name(), model, operation, usage.InputTokens, usage.OutputTokens)
			}
			e.logger.Info().
				Str("model", model).
				Str("operation", operation).
				Dur("duration", elapsed).
				Int("response_length", len(text)).
				Msg("Backend call completed")
			return text, nil
		}

		err = e.normalizeTimeout(ctx, err, model, elapsed)

		switch Classify(err) {
		case OutcomeRateLimited:
			var rl *RateLimitError
			errors.As(err, &rl)
			e.pool.RecordRateLimited(cred.ID(), rl.RetryAfter)
			// Do not sleep: immediately loop to acquire a different
			// credential. Backoff only happens when acquire comes up empty.
			lastErr = err

		case OutcomeTimeout:
			// The credential is merely slow; no rate-limit bookkeeping.
			consecutiveTimeouts++
			lastErr = err
			if consecutiveTimeouts >= 2 {
				e.logger.Warn().
					Str("model", model).
					Int("timeouts", consecutiveTimeouts).
					Msg("Multiple timeouts, abandoning model")
				return "", err
			}

		case OutcomeModelUnavailable:
			return "", err

		default:
			if errors.Is(err, context.Canceled) {
				return "", err
			}
			lastErr = err
			if attempt == maxAttempts-1 {
				return "", err
			}
			if !sleepCtx(ctx, e.retry.Delay(attempt)) {
				return "", ctx.Err()
			}
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("all %d attempts failed for model %s", maxAttempts, model)
	}
	return "", lastErr
}

// acquire gets a credential, preferring the hint on the first attempt and
// backing off briefly when the pool is momentarily empty.
func (e *Executor) acquire(ctx context.Context, hint string, attempt int) (keypool.Credential, bool) {
	if hint != "" {
		if cred, ok := e.pool.AcquirePreferred(hint); ok {
			return cred, true
		}
	} else if cred, ok := e.pool.Acquire(); ok {
		return cred, true
	}

	if e.pool.ShouldAbort() {
		return keypool.Credential{}, false
	}

	return e.pool.WaitForAvailable(ctx, e.retry.Delay(attempt))
}

// normalizeTimeout folds deadline errors from the per-call context into the
// Timeout outcome. A cancelled parent context is left as-is.
func (e *Executor) normalizeTimeout(ctx context.Context, err error, model string, elapsed time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return &TimeoutError{Model: model, Elapsed: elapsed}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
