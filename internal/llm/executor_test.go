package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/keypool"
)

type backendCall struct {
	APIKey string
	Model  string
}

// fakeBackend scripts responses per call and records every invocation
type fakeBackend struct {
	mu    sync.Mutex
	calls []backendCall
	fn    func(ctx context.Context, call int, apiKey, model string) (string, error)
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Generate(ctx context.Context, apiKey, model string, req *Request) (string, Usage, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, backendCall{APIKey: apiKey, Model: model})
	fn := f.fn
	f.mu.Unlock()

	text, err := fn(ctx, call, apiKey, model)
	return text, Usage{InputTokens: 10, OutputTokens: 20}, err
}

func (f *fakeBackend) callLog() []backendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]backendCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeBackend) modelCalls(model string) int {
	n := 0
	for _, c := range f.callLog() {
		if c.Model == model {
			n++
		}
	}
	return n
}

func testExecutorConfig() *common.Config {
	cfg := common.NewDefaultConfig()
	cfg.LLM.CallTimeout = "50ms"
	cfg.Retry.BaseDelay = "1ms"
	cfg.Retry.MaxDelay = "5ms"
	return cfg
}

func newTestExecutor(t *testing.T, keys []string, models []string, backend Backend) (*Executor, *keypool.Pool) {
	t.Helper()
	cfg := testExecutorConfig()
	pool, err := keypool.New(keys, cfg.Pool, arbor.NewLogger())
	require.NoError(t, err)
	exec, err := NewExecutor(pool, backend, models, cfg, nil, arbor.NewLogger())
	require.NoError(t, err)
	return exec, pool
}

func TestExecuteSuccessFirstAttempt(t *testing.T) {
	backend := &fakeBackend{fn: func(ctx context.Context, call int, apiKey, model string) (string, error) {
		return "analysis text", nil
	}}
	exec, _ := newTestExecutor(t, []string{"key-aaaaaaaa"}, []string{"model-a"}, backend)

	resp, err := exec.Execute(context.Background(), "technical_analysis", &Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "analysis text", resp.Text)
	assert.Equal(t, "model-a", resp.Model)
	assert.Equal(t, "fake", resp.Provider)
	assert.Len(t, backend.callLog(), 1)
}

func TestRateLimitedRotatesWithoutSleeping(t *testing.T) {
	backend := &fakeBackend{fn: func(ctx context.Context, call int, apiKey, model string) (string, error) {
		if apiKey == "key-aaaaaaaa" {
			return "", fmt.Errorf("Error 429, Message: quota exceeded. Please retry in 45.3s., Status: RESOURCE_EXHAUSTED")
		}
		return "ok", nil
	}}
	exec, pool := newTestExecutor(t, []string{"key-aaaaaaaa", "key-bbbbbbbb"}, []string{"model-a"}, backend)

	start := time.Now()
	resp, err := exec.Execute(context.Background(), "news_analysis", &Request{Prompt: "hi"})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Less(t, elapsed, 200*time.Millisecond, "rotation must not sleep while another credential is free")

	// The limited credential must stay out of rotation
	for _, s := range pool.Stats() {
		if s.KeySuffix == "...aaaaaaaa" {
			assert.True(t, s.RateLimited)
			assert.Greater(t, s.RateLimitedFor, 40*time.Second)
		}
	}
}

func TestTwoTimeoutsAbandonModelForFallback(t *testing.T) {
	backend := &fakeBackend{fn: func(ctx context.Context, call int, apiKey, model string) (string, error) {
		if model == "model-a" {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "fallback answer", nil
	}}
	exec, _ := newTestExecutor(t, []string{"key-aaaaaaaa", "key-bbbbbbbb", "key-cccccccc"}, []string{"model-a", "model-b"}, backend)

	resp, err := exec.Execute(context.Background(), "summary", &Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "fallback answer", resp.Text)
	assert.Equal(t, "model-b", resp.Model)
	assert.Equal(t, 2, backend.modelCalls("model-a"), "exactly two timed-out attempts before abandoning the model")
	assert.Equal(t, 1, backend.modelCalls("model-b"))
}

func TestModelUnavailableFallsBackImmediately(t *testing.T) {
	backend := &fakeBackend{fn: func(ctx context.Context, call int, apiKey, model string) (string, error) {
		if model == "model-a" {
			return "", fmt.Errorf("models/model-a is not found for API version v1beta")
		}
		return "fallback answer", nil
	}}
	exec, _ := newTestExecutor(t, []string{"key-aaaaaaaa", "key-bbbbbbbb"}, []string{"model-a", "model-b"}, backend)

	resp, err := exec.Execute(context.Background(), "summary", &Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "model-b", resp.Model)
	assert.Equal(t, 1, backend.modelCalls("model-a"), "unavailable model must not be retried")
}

func TestPoolExhaustedFailsFast(t *testing.T) {
	backend := &fakeBackend{fn: func(ctx context.Context, call int, apiKey, model string) (string, error) {
		return "", errors.New("Error 429: quota exhausted. retryDelay: 600s")
	}}
	exec, _ := newTestExecutor(t, []string{"key-aaaaaaaa", "key-bbbbbbbb"}, []string{"model-a", "model-b"}, backend)

	start := time.Now()
	_, err := exec.Execute(context.Background(), "summary", &Request{Prompt: "hi"})
	elapsed := time.Since(start)

	require.Error(t, err)
	var exhausted *PoolExhaustedError
	if !errors.As(err, &exhausted) {
		var terminal *ExhaustedError
		require.ErrorAs(t, err, &terminal)
		require.ErrorAs(t, terminal.Last, &exhausted)
	}
	assert.Less(t, elapsed, time.Second, "long lockouts on every credential must abort, not wait")
	assert.LessOrEqual(t, backend.modelCalls("model-b"), 0, "no fallback once the pool is dead for minutes")
}

func TestAllModelsFailReturnsExhausted(t *testing.T) {
	backend := &fakeBackend{fn: func(ctx context.Context, call int, apiKey, model string) (string, error) {
		return "", errors.New("internal server error")
	}}
	exec, _ := newTestExecutor(t, []string{"key-aaaaaaaa"}, []string{"model-a", "model-b"}, backend)

	_, err := exec.Execute(context.Background(), "summary", &Request{Prompt: "hi"})
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, []string{"model-a", "model-b"}, exhausted.Models)
	assert.Greater(t, exhausted.Attempts, 0)
}

func TestExecuteHintedUsesPreferredCredentialFirst(t *testing.T) {
	backend := &fakeBackend{fn: func(ctx context.Context, call int, apiKey, model string) (string, error) {
		return "ok", nil
	}}
	exec, _ := newTestExecutor(t, []string{"key-aaaaaaaa", "key-bbbbbbbb"}, []string{"model-a"}, backend)

	resp, err := exec.ExecuteHinted(context.Background(), "summary", &Request{Prompt: "hi"}, "cred-2")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, "key-bbbbbbbb", backend.callLog()[0].APIKey)
}

func TestExecuteHonorsContextCancellation(t *testing.T) {
	backend := &fakeBackend{fn: func(ctx context.Context, call int, apiKey, model string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	exec, _ := newTestExecutor(t, []string{"key-aaaaaaaa"}, []string{"model-a"}, backend)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := exec.Execute(ctx, "summary", &Request{Prompt: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
