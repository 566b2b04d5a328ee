package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
)

func TestStartRequiresWatchlist(t *testing.T) {
	s := New(&common.ScheduleConfig{Cron: "0 0 6 * * 1"}, func(ctx context.Context, ticker string) error {
		return nil
	}, arbor.NewLogger())

	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watchlist is empty")
}

func TestStartRejectsBadCronExpression(t *testing.T) {
	s := New(&common.ScheduleConfig{Cron: "not a cron", Watchlist: []string{"AAPL"}}, func(ctx context.Context, ticker string) error {
		return nil
	}, arbor.NewLogger())

	err := s.Start()
	require.Error(t, err)
}

func TestStartTwiceFails(t *testing.T) {
	s := New(&common.ScheduleConfig{Cron: "0 0 6 * * 1", Watchlist: []string{"AAPL"}}, func(ctx context.Context, ticker string) error {
		return nil
	}, arbor.NewLogger())

	require.NoError(t, s.Start())
	defer s.Stop()

	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestRunNowAnalyzesEveryTickerAndContinuesPastFailures(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	cfg := &common.ScheduleConfig{Watchlist: []string{"AAPL", "MSFT", "GOOG"}}
	s := New(cfg, func(ctx context.Context, ticker string) error {
		mu.Lock()
		seen = append(seen, ticker)
		mu.Unlock()
		if ticker == "MSFT" {
			return errors.New("fetch failed")
		}
		return nil
	}, arbor.NewLogger())

	s.RunNow(context.Background())

	assert.Equal(t, []string{"AAPL", "MSFT", "GOOG"}, seen)
}

func TestRunNowStopsOnCancelledContext(t *testing.T) {
	var count int
	ctx, cancel := context.WithCancel(context.Background())

	cfg := &common.ScheduleConfig{Watchlist: []string{"AAPL", "MSFT", "GOOG"}}
	s := New(cfg, func(ctx context.Context, ticker string) error {
		count++
		cancel()
		return nil
	}, arbor.NewLogger())

	s.RunNow(ctx)

	assert.Equal(t, 1, count, "remaining tickers are skipped once the context is cancelled")
}
