// Package scheduler runs the configured watchlist analysis on a cron
// schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/aestimo/internal/common"
)

// AnalyzeFunc runs a full analysis for one ticker
type AnalyzeFunc func(ctx context.Context, ticker string) error

// Scheduler triggers watchlist analysis runs on a cron expression
type Scheduler struct {
	cron      *cron.Cron
	analyze   AnalyzeFunc
	watchlist []string
	expr      string
	logger    arbor.ILogger

	mu           sync.Mutex
	running      bool
	isProcessing bool
	lastRun      time.Time
}

// New creates a scheduler from config. The cron expression includes a
// seconds field.
func New(cfg *common.ScheduleConfig, analyze AnalyzeFunc, logger arbor.ILogger) *Scheduler {
	expr := cfg.Cron
	if expr == "" {
		expr = "0 0 6 * * 1"
	}
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		analyze:   analyze,
		watchlist: cfg.Watchlist,
		expr:      expr,
		logger:    logger,
	}
}

// Start begins the schedule. It fails when the watchlist is empty or the
// cron expression does not parse.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if len(s.watchlist) == 0 {
		return fmt.Errorf("schedule enabled but watchlist is empty")
	}

	if _, err := s.cron.AddFunc(s.expr, s.runWatchlist); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("cron_expr", s.expr).
		Strs("watchlist", s.watchlist).
		Msg("Scheduler started")
	return nil
}

// Stop halts the scheduler and waits for a running pass to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// RunNow executes one watchlist pass immediately, outside the schedule
func (s *Scheduler) RunNow(ctx context.Context) {
	s.runTickers(ctx)
}

func (s *Scheduler) runWatchlist() {
	s.mu.Lock()
	if s.isProcessing {
		s.mu.Unlock()
		s.logger.Warn().Msg("Previous watchlist run still in progress, skipping")
		return
	}
	s.isProcessing = true
	s.lastRun = time.Now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isProcessing = false
		s.mu.Unlock()
	}()

	s.runTickers(context.Background())
}

// runTickers analyzes the watchlist sequentially. Parallelism lives in
// the per-ticker dispatch, so running tickers one at a time keeps the
// credential pool available for each analysis.
func (s *Scheduler) runTickers(ctx context.Context) {
	start := time.Now()
	failed := 0

	for _, ticker := range s.watchlist {
		if ctx.Err() != nil {
			s.logger.Warn().Err(ctx.Err()).Msg("Watchlist run cancelled")
			return
		}

		s.logger.Info().Str("ticker", ticker).Msg("Scheduled analysis starting")
		if err := s.analyze(ctx, ticker); err != nil {
			failed++
			s.logger.Error().Err(err).Str("ticker", ticker).Msg("Scheduled analysis failed")
			continue
		}
	}

	s.logger.Info().
		Int("tickers", len(s.watchlist)).
		Int("failed", failed).
		Dur("elapsed", time.Since(start)).
		Msg("Watchlist run complete")
}
