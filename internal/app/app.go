// Package app wires the application together and runs the per-ticker
// analysis pipeline.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/aestimo/internal/analysis"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/keypool"
	"github.com/ternarybob/aestimo/internal/llm"
	"github.com/ternarybob/aestimo/internal/marketdata"
	"github.com/ternarybob/aestimo/internal/orchestrator"
	"github.com/ternarybob/aestimo/internal/report"
	storage "github.com/ternarybob/aestimo/internal/storage/badger"
	"github.com/ternarybob/aestimo/internal/tokens"
)

// articles fetched in full for news analysis
const maxArticleFetches = 3

// App holds all services for the analysis pipeline
type App struct {
	config    *common.Config
	logger    arbor.ILogger
	tracker   *tokens.Tracker
	pool      *keypool.Pool
	executor  *llm.Executor
	orch      *orchestrator.Orchestrator
	market    *marketdata.Client
	db        *storage.BadgerDB
	snapshots *storage.SnapshotStorage
	records   *storage.RecordStorage
	writer    *report.Writer
}

// New builds the application from config
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	tracker := tokens.NewTracker(logger)

	executor, pool, err := llm.NewFromConfig(cfg, tracker, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generation executor: %w", err)
	}

	marketOpts := []marketdata.ClientOption{
		marketdata.WithLogger(logger),
		marketdata.WithRateLimit(cfg.MarketData.RateLimit),
		marketdata.WithHTTPClient(&http.Client{Timeout: common.Duration(cfg.MarketData.Timeout)}),
	}
	if cfg.MarketData.BaseURL != "" {
		marketOpts = append(marketOpts, marketdata.WithBaseURL(cfg.MarketData.BaseURL))
	}

	db, err := storage.NewBadgerDB(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	return &App{
		config:    cfg,
		logger:    logger,
		tracker:   tracker,
		pool:      pool,
		executor:  executor,
		orch:      orchestrator.New(executor, pool, cfg, logger),
		market:    marketdata.NewClient(marketOpts...),
		db:        db,
		snapshots: storage.NewSnapshotStorage(db, logger),
		records:   storage.NewRecordStorage(db, logger),
		writer:    report.NewWriter(&cfg.Reports, logger),
	}, nil
}

// Close releases held resources
func (a *App) Close() error {
	return a.db.Close()
}

// Records exposes stored analysis history
func (a *App) Records() *storage.RecordStorage {
	return a.records
}

// AnalyzeTicker runs the full pipeline for one ticker: fetch market
// data, compute quantitative screens, dispatch generation tasks, and
// write the report. It returns the path of the written report.
func (a *App) AnalyzeTicker(ctx context.Context, ticker string) (string, error) {
	start := time.Now()
	a.logger.Info().Str("ticker", ticker).Msg("Analysis starting")

	snapshot, err := a.loadSnapshot(ctx, ticker)
	if err != nil {
		return "", err
	}

	technical := a.runTechnical(ticker, snapshot)
	var buffett *analysis.BuffettReport
	var lynch *analysis.LynchReport
	if snapshot.Fundamentals != nil {
		buffett = analysis.AnalyzeBuffett(ticker, snapshot.Fundamentals, snapshot.Quote)
		lynch = analysis.AnalyzeLynch(ticker, snapshot.Fundamentals)
	} else {
		a.logger.Warn().Str("ticker", ticker).Msg("Fundamentals unavailable, skipping investor screens")
	}

	tasks := a.buildTasks(ticker, snapshot, technical, buffett, lynch)
	results := a.orch.RunBatch(ctx, tasks)

	data := a.buildReportData(ticker, snapshot, technical, buffett, lynch, results)
	path, err := a.writer.Write(data)
	if err != nil {
		return "", err
	}

	if err := a.saveRecord(ticker, snapshot, technical, results, path); err != nil {
		a.logger.Warn().Err(err).Str("ticker", ticker).Msg("Failed to persist analysis record")
	}

	a.tracker.LogSummary()
	a.logger.Info().
		Str("ticker", ticker).
		Str("report", path).
		Dur("elapsed", time.Since(start)).
		Msg("Analysis complete")
	return path, nil
}

// loadSnapshot returns cached market data when fresh, otherwise fetches
// everything and caches the result.
func (a *App) loadSnapshot(ctx context.Context, ticker string) (*storage.MarketSnapshot, error) {
	ttl := common.Duration(a.config.Storage.Badger.CacheTTL)
	if cached, err := a.snapshots.GetFresh(ticker, ttl); err == nil && cached != nil {
		a.logger.Info().Str("ticker", ticker).Dur("age", cached.Age()).Msg("Using cached market data")
		return cached, nil
	}

	quote, err := a.market.GetQuote(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote for %s: %w", ticker, err)
	}

	candles, err := a.market.GetHistory(ctx, ticker, "1y")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price history for %s: %w", ticker, err)
	}

	fundamentals, err := a.market.GetFundamentals(ctx, ticker)
	if err != nil {
		a.logger.Warn().Err(err).Str("ticker", ticker).Msg("Failed to fetch fundamentals")
		fundamentals = nil
	}

	news, err := a.market.GetNews(ctx, ticker, 8)
	if err != nil {
		a.logger.Warn().Err(err).Str("ticker", ticker).Msg("Failed to fetch news")
	}
	for i := range news {
		if i >= maxArticleFetches {
			break
		}
		if err := a.market.FetchArticleContent(ctx, &news[i]); err != nil {
			a.logger.Debug().Err(err).Str("link", news[i].Link).Msg("Article extraction failed")
		}
	}

	snapshot := &storage.MarketSnapshot{
		Ticker:       ticker,
		Quote:        quote,
		Candles:      candles,
		Fundamentals: fundamentals,
		News:         news,
		FetchedAt:    time.Now(),
	}
	if err := a.snapshots.SaveSnapshot(snapshot); err != nil {
		a.logger.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache market data")
	}
	return snapshot, nil
}

func (a *App) runTechnical(ticker string, snapshot *storage.MarketSnapshot) *analysis.TechnicalReport {
	technical, err := analysis.AnalyzeTechnical(ticker, snapshot.Candles)
	if err != nil {
		a.logger.Warn().Err(err).Str("ticker", ticker).Msg("Technical screen unavailable")
		return nil
	}
	return technical
}
