package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/analysis"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/marketdata"
	"github.com/ternarybob/aestimo/internal/orchestrator"
	storage "github.com/ternarybob/aestimo/internal/storage/badger"
	"github.com/ternarybob/aestimo/internal/tokens"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	return &App{
		config:  common.NewDefaultConfig(),
		logger:  arbor.NewLogger(),
		tracker: tokens.NewTracker(arbor.NewLogger()),
	}
}

func fullSnapshot() *storage.MarketSnapshot {
	return &storage.MarketSnapshot{
		Ticker:       "AAPL",
		Quote:        &marketdata.Quote{Ticker: "AAPL", Price: 230.5, Currency: "USD"},
		Fundamentals: &marketdata.Fundamentals{Ticker: "AAPL", Name: "Apple Inc."},
		News:         []marketdata.NewsArticle{{Title: "Earnings beat", Link: "https://example.com/a"}},
	}
}

func TestBuildTasksFullSnapshot(t *testing.T) {
	a := newTestApp(t)
	snapshot := fullSnapshot()
	technical := &analysis.TechnicalReport{Ticker: "AAPL", OverallSignal: analysis.SignalBullish}
	buffett := &analysis.BuffettReport{Ticker: "AAPL"}
	lynch := &analysis.LynchReport{Ticker: "AAPL"}

	tasks := a.buildTasks("AAPL", snapshot, technical, buffett, lynch)

	require.Len(t, tasks, 7)

	var kinds []orchestrator.Kind
	for _, task := range tasks {
		kinds = append(kinds, task.Kind)
	}
	assert.Equal(t, []orchestrator.Kind{
		orchestrator.KindTechnical,
		orchestrator.KindFundamental,
		orchestrator.KindNews,
		orchestrator.KindBuffett,
		orchestrator.KindLynch,
		orchestrator.KindRecommendation,
		orchestrator.KindSummary,
	}, kinds)

	for _, task := range tasks[:5] {
		require.NotNil(t, task.Request, "%s should be independent", task.Kind)
		assert.Equal(t, float32(0.7), task.Request.Temperature)
		assert.Equal(t, 2000, task.Request.MaxOutputTokens)
	}
	for _, task := range tasks[5:] {
		assert.Nil(t, task.Request)
		assert.True(t, task.Dependent())
	}
}

func TestBuildTasksSkipsUnavailableScreens(t *testing.T) {
	a := newTestApp(t)
	snapshot := fullSnapshot()
	snapshot.Fundamentals = nil
	snapshot.News = nil

	tasks := a.buildTasks("AAPL", snapshot, nil, nil, nil)

	require.Len(t, tasks, 2, "only recommendation and summary remain")
	assert.Equal(t, orchestrator.KindRecommendation, tasks[0].Kind)
	assert.Equal(t, orchestrator.KindSummary, tasks[1].Kind)
}

func TestRecommendationComposeRequiresAnyComponent(t *testing.T) {
	a := newTestApp(t)
	tasks := a.buildTasks("AAPL", fullSnapshot(), nil, nil, nil)

	var recommendation *orchestrator.Task
	for _, task := range tasks {
		if task.Kind == orchestrator.KindRecommendation {
			recommendation = task
		}
	}
	require.NotNil(t, recommendation)

	_, err := recommendation.Compose(map[orchestrator.Kind]orchestrator.Result{})
	require.Error(t, err)

	req, err := recommendation.Compose(map[orchestrator.Kind]orchestrator.Result{
		orchestrator.KindNews: {Kind: orchestrator.KindNews, Text: "sentiment is positive"},
	})
	require.NoError(t, err)
	assert.Contains(t, req.Prompt, "sentiment is positive")
	assert.Contains(t, req.Prompt, "(not available)")
}

func TestSummaryComposeRequiresRecommendation(t *testing.T) {
	a := newTestApp(t)
	tasks := a.buildTasks("AAPL", fullSnapshot(), nil, nil, nil)
	summary := tasks[len(tasks)-1]
	require.Equal(t, orchestrator.KindSummary, summary.Kind)

	_, err := summary.Compose(map[orchestrator.Kind]orchestrator.Result{})
	require.Error(t, err)

	req, err := summary.Compose(map[orchestrator.Kind]orchestrator.Result{
		orchestrator.KindRecommendation: {Kind: orchestrator.KindRecommendation, Text: "buy"},
	})
	require.NoError(t, err)
	assert.Contains(t, req.Prompt, "=== RECOMMENDATION ===\nbuy")
}

func TestBuildReportDataOrdersSectionsAndMarksFailures(t *testing.T) {
	a := newTestApp(t)
	snapshot := fullSnapshot()

	results := map[orchestrator.Kind]orchestrator.Result{
		orchestrator.KindTechnical:      {Kind: orchestrator.KindTechnical, Text: "technical text"},
		orchestrator.KindNews:           {Kind: orchestrator.KindNews, Err: assert.AnError},
		orchestrator.KindRecommendation: {Kind: orchestrator.KindRecommendation, Text: "buy"},
		orchestrator.KindSummary:        {Kind: orchestrator.KindSummary, Text: "summary text"},
	}

	data := a.buildReportData("AAPL", snapshot, nil, nil, nil, results)

	require.Len(t, data.Sections, 4)
	assert.Equal(t, "Executive Summary", data.Sections[0].Title)
	assert.Equal(t, "Investment Recommendation", data.Sections[1].Title)
	assert.Equal(t, "Technical Analysis", data.Sections[2].Title)
	assert.Equal(t, "News Analysis", data.Sections[3].Title)
	assert.Contains(t, data.Sections[3].Body, "Generation failed")
}
