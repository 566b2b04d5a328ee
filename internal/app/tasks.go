package app

import (
	"fmt"
	"time"

	"github.com/ternarybob/aestimo/internal/analysis"
	"github.com/ternarybob/aestimo/internal/analysis/prompts"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/llm"
	"github.com/ternarybob/aestimo/internal/orchestrator"
	"github.com/ternarybob/aestimo/internal/report"
	storage "github.com/ternarybob/aestimo/internal/storage/badger"
)

// buildTasks assembles the generation batch: one independent task per
// available screen, plus the recommendation and summary which compose
// from the earlier outputs.
func (a *App) buildTasks(ticker string, snapshot *storage.MarketSnapshot, technical *analysis.TechnicalReport, buffett *analysis.BuffettReport, lynch *analysis.LynchReport) []*orchestrator.Task {
	var tasks []*orchestrator.Task

	add := func(kind orchestrator.Kind, req *llm.Request) {
		tasks = append(tasks, &orchestrator.Task{
			ID:      common.NewTaskID(),
			Kind:    kind,
			Request: a.fill(req),
		})
	}

	if technical != nil {
		add(orchestrator.KindTechnical, prompts.Technical(ticker, technical, snapshot.Quote))
	}
	if snapshot.Fundamentals != nil {
		add(orchestrator.KindFundamental, prompts.Fundamental(ticker, snapshot.Fundamentals, snapshot.Quote))
	}
	if len(snapshot.News) > 0 {
		add(orchestrator.KindNews, prompts.News(ticker, snapshot.News, snapshot.Quote))
	}
	if buffett != nil {
		add(orchestrator.KindBuffett, prompts.Buffett(ticker, buffett, snapshot.Fundamentals))
	}
	if lynch != nil {
		add(orchestrator.KindLynch, prompts.Lynch(ticker, lynch, snapshot.Fundamentals))
	}

	tasks = append(tasks, &orchestrator.Task{
		ID:   common.NewTaskID(),
		Kind: orchestrator.KindRecommendation,
		Compose: func(done map[orchestrator.Kind]orchestrator.Result) (*llm.Request, error) {
			technicalText := done[orchestrator.KindTechnical].Text
			fundamentalText := done[orchestrator.KindFundamental].Text
			newsText := done[orchestrator.KindNews].Text
			if technicalText == "" && fundamentalText == "" && newsText == "" {
				return nil, fmt.Errorf("no component analyses succeeded")
			}
			return a.fill(prompts.Recommendation(ticker, snapshot.Quote, technicalText, fundamentalText, newsText)), nil
		},
	})

	tasks = append(tasks, &orchestrator.Task{
		ID:   common.NewTaskID(),
		Kind: orchestrator.KindSummary,
		Compose: func(done map[orchestrator.Kind]orchestrator.Result) (*llm.Request, error) {
			recommendation := done[orchestrator.KindRecommendation].Text
			if recommendation == "" {
				return nil, fmt.Errorf("recommendation unavailable")
			}
			return a.fill(prompts.Summary(ticker, snapshot.Quote,
				done[orchestrator.KindTechnical].Text,
				done[orchestrator.KindFundamental].Text,
				done[orchestrator.KindNews].Text,
				recommendation)), nil
		},
	})

	return tasks
}

func (a *App) fill(req *llm.Request) *llm.Request {
	req.Temperature = a.config.LLM.Temperature
	req.MaxOutputTokens = a.config.LLM.MaxOutputTokens
	return req
}

// sectionOrder fixes how generated blocks appear in the report
var sectionOrder = []struct {
	kind  orchestrator.Kind
	title string
}{
	{orchestrator.KindSummary, "Executive Summary"},
	{orchestrator.KindRecommendation, "Investment Recommendation"},
	{orchestrator.KindTechnical, "Technical Analysis"},
	{orchestrator.KindFundamental, "Fundamental Analysis"},
	{orchestrator.KindNews, "News Analysis"},
	{orchestrator.KindBuffett, "Value Perspective"},
	{orchestrator.KindLynch, "Growth Perspective"},
}

func (a *App) buildReportData(ticker string, snapshot *storage.MarketSnapshot, technical *analysis.TechnicalReport, buffett *analysis.BuffettReport, lynch *analysis.LynchReport, results map[orchestrator.Kind]orchestrator.Result) *report.Data {
	var sections []report.Section
	for _, entry := range sectionOrder {
		result, ok := results[entry.kind]
		if !ok {
			continue
		}
		body := result.Text
		if result.Failed() {
			body = fmt.Sprintf("*Generation failed: %v*", result.Err)
		}
		sections = append(sections, report.Section{Title: entry.title, Body: body})
	}

	usage := a.tracker.Summarize()
	return &report.Data{
		Ticker:      ticker,
		GeneratedAt: time.Now(),
		Quote:       snapshot.Quote,
		Technical:   technical,
		Buffett:     buffett,
		Lynch:       lynch,
		Sections:    sections,
		Usage:       &usage,
	}
}

func (a *App) saveRecord(ticker string, snapshot *storage.MarketSnapshot, technical *analysis.TechnicalReport, results map[orchestrator.Kind]orchestrator.Result, path string) error {
	sections := make(map[string]string, len(results))
	for kind, result := range results {
		if !result.Failed() {
			sections[string(kind)] = result.Text
		}
	}

	record := &storage.AnalysisRecord{
		ID:         common.NewReportID(),
		Ticker:     ticker,
		Sections:   sections,
		Provider:   string(a.config.LLM.DefaultProvider),
		Models:     a.config.ProviderModels(),
		ReportPath: path,
		CreatedAt:  time.Now(),
	}
	if snapshot.Quote != nil {
		record.Price = snapshot.Quote.Price
	}
	if technical != nil {
		record.Signal = string(technical.OverallSignal)
		record.Confidence = technical.Confidence
	}
	summary := a.tracker.Summarize()
	record.TokensUsed = summary.TotalTokens
	record.Cost = summary.TotalCost

	return a.records.SaveRecord(record)
}
