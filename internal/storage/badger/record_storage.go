package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// AnalysisRecord is a completed analysis run for one ticker, with the
// generated text of every section keyed by section name.
type AnalysisRecord struct {
	ID         string `badgerhold:"key"`
	Ticker     string `badgerhold:"index"`
	Price      float64
	Signal     string
	Confidence float64
	Sections   map[string]string
	Provider   string
	Models     []string
	TokensUsed int
	Cost       float64
	ReportPath string
	CreatedAt  time.Time
}

// RecordStorage persists completed analysis records
type RecordStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRecordStorage creates a new RecordStorage instance
func NewRecordStorage(db *BadgerDB, logger arbor.ILogger) *RecordStorage {
	return &RecordStorage{
		db:     db,
		logger: logger,
	}
}

func (s *RecordStorage) SaveRecord(record *AnalysisRecord) error {
	if record.ID == "" {
		return fmt.Errorf("record ID is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save analysis record: %w", err)
	}

	s.logger.Debug().Str("id", record.ID).Str("ticker", record.Ticker).Msg("Analysis record saved")
	return nil
}

func (s *RecordStorage) GetRecord(id string) (*AnalysisRecord, error) {
	var record AnalysisRecord
	if err := s.db.Store().Get(id, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("analysis record not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get analysis record: %w", err)
	}
	return &record, nil
}

// ListByTicker returns records for a ticker, newest first
func (s *RecordStorage) ListByTicker(ticker string, limit int) ([]*AnalysisRecord, error) {
	query := badgerhold.Where("Ticker").Eq(ticker).Index("Ticker").SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []AnalysisRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list analysis records: %w", err)
	}

	result := make([]*AnalysisRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

// RecentRecords returns the most recent records across all tickers
func (s *RecordStorage) RecentRecords(limit int) ([]*AnalysisRecord, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []AnalysisRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list analysis records: %w", err)
	}

	result := make([]*AnalysisRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

func (s *RecordStorage) DeleteRecord(id string) error {
	if err := s.db.Store().Delete(id, &AnalysisRecord{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete analysis record: %w", err)
	}
	return nil
}
