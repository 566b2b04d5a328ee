package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/aestimo/internal/marketdata"
	"github.com/timshannon/badgerhold/v4"
)

// MarketSnapshot is a cached bundle of everything fetched for one ticker.
// Snapshots are keyed by ticker; a new fetch overwrites the previous one.
type MarketSnapshot struct {
	Ticker       string `badgerhold:"key"`
	Quote        *marketdata.Quote
	Candles      []marketdata.Candle
	Fundamentals *marketdata.Fundamentals
	News         []marketdata.NewsArticle
	FetchedAt    time.Time
}

// Age returns how old the snapshot is
func (s *MarketSnapshot) Age() time.Duration {
	return time.Since(s.FetchedAt)
}

// SnapshotStorage persists market data snapshots
type SnapshotStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSnapshotStorage creates a new SnapshotStorage instance
func NewSnapshotStorage(db *BadgerDB, logger arbor.ILogger) *SnapshotStorage {
	return &SnapshotStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SnapshotStorage) SaveSnapshot(snapshot *MarketSnapshot) error {
	if snapshot.Ticker == "" {
		return fmt.Errorf("snapshot ticker is required")
	}
	if snapshot.FetchedAt.IsZero() {
		snapshot.FetchedAt = time.Now()
	}

	if err := s.db.Store().Upsert(snapshot.Ticker, snapshot); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	s.logger.Debug().Str("ticker", snapshot.Ticker).Msg("Market snapshot saved")
	return nil
}

func (s *SnapshotStorage) GetSnapshot(ticker string) (*MarketSnapshot, error) {
	var snapshot MarketSnapshot
	if err := s.db.Store().Get(ticker, &snapshot); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return &snapshot, nil
}

// GetFresh returns the snapshot for ticker if it is younger than maxAge,
// nil otherwise. A stale snapshot is left in place until overwritten.
func (s *SnapshotStorage) GetFresh(ticker string, maxAge time.Duration) (*MarketSnapshot, error) {
	snapshot, err := s.GetSnapshot(ticker)
	if err != nil || snapshot == nil {
		return nil, err
	}
	if snapshot.Age() > maxAge {
		s.logger.Debug().Str("ticker", ticker).Dur("age", snapshot.Age()).Msg("Cached snapshot is stale")
		return nil, nil
	}
	return snapshot, nil
}

func (s *SnapshotStorage) DeleteSnapshot(ticker string) error {
	if err := s.db.Store().Delete(ticker, &MarketSnapshot{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
