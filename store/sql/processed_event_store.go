package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProcessedEventStore keeps the set of handled event IDs in the database so
// deduplication survives restarts and is shared between replicas.
type ProcessedEventStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewProcessedEventStore(db *bun.DB) (*ProcessedEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &ProcessedEventStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *ProcessedEventStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: processed event store is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, nil
	}
	return s.db.NewSelect().
		Model((*processedEventRecord)(nil)).
		Where("?TableAlias.event_id = ?", eventID).
		Exists(ctx)
}

// MarkProcessed is idempotent: marking an ID twice keeps the first timestamp.
func (s *ProcessedEventStore) MarkProcessed(ctx context.Context, eventID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: processed event store is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return core.NewError("sqlstore: event id is required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	record := &processedEventRecord{
		ID:          uuid.NewString(),
		EventID:     eventID,
		ProcessedAt: s.now(),
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (event_id) DO NOTHING").
		Exec(ctx)
	return err
}

// Prune deletes IDs processed before the cutoff and reports how many went.
func (s *ProcessedEventStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: processed event store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*processedEventRecord)(nil)).
		Where("processed_at < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
