package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/whatasoda/twitch-clips-todo/internal/domain"
)

const (
	RecordsStorageKey  = "records"
	RecordStoreVersion = 1

	RetentionJobName  = "record-retention"
	RetentionInterval = 24 * time.Hour
)

var _ domain.RecordRepository = (*RecordService)(nil)

// recordDocument is the stored shape of the whole bookmark collection.
type recordDocument struct {
	Version int             `json:"version"`
	Records []domain.Record `json:"records"`
}

// RecordService keeps every bookmark in one versioned document under RecordsStorageKey.
//
// The mutex serializes read-modify-write cycles within this process. Writers in other
// processes sharing the store are not coordinated: the last write wins.
type RecordService struct {
	store domain.KVStore
	clock clockwork.Clock

	mu sync.Mutex
}

func NewRecordService(store domain.KVStore, clock clockwork.Clock) *RecordService {
	return &RecordService{store: store, clock: clock}
}

// List returns all records in creation order.
func (s *RecordService) List(ctx context.Context) ([]domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Records, nil
}

func (s *RecordService) Get(ctx context.Context, id string) (*domain.Record, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ID == id {
			return &records[i], nil
		}
	}
	return nil, domain.ErrRecordNotFound
}

func (s *RecordService) ListByStreamer(ctx context.Context, streamerID string) ([]domain.Record, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var out []domain.Record
	for _, r := range records {
		if r.StreamerID == streamerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *RecordService) Create(ctx context.Context, in domain.CreateRecordInput) (*domain.Record, error) {
	now := s.clock.Now()
	record := domain.Record{
		ID:               uuid.NewString(),
		StreamerID:       in.StreamerID,
		StreamerName:     in.StreamerName,
		TimestampSeconds: in.TimestampSeconds,
		Memo:             in.Memo,
		SourceType:       in.SourceType,
		VodID:            in.VodID,
		BroadcastID:      in.BroadcastID,
		RecordedAt:       in.RecordedAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = now
	}
	if record.StreamerName == "" {
		record.StreamerName = record.StreamerID
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	doc.Records = append(doc.Records, record)
	if err := s.save(ctx, doc); err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "Record created", "record_id", record.ID, "streamer_id", record.StreamerID, "source_type", record.SourceType)
	return &record, nil
}

func (s *RecordService) UpdateMemo(ctx context.Context, id, memo string) (*domain.Record, error) {
	return s.update(ctx, id, func(r *domain.Record) error {
		r.Memo = memo
		return nil
	})
}

// Complete marks the record as clipped. Completing twice keeps the first completion time.
func (s *RecordService) Complete(ctx context.Context, id string) (*domain.Record, error) {
	return s.update(ctx, id, func(r *domain.Record) error {
		if !r.IsCompleted() {
			now := s.clock.Now()
			r.CompletedAt = &now
		}
		return nil
	})
}

func (s *RecordService) Uncomplete(ctx context.Context, id string) (*domain.Record, error) {
	return s.update(ctx, id, func(r *domain.Record) error {
		r.CompletedAt = nil
		return nil
	})
}

// LinkToVod attaches the record to vodID, rewriting its timestamp to the VOD offset.
func (s *RecordService) LinkToVod(ctx context.Context, id, vodID string, offsetSeconds int64) (*domain.Record, error) {
	return s.update(ctx, id, func(r *domain.Record) error {
		r.VodID = &vodID
		r.TimestampSeconds = offsetSeconds
		r.SourceType = domain.SourceVod
		return r.Validate()
	})
}

func (s *RecordService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return err
	}

	for i := range doc.Records {
		if doc.Records[i].ID == id {
			doc.Records = append(doc.Records[:i], doc.Records[i+1:]...)
			return s.save(ctx, doc)
		}
	}
	return domain.ErrRecordNotFound
}

// DeleteCompleted removes records completed more than olderThan ago and returns how many went.
func (s *RecordService) DeleteCompleted(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := s.clock.Now().Add(-olderThan)
	kept := doc.Records[:0]
	for _, r := range doc.Records {
		if r.IsCompleted() && r.CompletedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, r)
	}

	removed := len(doc.Records) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	doc.Records = kept
	if err := s.save(ctx, doc); err != nil {
		return 0, err
	}
	return removed, nil
}

// Upgrade rewrites the stored document at RecordStoreVersion and reports the version it was
// read at. An absent store is left absent.
func (s *RecordService) Upgrade(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok, err := s.store.Get(ctx, RecordsStorageKey)
	if err != nil {
		return 0, fmt.Errorf("failed to read records: %w", err)
	}
	if !ok {
		return RecordStoreVersion, nil
	}

	doc, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	from := doc.Version
	if from == RecordStoreVersion {
		return from, nil
	}
	return from, s.save(ctx, doc)
}

// ScheduleRetention purges records completed more than olderThan ago once a day.
func (s *RecordService) ScheduleRetention(scheduler domain.Scheduler, olderThan time.Duration) {
	scheduler.Every(RetentionJobName, RetentionInterval, func(ctx context.Context) {
		removed, err := s.DeleteCompleted(ctx, olderThan)
		if err != nil {
			slog.ErrorContext(ctx, "Record retention failed", "error", err)
			return
		}
		if removed > 0 {
			slog.InfoContext(ctx, "Purged completed records", "count", removed, "older_than", olderThan)
		}
	})
}

func (s *RecordService) update(ctx context.Context, id string, mutate func(*domain.Record) error) (*domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	for i := range doc.Records {
		if doc.Records[i].ID != id {
			continue
		}
		updated := doc.Records[i]
		if err := mutate(&updated); err != nil {
			return nil, err
		}
		updated.UpdatedAt = s.clock.Now()
		doc.Records[i] = updated

		if err := s.save(ctx, doc); err != nil {
			return nil, err
		}
		return &updated, nil
	}
	return nil, domain.ErrRecordNotFound
}

// load reads the document. A missing key is an empty store; a bare JSON array is the
// unversioned legacy layout and is upgraded on the next save.
func (s *RecordService) load(ctx context.Context) (*recordDocument, error) {
	raw, ok, err := s.store.Get(ctx, RecordsStorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return &recordDocument{Version: RecordStoreVersion}, nil
	}

	if strings.HasPrefix(string(bytes.TrimSpace(raw)), "[") {
		var legacy []domain.Record
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return nil, fmt.Errorf("failed to decode legacy records: %w", err)
		}
		return &recordDocument{Version: 0, Records: legacy}, nil
	}

	var doc recordDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	if doc.Version > RecordStoreVersion {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnsupportedStoreVersion, doc.Version)
	}
	return &doc, nil
}

func (s *RecordService) save(ctx context.Context, doc *recordDocument) error {
	doc.Version = RecordStoreVersion
	if doc.Records == nil {
		doc.Records = []domain.Record{}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	if err := s.store.Set(ctx, RecordsStorageKey, raw); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	return nil
}
