package synthesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"skywatch/internal/storage"
)

// ErrInvalidTrigger is returned when a record carries no declared trigger.
var ErrInvalidTrigger = errors.New("synthesis record has no valid trigger")

// State is the freshness of a user's stored synthesis.
type State int

const (
	StateMissing State = iota
	StateValid
	StateStale
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateStale:
		return "stale"
	default:
		return "missing"
	}
}

// Record is a stored synthesis.
type Record struct {
	UserID      string          `json:"user_id"`
	Trigger     Trigger         `json:"trigger"`
	GeneratedAt time.Time       `json:"generated_at"`
	StaleAt     time.Time       `json:"stale_at"`
	Content     json.RawMessage `json:"content"`
}

// RecordStore evaluates and persists synthesis records.
type RecordStore interface {
	Lookup(ctx context.Context, userID string) (*Record, State, error)
	Save(ctx context.Context, record Record) error
}

// CacheRecordStore keeps records in active memory under synthesis:<user>.
// A record turns stale StaleAfter after generation and disappears after TTL.
type CacheRecordStore struct {
	kv         storage.KeyValueStore
	staleAfter time.Duration
	ttl        time.Duration
	now        func() time.Time
}

// NewCacheRecordStore builds a CacheRecordStore.
func NewCacheRecordStore(kv storage.KeyValueStore, staleAfter, ttl time.Duration) *CacheRecordStore {
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	if ttl < staleAfter {
		ttl = staleAfter
	}
	return &CacheRecordStore{
		kv:         kv,
		staleAfter: staleAfter,
		ttl:        ttl,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used for staleness.
func (s *CacheRecordStore) WithClock(now func() time.Time) *CacheRecordStore {
	s.now = now
	return s
}

func recordKey(userID string) string {
	return "synthesis:" + userID
}

// Lookup returns the stored record and its state. Undecodable entries count as missing.
func (s *CacheRecordStore) Lookup(ctx context.Context, userID string) (*Record, State, error) {
	raw, found, err := s.kv.Get(ctx, recordKey(userID))
	if err != nil {
		return nil, StateMissing, fmt.Errorf("lookup synthesis record: %w", err)
	}
	if !found {
		return nil, StateMissing, nil
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, StateMissing, nil
	}
	if !s.now().Before(rec.StaleAt) {
		return &rec, StateStale, nil
	}
	return &rec, StateValid, nil
}

// Save stamps StaleAt when unset and writes the record.
func (s *CacheRecordStore) Save(ctx context.Context, record Record) error {
	if !record.Trigger.Valid() {
		return fmt.Errorf("save synthesis record for %q: %w", record.UserID, ErrInvalidTrigger)
	}
	if record.GeneratedAt.IsZero() {
		record.GeneratedAt = s.now()
	}
	if record.StaleAt.IsZero() {
		record.StaleAt = record.GeneratedAt.Add(s.staleAfter)
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode synthesis record: %w", err)
	}
	if err := s.kv.Set(ctx, recordKey(record.UserID), raw, s.ttl); err != nil {
		return fmt.Errorf("store synthesis record: %w", err)
	}
	return nil
}

var _ RecordStore = (*CacheRecordStore)(nil)
