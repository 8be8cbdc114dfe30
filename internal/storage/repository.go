package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"skywatch/internal/astro"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	getValueSQL = `SELECT value FROM active_memory
    WHERE key = $1
      AND expires_at > now();`

	setValueSQL = `INSERT INTO active_memory (
        key,
        value,
        expires_at
    ) VALUES (
        $1,$2,$3
    )
    ON CONFLICT (key) DO UPDATE
    SET value      = EXCLUDED.value,
        expires_at = EXCLUDED.expires_at;`

	purgeExpiredSQL = `DELETE FROM active_memory WHERE expires_at <= now();`

	insertHistorySQL = `INSERT INTO tracking_history (
        user_id,
        module,
        recorded_at,
        data
    ) VALUES (
        $1,$2,$3,$4
    );`

	trimHistorySQL = `DELETE FROM tracking_history
    WHERE user_id = $1
      AND module = $2
      AND recorded_at < $3;`

	listHistoryBetweenSQL = `SELECT
        user_id,
        module,
        recorded_at,
        data
    FROM tracking_history
    WHERE user_id = $1
      AND module = $2
      AND recorded_at >= $3
      AND recorded_at < $4
    ORDER BY recorded_at;`

	listRecentHistorySQL = `SELECT
        user_id,
        module,
        recorded_at,
        data
    FROM tracking_history
    WHERE user_id = $1
      AND module = $2
    ORDER BY recorded_at DESC
    LIMIT $3;`

	getChartSQL = `SELECT chart FROM natal_charts
    WHERE user_id = $1
      AND module = $2;`

	upsertChartSQL = `INSERT INTO natal_charts (
        user_id,
        module,
        chart
    ) VALUES (
        $1,$2,$3
    )
    ON CONFLICT (user_id, module) DO UPDATE
    SET chart      = EXCLUDED.chart,
        updated_at = now();`

	listUsersSQL = `SELECT DISTINCT user_id FROM natal_charts ORDER BY user_id;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// KeyValueStore is the TTL-bound "active memory" shared by tracking modules and the orchestrator.
// A missing or expired key reports found=false without error.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// HistoryStore keeps the rolling per-(user, module) snapshot history.
type HistoryStore interface {
	AppendAndTrim(ctx context.Context, entry HistoryEntry, retention time.Duration) error
	ListHistoryBetween(ctx context.Context, userID, module string, from, to time.Time) ([]HistoryEntry, error)
	ListRecentHistory(ctx context.Context, userID, module string, limit int) ([]HistoryEntry, error)
}

// ChartStore reads reference charts. found=false means the user has no chart for the module yet.
type ChartStore interface {
	ReferenceChart(ctx context.Context, userID, module string) (chart astro.Chart, found bool, err error)
}

// ChartWriter stores reference charts produced by an external calculation module.
type ChartWriter interface {
	UpsertReferenceChart(ctx context.Context, userID, module string, chart astro.Chart) error
}

// UserLister enumerates users eligible for bulk refresh.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// ExpiredPurger removes expired active-memory rows.
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Backend bundles every capability the runtime needs from one storage implementation.
type Backend interface {
	KeyValueStore
	HistoryStore
	ChartStore
	ChartWriter
	UserLister
	ExpiredPurger
}

// Store is the PostgreSQL implementation of every storage interface.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// the session lock dies with the connection if this fails
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Get reads an unexpired active-memory value.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	var value []byte
	if scanErr := pool.QueryRow(ctx, getValueSQL, key).Scan(&value); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get active memory %q: %w", key, scanErr)
	}
	return value, true, nil
}

// Set writes an active-memory value with the given time to live.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, setValueSQL, key, value, time.Now().UTC().Add(ttl)); execErr != nil {
		return fmt.Errorf("set active memory %q: %w", key, execErr)
	}
	return nil
}

// PurgeExpired deletes expired active-memory rows.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, purgeExpiredSQL)
	if execErr != nil {
		return 0, fmt.Errorf("purge expired active memory: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// AppendAndTrim records a history entry and drops entries recorded more than retention before now.
func (s *Store) AppendAndTrim(ctx context.Context, entry HistoryEntry, retention time.Duration) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, insertHistorySQL, entry.UserID, entry.Module, entry.Timestamp, []byte(entry.Data)); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	cutoff := time.Now().UTC().Add(-retention)
	if _, err := tx.Exec(ctx, trimHistorySQL, entry.UserID, entry.Module, cutoff); err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit history tx: %w", err)
	}
	return nil
}

// ListHistoryBetween lists history entries within a time window, oldest first.
func (s *Store) ListHistoryBetween(ctx context.Context, userID, module string, from, to time.Time) ([]HistoryEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listHistoryBetweenSQL, userID, module, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list history between: %w", queryErr)
	}
	defer rows.Close()

	return collectHistory(rows, 0)
}

// ListRecentHistory lists the most recent history entries, newest first.
func (s *Store) ListRecentHistory(ctx context.Context, userID, module string, limit int) ([]HistoryEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentHistorySQL, userID, module, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent history: %w", queryErr)
	}
	defer rows.Close()

	return collectHistory(rows, limit)
}

// ReferenceChart loads the stored chart for a user and calculation module.
func (s *Store) ReferenceChart(ctx context.Context, userID, module string) (astro.Chart, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	var raw []byte
	if scanErr := pool.QueryRow(ctx, getChartSQL, userID, module).Scan(&raw); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get reference chart: %w", scanErr)
	}

	var chart astro.Chart
	if err := json.Unmarshal(raw, &chart); err != nil {
		return nil, false, fmt.Errorf("decode reference chart: %w", err)
	}
	return chart, true, nil
}

// UpsertReferenceChart stores or replaces a reference chart.
func (s *Store) UpsertReferenceChart(ctx context.Context, userID, module string, chart astro.Chart) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(chart)
	if err != nil {
		return fmt.Errorf("encode reference chart: %w", err)
	}
	if _, execErr := pool.Exec(ctx, upsertChartSQL, userID, module, raw); execErr != nil {
		return fmt.Errorf("upsert reference chart: %w", execErr)
	}
	return nil
}

// ListUserIDs lists every user with at least one reference chart.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listUsersSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list users: %w", queryErr)
	}
	defer rows.Close()

	users := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return users, nil
}

func collectHistory(rows pgx.Rows, capacity int) ([]HistoryEntry, error) {
	entries := make([]HistoryEntry, 0, capacity)
	for rows.Next() {
		var (
			entry HistoryEntry
			data  []byte
		)
		if err := rows.Scan(&entry.UserID, &entry.Module, &entry.Timestamp, &data); err != nil {
			return nil, err
		}
		entry.Data = json.RawMessage(data)
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

var (
	_ KeyValueStore  = (*Store)(nil)
	_ HistoryStore   = (*Store)(nil)
	_ ChartStore     = (*Store)(nil)
	_ ChartWriter    = (*Store)(nil)
	_ UserLister     = (*Store)(nil)
	_ ExpiredPurger  = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
	_ Backend        = (*Store)(nil)
)
