package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"pattern-alerts/internal/metric"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

const (
	upsertSampleSQL = `INSERT INTO metric_samples (
        metric_id,
        sample_ts,
        value
    ) VALUES (
        $1,$2,$3
    )
    ON CONFLICT (metric_id, sample_ts) DO UPDATE
    SET value = EXCLUDED.value;`

	listSamplesBetweenSQL = `SELECT
        metric_id,
        sample_ts,
        value,
        created_at
    FROM metric_samples
    WHERE metric_id = $1
      AND sample_ts >= $2
      AND sample_ts < $3
    ORDER BY sample_ts;`

	listRecentSamplesSQL = `SELECT
        metric_id,
        sample_ts,
        value,
        created_at
    FROM metric_samples
    WHERE metric_id = $1
    ORDER BY sample_ts DESC
    LIMIT $2;`

	countSamplesSQL = `SELECT COUNT(*) FROM metric_samples;`

	deleteSamplesBeforeSQL = `DELETE FROM metric_samples WHERE sample_ts < $1;`

	insertAlertSQL = `INSERT INTO alerts (
        cycle_ts,
        reason,
        deltas,
        degraded
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (cycle_ts) DO UPDATE
    SET reason   = EXCLUDED.reason,
        deltas   = EXCLUDED.deltas,
        degraded = EXCLUDED.degraded
    RETURNING id, cycle_ts, reason, deltas, degraded, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        cycle_ts,
        reason,
        deltas,
        degraded,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`

	createSchemaSQL = `
    CREATE TABLE IF NOT EXISTS metric_samples (
        metric_id  TEXT        NOT NULL,
        sample_ts  TIMESTAMPTZ NOT NULL,
        value      NUMERIC     NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (metric_id, sample_ts)
    );

    CREATE TABLE IF NOT EXISTS alerts (
        id         BIGSERIAL   PRIMARY KEY,
        cycle_ts   TIMESTAMPTZ NOT NULL UNIQUE,
        reason     TEXT        NOT NULL,
        deltas     JSONB       NOT NULL DEFAULT '[]'::jsonb,
        degraded   BOOLEAN     NOT NULL DEFAULT FALSE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );

    CREATE TABLE IF NOT EXISTS alert_state (
        instrument TEXT        PRIMARY KEY,
        state      JSONB       NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`
)

// SampleStore defines operations for the durable sample mirror.
type SampleStore interface {
	UpsertSample(ctx context.Context, row SampleRow) error
	ListSamplesBetween(ctx context.Context, id metric.ID, from, to time.Time) ([]SampleRow, error)
	ListRecentSamples(ctx context.Context, id metric.ID, limit int) ([]SampleRow, error)
	CountSamples(ctx context.Context) (int64, error)
	DeleteSamplesBefore(ctx context.Context, olderThan time.Time) error
}

// AlertAuditStore defines operations for the alert audit trail.
type AlertAuditStore interface {
	InsertAlert(ctx context.Context, row AlertRow) (AlertRow, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRow, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to metric samples and the alert audit trail.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for collaborators that share it.
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InitSchema creates the tables if they do not exist yet.
func (s *Store) InitSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, createSchemaSQL); execErr != nil {
		return fmt.Errorf("init schema: %w", execErr)
	}
	return nil
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
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

// UpsertSample persists or overwrites one metric observation.
func (s *Store) UpsertSample(ctx context.Context, row SampleRow) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertSampleSQL, string(row.Metric), row.SampleTS, row.Value.String()); execErr != nil {
		return fmt.Errorf("upsert metric sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists one metric's samples within [from, to).
func (s *Store) ListSamplesBetween(ctx context.Context, id metric.ID, from, to time.Time) ([]SampleRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, string(id), from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows, 0)
}

// ListRecentSamples lists the most recent samples for one metric, newest first.
func (s *Store) ListRecentSamples(ctx context.Context, id metric.ID, limit int) ([]SampleRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, string(id), limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows, limit)
}

// CountSamples counts stored samples across all metrics.
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

// DeleteSamplesBefore prunes samples older than the retention horizon.
func (s *Store) DeleteSamplesBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteSamplesBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete samples before: %w", execErr)
	}
	return nil
}

// InsertAlert persists one notification emission.
func (s *Store) InsertAlert(ctx context.Context, row AlertRow) (AlertRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRow{}, err
	}

	res := pool.QueryRow(ctx, insertAlertSQL, row.CycleTS, row.Reason, []byte(row.Deltas), row.Degraded)

	var rec AlertRow
	if scanErr := res.Scan(&rec.ID, &rec.CycleTS, &rec.Reason, &rec.Deltas, &rec.Degraded, &rec.CreatedAt); scanErr != nil {
		return AlertRow{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists the most recent notifications, newest first.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRow, 0, limit)
	for rows.Next() {
		var rec AlertRow
		if err := rows.Scan(&rec.ID, &rec.CycleTS, &rec.Reason, &rec.Deltas, &rec.Degraded, &rec.CreatedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func collectSamples(rows pgx.Rows, sizeHint int) ([]SampleRow, error) {
	samples := make([]SampleRow, 0, sizeHint)
	for rows.Next() {
		var (
			id       string
			ts       time.Time
			valueStr string
			created  time.Time
		)
		if err := rows.Scan(&id, &ts, &valueStr, &created); err != nil {
			return nil, err
		}
		value, convErr := decimal.NewFromString(valueStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse sample value: %w", convErr)
		}
		samples = append(samples, SampleRow{
			Metric:    metric.ID(id),
			SampleTS:  ts,
			Value:     value,
			CreatedAt: created,
		})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

var (
	_ SampleStore     = (*Store)(nil)
	_ AlertAuditStore = (*Store)(nil)
	_ AdvisoryLocker  = (*Store)(nil)
)
