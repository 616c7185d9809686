package detect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nikhilij/rocket-telemetry-ai/pkg/telemetry"
)

// Store persists anomaly records and detection runs. Timestamps are stored
// as RFC3339 UTC strings so that range queries compare correctly.
type Store struct {
	db *sql.DB
}

// NewStore creates a store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// AnomalyFilter narrows ListAnomalies results. Zero values mean no filter.
type AnomalyFilter struct {
	AssetID string
	Metric  string
	Since   *time.Time
	Until   *time.Time
	Limit   int
}

// InsertAnomaly persists a new anomaly record. It returns
// ErrDuplicateRejected when a record for the same source observation
// already exists; the UNIQUE constraint makes this safe under concurrent
// runs.
func (s *Store) InsertAnomaly(ctx context.Context, a *telemetry.AnomalyRecord) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO anomaly_records
			(id, source_observation_id, asset_id, metric, timestamp, score, explanation, mean, std_dev, window_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_observation_id) DO NOTHING`,
		a.ID, a.SourceObservationID, a.AssetID, a.Metric,
		a.Timestamp.UTC().Format(time.RFC3339), a.Score, a.Explanation,
		a.Evidence.Mean, a.Evidence.StdDev, a.Evidence.WindowSize,
		a.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert anomaly record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert anomaly record: %w", err)
	}
	if n == 0 {
		return ErrDuplicateRejected
	}
	return nil
}

// AlreadyRecorded reports whether an anomaly record exists for the given
// source observation. Advisory only: the UNIQUE constraint remains the
// mechanism that prevents duplicates.
func (s *Store) AlreadyRecorded(ctx context.Context, sourceObservationID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM anomaly_records WHERE source_observation_id = ?`,
		sourceObservationID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check anomaly record: %w", err)
	}
	return true, nil
}

// GetAnomaly returns one anomaly record by ID, or nil when none exists.
func (s *Store) GetAnomaly(ctx context.Context, id string) (*telemetry.AnomalyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_observation_id, asset_id, metric, timestamp, score, explanation, mean, std_dev, window_size, created_at
		FROM anomaly_records WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get anomaly record: %w", err)
	}
	records, err := scanAnomalies(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// ListAnomalies returns anomaly records matching the filter, most recent
// first.
func (s *Store) ListAnomalies(ctx context.Context, f AnomalyFilter) ([]telemetry.AnomalyRecord, error) {
	where := "1=1"
	args := []any{}
	if f.AssetID != "" {
		where += " AND asset_id = ?"
		args = append(args, f.AssetID)
	}
	if f.Metric != "" {
		where += " AND metric = ?"
		args = append(args, f.Metric)
	}
	if f.Since != nil {
		where += " AND timestamp >= ?"
		args = append(args, f.Since.UTC().Format(time.RFC3339))
	}
	if f.Until != nil {
		where += " AND timestamp <= ?"
		args = append(args, f.Until.UTC().Format(time.RFC3339))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	//nolint:gosec // where uses parameterized placeholders only
	query := fmt.Sprintf(`
		SELECT id, source_observation_id, asset_id, metric, timestamp, score, explanation, mean, std_dev, window_size, created_at
		FROM anomaly_records WHERE %s
		ORDER BY timestamp DESC, id DESC LIMIT ?`, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query anomaly records: %w", err)
	}
	return scanAnomalies(rows)
}

// CountAnomalies returns the total number of stored anomaly records.
func (s *Store) CountAnomalies(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM anomaly_records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count anomaly records: %w", err)
	}
	return count, nil
}

// TopAssetsByAnomalies returns the assets with the most anomaly records,
// highest count first.
func (s *Store) TopAssetsByAnomalies(ctx context.Context, limit int) ([]telemetry.AssetCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset_id, COUNT(*) AS n
		FROM anomaly_records
		GROUP BY asset_id
		ORDER BY n DESC, asset_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top assets: %w", err)
	}
	defer rows.Close()

	var top []telemetry.AssetCount
	for rows.Next() {
		var ac telemetry.AssetCount
		if err := rows.Scan(&ac.AssetID, &ac.Count); err != nil {
			return nil, fmt.Errorf("scan top assets: %w", err)
		}
		top = append(top, ac)
	}
	return top, rows.Err()
}

// InsertRun records the start of a detection pass.
func (s *Store) InsertRun(ctx context.Context, run *telemetry.DetectionRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO detection_runs (id, trigger_type, started_at, status, pairs_total, pairs_failed, records_created)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Trigger, run.StartedAt.UTC().Format(time.RFC3339), run.Status,
		run.PairsTotal, run.PairsFailed, run.RecordsCreated)
	if err != nil {
		return fmt.Errorf("insert detection run: %w", err)
	}
	return nil
}

// FinishRun marks a detection pass completed and stores its final counts.
func (s *Store) FinishRun(ctx context.Context, id string, finishedAt time.Time, pairsTotal, pairsFailed, recordsCreated int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE detection_runs
		SET finished_at = ?, status = ?, pairs_total = ?, pairs_failed = ?, records_created = ?
		WHERE id = ?`,
		finishedAt.UTC().Format(time.RFC3339), telemetry.RunStatusCompleted,
		pairsTotal, pairsFailed, recordsCreated, id)
	if err != nil {
		return fmt.Errorf("finish detection run: %w", err)
	}
	return nil
}

// GetRun returns one detection run by ID, or nil when none exists.
func (s *Store) GetRun(ctx context.Context, id string) (*telemetry.DetectionRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_type, started_at, finished_at, status, pairs_total, pairs_failed, records_created
		FROM detection_runs WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get detection run: %w", err)
	}
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// ListRuns returns detection runs, most recently started first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]telemetry.DetectionRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_type, started_at, finished_at, status, pairs_total, pairs_failed, records_created
		FROM detection_runs
		ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query detection runs: %w", err)
	}
	return scanRuns(rows)
}

// DeleteAnomaliesBefore removes anomaly records older than the cutoff and
// returns how many were deleted.
func (s *Store) DeleteAnomaliesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM anomaly_records WHERE timestamp < ?`,
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("delete anomaly records: %w", err)
	}
	return res.RowsAffected()
}

// DeleteRunsBefore removes detection runs started before the cutoff and
// returns how many were deleted.
func (s *Store) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM detection_runs WHERE started_at < ?`,
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("delete detection runs: %w", err)
	}
	return res.RowsAffected()
}

func scanAnomalies(rows *sql.Rows) ([]telemetry.AnomalyRecord, error) {
	defer rows.Close()

	var records []telemetry.AnomalyRecord
	for rows.Next() {
		var (
			a         telemetry.AnomalyRecord
			ts        string
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.SourceObservationID, &a.AssetID, &a.Metric, &ts,
			&a.Score, &a.Explanation, &a.Evidence.Mean, &a.Evidence.StdDev, &a.Evidence.WindowSize,
			&createdAt); err != nil {
			return nil, fmt.Errorf("scan anomaly record: %w", err)
		}
		var err error
		if a.Timestamp, err = time.Parse(time.RFC3339, ts); err != nil {
			return nil, fmt.Errorf("parse anomaly timestamp %q: %w", ts, err)
		}
		if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parse anomaly created_at %q: %w", createdAt, err)
		}
		records = append(records, a)
	}
	return records, rows.Err()
}

func scanRuns(rows *sql.Rows) ([]telemetry.DetectionRun, error) {
	defer rows.Close()

	var runs []telemetry.DetectionRun
	for rows.Next() {
		var (
			run        telemetry.DetectionRun
			startedAt  string
			finishedAt sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Trigger, &startedAt, &finishedAt, &run.Status,
			&run.PairsTotal, &run.PairsFailed, &run.RecordsCreated); err != nil {
			return nil, fmt.Errorf("scan detection run: %w", err)
		}
		var err error
		if run.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
			return nil, fmt.Errorf("parse run started_at %q: %w", startedAt, err)
		}
		if finishedAt.Valid {
			t, err := time.Parse(time.RFC3339, finishedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse run finished_at %q: %w", finishedAt.String, err)
			}
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
