package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nikhilij/rocket-telemetry-ai/pkg/telemetry"
)

// Store provides database access for the ingest module. Timestamps are
// persisted as RFC3339 UTC strings so that range queries compare correctly.
type Store struct {
	db *sql.DB
}

// NewStore creates a new Store backed by the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListFilter controls filtering for observation listings.
type ListFilter struct {
	AssetID string
	Metric  string
	Since   *time.Time
	Until   *time.Time
	Limit   int
}

// InsertObservations stores a batch of observations in a single transaction.
func (s *Store) InsertObservations(ctx context.Context, obs []telemetry.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	for i := range obs {
		o := &obs[i]
		var tags any
		if o.Tags != nil {
			data, err := json.Marshal(o.Tags)
			if err != nil {
				return fmt.Errorf("marshal tags: %w", err)
			}
			tags = string(data)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO telemetry_events (id, asset_id, metric, timestamp, value, unit, tags)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			o.ID, o.AssetID, o.Metric,
			o.Timestamp.UTC().Format(time.RFC3339),
			o.Value, o.Unit, tags,
		)
		if err != nil {
			return fmt.Errorf("insert observation %s: %w", o.ID, err)
		}
	}

	return tx.Commit()
}

// Window returns observations for one (asset, metric) pair with timestamp in
// [from, to], both ends inclusive, ordered by timestamp ascending. A limit of
// 0 means uncapped; when a positive limit truncates the result, the second
// return reports the truncation.
func (s *Store) Window(ctx context.Context, assetID, metric string, from, to time.Time, limit int) ([]telemetry.Observation, bool, error) {
	query := `
		SELECT id, asset_id, metric, timestamp, value, unit, tags
		FROM telemetry_events
		WHERE asset_id = ? AND metric = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp, id`
	args := []any{assetID, metric,
		from.UTC().Format(time.RFC3339),
		to.UTC().Format(time.RFC3339),
	}
	if limit > 0 {
		// Fetch one extra row to detect truncation.
		query += " LIMIT ?"
		args = append(args, limit+1)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()

	obs, err := scanObservations(rows)
	if err != nil {
		return nil, false, err
	}

	truncated := false
	if limit > 0 && len(obs) > limit {
		obs = obs[:limit]
		truncated = true
	}
	return obs, truncated, nil
}

// ActivePairs returns the distinct (asset, metric) pairs with at least one
// observation whose timestamp lies in [from, to].
func (s *Store) ActivePairs(ctx context.Context, from, to time.Time) ([]telemetry.Pair, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT asset_id, metric
		FROM telemetry_events
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY asset_id, metric`,
		from.UTC().Format(time.RFC3339),
		to.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("query active pairs: %w", err)
	}
	defer rows.Close()

	var pairs []telemetry.Pair
	for rows.Next() {
		var p telemetry.Pair
		if err := rows.Scan(&p.AssetID, &p.Metric); err != nil {
			return nil, fmt.Errorf("scan pair row: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// ListObservations returns observations matching the filter, ordered by
// timestamp ascending.
func (s *Store) ListObservations(ctx context.Context, filter ListFilter) ([]telemetry.Observation, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}

	where := "1=1"
	var args []any
	if filter.AssetID != "" {
		where += " AND asset_id = ?"
		args = append(args, filter.AssetID)
	}
	if filter.Metric != "" {
		where += " AND metric = ?"
		args = append(args, filter.Metric)
	}
	if filter.Since != nil {
		where += " AND timestamp >= ?"
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}
	if filter.Until != nil {
		where += " AND timestamp <= ?"
		args = append(args, filter.Until.UTC().Format(time.RFC3339))
	}
	args = append(args, filter.Limit)

	//nolint:gosec // where uses parameterized placeholders only
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, asset_id, metric, timestamp, value, unit, tags
		FROM telemetry_events
		WHERE `+where+`
		ORDER BY timestamp, id LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// ListAssets returns a summary row per distinct asset, ordered by asset id.
func (s *Store) ListAssets(ctx context.Context) ([]telemetry.AssetSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset_id, COUNT(*), MAX(timestamp)
		FROM telemetry_events
		GROUP BY asset_id
		ORDER BY asset_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []telemetry.AssetSummary
	for rows.Next() {
		var a telemetry.AssetSummary
		var lastSeen string
		if err := rows.Scan(&a.AssetID, &a.EventCount, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan asset row: %w", err)
		}
		a.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// CountObservations returns the total number of stored observations.
func (s *Store) CountObservations(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM telemetry_events`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count observations: %w", err)
	}
	return count, nil
}

// TopAssetsByCount returns up to limit assets ordered by observation count
// descending.
func (s *Store) TopAssetsByCount(ctx context.Context, limit int) ([]telemetry.AssetCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset_id, COUNT(*) AS n
		FROM telemetry_events
		GROUP BY asset_id
		ORDER BY n DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top assets by count: %w", err)
	}
	defer rows.Close()

	var counts []telemetry.AssetCount
	for rows.Next() {
		var c telemetry.AssetCount
		if err := rows.Scan(&c.AssetID, &c.Count); err != nil {
			return nil, fmt.Errorf("scan asset count row: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// scanObservations drains rows produced by a SELECT over telemetry_events.
func scanObservations(rows *sql.Rows) ([]telemetry.Observation, error) {
	var obs []telemetry.Observation
	for rows.Next() {
		var o telemetry.Observation
		var ts string
		var unit, tags sql.NullString
		if err := rows.Scan(&o.ID, &o.AssetID, &o.Metric, &ts, &o.Value, &unit, &tags); err != nil {
			return nil, fmt.Errorf("scan observation row: %w", err)
		}
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("parse observation timestamp %q: %w", ts, err)
		}
		o.Timestamp = t
		o.Unit = unit.String
		if tags.Valid && tags.String != "" {
			if err := json.Unmarshal([]byte(tags.String), &o.Tags); err != nil {
				return nil, fmt.Errorf("unmarshal tags: %w", err)
			}
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}
