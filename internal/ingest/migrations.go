package ingest

import (
	"database/sql"

	"github.com/nikhilij/rocket-telemetry-ai/pkg/plugin"
)

// migrations returns the ingest module's database migrations.
func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create telemetry tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS telemetry_events (
						id         TEXT PRIMARY KEY,
						asset_id   TEXT NOT NULL,
						metric     TEXT NOT NULL,
						timestamp  TEXT NOT NULL,
						value      REAL NOT NULL,
						unit       TEXT,
						tags       TEXT
					)`,
					`CREATE INDEX IF NOT EXISTS idx_telemetry_events_pair_time ON telemetry_events(asset_id, metric, timestamp)`,
					`CREATE INDEX IF NOT EXISTS idx_telemetry_events_time ON telemetry_events(timestamp)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
