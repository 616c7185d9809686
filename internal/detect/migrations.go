package detect

import (
	"database/sql"

	"github.com/nikhilij/rocket-telemetry-ai/pkg/plugin"
)

// migrations returns the detect module's database migrations.
func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create anomaly tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS anomaly_records (
						id                    TEXT PRIMARY KEY,
						source_observation_id TEXT NOT NULL UNIQUE,
						asset_id              TEXT NOT NULL,
						metric                TEXT NOT NULL,
						timestamp             TEXT NOT NULL,
						score                 REAL NOT NULL,
						explanation           TEXT NOT NULL,
						mean                  REAL NOT NULL,
						std_dev               REAL NOT NULL,
						window_size           INTEGER NOT NULL,
						created_at            TEXT NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_anomaly_records_asset_time ON anomaly_records(asset_id, timestamp)`,
					`CREATE INDEX IF NOT EXISTS idx_anomaly_records_time ON anomaly_records(timestamp)`,
					`CREATE TABLE IF NOT EXISTS detection_runs (
						id              TEXT PRIMARY KEY,
						trigger_type    TEXT NOT NULL,
						started_at      TEXT NOT NULL,
						finished_at     TEXT,
						status          TEXT NOT NULL,
						pairs_total     INTEGER NOT NULL DEFAULT 0,
						pairs_failed    INTEGER NOT NULL DEFAULT 0,
						records_created INTEGER NOT NULL DEFAULT 0
					)`,
					`CREATE INDEX IF NOT EXISTS idx_detection_runs_started ON detection_runs(started_at)`,
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
