package backup_test

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nikhilij/rocket-telemetry-ai/internal/backup"
	_ "modernc.org/sqlite"
)

// createTestDB creates a SQLite database with a few observations and returns
// the path.
func createTestDB(t *testing.T, dir string) string {
	t.Helper()

	dbPath := filepath.Join(dir, "telemetry.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE telemetry_events (id TEXT PRIMARY KEY, metric TEXT, value REAL);
		INSERT INTO telemetry_events (id, metric, value) VALUES
			('obs-1', 'engine_temp', 612.4),
			('obs-2', 'fuel_pressure', 318.9);
	`)
	if err != nil {
		t.Fatal(err)
	}

	return dbPath
}

// createTestConfig writes a small config file and returns the path.
func createTestConfig(t *testing.T, dir string) string {
	t.Helper()

	cfgPath := filepath.Join(dir, "telemetryd.yaml")
	if err := os.WriteFile(cfgPath, []byte("server:\n  listen: \":8080\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	return cfgPath
}

// verifyDBContents checks that the restored database has the expected rows.
func verifyDBContents(t *testing.T, dbPath string) {
	t.Helper()

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM telemetry_events").Scan(&count); err != nil {
		t.Fatalf("querying restored DB: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows, got %d", count)
	}

	var metric string
	if err := db.QueryRow("SELECT metric FROM telemetry_events WHERE id = 'obs-1'").Scan(&metric); err != nil {
		t.Fatalf("querying row: %v", err)
	}
	if metric != "engine_temp" {
		t.Fatalf("expected metric 'engine_temp', got %q", metric)
	}
}

func TestBackupRestore(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(t *testing.T) (dbPath, configPath, archivePath, restoreDir string)
		backupErr  string
		restoreErr string
		force      bool
		verify     func(t *testing.T, restoreDir string)
	}{
		{
			name: "round trip with config",
			setup: func(t *testing.T) (string, string, string, string) {
				srcDir := t.TempDir()
				archiveDir := t.TempDir()
				restoreDir := t.TempDir()
				dbPath := createTestDB(t, srcDir)
				cfgPath := createTestConfig(t, srcDir)
				return dbPath, cfgPath, filepath.Join(archiveDir, "backup.tar.gz"), restoreDir
			},
			verify: func(t *testing.T, restoreDir string) {
				verifyDBContents(t, filepath.Join(restoreDir, "telemetry.db"))
				// Config should also be restored.
				data, err := os.ReadFile(filepath.Join(restoreDir, "telemetryd.yaml"))
				if err != nil {
					t.Fatalf("config not restored: %v", err)
				}
				if len(data) == 0 {
					t.Fatal("restored config is empty")
				}
			},
		},
		{
			name: "round trip without config",
			setup: func(t *testing.T) (string, string, string, string) {
				srcDir := t.TempDir()
				archiveDir := t.TempDir()
				restoreDir := t.TempDir()
				dbPath := createTestDB(t, srcDir)
				return dbPath, "", filepath.Join(archiveDir, "backup.tar.gz"), restoreDir
			},
			verify: func(t *testing.T, restoreDir string) {
				verifyDBContents(t, filepath.Join(restoreDir, "telemetry.db"))
			},
		},
		{
			name: "round trip with wal sidecar",
			setup: func(t *testing.T) (string, string, string, string) {
				srcDir := t.TempDir()
				archiveDir := t.TempDir()
				restoreDir := t.TempDir()
				dbPath := createTestDB(t, srcDir)
				// Simulate a WAL left behind by an unclean shutdown.
				if err := os.WriteFile(dbPath+"-wal", []byte("wal-frames"), 0o644); err != nil {
					t.Fatal(err)
				}
				return dbPath, "", filepath.Join(archiveDir, "backup.tar.gz"), restoreDir
			},
			verify: func(t *testing.T, restoreDir string) {
				if _, err := os.Stat(filepath.Join(restoreDir, "telemetry.db-wal")); err != nil {
					t.Fatalf("wal sidecar not restored: %v", err)
				}
			},
		},
		{
			name: "missing database",
			setup: func(t *testing.T) (string, string, string, string) {
				archiveDir := t.TempDir()
				restoreDir := t.TempDir()
				return filepath.Join(t.TempDir(), "nonexistent.db"), "", filepath.Join(archiveDir, "backup.tar.gz"), restoreDir
			},
			backupErr: "database file not found",
		},
		{
			name: "missing config",
			setup: func(t *testing.T) (string, string, string, string) {
				srcDir := t.TempDir()
				archiveDir := t.TempDir()
				restoreDir := t.TempDir()
				dbPath := createTestDB(t, srcDir)
				return dbPath, filepath.Join(srcDir, "missing.yaml"), filepath.Join(archiveDir, "backup.tar.gz"), restoreDir
			},
			backupErr: "config file not found",
		},
		{
			name: "no force existing DB",
			setup: func(t *testing.T) (string, string, string, string) {
				srcDir := t.TempDir()
				archiveDir := t.TempDir()
				restoreDir := t.TempDir()
				dbPath := createTestDB(t, srcDir)
				// Pre-create a file in the restore dir to trigger conflict.
				createTestDB(t, restoreDir)
				return dbPath, "", filepath.Join(archiveDir, "backup.tar.gz"), restoreDir
			},
			restoreErr: "file already exists",
		},
		{
			name:  "force existing DB",
			force: true,
			setup: func(t *testing.T) (string, string, string, string) {
				srcDir := t.TempDir()
				archiveDir := t.TempDir()
				restoreDir := t.TempDir()
				dbPath := createTestDB(t, srcDir)
				// Pre-create a file in the restore dir.
				createTestDB(t, restoreDir)
				return dbPath, "", filepath.Join(archiveDir, "backup.tar.gz"), restoreDir
			},
			verify: func(t *testing.T, restoreDir string) {
				verifyDBContents(t, filepath.Join(restoreDir, "telemetry.db"))
			},
		},
	}

	ctx := context.Background()

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dbPath, cfgPath, archivePath, restoreDir := tc.setup(t)

			err := backup.Backup(ctx, dbPath, cfgPath, archivePath)
			if tc.backupErr != "" {
				if err == nil {
					t.Fatalf("expected backup error containing %q, got nil", tc.backupErr)
				}
				if !strings.Contains(err.Error(), tc.backupErr) {
					t.Fatalf("expected backup error containing %q, got %q", tc.backupErr, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected backup error: %v", err)
			}

			err = backup.Restore(ctx, archivePath, restoreDir, tc.force)
			if tc.restoreErr != "" {
				if err == nil {
					t.Fatalf("expected restore error containing %q, got nil", tc.restoreErr)
				}
				if !strings.Contains(err.Error(), tc.restoreErr) {
					t.Fatalf("expected restore error containing %q, got %q", tc.restoreErr, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected restore error: %v", err)
			}

			if tc.verify != nil {
				tc.verify(t, restoreDir)
			}
		})
	}
}

func TestRestore_CorruptArchive(t *testing.T) {
	dir := t.TempDir()
	corruptPath := filepath.Join(dir, "corrupt.tar.gz")
	if err := os.WriteFile(corruptPath, []byte("not a valid gzip"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := backup.Restore(context.Background(), corruptPath, t.TempDir(), false)
	if err == nil {
		t.Fatal("expected error for corrupt archive, got nil")
	}
}

func TestRestore_PathTraversal(t *testing.T) {
	// Create an archive with a path traversal entry.
	archiveDir := t.TempDir()
	archivePath := filepath.Join(archiveDir, "evil.tar.gz")

	f, err := os.Create(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)

	// Write a malicious entry that tries to escape.
	hdr := &tar.Header{
		Name: "../../../etc/evil.db",
		Size: 4,
		Mode: 0o644,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte("evil")); err != nil {
		t.Fatal(err)
	}

	tw.Close()
	gw.Close()
	f.Close()

	err = backup.Restore(context.Background(), archivePath, t.TempDir(), false)
	if err == nil {
		t.Fatal("expected path traversal error, got nil")
	}
	if !strings.Contains(err.Error(), "path traversal") {
		t.Fatalf("expected path traversal error, got %q", err.Error())
	}
}

func TestRestore_NoDBInArchive(t *testing.T) {
	// Create an archive with only a non-.db file.
	archiveDir := t.TempDir()
	archivePath := filepath.Join(archiveDir, "nodb.tar.gz")

	f, err := os.Create(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)

	hdr := &tar.Header{
		Name: "telemetryd.yaml",
		Size: 5,
		Mode: 0o644,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}

	tw.Close()
	gw.Close()
	f.Close()

	err = backup.Restore(context.Background(), archivePath, t.TempDir(), false)
	if err == nil {
		t.Fatal("expected error for archive without .db file, got nil")
	}
	if !strings.Contains(err.Error(), "does not contain a .db file") {
		t.Fatalf("expected .db file error, got %q", err.Error())
	}
}
