// Package backup creates and restores compressed archives of the telemetry
// database and its configuration. Archives are plain tar.gz with files stored
// under their base names, so they stay inspectable with standard tools.
//
// Backup and Restore operate on closed database files; run them while the
// server is stopped. A live WAL-mode database cannot be copied consistently
// file by file.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Backup writes the database file, its WAL sidecars if present, and an
// optional configuration file into a gzip-compressed tar archive at
// archivePath.
func Backup(_ context.Context, dbPath, configPath, archivePath string) error {
	if _, err := os.Stat(dbPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", dbPath)
		}
		return fmt.Errorf("checking database file: %w", err)
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("config file not found: %s", configPath)
			}
			return fmt.Errorf("checking config file: %w", err)
		}
	}

	if dir := filepath.Dir(archivePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating archive directory: %w", err)
		}
	}

	f, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)

	if err := addFile(tw, dbPath); err != nil {
		return fmt.Errorf("archiving database: %w", err)
	}

	// SQLite leaves -wal and -shm sidecars behind after an unclean shutdown.
	// Include them so a restore reproduces the exact on-disk state.
	for _, suffix := range []string{"-wal", "-shm"} {
		sidecar := dbPath + suffix
		if _, err := os.Stat(sidecar); err == nil {
			if err := addFile(tw, sidecar); err != nil {
				return fmt.Errorf("archiving %s: %w", filepath.Base(sidecar), err)
			}
		}
	}

	if configPath != "" {
		if err := addFile(tw, configPath); err != nil {
			return fmt.Errorf("archiving config: %w", err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("compressing archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing archive: %w", err)
	}

	return nil
}

// addFile stores a single file in the archive under its base name.
func addFile(tw *tar.Writer, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(tw, src)
	return err
}
