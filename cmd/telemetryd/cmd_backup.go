package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/nikhilij/rocket-telemetry-ai/internal/backup"
)

// runBackup archives the telemetry database (and optionally a config file)
// into a compressed tarball. Run while the server is stopped.
func runBackup(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	dbPath := fs.String("db", "./data/telemetry.db", "path to the SQLite database file")
	cfgPath := fs.String("config", "", "configuration file to include in the archive")
	out := fs.String("out", "", "output archive path (default telemetryd-backup-<timestamp>.tar.gz)")
	_ = fs.Parse(args)

	archivePath := *out
	if archivePath == "" {
		archivePath = fmt.Sprintf("telemetryd-backup-%s.tar.gz", time.Now().UTC().Format("20060102-150405"))
	}

	if err := backup.Backup(context.Background(), *dbPath, *cfgPath, archivePath); err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("backup written to %s\n", archivePath)
}

// runRestore extracts a backup archive into a target directory.
func runRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	archive := fs.String("archive", "", "backup archive to restore (required)")
	target := fs.String("target", ".", "directory to restore into")
	force := fs.Bool("force", false, "overwrite existing files in the target directory")
	_ = fs.Parse(args)

	if *archive == "" {
		fmt.Fprintln(os.Stderr, "restore: -archive is required")
		fs.Usage()
		os.Exit(2)
	}

	if err := backup.Restore(context.Background(), *archive, *target, *force); err != nil {
		fmt.Fprintf(os.Stderr, "restore failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("backup restored to %s\n", *target)
}
