package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alejandrodnm/autobet/internal/adapters/notify"
	"github.com/alejandrodnm/autobet/internal/adapters/storage"
)

const reportRuns = 10

// runReport imprime el historial del audit log y/o lo exporta a CSV.
func runReport(ctx context.Context, store *storage.AuditStore, console *notify.Console, show bool, since time.Duration, csvPath string) error {
	if show {
		now := time.Now().UTC()
		entries, err := store.History(ctx, now.Add(-since), now)
		if err != nil {
			return fmt.Errorf("report: history: %w", err)
		}
		runs, err := store.Runs(ctx, reportRuns)
		if err != nil {
			return fmt.Errorf("report: runs: %w", err)
		}
		console.PrintRuns(runs)
		console.PrintHistory(entries)
	}

	if csvPath != "" {
		if err := exportAudit(ctx, store, csvPath); err != nil {
			return err
		}
		slog.Info("audit log exported", "path", csvPath)
	}
	return nil
}

func exportAudit(ctx context.Context, store *storage.AuditStore, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %q: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("report: close %q: %w", path, cerr)
		}
	}()

	if err := store.ExportCSV(ctx, f); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}
