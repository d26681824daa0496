package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/kirillkom/docqa/internal/core/ports"
)

var watchSettle time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Ingest files as they appear in a directory",
	Long: `Ingests the files already present in dir, then every new file written to it.
A file is ingested once it has not changed for the settle interval.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchDir(cmd.Context(), args[0], ingestService, watchSettle, cmd)
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchSettle, "settle", time.Second, "quiet period before a changed file is ingested")
	rootCmd.AddCommand(watchCmd)
}

func watchDir(ctx context.Context, dir string, ingestor ports.DocumentIngestor, settle time.Duration, out printer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if settle <= 0 {
		settle = time.Second
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && !hidden(entry.Name()) {
			ingestQuietly(ctx, ingestor, filepath.Join(dir, entry.Name()), out)
		}
	}

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if hidden(filepath.Base(event.Name)) {
				continue
			}
			pending[event.Name] = time.Now()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch_error", "dir", dir, "error", err)
		case now := <-ticker.C:
			for path, changed := range pending {
				if now.Sub(changed) < settle {
					continue
				}
				delete(pending, path)
				info, err := os.Stat(path)
				if err != nil || !info.Mode().IsRegular() {
					continue
				}
				ingestQuietly(ctx, ingestor, path, out)
			}
		}
	}
}

func ingestQuietly(ctx context.Context, ingestor ports.DocumentIngestor, path string, out printer) {
	if err := ingestFile(ctx, ingestor, path, out); err != nil {
		slog.Error("watch_ingest_failed", "path", path, "error", err)
		out.Printf("failed %s: %v\n", path, err)
	}
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~")
}
