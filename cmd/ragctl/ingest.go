package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Ingest files into the index",
	Long: `Extracts, chunks, embeds and stores each file.
Files whose name was already ingested are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	var failed int
	for _, path := range args {
		if err := ingestFile(cmd.Context(), ingestService, path, cmd); err != nil {
			cmd.PrintErrf("failed %s: %v\n", path, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

type printer interface {
	Printf(format string, args ...any)
}

// ingestFile reports skips for already ingested sources and returns every
// other failure.
func ingestFile(ctx context.Context, ingestor ports.DocumentIngestor, path string, out printer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	result, err := ingestor.Ingest(ctx, filepath.Base(path), "", f)
	if domain.IsKind(err, domain.ErrAlreadyIngested) {
		out.Printf("skipped %s: already ingested\n", path)
		return nil
	}
	if err != nil {
		return err
	}
	out.Printf("ingested %s: %d segments\n", result.SourceID, result.SegmentCount)
	return nil
}
