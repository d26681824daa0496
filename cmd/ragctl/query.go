package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docqa/internal/core/domain"
)

var queryJSON bool

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question about the ingested documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return domain.WrapError(domain.ErrValidation, "query", fmt.Errorf("question is empty"))
	}

	answer, err := queryService.Query(cmd.Context(), question)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		data, err := json.MarshalIndent(answer, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal answer: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(answer.Text)
	if len(answer.ContextSegments) == 0 {
		return nil
	}
	cmd.Println()
	cmd.Println("Sources:")
	for i, seg := range answer.ContextSegments {
		cmd.Printf("  [%d] %s #%d (chars %d-%d)\n", i+1, seg.SourceID, seg.SequenceIndex, seg.Span.Start, seg.Span.End)
	}
	return nil
}
