// Package mcpadapter exposes retrieval and text ingestion as MCP tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/docqa/internal/core/ports"
)

const (
	ToolQueryDocuments = "query_documents"
	ToolIngestText     = "ingest_text"

	maxQueryChars = 500
)

type Handlers struct {
	ingestor ports.TextIngestor
	queries  ports.DocumentQueryService
}

func NewHandlers(ingestor ports.TextIngestor, queries ports.DocumentQueryService) *Handlers {
	return &Handlers{ingestor: ingestor, queries: queries}
}

// NewServer registers both tools on a fresh MCP server.
func NewServer(h *Handlers, version string) *server.MCPServer {
	s := server.NewMCPServer("docqa", version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool(ToolQueryDocuments,
		mcp.WithDescription("Answer a question using only the ingested documents. Returns the answer and the source segments it was grounded on."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language question, at most 500 characters")),
	), h.QueryDocuments)

	s.AddTool(mcp.NewTool(ToolIngestText,
		mcp.WithDescription("Ingest a plain-text document so later queries can use it."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Source name; its base name identifies the document")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Full document text")),
	), h.IngestText)

	return s
}

type toolSource struct {
	SourceID      string `json:"source_id"`
	SequenceIndex int    `json:"sequence_index"`
	Start         int    `json:"start"`
	End           int    `json:"end"`
}

func (h *Handlers) QueryDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	if utf8.RuneCountInString(query) > maxQueryChars {
		return mcp.NewToolResultError(fmt.Sprintf("query exceeds %d characters", maxQueryChars)), nil
	}

	answer, err := h.queries.Query(ctx, query)
	if err != nil {
		slog.Warn("mcp_tool_failed", "tool", ToolQueryDocuments, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	sources := make([]toolSource, 0, len(answer.ContextSegments))
	for _, seg := range answer.ContextSegments {
		sources = append(sources, toolSource{
			SourceID:      seg.SourceID,
			SequenceIndex: seg.SequenceIndex,
			Start:         seg.Span.Start,
			End:           seg.Span.End,
		})
	}
	payload, err := json.Marshal(map[string]any{"answer": answer.Text, "sources": sources})
	if err != nil {
		return nil, fmt.Errorf("marshal answer: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (h *Handlers) IngestText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filename, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := h.ingestor.IngestText(ctx, filename, text)
	if err != nil {
		slog.Warn("mcp_tool_failed", "tool", ToolIngestText, "filename", filename, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("ingested %s: %d segments (document %s)",
		result.SourceID, result.SegmentCount, result.DocumentID)), nil
}
