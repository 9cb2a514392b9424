package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BearBump/SpotBox/internal/models"
	"github.com/BearBump/SpotBox/internal/services/collector"
	"github.com/BearBump/SpotBox/internal/storage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pkg/errors"
)

const maxSinceResults = 1000

func (s *Server) registerTools() {
	noArgs := map[string]any{"type": "object", "properties": map[string]any{}}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_status",
		Description: "Collector state, counters and the result of the last collection cycle.",
		InputSchema: noArgs,
	}, s.handleGetStatus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_database_stats",
		Description: "Total positions, asset count, time span and per-asset breakdown of the position store.",
		InputSchema: noArgs,
	}, s.handleGetDatabaseStats)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_latest_position",
		Description: "Most recent stored position of a tracker, or of any tracker when asset_id is omitted.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"asset_id": map[string]any{
					"type":        "string",
					"description": "Tracker (messenger) name, e.g. 'drifter-1'",
				},
			},
		},
	}, s.handleGetLatestPosition)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_positions_since",
		Description: "Stored positions at or after a point in time, oldest first.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"since": map[string]any{
					"type":        "string",
					"description": "Relative age (24h, 7d, 2w) or absolute time (2024-01-15, RFC 3339)",
				},
				"asset_id": map[string]any{
					"type":        "string",
					"description": "Optional tracker name filter",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": fmt.Sprintf("Return at most this many of the newest matches (default and max %d)", maxSinceResults),
				},
			},
			"required": []string{"since"},
		},
	}, s.handleGetPositionsSince)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "run_once",
		Description: "Run one fetch-and-store collection cycle now and return its result.",
		InputSchema: noArgs,
	}, s.handleRunOnce)
}

type NoInput struct{}

func textResult(v any) *mcp.CallToolResult {
	b, _ := json.MarshalIndent(v, "", "  ") //nolint:errchkjson // plain data
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}
}

func (s *Server) handleGetStatus(_ context.Context, _ *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, collector.Status, error) {
	st := s.collector.Status()
	return textResult(st), st, nil
}

func (s *Server) handleGetDatabaseStats(ctx context.Context, _ *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, models.DatabaseStats, error) {
	st, err := s.positions.Stats(ctx)
	if err != nil {
		return nil, models.DatabaseStats{}, errors.Wrap(err, "database stats")
	}
	return textResult(st), st, nil
}

type LatestInput struct {
	AssetID string `json:"asset_id,omitempty"`
}

type LatestOutput struct {
	Found    bool             `json:"found"`
	Position *models.Position `json:"position,omitempty"`
}

func (s *Server) handleGetLatestPosition(ctx context.Context, _ *mcp.CallToolRequest, in LatestInput) (*mcp.CallToolResult, LatestOutput, error) {
	p, err := s.positions.Latest(ctx, in.AssetID)
	if errors.Is(err, storage.ErrNotFound) {
		out := LatestOutput{Found: false}
		return textResult(out), out, nil
	}
	if err != nil {
		return nil, LatestOutput{}, errors.Wrap(err, "latest position")
	}
	out := LatestOutput{Found: true, Position: p}
	return textResult(out), out, nil
}

type SinceInput struct {
	Since   string `json:"since"`
	AssetID string `json:"asset_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type SinceOutput struct {
	Since     time.Time         `json:"since"`
	Count     int               `json:"count"`
	Truncated bool              `json:"truncated"`
	Positions []models.Position `json:"positions"`
}

func (s *Server) handleGetPositionsSince(ctx context.Context, _ *mcp.CallToolRequest, in SinceInput) (*mcp.CallToolResult, SinceOutput, error) {
	since, err := models.ParseSince(in.Since, s.now())
	if err != nil {
		return nil, SinceOutput{}, err
	}
	limit := in.Limit
	if limit <= 0 || limit > maxSinceResults {
		limit = maxSinceResults
	}

	ps, err := s.positions.Since(ctx, since, in.AssetID)
	if err != nil {
		return nil, SinceOutput{}, errors.Wrap(err, "positions since")
	}
	out := SinceOutput{Since: since, Positions: ps}
	if len(ps) > limit {
		out.Positions = ps[len(ps)-limit:]
		out.Truncated = true
	}
	out.Count = len(out.Positions)
	return textResult(out), out, nil
}

func (s *Server) handleRunOnce(ctx context.Context, _ *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, collector.CycleResult, error) {
	res := s.collector.RunOnce(ctx)
	return textResult(res), res, nil
}
