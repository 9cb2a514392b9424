package mcpserver

import (
	"context"
	"time"

	"github.com/BearBump/SpotBox/internal/models"
	"github.com/BearBump/SpotBox/internal/services/collector"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pkg/errors"
)

type Collector interface {
	Status() collector.Status
	RunOnce(ctx context.Context) collector.CycleResult
}

type Positions interface {
	Latest(ctx context.Context, assetID string) (*models.Position, error)
	Since(ctx context.Context, since time.Time, assetID string) ([]models.Position, error)
	Stats(ctx context.Context) (models.DatabaseStats, error)
}

// Server exposes the collector and the position store as MCP tools.
type Server struct {
	mcp       *mcp.Server
	collector Collector
	positions Positions
	now       func() time.Time
}

func New(col Collector, pos Positions, version string) (*Server, error) {
	if col == nil || pos == nil {
		return nil, errors.New("collector and positions are required")
	}
	if version == "" {
		version = "dev"
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    "spotbox",
			Version: version,
		}, nil),
		collector: col,
		positions: pos,
		now:       func() time.Time { return time.Now().UTC() },
	}
	s.registerTools()
	return s, nil
}

// Serve speaks MCP over stdin/stdout until ctx is done or the client
// disconnects.
func (s *Server) Serve(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}
