package feed

import (
	"context"
	"time"

	"github.com/BearBump/SpotBox/internal/models"
)

// MessagesQuery selects a slice of the feed's message history. Start is the
// 1-based upstream offset. Count > 0 makes the client page until Count
// records are collected; Count <= 0 fetches a single page. An empty Password
// falls back to the client's configured one.
type MessagesQuery struct {
	Start    int
	Count    int
	Password string
}

// MaxDateRange is the widest window a date range query may span.
const MaxDateRange = 7 * 24 * time.Hour

type DateRangeQuery struct {
	From     time.Time
	To       time.Time
	Password string
}

type Client interface {
	// GetLatestPosition returns nil, nil when the feed has no messages. An
	// empty password falls back to the client's configured one.
	GetLatestPosition(ctx context.Context, password string) (*models.Position, error)
	GetMessages(ctx context.Context, q MessagesQuery) ([]models.Position, error)
	GetMessagesByDateRange(ctx context.Context, q DateRangeQuery) ([]models.Position, error)
	TestConnection(ctx context.Context) bool
}
