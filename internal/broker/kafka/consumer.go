package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/SpotBox/internal/broker/messages"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r messageReader
	// commit is false for group-less readers; kafka-go refuses commits there.
	commit bool
}

// NewConsumer joins groupID when set and commits processed offsets. Without
// a group the reader follows the topic from its newest offset and commits
// nothing, which is what `tail` wants.
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
		cfg.StartOffset = kafka.LastOffset
	}
	return &Consumer{
		r:      kafka.NewReader(cfg),
		commit: groupID != "",
	}
}

func newConsumerWithReader(r messageReader, commit bool) *Consumer {
	return &Consumer{r: r, commit: commit}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume hands every message to handler until ctx is done or handler fails.
// A failed message is not committed, so a group consumer sees it again.
func (c *Consumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "fetch message")
		}
		if err := handler(msg.Key, msg.Value); err != nil {
			return err
		}
		if !c.commit {
			continue
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}

// ConsumeCollected decodes positions.collected events. An undecodable
// payload stops consumption.
func (c *Consumer) ConsumeCollected(ctx context.Context, handler func(messages.PositionsCollected) error) error {
	return c.Consume(ctx, func(key, value []byte) error {
		var ev messages.PositionsCollected
		if err := json.Unmarshal(value, &ev); err != nil {
			return errors.Wrapf(err, "decode positions.collected %s", key)
		}
		return handler(ev)
	})
}
