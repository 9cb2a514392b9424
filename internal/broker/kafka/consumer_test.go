package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/BearBump/SpotBox/internal/broker/messages"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

var errDrained = errors.New("drained")

// scriptedReader replays msgs, then fails every fetch with errDrained or
// with ctx.Err() once the context is cancelled.
type scriptedReader struct {
	msgs      []kafka.Message
	next      int
	committed []kafka.Message
	commitErr error
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}
	if r.next < len(r.msgs) {
		m := r.msgs[r.next]
		r.next++
		return m, nil
	}
	return kafka.Message{}, errDrained
}

func (r *scriptedReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	if r.commitErr != nil {
		return r.commitErr
	}
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *scriptedReader) Close() error { return nil }

func collected(id, body string) kafka.Message {
	return kafka.Message{Topic: messages.TopicPositionsCollected, Key: []byte(id), Value: []byte(body)}
}

func TestConsume_GroupCommitsAfterHandler(t *testing.T) {
	sr := &scriptedReader{msgs: []kafka.Message{collected("c1", "{}"), collected("c2", "{}")}}
	c := newConsumerWithReader(sr, true)

	var keys []string
	err := c.Consume(context.Background(), func(k, _ []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	require.ErrorIs(t, err, errDrained)
	require.ErrorContains(t, err, "fetch message")
	require.Equal(t, []string{"c1", "c2"}, keys)
	require.Len(t, sr.committed, 2)
}

func TestConsume_WithoutGroupNeverCommits(t *testing.T) {
	sr := &scriptedReader{
		msgs:      []kafka.Message{collected("c1", "{}")},
		commitErr: errors.New("unavailable when GroupID is not set"),
	}
	c := newConsumerWithReader(sr, false)

	n := 0
	err := c.Consume(context.Background(), func(_, _ []byte) error { n++; return nil })
	require.ErrorIs(t, err, errDrained)
	require.Equal(t, 1, n)
	require.Empty(t, sr.committed)
}

func TestConsume_HandlerErrorLeavesMessageUncommitted(t *testing.T) {
	sr := &scriptedReader{msgs: []kafka.Message{collected("c1", "{}")}}
	c := newConsumerWithReader(sr, true)

	want := errors.New("handler failed")
	err := c.Consume(context.Background(), func(_, _ []byte) error { return want })
	require.ErrorIs(t, err, want)
	require.Empty(t, sr.committed)
}

func TestConsume_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newConsumerWithReader(&scriptedReader{}, true).Consume(ctx, func(_, _ []byte) error { return nil })
	require.Equal(t, context.Canceled, err)
}

func TestConsumeCollected(t *testing.T) {
	sr := &scriptedReader{msgs: []kafka.Message{
		collected("c1", `{"cycle_id":"c1","fetched":5,"inserted":3,"duplicates":2,"assets":["drifter-1"],
			"latest":[{"asset_id":"drifter-1","timestamp":"2024-01-15T10:30:00Z","latitude":-41.29,"longitude":174.78}]}`),
		collected("c2", `not json`),
	}}
	c := newConsumerWithReader(sr, true)

	var got []messages.PositionsCollected
	err := c.ConsumeCollected(context.Background(), func(ev messages.PositionsCollected) error {
		got = append(got, ev)
		return nil
	})
	require.ErrorContains(t, err, "decode positions.collected c2")
	require.Len(t, got, 1)
	require.Equal(t, 3, got[0].Inserted)
	require.Len(t, got[0].Latest, 1)
	require.InDelta(t, 174.78, got[0].Latest[0].Longitude, 1e-9)
	require.Len(t, sr.committed, 1)
}

func TestNewConsumer_Modes(t *testing.T) {
	grouped := NewConsumer([]string{"localhost:0"}, messages.TopicPositionsCollected, "spotbox-tail")
	require.True(t, grouped.commit)
	require.NoError(t, grouped.Close())

	follower := NewConsumer([]string{"localhost:0"}, messages.TopicPositionsCollected, "")
	require.False(t, follower.commit)
	require.NoError(t, follower.Close())
}
