package messaging

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessBrokerDelivers(t *testing.T) {
	b := NewInProcessBroker(zerolog.Nop())
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, ChannelAssignmentEvents)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, ChannelAssignmentEvents, map[string]string{"type": "created"}))
	assert.JSONEq(t, `{"type":"created"}`, string(<-ch))
}

func TestInProcessBrokerLogsDroppedMessages(t *testing.T) {
	var buf bytes.Buffer
	b := NewInProcessBroker(zerolog.New(&buf))
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, ChannelAssignmentEvents)
	require.NoError(t, err)

	for i := 0; i < cap(ch)+1; i++ {
		require.NoError(t, b.Publish(ctx, ChannelAssignmentEvents, i))
	}
	assert.Len(t, ch, cap(ch))
	assert.Contains(t, buf.String(), "subscriber buffer full, message dropped")
	assert.Contains(t, buf.String(), ChannelAssignmentEvents)
}

func TestInProcessBrokerLogsUnsubscribedChannel(t *testing.T) {
	var buf bytes.Buffer
	b := NewInProcessBroker(zerolog.New(&buf))
	defer b.Close()

	require.NoError(t, b.Publish(context.Background(), ChannelSMSOutbound, "123456"))
	assert.Contains(t, buf.String(), "no subscribers, message discarded")
	assert.Contains(t, buf.String(), ChannelSMSOutbound)
}

func TestInProcessBrokerClosed(t *testing.T) {
	b := NewInProcessBroker(zerolog.Nop())
	require.NoError(t, b.Close())

	assert.Error(t, b.Publish(context.Background(), ChannelAssignmentEvents, "x"))
	_, err := b.Subscribe(context.Background(), ChannelAssignmentEvents)
	assert.Error(t, err)
}
