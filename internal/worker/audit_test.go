package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jwalitptl/opinion-api/internal/model"
	"github.com/jwalitptl/opinion-api/pkg/messaging"
	"github.com/jwalitptl/opinion-api/pkg/metrics"
)

func TestAssignmentAuditorRecord(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m := metrics.NewNop()
	a := NewAssignmentAuditor(messaging.NewInProcessBroker(zerolog.Nop()), m, zap.New(core))

	a.Record([]byte(`{"type":"assignment.accepted","status":"IN_PROGRESS"}`))
	a.Record([]byte(`not json`))

	entries := logs.FilterMessage("assignment event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "assignment.accepted", entries[0].ContextMap()["type"])
	assert.Equal(t, 1, logs.FilterMessage("dropping malformed assignment event").Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditedEvents.WithLabelValues("assignment.accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditedEvents.WithLabelValues("malformed")))
}

func TestAssignmentAuditorSubscribes(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	broker := messaging.NewInProcessBroker(zerolog.Nop())
	a := NewAssignmentAuditor(broker, metrics.NewNop(), zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Start(ctx) }()

	require.Eventually(t, func() bool {
		return logs.FilterMessage("auditor started").Len() == 1
	}, time.Second, 5*time.Millisecond)

	evt := model.AssignmentEvent{
		Type:         model.EventAssignmentCreated,
		AssignmentID: uuid.New(),
		Status:       model.AssignmentStatusAssigned,
	}
	require.NoError(t, broker.Publish(ctx, messaging.ChannelAssignmentEvents, evt))

	require.Eventually(t, func() bool {
		return logs.FilterMessage("assignment event").Len() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("auditor did not stop")
	}
}
