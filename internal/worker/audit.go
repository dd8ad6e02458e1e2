package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/jwalitptl/opinion-api/internal/model"
	"github.com/jwalitptl/opinion-api/pkg/messaging"
	"github.com/jwalitptl/opinion-api/pkg/metrics"
)

// AssignmentAuditor writes every assignment event it sees on the broker to
// the audit log.
type AssignmentAuditor struct {
	broker  messaging.Broker
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewAssignmentAuditor(broker messaging.Broker, m *metrics.Metrics, log *zap.Logger) *AssignmentAuditor {
	return &AssignmentAuditor{
		broker:  broker,
		metrics: m,
		log:     log.With(zap.String("component", "assignment_audit")),
	}
}

// Start subscribes and blocks until ctx is done or the subscription closes.
func (a *AssignmentAuditor) Start(ctx context.Context) error {
	events, err := a.broker.Subscribe(ctx, messaging.ChannelAssignmentEvents)
	if err != nil {
		return fmt.Errorf("failed to subscribe to assignment events: %w", err)
	}

	a.log.Info("auditor started")
	for {
		select {
		case <-ctx.Done():
			a.log.Info("auditor stopped")
			return nil
		case raw, ok := <-events:
			if !ok {
				a.log.Info("auditor stopped")
				return nil
			}
			a.Record(raw)
		}
	}
}

// Record logs one raw event. Malformed payloads are logged and dropped.
func (a *AssignmentAuditor) Record(raw []byte) {
	var evt model.AssignmentEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		a.log.Warn("dropping malformed assignment event", zap.Error(err), zap.ByteString("payload", raw))
		a.metrics.AuditedEvents.WithLabelValues("malformed").Inc()
		return
	}

	a.log.Info("assignment event",
		zap.String("type", evt.Type),
		zap.Stringer("assignment_id", evt.AssignmentID),
		zap.Stringer("case_id", evt.CaseID),
		zap.Stringer("professional_id", evt.ProfessionalID),
		zap.String("status", string(evt.Status)),
		zap.Time("occurred_at", evt.OccurredAt),
	)
	a.metrics.AuditedEvents.WithLabelValues(evt.Type).Inc()
}
