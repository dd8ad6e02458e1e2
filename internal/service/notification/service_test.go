package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/opinion-api/internal/model"
	"github.com/jwalitptl/opinion-api/pkg/logger"
	"github.com/jwalitptl/opinion-api/pkg/messaging"
)

type mockEmail struct {
	mock.Mock
}

func (m *mockEmail) SendCode(ctx context.Context, to string, code string) error {
	return m.Called(ctx, to, code).Error(0)
}

func (m *mockEmail) SendCustom(ctx context.Context, to, subject, content string) error {
	return m.Called(ctx, to, subject, content).Error(0)
}

func TestDispatcherEmail(t *testing.T) {
	em := new(mockEmail)
	em.On("SendCode", mock.Anything, "dr@example.com", "424242").Return(nil).Once()
	d := NewDispatcher(em, messaging.NewInProcessBroker(zerolog.Nop()), logger.Nop())

	require.NoError(t, d.Send(context.Background(), model.TwoFactorEmail, "dr@example.com", "424242"))
	em.AssertExpectations(t)

	em.On("SendCode", mock.Anything, "dr@example.com", "000000").Return(errors.New("smtp down")).Once()
	assert.Error(t, d.Send(context.Background(), model.TwoFactorEmail, "dr@example.com", "000000"))
}

func TestDispatcherSMS(t *testing.T) {
	broker := messaging.NewInProcessBroker(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := broker.Subscribe(ctx, messaging.ChannelSMSOutbound)
	require.NoError(t, err)

	d := NewDispatcher(new(mockEmail), broker, logger.Nop())
	require.NoError(t, d.Send(ctx, model.TwoFactorSMS, "+15550100", "135790"))

	select {
	case raw := <-msgs:
		var msg SMSMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "+15550100", msg.To)
		assert.Contains(t, msg.Body, "135790")
	case <-time.After(time.Second):
		t.Fatal("no sms published")
	}
}

func TestDispatcherUnknownMethod(t *testing.T) {
	d := NewDispatcher(new(mockEmail), messaging.NewInProcessBroker(zerolog.Nop()), logger.Nop())
	assert.Error(t, d.Send(context.Background(), model.TwoFactorMethod("pigeon"), "x", "1"))
}
