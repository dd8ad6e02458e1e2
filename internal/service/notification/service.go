package notification

import (
	"context"
	"fmt"

	"github.com/jwalitptl/opinion-api/internal/email"
	"github.com/jwalitptl/opinion-api/internal/model"
	"github.com/jwalitptl/opinion-api/pkg/logger"
	"github.com/jwalitptl/opinion-api/pkg/messaging"
)

// Sender delivers one-time codes over a professional's two-factor channel.
type Sender interface {
	Send(ctx context.Context, method model.TwoFactorMethod, destination, code string) error
}

// SMSMessage is what the SMS gateway consumes from the outbound channel.
type SMSMessage struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// Dispatcher sends email codes over SMTP and hands SMS codes to the gateway
// through the broker.
type Dispatcher struct {
	emailSvc  email.Service
	publisher messaging.Publisher
	log       *logger.Logger
}

func NewDispatcher(emailSvc email.Service, publisher messaging.Publisher, log *logger.Logger) *Dispatcher {
	return &Dispatcher{emailSvc: emailSvc, publisher: publisher, log: log}
}

func (d *Dispatcher) Send(ctx context.Context, method model.TwoFactorMethod, destination, code string) error {
	var err error
	switch method {
	case model.TwoFactorEmail:
		err = d.emailSvc.SendCode(ctx, destination, code)
	case model.TwoFactorSMS:
		err = d.publisher.Publish(ctx, messaging.ChannelSMSOutbound, SMSMessage{
			To:   destination,
			Body: fmt.Sprintf("Your sign-in code is %s", code),
		})
	default:
		return fmt.Errorf("unsupported two-factor method %q", method)
	}

	if err != nil {
		d.log.Error(err, "failed to deliver two-factor code", "method", string(method))
		return fmt.Errorf("failed to deliver code: %w", err)
	}
	return nil
}
