package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Channels published by this service.
const (
	ChannelAssignmentEvents = "assignments.events"
	ChannelSMSOutbound      = "notifications.sms"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publisher
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Publisher defines the interface for publishing messages
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// InProcessBroker fans messages out to in-process subscribers. It backs the
// memory store driver and tests.
type InProcessBroker struct {
	mu     sync.RWMutex
	subs   map[string][]chan []byte
	closed bool
	logger zerolog.Logger
}

func NewInProcessBroker(logger zerolog.Logger) *InProcessBroker {
	return &InProcessBroker{subs: make(map[string][]chan []byte), logger: logger}
}

func (b *InProcessBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("broker closed")
	}
	subs := b.subs[channel]
	if len(subs) == 0 {
		b.logger.Warn().Str("channel", channel).Msg("no subscribers, message discarded")
		return nil
	}
	for _, ch := range subs {
		select {
		case ch <- payload:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// slow subscriber; drop rather than block the publisher
			b.logger.Warn().Str("channel", channel).Int("buffered", len(ch)).Msg("subscriber buffer full, message dropped")
		}
	}
	return nil
}

func (b *InProcessBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("broker closed")
	}
	ch := make(chan []byte, 100)
	b.subs[channel] = append(b.subs[channel], ch)

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[channel]
		for i, c := range subs {
			if c == ch {
				b.subs[channel] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}()

	return ch, nil
}

func (b *InProcessBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
