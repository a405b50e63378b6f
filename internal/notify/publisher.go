package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/agoratix/ticketpay/internal/idgen"
)

// Broadcaster pushes events to connected live consumers, typically the
// WebSocket hub.
type Broadcaster interface {
	Broadcast(event *Event)
}

// Publisher fans settlement lifecycle events out to webhooks and, when
// wired, the realtime hub. All methods are fire-and-forget: errors are
// logged but never returned to the emitting service.
type Publisher struct {
	dispatcher  *Dispatcher
	broadcaster Broadcaster
	logger      *slog.Logger
}

// NewPublisher creates a new event publisher.
func NewPublisher(d *Dispatcher, logger *slog.Logger) *Publisher {
	return &Publisher{dispatcher: d, logger: logger}
}

// WithBroadcaster adds a realtime broadcaster.
func (p *Publisher) WithBroadcaster(b Broadcaster) *Publisher {
	p.broadcaster = b
	return p
}

// Publish emits one event asynchronously.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload map[string]any) {
	if p == nil {
		return
	}

	event := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      EventType(eventType),
		Timestamp: time.Now(),
		Data:      payload,
	}

	if p.broadcaster != nil {
		p.broadcaster.Broadcast(event)
	}

	if p.dispatcher == nil {
		return
	}

	// Webhook delivery happens off the request path with its own
	// deadline; the emitting request must not wait on slow receivers.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := p.dispatcher.Dispatch(ctx, event); err != nil && p.logger != nil {
			p.logger.Warn("notification dispatch failed", "event", eventType, "error", err)
		}
	}()
}
