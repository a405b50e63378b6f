// Package notify delivers settlement lifecycle events to external
// subscribers over signed webhooks.
//
// Organizers and platform operators register webhook URLs to receive:
// - service.initialized / service.upgraded
// - payment.processed / payment.status_changed
// - ticket.transferred
package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// EventType represents the type of notification event
type EventType string

const (
	EventServiceInitialized   EventType = "service.initialized"
	EventServiceUpgraded      EventType = "service.upgraded"
	EventPaymentProcessed     EventType = "payment.processed"
	EventPaymentStatusChanged EventType = "payment.status_changed"
	EventTicketTransferred    EventType = "ticket.transferred"
)

// KnownEventTypes lists every event type a subscription may select.
var KnownEventTypes = []EventType{
	EventServiceInitialized,
	EventServiceUpgraded,
	EventPaymentProcessed,
	EventPaymentStatusChanged,
	EventTicketTransferred,
}

var ErrSubscriptionNotFound = errors.New("notify: subscription not found")

// Event is a single notification delivery payload.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Subscription is a registered webhook endpoint.
type Subscription struct {
	ID                  string      `json:"id"`
	SubscriberAddr      string      `json:"subscriberAddr"`
	URL                 string      `json:"url"`
	Secret              string      `json:"-"` // Used for HMAC signing
	Events              []EventType `json:"events"`
	Active              bool        `json:"active"`
	CreatedAt           time.Time   `json:"createdAt"`
	LastSuccess         *time.Time  `json:"lastSuccess,omitempty"`
	LastError           string      `json:"lastError,omitempty"`
	ConsecutiveFailures int         `json:"consecutiveFailures,omitempty"`
}

// Wants reports whether the subscription selects the event type.
func (s *Subscription) Wants(eventType EventType) bool {
	for _, et := range s.Events {
		if et == eventType {
			return true
		}
	}
	return false
}

// Store persists webhook subscriptions.
type Store interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	GetBySubscriber(ctx context.Context, subscriberAddr string) ([]*Subscription, error)
	GetByEvent(ctx context.Context, eventType EventType) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-memory subscription store for demo mode and tests.
type MemoryStore struct {
	subs map[string]*Subscription
	mu   sync.RWMutex
}

// NewMemoryStore creates a new in-memory subscription store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]*Subscription)}
}

func (m *MemoryStore) Create(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sub, ok := m.subs[id]; ok {
		return sub, nil
	}
	return nil, ErrSubscriptionNotFound
}

func (m *MemoryStore) GetBySubscriber(ctx context.Context, subscriberAddr string) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Subscription
	for _, sub := range m.subs {
		if strings.EqualFold(sub.SubscriberAddr, subscriberAddr) {
			result = append(result, sub)
		}
	}
	return result, nil
}

func (m *MemoryStore) GetByEvent(ctx context.Context, eventType EventType) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Subscription
	for _, sub := range m.subs {
		if sub.Wants(eventType) {
			result = append(result, sub)
		}
	}
	return result, nil
}

func (m *MemoryStore) Update(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
	return nil
}
