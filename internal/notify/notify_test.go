package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// noopValidator allows any URL (including loopback) for test servers.
func noopValidator(_ string) error { return nil }

func newTestDispatcher(store Store) *Dispatcher {
	d := NewDispatcher(store)
	d.urlValidator = noopValidator
	return d
}

// ---------------------------------------------------------------------------
// MemoryStore tests
// ---------------------------------------------------------------------------

func TestMemoryStore_CRUD(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sub := &Subscription{
		ID:             "wh_test1",
		SubscriberAddr: "0xorganizer1",
		URL:            "https://example.com/hook",
		Secret:         "secret123",
		Events:         []EventType{EventPaymentProcessed},
		Active:         true,
		CreatedAt:      time.Now(),
	}

	if err := store.Create(ctx, sub); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, "wh_test1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.URL != "https://example.com/hook" {
		t.Errorf("Expected URL, got %s", got.URL)
	}

	sub.Active = false
	store.Update(ctx, sub)
	got, _ = store.Get(ctx, "wh_test1")
	if got.Active {
		t.Error("Expected inactive after update")
	}

	store.Delete(ctx, "wh_test1")
	if _, err := store.Get(ctx, "wh_test1"); err != ErrSubscriptionNotFound {
		t.Errorf("Expected ErrSubscriptionNotFound after delete, got %v", err)
	}
}

func TestMemoryStore_GetBySubscriber(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Create(ctx, &Subscription{ID: "wh1", SubscriberAddr: "0xAAA", Events: []EventType{EventPaymentProcessed}})
	store.Create(ctx, &Subscription{ID: "wh2", SubscriberAddr: "0xbbb", Events: []EventType{EventPaymentProcessed}})
	store.Create(ctx, &Subscription{ID: "wh3", SubscriberAddr: "0xaaa", Events: []EventType{EventTicketTransferred}})

	// Case-insensitive on address
	subs, _ := store.GetBySubscriber(ctx, "0xaAa")
	if len(subs) != 2 {
		t.Errorf("Expected 2 subs for 0xaaa, got %d", len(subs))
	}
}

func TestMemoryStore_GetByEvent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Create(ctx, &Subscription{ID: "wh1", Events: []EventType{EventPaymentProcessed, EventPaymentStatusChanged}})
	store.Create(ctx, &Subscription{ID: "wh2", Events: []EventType{EventTicketTransferred}})
	store.Create(ctx, &Subscription{ID: "wh3", Events: []EventType{EventPaymentProcessed}})

	subs, _ := store.GetByEvent(ctx, EventPaymentProcessed)
	if len(subs) != 2 {
		t.Errorf("Expected 2 subs for payment.processed, got %d", len(subs))
	}
}

// ---------------------------------------------------------------------------
// Signature tests
// ---------------------------------------------------------------------------

func TestSign(t *testing.T) {
	payload := []byte(`{"type":"payment.processed","data":{}}`)
	secret := "test_secret_key"

	sig := Sign(payload, secret)

	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	expected := hex.EncodeToString(h.Sum(nil))

	if sig != expected {
		t.Errorf("Signature mismatch: got %s, want %s", sig, expected)
	}
}

func TestSign_DifferentSecrets(t *testing.T) {
	payload := []byte(`{"test": true}`)
	if Sign(payload, "secret1") == Sign(payload, "secret2") {
		t.Error("Different secrets should produce different signatures")
	}
}

// ---------------------------------------------------------------------------
// Dispatch tests
// ---------------------------------------------------------------------------

func TestDispatch_SendsToSubscribers(t *testing.T) {
	store := NewMemoryStore()

	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{
		ID:     "wh1",
		URL:    server.URL,
		Events: []EventType{EventPaymentProcessed},
		Active: true,
	})

	d := newTestDispatcher(store)
	event := &Event{
		Type:      EventPaymentProcessed,
		Timestamp: time.Now(),
		Data:      map[string]any{"amount": int64(500)},
	}

	if err := d.Dispatch(ctx, event); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if received.Load() != 1 {
		t.Errorf("Expected 1 webhook delivery, got %d", received.Load())
	}
}

func TestDispatch_SkipsInactiveSubscribers(t *testing.T) {
	store := NewMemoryStore()

	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{
		ID:     "wh1",
		URL:    server.URL,
		Events: []EventType{EventPaymentProcessed},
		Active: false,
	})

	d := newTestDispatcher(store)
	d.Dispatch(ctx, &Event{Type: EventPaymentProcessed, Timestamp: time.Now()})

	if received.Load() != 0 {
		t.Errorf("Expected 0 deliveries for inactive sub, got %d", received.Load())
	}
}

func TestDispatch_IncludesSignatureAndHeaders(t *testing.T) {
	store := NewMemoryStore()

	var mu sync.Mutex
	var gotSig, gotType, gotTimestamp string
	var gotBody []byte
	secret := "test_webhook_secret" //nolint:gosec // test credential

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotSig = r.Header.Get("X-Ticketpay-Signature")
		gotType = r.Header.Get("X-Ticketpay-Event")
		gotTimestamp = r.Header.Get("X-Ticketpay-Timestamp")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{
		ID:     "wh1",
		URL:    server.URL,
		Events: []EventType{EventTicketTransferred},
		Active: true,
		Secret: secret,
	})

	d := newTestDispatcher(store)
	d.Dispatch(ctx, &Event{
		Type:      EventTicketTransferred,
		Timestamp: time.Now(),
		Data:      map[string]any{"paymentId": "pay_1"},
	})

	mu.Lock()
	defer mu.Unlock()

	if gotSig == "" {
		t.Fatal("Expected signature header")
	}
	if gotSig != Sign(gotBody, secret) {
		t.Errorf("Signature does not verify against body")
	}
	if gotType != "ticket.transferred" {
		t.Errorf("Expected event type ticket.transferred, got %s", gotType)
	}
	if gotTimestamp == "" {
		t.Error("Expected timestamp header")
	}

	var parsed Event
	if err := json.Unmarshal(gotBody, &parsed); err != nil {
		t.Fatalf("Failed to parse webhook payload: %v", err)
	}
	if parsed.Type != EventTicketTransferred {
		t.Errorf("Expected type ticket.transferred, got %s", parsed.Type)
	}
}

func TestDispatch_ErrorUpdatesSubscription(t *testing.T) {
	store := NewMemoryStore()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{
		ID:     "wh1",
		URL:    server.URL,
		Events: []EventType{EventPaymentProcessed},
		Active: true,
	})

	d := newTestDispatcher(store)
	d.Dispatch(ctx, &Event{Type: EventPaymentProcessed, Timestamp: time.Now()})

	sub, _ := store.Get(ctx, "wh1")
	if sub.LastError == "" {
		t.Error("Expected lastError to be set after 500 response")
	}
	if sub.ConsecutiveFailures != 1 {
		t.Errorf("Expected 1 consecutive failure, got %d", sub.ConsecutiveFailures)
	}
}

func TestDispatch_SuccessResetsFailures(t *testing.T) {
	store := NewMemoryStore()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{
		ID:                  "wh1",
		URL:                 server.URL,
		Events:              []EventType{EventPaymentProcessed},
		Active:              true,
		LastError:           "status 500",
		ConsecutiveFailures: 3,
	})

	d := newTestDispatcher(store)
	d.Dispatch(ctx, &Event{Type: EventPaymentProcessed, Timestamp: time.Now()})

	sub, _ := store.Get(ctx, "wh1")
	if sub.LastSuccess == nil {
		t.Error("Expected lastSuccess to be set after successful delivery")
	}
	if sub.LastError != "" {
		t.Errorf("Expected no error after success, got %s", sub.LastError)
	}
	if sub.ConsecutiveFailures != 0 {
		t.Errorf("Expected failure count reset, got %d", sub.ConsecutiveFailures)
	}
}

func TestDispatch_DisablesAfterMaxFailures(t *testing.T) {
	store := NewMemoryStore()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{
		ID:                  "wh1",
		URL:                 server.URL,
		Events:              []EventType{EventPaymentProcessed},
		Active:              true,
		ConsecutiveFailures: MaxConsecutiveFailures - 1,
	})

	d := newTestDispatcher(store)
	d.Dispatch(ctx, &Event{Type: EventPaymentProcessed, Timestamp: time.Now()})

	sub, _ := store.Get(ctx, "wh1")
	if sub.Active {
		t.Error("Expected subscription disabled after repeated failures")
	}
}

func TestDispatch_BlocksDisallowedURL(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Create(ctx, &Subscription{
		ID:     "wh1",
		URL:    "http://127.0.0.1:9/hook",
		Events: []EventType{EventPaymentProcessed},
		Active: true,
	})

	// Default validator rejects loopback targets.
	d := NewDispatcher(store)
	d.Dispatch(ctx, &Event{Type: EventPaymentProcessed, Timestamp: time.Now()})

	sub, _ := store.Get(ctx, "wh1")
	if sub.LastError == "" {
		t.Error("Expected lastError for blocked URL")
	}
}

// ---------------------------------------------------------------------------
// Publisher tests
// ---------------------------------------------------------------------------

type captureBroadcaster struct {
	mu     sync.Mutex
	events []*Event
}

func (b *captureBroadcaster) Broadcast(event *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func TestPublisher_DeliversAndBroadcasts(t *testing.T) {
	store := NewMemoryStore()

	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{
		ID:     "wh1",
		URL:    server.URL,
		Events: []EventType{EventPaymentProcessed},
		Active: true,
	})

	bc := &captureBroadcaster{}
	pub := NewPublisher(newTestDispatcher(store), slog.Default()).WithBroadcaster(bc)
	pub.Publish(ctx, "payment.processed", map[string]any{"paymentId": "pay_1"})

	// Webhook delivery is async
	deadline := time.Now().Add(2 * time.Second)
	for received.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if received.Load() != 1 {
		t.Errorf("Expected 1 webhook delivery, got %d", received.Load())
	}

	bc.mu.Lock()
	defer bc.mu.Unlock()
	if len(bc.events) != 1 {
		t.Fatalf("Expected 1 broadcast event, got %d", len(bc.events))
	}
	if bc.events[0].Type != EventPaymentProcessed {
		t.Errorf("Expected payment.processed, got %s", bc.events[0].Type)
	}
	if bc.events[0].ID == "" {
		t.Error("Expected generated event ID")
	}
}

func TestPublisher_NilDispatcherIsSafe(t *testing.T) {
	pub := NewPublisher(nil, slog.Default())
	pub.Publish(context.Background(), "service.initialized", nil)
}
