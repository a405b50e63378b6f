//go:build integration

package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agoratix/ticketpay/internal/testutil"
)

func setupTestStore(t *testing.T) (*PostgresStore, func()) {
	t.Helper()
	db, cleanup := testutil.PGTest(t)
	return NewPostgresStore(db), cleanup
}

func TestPostgresNotify_CreateAndGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	sub := &Subscription{
		ID:             "wh_pgtest1",
		SubscriberAddr: "0xAAAA000000000000000000000000000000000001",
		URL:            "https://example.com/hook",
		Secret:         "secret123",
		Events:         []EventType{EventPaymentProcessed},
		Active:         true,
		CreatedAt:      time.Now(),
	}
	if err := store.Create(ctx, sub); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, "wh_pgtest1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.SubscriberAddr != "0xaaaa000000000000000000000000000000000001" {
		t.Errorf("Expected lowercased subscriber, got %s", got.SubscriberAddr)
	}
	if got.Secret != "secret123" {
		t.Errorf("Expected secret round-trip, got %s", got.Secret)
	}

	if _, err := store.Get(ctx, "wh_missing"); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Errorf("Expected ErrSubscriptionNotFound, got %v", err)
	}
}

func TestPostgresNotify_GetByEvent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	store.Create(ctx, &Subscription{
		ID:             "wh_pgev1",
		SubscriberAddr: "0xbbbb000000000000000000000000000000000002",
		URL:            "https://example.com/a",
		Secret:         "s1",
		Events:         []EventType{EventPaymentProcessed, EventTicketTransferred},
		Active:         true,
		CreatedAt:      time.Now(),
	})
	store.Create(ctx, &Subscription{
		ID:             "wh_pgev2",
		SubscriberAddr: "0xcccc000000000000000000000000000000000003",
		URL:            "https://example.com/b",
		Secret:         "s2",
		Events:         []EventType{EventServiceUpgraded},
		Active:         true,
		CreatedAt:      time.Now(),
	})

	subs, err := store.GetByEvent(ctx, EventPaymentProcessed)
	if err != nil {
		t.Fatalf("GetByEvent failed: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != "wh_pgev1" {
		t.Errorf("Expected only wh_pgev1, got %d subs", len(subs))
	}
}

func TestPostgresNotify_UpdateAndDelete(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	sub := &Subscription{
		ID:             "wh_pgupd",
		SubscriberAddr: "0xdddd000000000000000000000000000000000004",
		URL:            "https://example.com/c",
		Secret:         "s3",
		Events:         []EventType{EventPaymentStatusChanged},
		Active:         true,
		CreatedAt:      time.Now(),
	}
	store.Create(ctx, sub)

	sub.Active = false
	sub.LastError = "status 500"
	sub.ConsecutiveFailures = 3
	if err := store.Update(ctx, sub); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := store.Get(ctx, "wh_pgupd")
	if got.Active || got.ConsecutiveFailures != 3 {
		t.Errorf("Expected inactive with 3 failures, got %+v", got)
	}

	// Disabled subscriptions no longer receive events
	subs, _ := store.GetByEvent(ctx, EventPaymentStatusChanged)
	if len(subs) != 0 {
		t.Errorf("Expected no active subscribers, got %d", len(subs))
	}

	if err := store.Delete(ctx, "wh_pgupd"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "wh_pgupd"); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Errorf("Expected ErrSubscriptionNotFound after delete, got %v", err)
	}
}
