package registry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedEvent() *EventInfo {
	return &EventInfo{
		EventID:          "evt_1",
		OrganizerAddress: "0xaaaa000000000000000000000000000000000001",
		PaymentAddress:   "0xaaaa000000000000000000000000000000000002",
		PlatformFeeBps:   500,
		Active:           true,
		MaxSupply:        1000,
		Tiers: map[string]TicketTier{
			"ga": {Name: "General Admission", Price: 1000, TierLimit: 100, Refundable: true},
		},
	}
}

func TestMemory_GetEvent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.GetEvent(ctx, "missing"); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}

	m.PutEvent(seedEvent())
	e, err := m.GetEvent(ctx, "evt_1")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if e.PlatformFeeBps != 500 {
		t.Errorf("expected fee 500 bps, got %d", e.PlatformFeeBps)
	}

	// Mutating the returned copy must not affect the stored event.
	e.Tiers["ga"] = TicketTier{Price: 9999}
	again, _ := m.GetEvent(ctx, "evt_1")
	if again.Tiers["ga"].Price != 1000 {
		t.Error("stored event mutated through returned copy")
	}
}

func TestMemory_InventoryRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.PutEvent(seedEvent())

	if err := m.IncrementInventory(ctx, "evt_1", "ga", 3); err != nil {
		t.Fatalf("IncrementInventory failed: %v", err)
	}

	e, _ := m.GetEvent(ctx, "evt_1")
	if e.Tiers["ga"].CurrentSold != 3 {
		t.Errorf("expected 3 sold, got %d", e.Tiers["ga"].CurrentSold)
	}
	if e.CurrentSupply != 3 {
		t.Errorf("expected supply 3, got %d", e.CurrentSupply)
	}

	if err := m.DecrementInventory(ctx, "evt_1", "ga"); err != nil {
		t.Fatalf("DecrementInventory failed: %v", err)
	}
	e, _ = m.GetEvent(ctx, "evt_1")
	if e.Tiers["ga"].CurrentSold != 2 || e.CurrentSupply != 2 {
		t.Errorf("expected 2 sold / supply 2, got %d / %d", e.Tiers["ga"].CurrentSold, e.CurrentSupply)
	}
}

func TestMemory_InventoryLimits(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ev := seedEvent()
	tier := ev.Tiers["ga"]
	tier.TierLimit = 2
	ev.Tiers["ga"] = tier
	m.PutEvent(ev)

	if err := m.IncrementInventory(ctx, "evt_1", "ga", 3); err == nil {
		t.Error("expected sold-out error when exceeding tier limit")
	}
	if err := m.DecrementInventory(ctx, "evt_1", "ga"); err == nil {
		t.Error("expected error decrementing below zero")
	}
	if err := m.IncrementInventory(ctx, "evt_1", "vip", 1); !errors.Is(err, ErrTierNotFound) {
		t.Errorf("expected ErrTierNotFound, got %v", err)
	}
}

func TestMemory_ListByOrganizer(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	first := seedEvent()
	first.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.PutEvent(first)

	second := seedEvent()
	second.EventID = "evt_2"
	second.CreatedAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	m.PutEvent(second)

	other := seedEvent()
	other.EventID = "evt_other"
	other.OrganizerAddress = "0xbbbb000000000000000000000000000000000099"
	m.PutEvent(other)

	// Address match is case-insensitive.
	events, err := m.ListByOrganizer(ctx, "0xAAAA000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("ListByOrganizer failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].EventID != "evt_1" || events[1].EventID != "evt_2" {
		t.Errorf("expected creation order evt_1, evt_2; got %s, %s", events[0].EventID, events[1].EventID)
	}

	none, err := m.ListByOrganizer(ctx, "0x0000000000000000000000000000000000000000")
	if err != nil {
		t.Fatalf("ListByOrganizer failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no events for unknown organizer, got %d", len(none))
	}
}

func TestEventInfo_Tier(t *testing.T) {
	e := seedEvent()
	if _, err := e.Tier("ga"); err != nil {
		t.Errorf("expected tier, got %v", err)
	}
	if _, err := e.Tier("vip"); !errors.Is(err, ErrTierNotFound) {
		t.Errorf("expected ErrTierNotFound, got %v", err)
	}
}
