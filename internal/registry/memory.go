package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-memory registry for demo mode and tests.
//
// It applies inventory mutations to the tier's CurrentSold and the
// event's CurrentSupply, the same way the real registry service does.
type Memory struct {
	events map[string]*EventInfo
	mu     sync.RWMutex
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{events: make(map[string]*EventInfo)}
}

// PutEvent stores or replaces an event. Test/demo seeding helper.
func (m *Memory) PutEvent(info *EventInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := copyEvent(info)
	m.events[info.EventID] = cp
}

// SetActive toggles an event's active flag. Test/demo seeding helper.
func (m *Memory) SetActive(eventID string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.events[eventID]; ok {
		e.Active = active
	}
}

func (m *Memory) GetEvent(ctx context.Context, eventID string) (*EventInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.events[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	return copyEvent(e), nil
}

func (m *Memory) GetEventPaymentInfo(ctx context.Context, eventID string) (*PaymentInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.events[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	return &PaymentInfo{
		PaymentAddress: e.PaymentAddress,
		PlatformFeeBps: e.PlatformFeeBps,
	}, nil
}

// ListByOrganizer returns every event the organizer owns, ordered by
// creation time so pages are stable across calls.
func (m *Memory) ListByOrganizer(ctx context.Context, organizerAddr string) ([]*EventInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*EventInfo
	for _, e := range m.events {
		if strings.EqualFold(e.OrganizerAddress, organizerAddr) {
			out = append(out, copyEvent(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].EventID < out[j].EventID
	})
	return out, nil
}

func (m *Memory) IncrementInventory(ctx context.Context, eventID, tierID string, quantity uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[eventID]
	if !ok {
		return ErrEventNotFound
	}
	tier, ok := e.Tiers[tierID]
	if !ok {
		return ErrTierNotFound
	}
	if tier.TierLimit > 0 && tier.CurrentSold+int64(quantity) > tier.TierLimit {
		return fmt.Errorf("registry: tier %s sold out", tierID)
	}

	tier.CurrentSold += int64(quantity)
	e.Tiers[tierID] = tier
	e.CurrentSupply += int64(quantity)
	return nil
}

func (m *Memory) DecrementInventory(ctx context.Context, eventID, tierID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.events[eventID]
	if !ok {
		return ErrEventNotFound
	}
	tier, ok := e.Tiers[tierID]
	if !ok {
		return ErrTierNotFound
	}
	if tier.CurrentSold <= 0 {
		return fmt.Errorf("registry: tier %s has no sold inventory", tierID)
	}

	tier.CurrentSold--
	e.Tiers[tierID] = tier
	e.CurrentSupply--
	return nil
}

// copyEvent returns a deep copy so callers never share the stored maps/slices.
func copyEvent(e *EventInfo) *EventInfo {
	cp := *e
	if e.Tiers != nil {
		cp.Tiers = make(map[string]TicketTier, len(e.Tiers))
		for k, v := range e.Tiers {
			cp.Tiers[k] = v
		}
	}
	if e.MilestonePlan != nil {
		cp.MilestonePlan = make([]Milestone, len(e.MilestonePlan))
		copy(cp.MilestonePlan, e.MilestonePlan)
	}
	return &cp
}
