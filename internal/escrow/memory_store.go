package escrow

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory balance store for demo/development mode.
type MemoryStore struct {
	balances map[string]*EventBalance
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory balance store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{balances: make(map[string]*EventBalance)}
}

func (m *MemoryStore) Get(ctx context.Context, eventID string) (*EventBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.balances[eventID]
	if !ok {
		return &EventBalance{EventID: eventID}, nil
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) Credit(ctx context.Context, eventID string, organizerDelta, platformDelta int64) error {
	if organizerDelta < 0 || platformDelta < 0 {
		return ErrNegativeBalance
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.balance(eventID)
	b.OrganizerAmount += organizerDelta
	b.PlatformFee += platformDelta
	b.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) DebitOrganizer(ctx context.Context, eventID string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.balance(eventID)
	if amount < 0 || b.OrganizerAmount < amount {
		return ErrNegativeBalance
	}
	b.OrganizerAmount -= amount
	b.TotalWithdrawn += amount
	b.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) DebitPlatform(ctx context.Context, eventID string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.balance(eventID)
	if amount < 0 || b.PlatformFee < amount {
		return ErrNegativeBalance
	}
	b.PlatformFee -= amount
	b.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) Reverse(ctx context.Context, eventID string, organizerDelta, platformDelta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.balance(eventID)
	if organizerDelta < 0 || platformDelta < 0 {
		return ErrNegativeBalance
	}
	if b.OrganizerAmount < organizerDelta || b.PlatformFee < platformDelta {
		return ErrNegativeBalance
	}
	b.OrganizerAmount -= organizerDelta
	b.PlatformFee -= platformDelta
	b.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) SumAll(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, b := range m.balances {
		total += b.OrganizerAmount + b.PlatformFee
	}
	return total, nil
}

func (m *MemoryStore) ListBalances(ctx context.Context, limit int) ([]*EventBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*EventBalance
	for _, b := range m.balances {
		cp := *b
		result = append(result, &cp)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// balance returns the stored entry, creating a zero one if needed.
// Caller holds the lock.
func (m *MemoryStore) balance(eventID string) *EventBalance {
	b, ok := m.balances[eventID]
	if !ok {
		b = &EventBalance{EventID: eventID}
		m.balances[eventID] = b
	}
	return b
}
