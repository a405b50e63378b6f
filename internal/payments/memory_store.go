package payments

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-memory payment store for demo/development mode.
type MemoryStore struct {
	payments map[string]*Payment
	byBuyer  map[string][]string // buyerAddr → payment IDs, insertion order
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory payment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments: make(map[string]*Payment),
		byBuyer:  make(map[string][]string),
	}
}

func (m *MemoryStore) Create(ctx context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.payments[p.PaymentID]; ok {
		return ErrPaymentExists
	}

	cp := *p
	m.payments[p.PaymentID] = &cp

	buyer := strings.ToLower(p.BuyerAddress)
	m.byBuyer[buyer] = appendUnique(m.byBuyer[buyer], p.PaymentID)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, paymentID string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.payments[paymentID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.payments[p.PaymentID]; !ok {
		return ErrPaymentNotFound
	}
	cp := *p
	m.payments[p.PaymentID] = &cp
	return nil
}

func (m *MemoryStore) ListByBuyer(ctx context.Context, buyerAddr, afterID string, limit int) ([]*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byBuyer[strings.ToLower(buyerAddr)]
	skipping := afterID != ""
	var result []*Payment
	for _, id := range ids {
		if skipping {
			if id == afterID {
				skipping = false
			}
			continue
		}
		if p, ok := m.payments[id]; ok {
			cp := *p
			result = append(result, &cp)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (m *MemoryStore) Reassign(ctx context.Context, paymentID, fromAddr, toAddr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[paymentID]
	if !ok {
		return ErrPaymentNotFound
	}

	from := strings.ToLower(fromAddr)
	to := strings.ToLower(toAddr)

	ids := m.byBuyer[from]
	for i, id := range ids {
		if id == paymentID {
			m.byBuyer[from] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	m.byBuyer[to] = appendUnique(m.byBuyer[to], paymentID)

	p.BuyerAddress = to
	return nil
}

func (m *MemoryStore) CountByEvent(ctx context.Context, eventID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, p := range m.payments {
		if p.EventID == eventID && p.Status != StatusRefunded && p.Status != StatusFailed {
			count++
		}
	}
	return count, nil
}

// appendUnique keeps the buyer index deduplicated while preserving
// insertion order.
func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
