package platform

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory platform store for demo/development mode.
type MemoryStore struct {
	settings     *Settings
	tokens       map[string]bool
	transferFees map[string]int64
	mu           sync.RWMutex
}

// NewMemoryStore creates a new in-memory platform store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:       make(map[string]bool),
		transferFees: make(map[string]int64),
	}
}

func (m *MemoryStore) GetSettings(ctx context.Context) (*Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.settings == nil {
		return nil, ErrNotInitialized
	}
	cp := *m.settings
	return &cp, nil
}

func (m *MemoryStore) PutSettings(ctx context.Context, s *Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.settings = &cp
	return nil
}

func (m *MemoryStore) AddToken(ctx context.Context, tokenAddr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tokens[strings.ToLower(tokenAddr)] = true
	return nil
}

func (m *MemoryStore) RemoveToken(ctx context.Context, tokenAddr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.tokens, strings.ToLower(tokenAddr))
	return nil
}

func (m *MemoryStore) IsTokenWhitelisted(ctx context.Context, tokenAddr string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.tokens[strings.ToLower(tokenAddr)], nil
}

func (m *MemoryStore) ListTokens(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]string, 0, len(m.tokens))
	for addr := range m.tokens {
		result = append(result, addr)
	}
	sort.Strings(result)
	return result, nil
}

func (m *MemoryStore) SetTransferFee(ctx context.Context, eventID string, fee int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transferFees[eventID] = fee
	return nil
}

func (m *MemoryStore) GetTransferFee(ctx context.Context, eventID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.transferFees[eventID], nil
}
