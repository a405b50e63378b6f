package token

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory token network for demo mode and tests.
//
// Balances and allowances live in maps keyed by token contract. An
// optional per-token transfer tax lets tests exercise the received
// amount differing from the sent amount.
type Memory struct {
	holding     string
	balances    map[string]map[string]int64 // token -> addr -> balance
	allowances  map[string]map[string]int64 // token -> owner|spender -> allowance
	transferTax map[string]int64            // token -> units withheld per transfer
	txCounter   uint64
	mu          sync.Mutex
}

var _ Service = (*Memory)(nil)

// NewMemory creates an empty in-memory token network with the given
// holding wallet address.
func NewMemory(holding string) *Memory {
	return &Memory{
		holding:     holding,
		balances:    make(map[string]map[string]int64),
		allowances:  make(map[string]map[string]int64),
		transferTax: make(map[string]int64),
	}
}

func (m *Memory) HoldingAddress() string { return m.holding }

// SetBalance seeds an address balance. Test helper.
func (m *Memory) SetBalance(tokenAddr, addr string, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[tokenAddr] == nil {
		m.balances[tokenAddr] = make(map[string]int64)
	}
	m.balances[tokenAddr][addr] = amount
}

// SetAllowance seeds an owner->spender approval. Test helper.
func (m *Memory) SetAllowance(tokenAddr, owner, spender string, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allowances[tokenAddr] == nil {
		m.allowances[tokenAddr] = make(map[string]int64)
	}
	m.allowances[tokenAddr][owner+"|"+spender] = amount
}

// SetTransferTax withholds the given units from every transfer of the
// token, so the recipient receives less than the sent amount.
func (m *Memory) SetTransferTax(tokenAddr string, tax int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transferTax[tokenAddr] = tax
}

func (m *Memory) BalanceOf(ctx context.Context, tokenAddr, addr string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[tokenAddr][addr], nil
}

func (m *Memory) Allowance(ctx context.Context, tokenAddr, owner, spender string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowances[tokenAddr][owner+"|"+spender], nil
}

func (m *Memory) Transfer(ctx context.Context, tokenAddr, to string, amount int64) (string, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move(tokenAddr, m.holding, to, amount)
}

func (m *Memory) TransferFrom(ctx context.Context, tokenAddr, from, to string, amount int64) (string, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := from + "|" + m.holding
	if m.allowances[tokenAddr][key] < amount {
		return "", ErrInsufficientAllowance
	}

	hash, err := m.move(tokenAddr, from, to, amount)
	if err != nil {
		return "", err
	}
	m.allowances[tokenAddr][key] -= amount
	return hash, nil
}

// move debits the sender and credits the recipient minus any transfer
// tax. Caller holds the lock.
func (m *Memory) move(tokenAddr, from, to string, amount int64) (string, error) {
	if m.balances[tokenAddr][from] < amount {
		return "", &TransferError{Op: "send", Err: ErrInsufficientBalance}
	}
	if m.balances[tokenAddr] == nil {
		m.balances[tokenAddr] = make(map[string]int64)
	}

	received := amount - m.transferTax[tokenAddr]
	if received < 0 {
		received = 0
	}
	m.balances[tokenAddr][from] -= amount
	m.balances[tokenAddr][to] += received

	m.txCounter++
	return fmt.Sprintf("0x%064x", m.txCounter), nil
}
