package ledger

import (
	"context"
	"sync"
)

// Memory is an in-process ledger used when no balance service address
// is configured. Debits are idempotent per key, matching the real
// service contract.
type Memory struct {
	mu       sync.Mutex
	balances map[string]float64
	applied  map[string]float64
	defBal   float64
}

func NewMemory(defaultBalance float64) *Memory {
	return &Memory{
		balances: make(map[string]float64),
		applied:  make(map[string]float64),
		defBal:   defaultBalance,
	}
}

func (m *Memory) SetBalance(customerID string, balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[customerID] = balance
}

func (m *Memory) GetBalance(_ context.Context, customerID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balanceLocked(customerID), nil
}

func (m *Memory) Debit(_ context.Context, customerID string, amount float64, idempotencyKey string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, done := m.applied[idempotencyKey]; !done {
		m.balances[customerID] = m.balanceLocked(customerID) - amount
		m.applied[idempotencyKey] = amount
	}
	return m.balanceLocked(customerID), nil
}

func (m *Memory) balanceLocked(customerID string) float64 {
	if b, ok := m.balances[customerID]; ok {
		return b
	}
	return m.defBal
}
