package gateway

import (
	"context"
	"fmt"
	"sync"
)

// Bank is an in-memory Gateway keeping per-account balances. It backs
// the development server and the test suite.
type Bank struct {
	mu       sync.Mutex
	balances map[string]int64
}

// NewBank creates a bank with no funded accounts.
func NewBank() *Bank {
	return &Bank{balances: make(map[string]int64)}
}

// Credit adds funds to an account.
func (b *Bank) Credit(account string, amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] += amount
}

// Balance returns the current balance of an account. Unknown accounts
// hold zero.
func (b *Bank) Balance(_ context.Context, account string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[account], nil
}

// Transfer moves amount between accounts atomically.
func (b *Bank) Transfer(_ context.Context, from, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("gateway: transfer amount must be positive, got %d", amount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.balances[from] < amount {
		return ErrInsufficientBalance
	}
	b.balances[from] -= amount
	b.balances[to] += amount
	return nil
}
