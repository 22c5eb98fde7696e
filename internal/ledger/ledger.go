// Package ledger is an in-memory token ledger. It implements the atomic
// transfer primitive the engine settles through, plus minting for
// development setups.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrInvalidAmount     = errors.New("ledger: amount must be positive")
)

type account struct {
	token string
	addr  stream.Address
}

// Memory holds balances per (token, address).
type Memory struct {
	mu       sync.Mutex
	balances map[account]int64
}

// NewMemory creates an empty ledger.
func NewMemory() *Memory {
	return &Memory{balances: make(map[account]int64)}
}

// Move transfers amount of token from one address to another. Either the
// whole amount moves or nothing does.
func (m *Memory) Move(_ context.Context, token string, from, to stream.Address, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	src := account{token, from}
	dst := account{token, to}
	if m.balances[src] < amount {
		return fmt.Errorf("%w: %s holds %d %s, needs %d", ErrInsufficientFunds, from, m.balances[src], token, amount)
	}
	if from != to && m.balances[dst] > math.MaxInt64-amount {
		return fmt.Errorf("ledger: balance of %s overflows", to)
	}
	m.balances[src] -= amount
	m.balances[dst] += amount
	return nil
}

// Mint credits amount of token to addr out of thin air.
func (m *Memory) Mint(_ context.Context, token string, to stream.Address, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dst := account{token, to}
	if m.balances[dst] > math.MaxInt64-amount {
		return fmt.Errorf("ledger: balance of %s overflows", to)
	}
	m.balances[dst] += amount
	return nil
}

// Balance returns the holding of addr in token.
func (m *Memory) Balance(_ context.Context, token string, addr stream.Address) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account{token, addr}]
}
