// Package vault provides the yield-vault collaborator: a share-accounting
// vault over the in-memory ledger and the registry of approved vaults.
package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gyaneshwarpardhi/tokenstream/internal/curve"
	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

// Vault is what the engine needs from a yield custodian. Deposits are
// pulled from, and withdrawals paid back to, the engine's custody account.
type Vault interface {
	Deposit(ctx context.Context, token string, amount int64) (shares int64, err error)
	Withdraw(ctx context.Context, token string, shares int64) (amount int64, err error)
	Value(ctx context.Context, shares int64) (int64, error)
}

// Ledger is the subset of the token ledger a Memory vault settles through.
type Ledger interface {
	Move(ctx context.Context, token string, from, to stream.Address, amount int64) error
	Mint(ctx context.Context, token string, to stream.Address, amount int64) error
}

var (
	ErrPaused        = errors.New("vault: withdrawals paused")
	ErrWrongToken    = errors.New("vault: token not accepted")
	ErrInsufficient  = errors.New("vault: not enough shares")
	ErrDepositTooLow = errors.New("vault: deposit mints no shares")
)

// Memory is a single-token vault whose assets grow by YieldBps on each Accrue.
type Memory struct {
	id       stream.Address
	token    string
	custody  stream.Address
	ledger   Ledger
	yieldBps uint32

	mu     sync.Mutex
	shares int64
	assets int64
	paused bool
}

// NewMemory creates a vault holding its assets under id on l.
func NewMemory(id stream.Address, token string, custody stream.Address, l Ledger, yieldBps uint32) *Memory {
	return &Memory{id: id, token: token, custody: custody, ledger: l, yieldBps: yieldBps}
}

// ID is the vault's ledger address.
func (v *Memory) ID() stream.Address { return v.id }

// Token is the asset the vault accepts.
func (v *Memory) Token() string { return v.token }

func (v *Memory) Deposit(ctx context.Context, token string, amount int64) (int64, error) {
	if token != v.token {
		return 0, fmt.Errorf("%w: %s (vault %s holds %s)", ErrWrongToken, token, v.id, v.token)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	shares := amount
	if v.shares > 0 && v.assets > 0 {
		var err error
		if shares, err = curve.MulDiv(amount, v.shares, v.assets); err != nil {
			return 0, err
		}
	}
	if shares <= 0 {
		return 0, ErrDepositTooLow
	}
	if err := v.ledger.Move(ctx, token, v.custody, v.id, amount); err != nil {
		return 0, fmt.Errorf("vault %s deposit: %w", v.id, err)
	}
	v.shares += shares
	v.assets += amount
	return shares, nil
}

func (v *Memory) Withdraw(ctx context.Context, token string, shares int64) (int64, error) {
	if token != v.token {
		return 0, fmt.Errorf("%w: %s (vault %s holds %s)", ErrWrongToken, token, v.id, v.token)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.paused {
		return 0, ErrPaused
	}
	if shares <= 0 || shares > v.shares {
		return 0, fmt.Errorf("%w: redeem %d of %d", ErrInsufficient, shares, v.shares)
	}
	amount, err := curve.MulDiv(shares, v.assets, v.shares)
	if err != nil {
		return 0, err
	}
	if amount > 0 {
		if err := v.ledger.Move(ctx, token, v.id, v.custody, amount); err != nil {
			return 0, fmt.Errorf("vault %s withdraw: %w", v.id, err)
		}
	}
	v.shares -= shares
	v.assets -= amount
	return amount, nil
}

func (v *Memory) Value(_ context.Context, shares int64) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if shares <= 0 || v.shares == 0 {
		return 0, nil
	}
	return curve.MulDiv(shares, v.assets, v.shares)
}

// Accrue credits one period of yield and returns the amount added.
func (v *Memory) Accrue(ctx context.Context) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.assets == 0 || v.yieldBps == 0 {
		return 0, nil
	}
	yield, err := curve.MulDiv(v.assets, int64(v.yieldBps), 10_000)
	if err != nil || yield == 0 {
		return 0, err
	}
	if err := v.ledger.Mint(ctx, v.token, v.id, yield); err != nil {
		return 0, err
	}
	v.assets += yield
	return yield, nil
}

// SetPaused blocks or re-enables withdrawals.
func (v *Memory) SetPaused(paused bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.paused = paused
}

// Totals reports outstanding shares and assets.
func (v *Memory) Totals() (shares, assets int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.shares, v.assets
}
