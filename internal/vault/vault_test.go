package vault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/tokenstream/internal/ledger"
	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

func newVault(t *testing.T, yieldBps uint32) (*Memory, *ledger.Memory) {
	t.Helper()
	l := ledger.NewMemory()
	require.NoError(t, l.Mint(context.Background(), "XLM", "custody", 10_000))
	return NewMemory("vault-1", "XLM", "custody", l, yieldBps), l
}

func TestMemory_DepositWithdraw(t *testing.T) {
	ctx := context.Background()
	v, l := newVault(t, 0)

	shares, err := v.Deposit(ctx, "XLM", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), shares)
	assert.Equal(t, int64(9000), l.Balance(ctx, "XLM", "custody"))
	assert.Equal(t, int64(1000), l.Balance(ctx, "XLM", "vault-1"))

	amount, err := v.Withdraw(ctx, "XLM", 400)
	require.NoError(t, err)
	assert.Equal(t, int64(400), amount)
	assert.Equal(t, int64(9400), l.Balance(ctx, "XLM", "custody"))

	_, err = v.Withdraw(ctx, "XLM", 601)
	assert.ErrorIs(t, err, ErrInsufficient)

	_, err = v.Deposit(ctx, "USDC", 10)
	assert.ErrorIs(t, err, ErrWrongToken)
}

func TestMemory_Yield(t *testing.T) {
	ctx := context.Background()
	v, l := newVault(t, 500)

	_, err := v.Deposit(ctx, "XLM", 1000)
	require.NoError(t, err)

	yield, err := v.Accrue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(50), yield)

	value, err := v.Value(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1050), value)

	// later depositors buy in at the grown share price
	shares, err := v.Deposit(ctx, "XLM", 1050)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), shares)

	amount, err := v.Withdraw(ctx, "XLM", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1050), amount)
	assert.Equal(t, int64(1050), l.Balance(ctx, "XLM", "vault-1"))
}

func TestMemory_Paused(t *testing.T) {
	ctx := context.Background()
	v, _ := newVault(t, 0)
	_, err := v.Deposit(ctx, "XLM", 100)
	require.NoError(t, err)

	v.SetPaused(true)
	_, err = v.Withdraw(ctx, "XLM", 10)
	assert.ErrorIs(t, err, ErrPaused)

	v.SetPaused(false)
	_, err = v.Withdraw(ctx, "XLM", 10)
	assert.NoError(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	v, _ := newVault(t, 0)
	r.Register("vault-1", v)

	got, err := r.Get("vault-1")
	require.NoError(t, err)
	assert.Same(t, v, got)

	_, err = r.Get("rogue")
	assert.ErrorIs(t, err, stream.ErrVaultNotApproved)

	assert.Panics(t, func() { r.Register("vault-1", v) })
	assert.Equal(t, []stream.Address{"vault-1"}, r.IDs())
}
