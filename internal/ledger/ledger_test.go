package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMove(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	require.NoError(t, l.Mint(ctx, "XLM", "alice", 100))

	require.NoError(t, l.Move(ctx, "XLM", "alice", "bob", 60))
	assert.Equal(t, int64(40), l.Balance(ctx, "XLM", "alice"))
	assert.Equal(t, int64(60), l.Balance(ctx, "XLM", "bob"))

	err := l.Move(ctx, "XLM", "alice", "bob", 41)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(40), l.Balance(ctx, "XLM", "alice"), "failed move changes nothing")

	assert.ErrorIs(t, l.Move(ctx, "XLM", "alice", "bob", 0), ErrInvalidAmount)
	assert.ErrorIs(t, l.Move(ctx, "USDC", "bob", "alice", 1), ErrInsufficientFunds)
}

func TestMint(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	assert.ErrorIs(t, l.Mint(ctx, "XLM", "alice", -1), ErrInvalidAmount)
	require.NoError(t, l.Mint(ctx, "XLM", "alice", 5))
	require.NoError(t, l.Mint(ctx, "XLM", "alice", 5))
	assert.Equal(t, int64(10), l.Balance(ctx, "XLM", "alice"))
	assert.Zero(t, l.Balance(ctx, "USDC", "alice"))
}
