package engine

import (
	"context"

	"github.com/gyaneshwarpardhi/tokenstream/internal/settlement"
	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

// Reads go straight to the store without taking the operation lock: every
// commit is a single atomic batch, so a read never sees half an operation.

func (e *Engine) GetStream(ctx context.Context, id uint64) (*stream.Stream, error) {
	return e.store.Stream(ctx, id)
}

func (e *Engine) GetReceipt(ctx context.Context, id uint64) (*stream.Receipt, error) {
	return e.store.Receipt(ctx, id)
}

func (e *Engine) GetProposal(ctx context.Context, id uint64) (*stream.Proposal, error) {
	return e.store.Proposal(ctx, id)
}

// GetReceiptMetadata reports the locked and unlocked balance behind a receipt.
// A cancelled stream has nothing left either way.
func (e *Engine) GetReceiptMetadata(ctx context.Context, id uint64) (stream.ReceiptMetadata, error) {
	s, err := e.store.Stream(ctx, id)
	if err != nil {
		return stream.ReceiptMetadata{}, err
	}
	md := stream.ReceiptMetadata{StreamID: id, Total: s.TotalAmount, Token: s.Token}
	if s.Cancelled {
		return md, nil
	}
	now := e.clock.Now()
	price, err := e.price(ctx, s, now)
	if err != nil {
		return stream.ReceiptMetadata{}, stream.ForStream(err, id)
	}
	u, err := settlement.Unlocked(s, now, price)
	if err != nil {
		return stream.ReceiptMetadata{}, stream.ForStream(err, id)
	}
	md.Unlocked = max(u-s.WithdrawnAmount, 0)
	md.Locked = s.TotalAmount - max(u, s.WithdrawnAmount)
	return md, nil
}

// GetVotingPower is the withdrawable balance, 0 once cancelled.
func (e *Engine) GetVotingPower(ctx context.Context, id uint64) (int64, error) {
	s, err := e.store.Stream(ctx, id)
	if err != nil {
		return 0, err
	}
	if s.Cancelled {
		return 0, nil
	}
	now := e.clock.Now()
	price, err := e.price(ctx, s, now)
	if err != nil {
		return 0, stream.ForStream(err, id)
	}
	return settlement.Available(s, now, price)
}

// GetVotingDelegate returns the delegate, or nil when the owner votes itself.
func (e *Engine) GetVotingDelegate(ctx context.Context, id uint64) (*stream.Address, error) {
	s, err := e.store.Stream(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Delegate, nil
}
