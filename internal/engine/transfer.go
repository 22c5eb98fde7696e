package engine

import (
	"context"

	"github.com/gyaneshwarpardhi/tokenstream/internal/events"
	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

// TransferReceiver reassigns the nominal receiver. The receipt follows only
// while the old receiver still holds it. Soulbound streams refuse before
// anything else is checked.
func (e *Engine) TransferReceiver(ctx context.Context, id uint64, to stream.Address) error {
	return e.mutate(ctx, "transfer_receiver", id, func(ctx context.Context, tx *txn) error {
		s, rc, err := e.loadWithReceipt(ctx, id)
		if err != nil {
			return err
		}
		if s.IsSoulbound {
			return stream.ErrStreamIsSoulbound
		}
		if err := e.auth.Require(ctx, s.Sender); err != nil {
			return err
		}
		if s.Cancelled {
			return stream.ErrAlreadyCancelled
		}
		if err := tx.pol.checkAddress(to); err != nil {
			return err
		}
		from := s.Receiver
		if rc.Owner == from {
			rc.Owner = to
			tx.batch.PutReceipt(rc)
		}
		s.Receiver = to
		tx.batch.PutStream(s)
		tx.emit(events.New(events.ReceiverTransferred, id, map[string]any{"from": from, "to": to}))
		return nil
	})
}

// TransferReceipt hands the claim right to another owner.
func (e *Engine) TransferReceipt(ctx context.Context, id uint64, to stream.Address) error {
	return e.mutate(ctx, "transfer_receipt", id, func(ctx context.Context, tx *txn) error {
		s, rc, err := e.loadWithReceipt(ctx, id)
		if err != nil {
			return err
		}
		if s.IsSoulbound {
			return stream.ErrStreamIsSoulbound
		}
		if err := e.requireOwner(ctx, rc); err != nil {
			return err
		}
		if s.Cancelled {
			return stream.ErrAlreadyCancelled
		}
		if err := tx.pol.checkAddress(to); err != nil {
			return err
		}
		from := rc.Owner
		rc.Owner = to
		tx.batch.PutReceipt(rc)
		tx.emit(events.New(events.ReceiptTransferred, id, map[string]any{"from": from, "to": to}))
		return nil
	})
}

// DelegateVotingPower lets the receipt owner assign the stream's voting power.
func (e *Engine) DelegateVotingPower(ctx context.Context, id uint64, delegate stream.Address) error {
	return e.mutate(ctx, "delegate_voting_power", id, func(ctx context.Context, tx *txn) error {
		s, rc, err := e.loadWithReceipt(ctx, id)
		if err != nil {
			return err
		}
		if err := e.requireOwner(ctx, rc); err != nil {
			return err
		}
		if s.Cancelled {
			return stream.ErrAlreadyCancelled
		}
		if delegate == "" {
			return stream.Errorf(stream.CodeInvalidRequest, "delegate is required")
		}
		s.Delegate = &delegate
		tx.batch.PutStream(s)
		tx.emit(events.New(events.VotingDelegated, id, map[string]any{"owner": rc.Owner, "delegate": delegate}))
		return nil
	})
}
