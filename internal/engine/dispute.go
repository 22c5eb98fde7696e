package engine

import (
	"context"

	"github.com/gyaneshwarpardhi/tokenstream/internal/auth"
	"github.com/gyaneshwarpardhi/tokenstream/internal/events"
	"github.com/gyaneshwarpardhi/tokenstream/internal/settlement"
	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

// SetArbiter names the party allowed to freeze and settle the stream.
func (e *Engine) SetArbiter(ctx context.Context, id uint64, arbiter stream.Address) error {
	return e.mutate(ctx, "set_arbiter", id, func(ctx context.Context, tx *txn) error {
		s, err := e.senderStream(ctx, id)
		if err != nil {
			return err
		}
		if s.IsFrozen {
			return stream.ErrStreamFrozen
		}
		if err := tx.pol.checkAddress(arbiter); err != nil {
			return err
		}
		s.Arbiter = &arbiter
		tx.batch.PutStream(s)
		tx.emit(events.New(events.ArbiterSet, id, map[string]any{"arbiter": arbiter}))
		return nil
	})
}

// Freeze holds the stream for a dispute. Withdrawals and cancellation are
// rejected until the arbiter unfreezes or resolves it.
func (e *Engine) Freeze(ctx context.Context, id uint64) error {
	return e.setFrozen(ctx, "freeze", id, true)
}

// Unfreeze returns a frozen stream to its previous state.
func (e *Engine) Unfreeze(ctx context.Context, id uint64) error {
	return e.setFrozen(ctx, "unfreeze", id, false)
}

func (e *Engine) setFrozen(ctx context.Context, op string, id uint64, frozen bool) error {
	return e.mutate(ctx, op, id, func(ctx context.Context, tx *txn) error {
		s, err := e.store.Stream(ctx, id)
		if err != nil {
			return err
		}
		if err := e.requireArbiter(ctx, s); err != nil {
			return err
		}
		if s.Cancelled {
			return stream.ErrAlreadyCancelled
		}
		if s.IsFrozen == frozen {
			return nil
		}
		s.IsFrozen = frozen
		tx.batch.PutStream(s)
		t := events.StreamFrozen
		if !frozen {
			t = events.StreamUnfrozen
		}
		tx.emit(events.New(t, id, map[string]any{"arbiter": *s.Arbiter}))
		return nil
	})
}

// DisputeResult is the arbiter's settlement of a stream.
type DisputeResult struct {
	ToReceiver int64 `json:"to_receiver"`
	ToSender   int64 `json:"to_sender"`
	Interest   int64 `json:"interest"`
}

// ResolveDispute splits the unwithdrawn balance by receiverBps and ends the
// stream, whatever the curve says.
func (e *Engine) ResolveDispute(ctx context.Context, id uint64, receiverBps uint32) (DisputeResult, error) {
	var res DisputeResult
	err := e.mutate(ctx, "resolve_dispute", id, func(ctx context.Context, tx *txn) error {
		s, rc, err := e.loadWithReceipt(ctx, id)
		if err != nil {
			return err
		}
		if err := e.requireArbiter(ctx, s); err != nil {
			return err
		}
		split, err := settlement.ResolveDispute(s, receiverBps)
		if err != nil {
			return err
		}

		rel, err := e.release(ctx, tx, s, s.Remaining())
		if err != nil {
			return err
		}
		toReceiver, err := e.payInterest(ctx, tx, s, rel.interest)
		if err != nil {
			return err
		}
		out := DisputeResult{ToReceiver: split.ToReceiver, ToSender: split.ToSender, Interest: toReceiver}
		absorb(rel.shortfall, &out.ToSender, &out.ToReceiver)
		if err := tx.move(ctx, s.Token, e.custody, rc.Owner, out.ToReceiver, flowWithdrawal); err != nil {
			return err
		}
		if err := tx.move(ctx, s.Token, e.custody, rc.Owner, toReceiver, flowInterest); err != nil {
			return err
		}
		if err := tx.move(ctx, s.Token, e.custody, s.Sender, out.ToSender, flowRefund); err != nil {
			return err
		}

		s.Cancelled = true
		s.IsFrozen = false
		s.WithdrawnAmount += split.ToReceiver
		tx.batch.PutStream(s)
		tx.emit(events.New(events.DisputeResolved, id, map[string]any{
			"receiver_bps": receiverBps, "to_receiver": out.ToReceiver, "to_sender": out.ToSender,
		}))
		res = out
		return nil
	})
	return res, err
}

// GovernanceClawback cancels the stream on a compliance officer's order and
// sends everything still held for it, yield included, to issuer. It works on
// frozen streams too.
func (e *Engine) GovernanceClawback(ctx context.Context, id uint64, officer, issuer stream.Address) (int64, error) {
	var total int64
	err := e.mutate(ctx, "governance_clawback", id, func(ctx context.Context, tx *txn) error {
		if err := e.auth.Require(ctx, officer); err != nil {
			return err
		}
		if !e.auth.Has(ctx, officer, auth.ComplianceOfficer) {
			return stream.Errorf(stream.CodeUnauthorized, "%s is not a compliance officer", officer)
		}
		if issuer == "" {
			return stream.Errorf(stream.CodeInvalidRequest, "issuer is required")
		}
		s, err := e.store.Stream(ctx, id)
		if err != nil {
			return err
		}
		amount, err := settlement.Clawback(s)
		if err != nil {
			return err
		}
		rel, err := e.release(ctx, tx, s, amount)
		if err != nil {
			return err
		}
		amount, paid := rel.principal, rel.interest
		if err := tx.move(ctx, s.Token, e.custody, issuer, amount, flowClawback); err != nil {
			return err
		}
		if err := tx.move(ctx, s.Token, e.custody, issuer, paid, flowClawback); err != nil {
			return err
		}

		s.Cancelled = true
		s.IsFrozen = false
		tx.batch.PutStream(s)
		tx.emit(events.New(events.StreamClawedBack, id, map[string]any{
			"officer": officer, "issuer": issuer, "amount": amount, "interest": paid,
		}))
		total = amount + paid
		return nil
	})
	return total, err
}
