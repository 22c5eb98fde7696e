package engine

import (
	"context"
	"log/slog"

	"github.com/gyaneshwarpardhi/tokenstream/internal/events"
	"github.com/gyaneshwarpardhi/tokenstream/internal/interest"
	"github.com/gyaneshwarpardhi/tokenstream/internal/settlement"
	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

// WithdrawResult is what a withdrawal paid to the receipt owner.
type WithdrawResult struct {
	Amount   int64 `json:"amount"`
	Interest int64 `json:"interest"`
	// Shortfall is unlocked principal the vault could not return. It counts
	// as withdrawn.
	Shortfall int64 `json:"shortfall,omitempty"`
}

// Withdraw pays the receipt owner everything unlocked and not yet withdrawn.
func (e *Engine) Withdraw(ctx context.Context, id uint64) (WithdrawResult, error) {
	var res WithdrawResult
	err := e.mutate(ctx, "withdraw", id, func(ctx context.Context, tx *txn) error {
		s, rc, err := e.loadWithReceipt(ctx, id)
		if err != nil {
			return err
		}
		if err := e.requireOwner(ctx, rc); err != nil {
			return err
		}
		switch {
		case s.Cancelled:
			return stream.ErrAlreadyCancelled
		case s.IsFrozen:
			return stream.ErrStreamFrozen
		case s.IsPaused:
			return stream.ErrStreamPaused
		}
		price, err := e.price(ctx, s, tx.now)
		if err != nil {
			return err
		}
		amount, err := settlement.Withdrawable(s, tx.now, price)
		if err != nil {
			return err
		}

		rel, err := e.release(ctx, tx, s, amount)
		if err != nil {
			return err
		}
		toReceiver, err := e.payInterest(ctx, tx, s, rel.interest)
		if err != nil {
			return err
		}
		if err := tx.move(ctx, s.Token, e.custody, rc.Owner, rel.principal, flowWithdrawal); err != nil {
			return err
		}
		if err := tx.move(ctx, s.Token, e.custody, rc.Owner, toReceiver, flowInterest); err != nil {
			return err
		}

		s.WithdrawnAmount += amount
		tx.batch.PutStream(s)
		tx.emit(events.New(events.StreamWithdrawn, id, map[string]any{
			"to": rc.Owner, "amount": rel.principal, "interest": toReceiver, "withdrawn": s.WithdrawnAmount,
		}))
		res = WithdrawResult{Amount: rel.principal, Interest: toReceiver, Shortfall: rel.shortfall}
		return nil
	})
	return res, err
}

// CancelResult is the settlement of a cancelled stream.
type CancelResult struct {
	ToReceiver int64 `json:"to_receiver"`
	ToSender   int64 `json:"to_sender"`
	Interest   int64 `json:"interest"`
}

// Cancel ends the stream: the vested remainder goes to the receipt owner and
// the unvested part back to the sender. Either party may cancel.
func (e *Engine) Cancel(ctx context.Context, id uint64) (CancelResult, error) {
	var res CancelResult
	err := e.mutate(ctx, "cancel", id, func(ctx context.Context, tx *txn) error {
		s, rc, err := e.loadWithReceipt(ctx, id)
		if err != nil {
			return err
		}
		if err := e.requireEither(ctx, s.Sender, rc.Owner); err != nil {
			return err
		}
		if s.Cancelled {
			return stream.ErrAlreadyCancelled
		}
		if s.IsFrozen {
			return stream.ErrStreamFrozen
		}
		price, err := e.price(ctx, s, tx.now)
		if err != nil {
			return err
		}
		split, err := settlement.Cancel(s, tx.now, price)
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
		out := CancelResult{ToReceiver: split.ToReceiver, ToSender: split.ToSender, Interest: toReceiver}
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
		s.WithdrawnAmount = split.Unlocked
		tx.batch.PutStream(s)
		tx.emit(events.New(events.StreamCancelled, id, map[string]any{
			"to_receiver": out.ToReceiver, "to_sender": out.ToSender, "interest": toReceiver,
		}))
		res = out
		return nil
	})
	return res, err
}

// Pause stops accrual until Unpause. Pausing a paused stream is a no-op.
func (e *Engine) Pause(ctx context.Context, id uint64) error {
	return e.mutate(ctx, "pause", id, func(ctx context.Context, tx *txn) error {
		s, err := e.senderStream(ctx, id)
		if err != nil || s.IsPaused {
			return err
		}
		s.IsPaused = true
		s.PausedAt = tx.now
		tx.batch.PutStream(s)
		tx.emit(events.New(events.StreamPaused, id, map[string]any{"paused_at": tx.now}))
		return nil
	})
}

// Unpause resumes accrual. The stream picks up where it stopped.
func (e *Engine) Unpause(ctx context.Context, id uint64) error {
	return e.mutate(ctx, "unpause", id, func(ctx context.Context, tx *txn) error {
		s, err := e.senderStream(ctx, id)
		if err != nil || !s.IsPaused {
			return err
		}
		s.CumulativePausedPeriod += max(tx.now-s.PausedAt, 0)
		s.IsPaused = false
		s.PausedAt = 0
		tx.batch.PutStream(s)
		tx.emit(events.New(events.StreamUnpaused, id, map[string]any{"paused_total": s.CumulativePausedPeriod}))
		return nil
	})
}

// TopUp adds extra to the stream and extends its end at the original rate.
func (e *Engine) TopUp(ctx context.Context, id uint64, extra int64) (settlement.TopUpResult, error) {
	var res settlement.TopUpResult
	err := e.mutate(ctx, "top_up", id, func(ctx context.Context, tx *txn) error {
		s, err := e.senderStream(ctx, id)
		if err != nil {
			return err
		}
		if s.USDPeg != nil {
			return stream.Errorf(stream.CodeUnsupported, "USD-pegged streams cannot be topped up")
		}
		if res, err = settlement.TopUp(s, extra, tx.now); err != nil {
			return err
		}
		if err := tx.move(ctx, s.Token, s.Sender, e.custody, extra, flowDeposit); err != nil {
			return err
		}
		if s.Vault != nil {
			v, err := e.vault(s.Vault.Vault)
			if err != nil {
				return err
			}
			shares, err := tx.deposit(ctx, v, s.Token, extra)
			if err != nil {
				return err
			}
			s.Vault.Shares += shares
			s.Vault.Principal += extra
		}
		s.EndTime = res.EndTime
		s.TotalAmount = res.TotalAmount
		tx.batch.PutStream(s)
		tx.emit(events.New(events.StreamToppedUp, id, map[string]any{
			"amount": extra, "end_time": s.EndTime, "total_amount": s.TotalAmount,
		}))
		return nil
	})
	return res, err
}

// senderStream loads a live stream its sender is acting on.
func (e *Engine) senderStream(ctx context.Context, id uint64) (*stream.Stream, error) {
	s, err := e.store.Stream(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.auth.Require(ctx, s.Sender); err != nil {
		return nil, err
	}
	if s.Cancelled {
		return nil, stream.ErrAlreadyCancelled
	}
	return s, nil
}

func (e *Engine) requireOwner(ctx context.Context, rc *stream.Receipt) error {
	if err := e.auth.Require(ctx, rc.Owner); err != nil {
		return stream.Wrap(stream.CodeNotReceiptOwner, err, "receipt owner authorization")
	}
	return nil
}

// released is what a vault redemption put back in custody. principal falls
// short of the amount asked for when the vault lost value, including the
// unit or so its share rounding costs a late depositor.
type released struct {
	principal int64
	interest  int64
	shortfall int64
}

// release redeems the vault shares backing amount of remaining principal.
// The position is updated in place. Streams without a vault have nothing to
// redeem and get amount back as principal.
func (e *Engine) release(ctx context.Context, tx *txn, s *stream.Stream, amount int64) (released, error) {
	pos := s.Vault
	if pos == nil || amount <= 0 {
		return released{principal: amount}, nil
	}
	v, err := e.vault(pos.Vault)
	if err != nil {
		return released{}, err
	}
	shares, err := settlement.SharesFor(pos.Shares, amount, pos.Principal)
	if err != nil {
		return released{}, err
	}
	value, err := v.Value(ctx, pos.Shares)
	if err != nil {
		return released{}, vaultError(err, "value")
	}
	due, err := interest.Prorate(interest.Earned(value, pos.Principal), amount, pos.Principal)
	if err != nil {
		return released{}, err
	}

	redeemed, err := tx.redeem(ctx, v, s, shares)
	if err != nil {
		return released{}, err
	}
	out := released{principal: min(redeemed, amount), interest: max(redeemed-amount, 0)}
	out.shortfall = amount - out.principal
	if out.shortfall > 0 {
		slog.Warn("vault returned less than principal",
			"stream_id", s.ID, "vault", pos.Vault, "principal", amount, "redeemed", redeemed)
	}
	// share rounding can return a few units above what the position earned;
	// the surplus belongs to the protocol
	if tx.pol.Treasury != "" && out.interest > due {
		if err := tx.move(ctx, s.Token, e.custody, tx.pol.Treasury, out.interest-due, flowInterest); err != nil {
			return released{}, err
		}
		out.interest = due
	}

	pos.Shares -= shares
	pos.Principal -= amount
	return out, nil
}

// absorb takes a vault shortfall out of the sender's refund first and the
// receiver's payout after that.
func absorb(shortfall int64, toSender, toReceiver *int64) {
	cut := min(shortfall, *toSender)
	*toSender -= cut
	*toReceiver -= min(shortfall-cut, *toReceiver)
}

// payInterest distributes paid by the stream's strategy, pays the sender and
// protocol shares and returns the receiver's share for the caller to pay.
// Without a treasury the protocol share goes to the receiver.
func (e *Engine) payInterest(ctx context.Context, tx *txn, s *stream.Stream, paid int64) (int64, error) {
	split := interest.Distribute(paid, s.InterestStrategy)
	if err := tx.move(ctx, s.Token, e.custody, s.Sender, split.Sender, flowInterest); err != nil {
		return 0, err
	}
	if tx.pol.Treasury == "" {
		return split.Receiver + split.Protocol, nil
	}
	if err := tx.move(ctx, s.Token, e.custody, tx.pol.Treasury, split.Protocol, flowInterest); err != nil {
		return 0, err
	}
	return split.Receiver, nil
}
