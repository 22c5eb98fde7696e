package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gyaneshwarpardhi/tokenstream/internal/events"
	"github.com/gyaneshwarpardhi/tokenstream/internal/metrics"
	"github.com/gyaneshwarpardhi/tokenstream/internal/store"
	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
	"github.com/gyaneshwarpardhi/tokenstream/internal/usdpeg"
	"github.com/gyaneshwarpardhi/tokenstream/internal/vault"
)

// Flow labels for settled amounts.
const (
	flowDeposit    = "deposit"
	flowFee        = "fee"
	flowWithdrawal = "withdrawal"
	flowRefund     = "refund"
	flowInterest   = "interest"
	flowClawback   = "clawback"
)

type undoStep struct {
	desc string
	fn   func(ctx context.Context) error
}

type settledFlow struct {
	token  string
	flow   string
	amount int64
}

// txn is the working state of one operation: the pending record writes,
// the reversals of every external effect made so far and the events to
// publish once the writes are durable.
type txn struct {
	e   *Engine
	now int64
	pol *policy

	batch   store.Batch
	undo    []undoStep
	events  []events.Event
	settled []settledFlow
}

func (t *txn) move(ctx context.Context, token string, from, to stream.Address, amount int64, flow string) error {
	if amount <= 0 || from == to {
		return nil
	}
	if err := t.e.ledger.Move(ctx, token, from, to, amount); err != nil {
		return stream.Wrap(stream.CodeTransferFailed, err, fmt.Sprintf("move %d %s from %s to %s", amount, token, from, to))
	}
	t.undo = append(t.undo, undoStep{
		desc: fmt.Sprintf("return %d %s from %s to %s", amount, token, to, from),
		fn: func(ctx context.Context) error {
			return t.e.ledger.Move(ctx, token, to, from, amount)
		},
	})
	t.settled = append(t.settled, settledFlow{token: token, flow: flow, amount: amount})
	return nil
}

func (t *txn) deposit(ctx context.Context, v vault.Vault, token string, amount int64) (int64, error) {
	shares, err := v.Deposit(ctx, token, amount)
	if err != nil {
		return 0, vaultError(err, "deposit")
	}
	t.undo = append(t.undo, undoStep{
		desc: fmt.Sprintf("redeem %d shares", shares),
		fn: func(ctx context.Context) error {
			_, err := v.Withdraw(ctx, token, shares)
			return err
		},
	})
	return shares, nil
}

func (t *txn) redeem(ctx context.Context, v vault.Vault, s *stream.Stream, shares int64) (int64, error) {
	if shares <= 0 {
		return 0, nil
	}
	amount, err := v.Withdraw(ctx, s.Token, shares)
	if err != nil {
		return 0, vaultError(err, "withdraw")
	}
	id := s.ID
	t.undo = append(t.undo, undoStep{
		desc: fmt.Sprintf("re-deposit %d %s for stream %d", amount, s.Token, id),
		fn: func(ctx context.Context) error {
			var minted int64
			if amount > 0 {
				var err error
				if minted, err = v.Deposit(ctx, s.Token, amount); err != nil {
					return err
				}
			}
			if minted == shares {
				return nil
			}
			// the vault mints at its current ratio, so the committed
			// position has to follow the shares that really exist
			return t.e.adjustShares(ctx, id, minted-shares)
		},
	})
	return amount, nil
}

// adjustShares commits a change to the share count of a stream's vault
// position outside any operation. Only rollback uses it.
func (e *Engine) adjustShares(ctx context.Context, id uint64, delta int64) error {
	s, err := e.store.Stream(ctx, id)
	if err != nil {
		return err
	}
	if s.Vault == nil {
		return nil
	}
	s.Vault.Shares += delta
	var b store.Batch
	b.PutStream(s)
	return e.store.Commit(ctx, &b)
}

func vaultError(err error, op string) error {
	var se *stream.Error
	if errors.As(err, &se) {
		return err
	}
	return stream.Wrap(stream.CodeVaultFailed, err, "vault "+op)
}

func (t *txn) emit(ev events.Event) {
	t.events = append(t.events, ev)
}

// rollback reverses external effects newest first. It runs detached from
// the caller's cancellation.
func (t *txn) rollback(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i := len(t.undo) - 1; i >= 0; i-- {
		step := t.undo[i]
		if err := step.fn(ctx); err != nil {
			metrics.Compensations.WithLabelValues("failed").Inc()
			slog.Error("compensation failed", "step", step.desc, "err", err)
			continue
		}
		metrics.Compensations.WithLabelValues("ok").Inc()
	}
}

func (t *txn) finish(ctx context.Context) {
	for _, f := range t.settled {
		metrics.Settled.WithLabelValues(f.token, f.flow).Add(float64(f.amount))
	}
	if t.e.notifier == nil {
		return
	}
	for _, ev := range t.events {
		t.e.notifier.Notify(ctx, ev)
	}
}

// price fetches and checks a fresh oracle price for a USD-pegged stream.
// Token streams need none and get 0.
func (e *Engine) price(ctx context.Context, s *stream.Stream, now int64) (int64, error) {
	if s.USDPeg == nil {
		return 0, nil
	}
	return e.quote(ctx, s.USDPeg, now)
}

func (e *Engine) quote(ctx context.Context, peg *stream.USDPeg, now int64) (int64, error) {
	if e.oracles == nil {
		return 0, stream.Errorf(stream.CodeOracleFailed, "no price feeds configured")
	}
	feed, err := e.oracles.Get(peg.Oracle)
	if err != nil {
		return 0, err
	}
	p, err := feed.Price(ctx)
	if err != nil {
		var se *stream.Error
		if errors.As(err, &se) {
			return 0, err
		}
		return 0, stream.Wrap(stream.CodeOracleFailed, err, "price feed "+peg.Oracle)
	}
	if err := usdpeg.Check(p, peg, now); err != nil {
		return 0, err
	}
	return p.Value, nil
}
