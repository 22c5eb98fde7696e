// Package settlement derives the balance deltas of every stream transition from
// the absolute state of the record. Nothing here mutates a stream; the engine
// applies the returned amounts once the matching transfers have succeeded.
package settlement

import (
	"math"

	"github.com/gyaneshwarpardhi/tokenstream/internal/curve"
	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
	"github.com/gyaneshwarpardhi/tokenstream/internal/usdpeg"
)

// MaxBasisPoints is 100%.
const MaxBasisPoints = 10_000

// PausedFor returns the total time s has spent paused up to now, including
// a pause that is still in progress.
func PausedFor(s *stream.Stream, now int64) int64 {
	paused := s.CumulativePausedPeriod
	if s.IsPaused && now > s.PausedAt {
		paused += now - s.PausedAt
	}
	return paused
}

// EffectiveTime shifts now back by the paused duration, so cliff, milestones
// and end are all evaluated on the stream's own clock.
func EffectiveTime(s *stream.Stream, now int64) int64 {
	return now - PausedFor(s, now)
}

// Unlocked returns the cumulative token entitlement of s at now.
//
// USD-pegged streams vest in USD and the result is converted at price, then
// capped at the deposited total. price is ignored for token streams.
func Unlocked(s *stream.Stream, now, price int64) (int64, error) {
	eff := EffectiveTime(s, now)
	sched := curve.ScheduleOf(s)
	if s.USDPeg == nil {
		return curve.Unlocked(sched, eff)
	}

	usd, err := curve.Unlocked(sched.WithTotal(s.USDPeg.USDAmount), eff)
	if err != nil {
		return 0, err
	}
	tokens, err := usdpeg.TokensForUSD(usd, price)
	if err != nil {
		return 0, err
	}
	return min(tokens, s.TotalAmount), nil
}

// Available is the unlocked balance not yet withdrawn, without any state
// checks. It backs the read views.
func Available(s *stream.Stream, now, price int64) (int64, error) {
	if s.Cancelled {
		return 0, nil
	}
	u, err := Unlocked(s, now, price)
	if err != nil {
		return 0, err
	}
	return max(u-s.WithdrawnAmount, 0), nil
}

// Withdrawable returns the amount the receipt owner can take at now.
func Withdrawable(s *stream.Stream, now, price int64) (int64, error) {
	if s.Cancelled {
		return 0, stream.ErrAlreadyCancelled
	}
	if s.IsFrozen {
		return 0, stream.ErrStreamFrozen
	}
	w, err := Available(s, now, price)
	if err != nil {
		return 0, err
	}
	if w <= 0 {
		return 0, stream.ErrNothingToWithdraw
	}
	return w, nil
}

// CancelSplit is the settlement of a cancellation.
type CancelSplit struct {
	Unlocked   int64
	ToReceiver int64
	ToSender   int64
}

// Cancel splits the stream at now: the vested but unwithdrawn part goes to
// the receiver, the unvested part back to the sender.
func Cancel(s *stream.Stream, now, price int64) (CancelSplit, error) {
	if s.Cancelled {
		return CancelSplit{}, stream.ErrAlreadyCancelled
	}
	u, err := Unlocked(s, now, price)
	if err != nil {
		return CancelSplit{}, err
	}
	// A USD stream whose token price rose can value the vested USD below what
	// was already paid out.
	u = max(u, s.WithdrawnAmount)
	return CancelSplit{
		Unlocked:   u,
		ToReceiver: u - s.WithdrawnAmount,
		ToSender:   s.TotalAmount - u,
	}, nil
}

// TopUpResult is the schedule after a top-up.
type TopUpResult struct {
	FlowRate      int64
	ExtraDuration int64
	EndTime       int64
	TotalAmount   int64
}

// TopUp extends the tail of s by extra at the original flow rate.
//
// When the rate floors to zero the amount is accepted without extending the
// end time.
func TopUp(s *stream.Stream, extra, now int64) (TopUpResult, error) {
	if s.Cancelled {
		return TopUpResult{}, stream.ErrAlreadyCancelled
	}
	if extra <= 0 {
		return TopUpResult{}, stream.Errorf(stream.CodeInvalidAmount, "top-up must be positive, got %d", extra)
	}
	if EffectiveTime(s, now) >= s.EndTime {
		return TopUpResult{}, stream.ErrStreamEnded
	}

	rate := s.TotalAmount / (s.EndTime - s.StartTime)
	var extraDuration int64
	if rate > 0 {
		extraDuration = extra / rate
	}
	if s.EndTime > math.MaxInt64-extraDuration || s.TotalAmount > math.MaxInt64-extra {
		return TopUpResult{}, stream.Errorf(stream.CodeArithmeticOverflow, "top-up of %d overflows stream %d", extra, s.ID)
	}
	return TopUpResult{
		FlowRate:      rate,
		ExtraDuration: extraDuration,
		EndTime:       s.EndTime + extraDuration,
		TotalAmount:   s.TotalAmount + extra,
	}, nil
}

// DisputeSplit is the arbiter's division of the remaining balance.
type DisputeSplit struct {
	ToReceiver int64
	ToSender   int64
}

// ResolveDispute splits total-withdrawn by receiverBps, ignoring the curve.
func ResolveDispute(s *stream.Stream, receiverBps uint32) (DisputeSplit, error) {
	if s.Cancelled {
		return DisputeSplit{}, stream.ErrAlreadyCancelled
	}
	if receiverBps > MaxBasisPoints {
		return DisputeSplit{}, stream.Errorf(stream.CodeInvalidBasisPoints, "receiver share %d exceeds %d", receiverBps, MaxBasisPoints)
	}
	remaining := s.Remaining()
	toReceiver, err := curve.MulDiv(remaining, int64(receiverBps), MaxBasisPoints)
	if err != nil {
		return DisputeSplit{}, err
	}
	return DisputeSplit{ToReceiver: toReceiver, ToSender: remaining - toReceiver}, nil
}

// Clawback returns the amount routed to the issuer on a compliance clawback.
func Clawback(s *stream.Stream) (int64, error) {
	if s.Cancelled {
		return 0, stream.ErrAlreadyCancelled
	}
	if !s.ClawbackEnabled {
		return 0, stream.ErrClawbackDisabled
	}
	return s.Remaining(), nil
}

// SharesFor returns the vault shares backing amount out of a position whose
// remaining principal is backed by shares. Releasing the whole remainder
// releases every share.
func SharesFor(shares, amount, remaining int64) (int64, error) {
	if amount <= 0 || shares <= 0 {
		return 0, nil
	}
	if amount >= remaining {
		return shares, nil
	}
	return curve.MulDiv(shares, amount, remaining)
}

// Fee returns floor(amount*bps/10000).
func Fee(amount int64, bps uint32) (int64, error) {
	if bps == 0 {
		return 0, nil
	}
	if bps > MaxBasisPoints {
		return 0, stream.Errorf(stream.CodeInvalidBasisPoints, "fee %d exceeds %d", bps, MaxBasisPoints)
	}
	return curve.MulDiv(amount, int64(bps), MaxBasisPoints)
}
