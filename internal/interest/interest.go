// Package interest splits vault yield between the sender, the receiver and
// the protocol treasury according to a stream's three-bit strategy mask.
package interest

import (
	"fmt"
	"math/bits"

	"github.com/gyaneshwarpardhi/tokenstream/internal/curve"
	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

// Strategy bits.
const (
	ToSender   uint32 = 1 << 0
	ToReceiver uint32 = 1 << 1
	ToProtocol uint32 = 1 << 2

	mask = ToSender | ToReceiver | ToProtocol
)

// Split is the allocation of one interest amount. The three shares always
// add up to Total.
type Split struct {
	Total    int64 `json:"total_interest"`
	Sender   int64 `json:"to_sender"`
	Receiver int64 `json:"to_receiver"`
	Protocol int64 `json:"to_protocol"`
}

func (s Split) String() string {
	return fmt.Sprintf("sender=%d receiver=%d protocol=%d (total=%d)", s.Sender, s.Receiver, s.Protocol, s.Total)
}

// ValidateStrategy rejects masks with bits outside the three parties.
func ValidateStrategy(strategy uint32) error {
	if strategy&^mask != 0 {
		return stream.Errorf(stream.CodeInvalidStrategy, "interest strategy %#b has unknown bits", strategy)
	}
	return nil
}

// Distribute splits total evenly among the parties enabled in strategy. The
// remainder goes to the first enabled party in sender, receiver, protocol
// order, and an empty mask sends everything to the receiver.
func Distribute(total int64, strategy uint32) Split {
	if total <= 0 {
		return Split{}
	}
	strategy &= mask
	if strategy == 0 {
		return Split{Total: total, Receiver: total}
	}

	n := int64(bits.OnesCount32(strategy))
	share := total / n
	rem := total - share*n

	out := Split{Total: total}
	if strategy&ToSender != 0 {
		out.Sender = share
	}
	if strategy&ToReceiver != 0 {
		out.Receiver = share
	}
	if strategy&ToProtocol != 0 {
		out.Protocol = share
	}
	switch {
	case strategy&ToSender != 0:
		out.Sender += rem
	case strategy&ToReceiver != 0:
		out.Receiver += rem
	default:
		out.Protocol += rem
	}
	return out
}

// Earned is the yield of a vault position: value above principal, never negative.
func Earned(value, principal int64) int64 {
	if value > principal {
		return value - principal
	}
	return 0
}

// Prorate returns the part of earned attributable to withdrawing amount out
// of the remaining principal.
func Prorate(earned, amount, remaining int64) (int64, error) {
	if earned <= 0 || amount <= 0 {
		return 0, nil
	}
	if amount >= remaining {
		return earned, nil
	}
	return curve.MulDiv(earned, amount, remaining)
}
