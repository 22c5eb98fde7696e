// Package stream holds the records the settlement engine persists: streams,
// their receipts and multisig proposals, plus the error taxonomy shared by
// every layer above it.
package stream

import (
	"fmt"
	"slices"
	"strings"
)

// Address identifies a principal: a sender, receiver, arbiter, vault or treasury.
type Address string

// Curve selects the unlock shape between start and end.
type Curve int

const (
	CurveLinear Curve = iota
	CurveExponential
)

func (c Curve) String() string {
	switch c {
	case CurveLinear:
		return "linear"
	case CurveExponential:
		return "exponential"
	}
	return fmt.Sprintf("curve(%d)", int(c))
}

// MarshalText encodes the curve by name.
func (c Curve) MarshalText() ([]byte, error) {
	if c != CurveLinear && c != CurveExponential {
		return nil, fmt.Errorf("unknown curve %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText accepts "linear" or "exponential"; empty means linear.
func (c *Curve) UnmarshalText(b []byte) error {
	parsed, err := ParseCurve(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCurve maps a curve name to its value.
func ParseCurve(s string) (Curve, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "linear":
		return CurveLinear, nil
	case "exponential":
		return CurveExponential, nil
	}
	return 0, fmt.Errorf("unknown curve %q", s)
}

// Milestone caps the curve value at Percentage of the total once Timestamp is reached.
type Milestone struct {
	Timestamp  int64  `json:"timestamp"`
	Percentage uint32 `json:"percentage"`
}

// USDPeg denominates a stream in USD (7 decimals) paid out in tokens at the live price.
type USDPeg struct {
	USDAmount    int64  `json:"usd_amount"`
	Oracle       string `json:"oracle"`
	MaxStaleness int64  `json:"max_staleness"`
	PriceMin     int64  `json:"price_min"`
	PriceMax     int64  `json:"price_max"`
}

// VaultPosition tracks the custody of a stream's principal inside a yield vault.
type VaultPosition struct {
	Vault     Address `json:"vault"`
	Principal int64   `json:"deposited_principal"`
	Shares    int64   `json:"shares"`
}

// State is the lifecycle position derived from the record flags.
type State string

const (
	StateActive    State = "active"
	StatePaused    State = "paused"
	StateFrozen    State = "frozen"
	StateCancelled State = "cancelled"
)

// Stream is the persisted vesting record.
type Stream struct {
	ID       uint64  `json:"id"`
	Sender   Address `json:"sender"`
	Receiver Address `json:"receiver"`
	Token    string  `json:"token"`

	TotalAmount int64       `json:"total_amount"`
	StartTime   int64       `json:"start_time"`
	EndTime     int64       `json:"end_time"`
	CliffTime   *int64      `json:"cliff_time,omitempty"`
	Milestones  []Milestone `json:"milestones,omitempty"`
	Curve       Curve       `json:"curve_type"`

	WithdrawnAmount int64 `json:"withdrawn_amount"`
	Cancelled       bool  `json:"cancelled"`

	IsPaused               bool  `json:"is_paused"`
	PausedAt               int64 `json:"paused_at,omitempty"`
	CumulativePausedPeriod int64 `json:"cumulative_paused_duration"`

	IsFrozen bool     `json:"is_frozen"`
	Arbiter  *Address `json:"arbiter,omitempty"`

	IsSoulbound      bool   `json:"is_soulbound"`
	ClawbackEnabled  bool   `json:"clawback_enabled"`
	InterestStrategy uint32 `json:"interest_strategy"`

	Vault  *VaultPosition `json:"vault,omitempty"`
	USDPeg *USDPeg        `json:"usd_peg,omitempty"`

	Delegate  *Address `json:"voting_delegate,omitempty"`
	CreatedAt int64    `json:"created_at"`
}

// State derives the lifecycle state. Cancelled dominates frozen, frozen dominates paused.
func (s *Stream) State() State {
	switch {
	case s.Cancelled:
		return StateCancelled
	case s.IsFrozen:
		return StateFrozen
	case s.IsPaused:
		return StatePaused
	}
	return StateActive
}

// Remaining is the principal still held for the stream.
func (s *Stream) Remaining() int64 {
	return s.TotalAmount - s.WithdrawnAmount
}

// Clone returns a deep copy so callers can mutate a working record and
// persist it only once every external effect has succeeded.
func (s *Stream) Clone() *Stream {
	cp := *s
	if s.CliffTime != nil {
		c := *s.CliffTime
		cp.CliffTime = &c
	}
	cp.Milestones = slices.Clone(s.Milestones)
	if s.Arbiter != nil {
		a := *s.Arbiter
		cp.Arbiter = &a
	}
	if s.Delegate != nil {
		d := *s.Delegate
		cp.Delegate = &d
	}
	if s.Vault != nil {
		v := *s.Vault
		cp.Vault = &v
	}
	if s.USDPeg != nil {
		p := *s.USDPeg
		cp.USDPeg = &p
	}
	return &cp
}

// Receipt is the transferable claim right over a stream.
type Receipt struct {
	StreamID uint64  `json:"stream_id"`
	Owner    Address `json:"owner"`
	MintedAt int64   `json:"minted_at"`
}

// ReceiptMetadata is the balance view of a receipt.
type ReceiptMetadata struct {
	StreamID uint64 `json:"stream_id"`
	Locked   int64  `json:"locked_balance"`
	Unlocked int64  `json:"unlocked_balance"`
	Total    int64  `json:"total_amount"`
	Token    string `json:"token"`
}

// Proposal is a pending multisig stream creation.
type Proposal struct {
	ID                uint64    `json:"id"`
	Sender            Address   `json:"sender"`
	Receiver          Address   `json:"receiver"`
	Token             string    `json:"token"`
	Amount            int64     `json:"total_amount"`
	StartTime         int64     `json:"start_time"`
	EndTime           int64     `json:"end_time"`
	Approvers         []Address `json:"approvers"`
	Approvals         []Address `json:"approvals"`
	RequiredApprovals uint32    `json:"required_approvals"`
	Deadline          int64     `json:"deadline"`
	Executed          bool      `json:"executed"`
	StreamID          uint64    `json:"stream_id,omitempty"`
	CreatedAt         int64     `json:"created_at"`
}

// IsApprover reports whether a may approve the proposal.
func (p *Proposal) IsApprover(a Address) bool {
	return slices.Contains(p.Approvers, a)
}

// HasApproved reports whether a has already approved.
func (p *Proposal) HasApproved(a Address) bool {
	return slices.Contains(p.Approvals, a)
}
