// Package events carries stream notifications from the engine to
// subscribers: an in-process bus, Redis pub/sub, or both.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type names what happened.
type Type string

const (
	StreamCreated       Type = "stream.created"
	StreamWithdrawn     Type = "stream.withdrawn"
	StreamCancelled     Type = "stream.cancelled"
	StreamPaused        Type = "stream.paused"
	StreamUnpaused      Type = "stream.unpaused"
	StreamToppedUp      Type = "stream.topped_up"
	ReceiverTransferred Type = "stream.receiver_transferred"
	ReceiptTransferred  Type = "stream.receipt_transferred"
	ArbiterSet          Type = "stream.arbiter_set"
	StreamFrozen        Type = "stream.frozen"
	StreamUnfrozen      Type = "stream.unfrozen"
	DisputeResolved     Type = "stream.dispute_resolved"
	StreamClawedBack    Type = "stream.clawed_back"
	VotingDelegated     Type = "stream.voting_delegated"
	ProposalCreated     Type = "proposal.created"
	ProposalApproved    Type = "proposal.approved"
	ProposalExecuted    Type = "proposal.executed"
)

// Event is one committed state change.
type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	StreamID   uint64         `json:"stream_id,omitempty"`
	ProposalID uint64         `json:"proposal_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// New stamps an event with a fresh id and the current time.
func New(t Type, streamID uint64, data map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		StreamID:   streamID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Sink delivers events somewhere.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }
