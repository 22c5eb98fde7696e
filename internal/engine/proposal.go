package engine

import (
	"context"

	"github.com/gyaneshwarpardhi/tokenstream/internal/curve"
	"github.com/gyaneshwarpardhi/tokenstream/internal/events"
	"github.com/gyaneshwarpardhi/tokenstream/internal/store"
	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

// ProposalRequest describes a stream that is created once enough approvers sign off.
type ProposalRequest struct {
	Sender            stream.Address   `json:"sender"`
	Receiver          stream.Address   `json:"receiver"`
	Token             string           `json:"token"`
	Amount            int64            `json:"total_amount"`
	StartTime         int64            `json:"start_time"`
	EndTime           int64            `json:"end_time"`
	Approvers         []stream.Address `json:"approvers"`
	RequiredApprovals uint32           `json:"required_approvals"`
	Deadline          int64            `json:"deadline"`
}

// CreateProposal records a multisig stream proposal. Nothing is funded until it executes.
func (e *Engine) CreateProposal(ctx context.Context, req ProposalRequest) (uint64, error) {
	var id uint64
	err := e.mutate(ctx, "create_proposal", 0, func(ctx context.Context, tx *txn) error {
		if err := e.auth.Require(ctx, req.Sender); err != nil {
			return err
		}
		if err := tx.pol.checkToken(req.Token); err != nil {
			return err
		}
		if err := tx.pol.checkAddress(req.Sender, req.Receiver); err != nil {
			return err
		}
		if req.Amount <= 0 {
			return stream.Errorf(stream.CodeInvalidAmount, "amount must be positive, got %d", req.Amount)
		}
		if err := curve.Validate(curve.Schedule{Total: req.Amount, Start: req.StartTime, End: req.EndTime}); err != nil {
			return err
		}
		if len(req.Approvers) == 0 {
			return stream.Errorf(stream.CodeInvalidRequest, "at least one approver is required")
		}
		seen := make(map[stream.Address]struct{}, len(req.Approvers))
		for _, a := range req.Approvers {
			if a == "" {
				return stream.Errorf(stream.CodeInvalidRequest, "approver address is required")
			}
			if _, dup := seen[a]; dup {
				return stream.Errorf(stream.CodeInvalidRequest, "approver %s listed twice", a)
			}
			seen[a] = struct{}{}
		}
		if req.RequiredApprovals == 0 || int(req.RequiredApprovals) > len(req.Approvers) {
			return stream.Errorf(stream.CodeInvalidThreshold, "need between 1 and %d approvals, got %d", len(req.Approvers), req.RequiredApprovals)
		}
		if req.Deadline <= tx.now {
			return stream.Errorf(stream.CodeInvalidRequest, "deadline %d is not in the future", req.Deadline)
		}

		last, err := e.store.Sequence(ctx, store.KindProposal)
		if err != nil {
			return err
		}
		id = last + 1
		p := &stream.Proposal{
			ID:                id,
			Sender:            req.Sender,
			Receiver:          req.Receiver,
			Token:             req.Token,
			Amount:            req.Amount,
			StartTime:         req.StartTime,
			EndTime:           req.EndTime,
			Approvers:         req.Approvers,
			RequiredApprovals: req.RequiredApprovals,
			Deadline:          req.Deadline,
			CreatedAt:         tx.now,
		}
		tx.batch.PutProposal(p)
		tx.batch.SetSequence(store.KindProposal, id)
		ev := events.New(events.ProposalCreated, 0, map[string]any{"proposal": *p})
		ev.ProposalID = id
		tx.emit(ev)
		return nil
	})
	return id, err
}

// ApproveResult reports the proposal after an approval.
type ApproveResult struct {
	Approvals int    `json:"approvals"`
	Executed  bool   `json:"executed"`
	StreamID  uint64 `json:"stream_id,omitempty"`
}

// ApproveProposal records approver's approval. The approval that reaches the
// threshold creates the stream, funded by the proposal sender, in the same
// operation.
func (e *Engine) ApproveProposal(ctx context.Context, proposalID uint64, approver stream.Address) (ApproveResult, error) {
	var res ApproveResult
	err := e.mutate(ctx, "approve_proposal", 0, func(ctx context.Context, tx *txn) error {
		if err := e.auth.Require(ctx, approver); err != nil {
			return err
		}
		p, err := e.store.Proposal(ctx, proposalID)
		if err != nil {
			return err
		}
		switch {
		case p.Executed:
			return stream.ErrProposalAlreadyExecuted
		case tx.now > p.Deadline:
			return stream.ErrProposalExpired
		case !p.IsApprover(approver):
			return stream.Errorf(stream.CodeUnauthorized, "%s is not an approver of proposal %d", approver, p.ID)
		case p.HasApproved(approver):
			return stream.ErrAlreadyApproved
		}

		p.Approvals = append(p.Approvals, approver)
		ev := events.New(events.ProposalApproved, 0, map[string]any{"approver": approver, "approvals": len(p.Approvals)})
		ev.ProposalID = p.ID
		tx.emit(ev)

		if len(p.Approvals) >= int(p.RequiredApprovals) {
			ids, err := e.create(ctx, tx, p.Sender, p.Token, []pending{{
				req: CreateRequest{
					Sender:    p.Sender,
					Receiver:  p.Receiver,
					Token:     p.Token,
					Amount:    p.Amount,
					StartTime: p.StartTime,
					EndTime:   p.EndTime,
				},
				fee: true,
			}})
			if err != nil {
				return err
			}
			p.Executed = true
			p.StreamID = ids[0]
			ev := events.New(events.ProposalExecuted, p.StreamID, nil)
			ev.ProposalID = p.ID
			tx.emit(ev)
		}
		tx.batch.PutProposal(p)
		res = ApproveResult{Approvals: len(p.Approvals), Executed: p.Executed, StreamID: p.StreamID}
		return nil
	})
	return res, err
}
