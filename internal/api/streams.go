package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gyaneshwarpardhi/tokenstream/internal/auth"
	"github.com/gyaneshwarpardhi/tokenstream/internal/engine"
	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

type createdResponse struct {
	StreamID uint64 `json:"stream_id"`
}

type addressRequest struct {
	To stream.Address `json:"to"`
}

// POST /v1/streams
func (h *Handler) createStream(w http.ResponseWriter, r *http.Request) {
	var req engine.CreateRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.eng.CreateStream(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{StreamID: id})
}

// POST /v1/streams/milestones
func (h *Handler) createMilestoneStream(w http.ResponseWriter, r *http.Request) {
	var req engine.CreateRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.eng.CreateStreamWithMilestones(r.Context(), req, req.Milestones)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{StreamID: id})
}

// POST /v1/streams/usd
func (h *Handler) createUSDStream(w http.ResponseWriter, r *http.Request) {
	var req engine.USDRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.eng.CreateUSDPeggedStream(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{StreamID: id})
}

// POST /v1/streams/batch: all-or-nothing creation of up to 100 streams.
func (h *Handler) createBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sender  stream.Address         `json:"sender"`
		Token   string                 `json:"token"`
		Streams []engine.CreateRequest `json:"streams"`
	}
	if !decode(w, r, &req) {
		return
	}
	if len(req.Streams) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(req.Streams), maxBatchSize))
		return
	}
	ids, err := h.eng.CreateBatch(r.Context(), req.Sender, req.Token, req.Streams)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"stream_ids": ids})
}

func (h *Handler) getStream(w http.ResponseWriter, r *http.Request) {
	h.read(w, r, func(ctx context.Context, id uint64) (any, error) { return h.eng.GetStream(ctx, id) })
}

func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	h.read(w, r, func(ctx context.Context, id uint64) (any, error) { return h.eng.GetReceipt(ctx, id) })
}

func (h *Handler) getReceiptMetadata(w http.ResponseWriter, r *http.Request) {
	h.read(w, r, func(ctx context.Context, id uint64) (any, error) { return h.eng.GetReceiptMetadata(ctx, id) })
}

func (h *Handler) getVotingPower(w http.ResponseWriter, r *http.Request) {
	h.read(w, r, func(ctx context.Context, id uint64) (any, error) {
		power, err := h.eng.GetVotingPower(ctx, id)
		if err != nil {
			return nil, err
		}
		delegate, err := h.eng.GetVotingDelegate(ctx, id)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"stream_id": id, "voting_power": power, "delegate": delegate}, nil
	})
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, func(ctx context.Context, id uint64) (any, error) { return h.eng.Withdraw(ctx, id) })
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, func(ctx context.Context, id uint64) (any, error) { return h.eng.Cancel(ctx, id) })
}

func (h *Handler) pause(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, func(ctx context.Context, id uint64) (any, error) { return nil, h.eng.Pause(ctx, id) })
}

func (h *Handler) unpause(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, func(ctx context.Context, id uint64) (any, error) { return nil, h.eng.Unpause(ctx, id) })
}

func (h *Handler) freeze(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, func(ctx context.Context, id uint64) (any, error) { return nil, h.eng.Freeze(ctx, id) })
}

func (h *Handler) unfreeze(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, func(ctx context.Context, id uint64) (any, error) { return nil, h.eng.Unfreeze(ctx, id) })
}

func (h *Handler) topUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.write(w, r, func(ctx context.Context, id uint64) (any, error) { return h.eng.TopUp(ctx, id, req.Amount) })
}

func (h *Handler) transferReceiver(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if !decode(w, r, &req) {
		return
	}
	h.write(w, r, func(ctx context.Context, id uint64) (any, error) {
		return nil, h.eng.TransferReceiver(ctx, id, req.To)
	})
}

func (h *Handler) transferReceipt(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if !decode(w, r, &req) {
		return
	}
	h.write(w, r, func(ctx context.Context, id uint64) (any, error) {
		return nil, h.eng.TransferReceipt(ctx, id, req.To)
	})
}

func (h *Handler) delegate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delegate stream.Address `json:"delegate"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.write(w, r, func(ctx context.Context, id uint64) (any, error) {
		return nil, h.eng.DelegateVotingPower(ctx, id, req.Delegate)
	})
}

func (h *Handler) setArbiter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Arbiter stream.Address `json:"arbiter"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.write(w, r, func(ctx context.Context, id uint64) (any, error) {
		return nil, h.eng.SetArbiter(ctx, id, req.Arbiter)
	})
}

func (h *Handler) resolveDispute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReceiverBps uint32 `json:"receiver_bps"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.write(w, r, func(ctx context.Context, id uint64) (any, error) {
		return h.eng.ResolveDispute(ctx, id, req.ReceiverBps)
	})
}

// POST /v1/streams/{id}/clawback: officer defaults to the caller.
func (h *Handler) clawback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Officer stream.Address `json:"officer"`
		Issuer  stream.Address `json:"issuer"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Officer == "" {
		req.Officer, _ = auth.Principal(r.Context())
	}
	h.write(w, r, func(ctx context.Context, id uint64) (any, error) {
		amount, err := h.eng.GovernanceClawback(ctx, id, req.Officer, req.Issuer)
		return map[string]int64{"amount": amount}, err
	})
}

// POST /v1/proposals
func (h *Handler) createProposal(w http.ResponseWriter, r *http.Request) {
	var req engine.ProposalRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.eng.CreateProposal(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"proposal_id": id})
}

func (h *Handler) getProposal(w http.ResponseWriter, r *http.Request) {
	h.read(w, r, func(ctx context.Context, id uint64) (any, error) { return h.eng.GetProposal(ctx, id) })
}

// POST /v1/proposals/{id}/approve: approver defaults to the caller.
func (h *Handler) approveProposal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Approver stream.Address `json:"approver"`
	}
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	if req.Approver == "" {
		req.Approver, _ = auth.Principal(r.Context())
	}
	h.write(w, r, func(ctx context.Context, id uint64) (any, error) {
		return h.eng.ApproveProposal(ctx, id, req.Approver)
	})
}

func (h *Handler) read(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uint64) (any, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	v, err := fn(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// write runs a mutating call. A nil result answers with the stream's new state.
func (h *Handler) write(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uint64) (any, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	v, err := fn(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if v == nil {
		s, err := h.eng.GetStream(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		v = map[string]interface{}{"stream_id": id, "state": s.State()}
	}
	writeJSON(w, http.StatusOK, v)
}
