package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/gyaneshwarpardhi/tokenstream/internal/curve"
	"github.com/gyaneshwarpardhi/tokenstream/internal/events"
	"github.com/gyaneshwarpardhi/tokenstream/internal/interest"
	"github.com/gyaneshwarpardhi/tokenstream/internal/metrics"
	"github.com/gyaneshwarpardhi/tokenstream/internal/settlement"
	"github.com/gyaneshwarpardhi/tokenstream/internal/store"
	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
	"github.com/gyaneshwarpardhi/tokenstream/internal/usdpeg"
)

// CreateRequest describes a new stream. Amount is what leaves the sender;
// the protocol fee is taken out of it.
type CreateRequest struct {
	Sender           stream.Address     `json:"sender"`
	Receiver         stream.Address     `json:"receiver"`
	Token            string             `json:"token"`
	Amount           int64              `json:"amount"`
	StartTime        int64              `json:"start_time"`
	EndTime          int64              `json:"end_time"`
	CliffTime        *int64             `json:"cliff_time,omitempty"`
	Milestones       []stream.Milestone `json:"milestones,omitempty"`
	Curve            stream.Curve       `json:"curve_type"`
	Soulbound        bool               `json:"is_soulbound"`
	// ClawbackEnabled defaults to true; only an explicit false opts the
	// stream out of governance clawback.
	ClawbackEnabled  *bool              `json:"clawback_enabled,omitempty"`
	InterestStrategy uint32             `json:"interest_strategy"`
	Vault            *stream.Address    `json:"vault,omitempty"`
	Arbiter          *stream.Address    `json:"arbiter,omitempty"`
}

// USDRequest describes a USD-denominated stream. Amount is ignored: the
// token principal is bought at the oracle price when the stream is created.
type USDRequest struct {
	CreateRequest
	USDAmount    int64  `json:"usd_amount"`
	Oracle       string `json:"oracle"`
	MaxStaleness int64  `json:"max_staleness"`
	PriceMin     int64  `json:"price_min"`
	PriceMax     int64  `json:"price_max"`
}

// CreateStream funds and records a new stream and mints its receipt to the receiver.
func (e *Engine) CreateStream(ctx context.Context, req CreateRequest) (uint64, error) {
	var id uint64
	err := e.mutate(ctx, "create_stream", 0, func(ctx context.Context, tx *txn) error {
		if err := e.auth.Require(ctx, req.Sender); err != nil {
			return err
		}
		ids, err := e.create(ctx, tx, req.Sender, req.Token, []pending{{req: req, fee: true}})
		if err != nil {
			return err
		}
		id = ids[0]
		return nil
	})
	return id, err
}

// CreateStreamWithMilestones is CreateStream with a required milestone schedule.
func (e *Engine) CreateStreamWithMilestones(ctx context.Context, req CreateRequest, milestones []stream.Milestone) (uint64, error) {
	if len(milestones) == 0 {
		return 0, stream.Errorf(stream.CodeInvalidMilestones, "at least one milestone is required")
	}
	req.Milestones = milestones
	return e.CreateStream(ctx, req)
}

// CreateUSDPeggedStream creates a stream whose vesting runs in USD and is paid
// in tokens at the price current at each withdrawal.
func (e *Engine) CreateUSDPeggedStream(ctx context.Context, req USDRequest) (uint64, error) {
	var id uint64
	err := e.mutate(ctx, "create_usd_pegged_stream", 0, func(ctx context.Context, tx *txn) error {
		if err := e.auth.Require(ctx, req.Sender); err != nil {
			return err
		}
		peg := &stream.USDPeg{
			USDAmount:    req.USDAmount,
			Oracle:       req.Oracle,
			MaxStaleness: req.MaxStaleness,
			PriceMin:     req.PriceMin,
			PriceMax:     req.PriceMax,
		}
		if err := usdpeg.ValidatePeg(peg); err != nil {
			return err
		}
		if req.Vault != nil {
			return stream.Errorf(stream.CodeUnsupported, "USD-pegged streams cannot use a vault")
		}
		price, err := e.quote(ctx, peg, tx.now)
		if err != nil {
			return err
		}
		tokens, err := usdpeg.TokensForUSD(peg.USDAmount, price)
		if err != nil {
			return err
		}
		r := req.CreateRequest
		r.Amount = tokens
		ids, err := e.create(ctx, tx, r.Sender, r.Token, []pending{{req: r, peg: peg}})
		if err != nil {
			return err
		}
		id = ids[0]
		return nil
	})
	return id, err
}

// CreateBatch creates one stream per request from a single sender and
// token, funded by one transfer. Either every stream is created or none is.
func (e *Engine) CreateBatch(ctx context.Context, sender stream.Address, token string, reqs []CreateRequest) ([]uint64, error) {
	var ids []uint64
	err := e.mutate(ctx, "create_batch_streams", 0, func(ctx context.Context, tx *txn) error {
		if err := e.auth.Require(ctx, sender); err != nil {
			return err
		}
		if len(reqs) == 0 {
			return stream.Errorf(stream.CodeInvalidRequest, "batch is empty")
		}
		items := make([]pending, len(reqs))
		for i, r := range reqs {
			r.Sender, r.Token = sender, token
			items[i] = pending{req: r, fee: true}
		}
		var err error
		ids, err = e.create(ctx, tx, sender, token, items)
		return err
	})
	return ids, err
}

type pending struct {
	req CreateRequest
	peg *stream.USDPeg
	fee bool
}

// create validates every request, funds custody and the treasury, moves
// vaulted principal into its vault and stages the records.
func (e *Engine) create(ctx context.Context, tx *txn, sender stream.Address, token string, items []pending) ([]uint64, error) {
	if err := tx.pol.checkToken(token); err != nil {
		return nil, err
	}
	if err := tx.pol.checkAddress(sender); err != nil {
		return nil, err
	}
	last, err := e.store.Sequence(ctx, store.KindStream)
	if err != nil {
		return nil, err
	}

	streams := make([]*stream.Stream, len(items))
	var principal, fees int64
	for i, it := range items {
		s, fee, err := e.build(tx, it, last+uint64(i)+1)
		if err != nil {
			if len(items) > 1 {
				return nil, fmt.Errorf("request %d: %w", i, err)
			}
			return nil, err
		}
		if principal > math.MaxInt64-s.TotalAmount || fees > math.MaxInt64-fee {
			return nil, stream.Errorf(stream.CodeArithmeticOverflow, "batch total overflows")
		}
		principal += s.TotalAmount
		fees += fee
		streams[i] = s
	}

	if err := tx.move(ctx, token, sender, e.custody, principal, flowDeposit); err != nil {
		return nil, err
	}
	if err := tx.move(ctx, token, sender, tx.pol.Treasury, fees, flowFee); err != nil {
		return nil, err
	}

	ids := make([]uint64, len(streams))
	for i, s := range streams {
		if s.Vault != nil {
			v, err := e.vault(s.Vault.Vault)
			if err != nil {
				return nil, err
			}
			shares, err := tx.deposit(ctx, v, s.Token, s.TotalAmount)
			if err != nil {
				return nil, err
			}
			s.Vault.Shares = shares
		}
		tx.batch.PutStream(s)
		tx.batch.PutReceipt(&stream.Receipt{StreamID: s.ID, Owner: s.Receiver, MintedAt: tx.now})
		tx.emit(events.New(events.StreamCreated, s.ID, map[string]any{"stream": s.Clone()}))
		ids[i] = s.ID
	}
	tx.batch.SetSequence(store.KindStream, last+uint64(len(streams)))
	metrics.StreamsCreated.Add(float64(len(streams)))
	return ids, nil
}

func (e *Engine) build(tx *txn, it pending, id uint64) (*stream.Stream, int64, error) {
	r := it.req
	if r.Amount <= 0 {
		return nil, 0, stream.Errorf(stream.CodeInvalidAmount, "amount must be positive, got %d", r.Amount)
	}
	if err := tx.pol.checkAddress(r.Receiver); err != nil {
		return nil, 0, err
	}
	if r.Arbiter != nil {
		if err := tx.pol.checkAddress(*r.Arbiter); err != nil {
			return nil, 0, err
		}
	}

	var fee int64
	if it.fee && tx.pol.Treasury != "" {
		var err error
		if fee, err = settlement.Fee(r.Amount, tx.pol.FeeBps); err != nil {
			return nil, 0, err
		}
	}
	total := r.Amount - fee

	sched := curve.Schedule{
		Total:      total,
		Start:      r.StartTime,
		End:        r.EndTime,
		Cliff:      r.CliffTime,
		Milestones: r.Milestones,
		Curve:      r.Curve,
	}
	if err := curve.Validate(sched); err != nil {
		return nil, 0, err
	}
	if err := interest.ValidateStrategy(r.InterestStrategy); err != nil {
		return nil, 0, err
	}

	clawback := r.ClawbackEnabled == nil || *r.ClawbackEnabled
	s := &stream.Stream{
		ID:               id,
		Sender:           r.Sender,
		Receiver:         r.Receiver,
		Token:            r.Token,
		TotalAmount:      total,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		CliffTime:        r.CliffTime,
		Milestones:       r.Milestones,
		Curve:            r.Curve,
		Arbiter:          r.Arbiter,
		IsSoulbound:      r.Soulbound,
		ClawbackEnabled:  clawback,
		InterestStrategy: r.InterestStrategy,
		USDPeg:           it.peg,
		CreatedAt:        tx.now,
	}
	if r.Vault != nil {
		if _, err := e.vault(*r.Vault); err != nil {
			return nil, 0, err
		}
		s.Vault = &stream.VaultPosition{Vault: *r.Vault, Principal: total}
	}
	return s, fee, nil
}
