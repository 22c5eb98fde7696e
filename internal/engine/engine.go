// Package engine is the stream lifecycle state machine. Every mutating
// operation authorizes its caller, loads the record, computes deltas with
// the settlement calculators, performs the external transfers and then
// persists the record in one atomic batch. A failure at any step reverses
// the external effects already made and persists nothing.
package engine

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gyaneshwarpardhi/tokenstream/internal/auth"
	"github.com/gyaneshwarpardhi/tokenstream/internal/events"
	"github.com/gyaneshwarpardhi/tokenstream/internal/metrics"
	"github.com/gyaneshwarpardhi/tokenstream/internal/oracle"
	"github.com/gyaneshwarpardhi/tokenstream/internal/store"
	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
	"github.com/gyaneshwarpardhi/tokenstream/internal/vault"
)

// Store persists records.
type Store interface {
	Stream(ctx context.Context, id uint64) (*stream.Stream, error)
	Receipt(ctx context.Context, id uint64) (*stream.Receipt, error)
	Proposal(ctx context.Context, id uint64) (*stream.Proposal, error)
	Sequence(ctx context.Context, kind store.Kind) (uint64, error)
	Commit(ctx context.Context, b *store.Batch) error
}

// Ledger is the atomic transfer primitive.
type Ledger interface {
	Move(ctx context.Context, token string, from, to stream.Address, amount int64) error
}

// Authorizer answers who the caller is and what it may do.
type Authorizer interface {
	Require(ctx context.Context, p stream.Address) error
	Has(ctx context.Context, p stream.Address, c auth.Capability) bool
}

// Vaults resolves approved vaults.
type Vaults interface {
	Get(id stream.Address) (vault.Vault, error)
}

// Oracles resolves price feeds.
type Oracles interface {
	Get(id string) (oracle.Feed, error)
}

// Notifier receives events after their operation committed.
type Notifier interface {
	Notify(ctx context.Context, ev events.Event)
}

// Clock returns unix seconds.
type Clock interface {
	Now() int64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() int64

func (f ClockFunc) Now() int64 { return f() }

// SystemClock reads the wall clock.
var SystemClock = ClockFunc(func() int64 { return time.Now().Unix() })

// Deps are the engine's collaborators. Vaults, Oracles, Notifier and Clock
// are optional.
type Deps struct {
	Store    Store
	Ledger   Ledger
	Auth     Authorizer
	Vaults   Vaults
	Oracles  Oracles
	Notifier Notifier
	Clock    Clock
	// Custody holds deposited principal between creation and settlement.
	Custody stream.Address
}

// Policy is the hot-reloadable part of the engine's behaviour.
type Policy struct {
	Treasury      stream.Address
	FeeBps        uint32
	Halted        bool
	AllowedTokens []string
	Restricted    []stream.Address
}

type policy struct {
	Policy
	tokens     map[string]struct{}
	restricted map[stream.Address]struct{}
}

func compile(p Policy) *policy {
	c := &policy{
		Policy:     p,
		tokens:     make(map[string]struct{}, len(p.AllowedTokens)),
		restricted: make(map[stream.Address]struct{}, len(p.Restricted)),
	}
	for _, t := range p.AllowedTokens {
		c.tokens[t] = struct{}{}
	}
	for _, a := range p.Restricted {
		c.restricted[a] = struct{}{}
	}
	return c
}

func (p *policy) checkToken(token string) error {
	if token == "" {
		return stream.Errorf(stream.CodeInvalidRequest, "token is required")
	}
	if len(p.tokens) == 0 {
		return nil
	}
	if _, ok := p.tokens[token]; !ok {
		return stream.Errorf(stream.CodeTokenNotAllowed, "token %q is not on the allowlist", token)
	}
	return nil
}

func (p *policy) checkAddress(addrs ...stream.Address) error {
	for _, a := range addrs {
		if a == "" {
			return stream.Errorf(stream.CodeInvalidRequest, "address is required")
		}
		if _, ok := p.restricted[a]; ok {
			return stream.Errorf(stream.CodeAddressRestricted, "address %s is restricted", a)
		}
	}
	return nil
}

// Engine serializes operations on the stream store.
type Engine struct {
	store    Store
	ledger   Ledger
	auth     Authorizer
	vaults   Vaults
	oracles  Oracles
	notifier Notifier
	clock    Clock
	custody  stream.Address

	policy atomic.Pointer[policy]
	mu     sync.Mutex
	tracer trace.Tracer
}

// New creates an Engine.
func New(d Deps, p Policy) *Engine {
	e := &Engine{
		store:    d.Store,
		ledger:   d.Ledger,
		auth:     d.Auth,
		vaults:   d.Vaults,
		oracles:  d.Oracles,
		notifier: d.Notifier,
		clock:    d.Clock,
		custody:  d.Custody,
		tracer:   otel.Tracer("github.com/gyaneshwarpardhi/tokenstream/internal/engine"),
	}
	if e.clock == nil {
		e.clock = SystemClock
	}
	e.policy.Store(compile(p))
	return e
}

// SwapPolicy atomically replaces the policy (used on hot-reload).
func (e *Engine) SwapPolicy(p Policy) {
	e.policy.Store(compile(p))
}

// Policy returns a copy of the current policy.
func (e *Engine) Policy() Policy {
	p := e.policy.Load().Policy
	p.AllowedTokens = slices.Clone(p.AllowedTokens)
	p.Restricted = slices.Clone(p.Restricted)
	return p
}

// Custody is the address holding streamed principal.
func (e *Engine) Custody() stream.Address { return e.custody }

type guardKey struct{}

// mutate runs fn as one atomic operation. Calls that arrive on a context
// already inside an operation fail with ErrReentrant instead of waiting on
// the lock they would never get.
func (e *Engine) mutate(ctx context.Context, op string, id uint64, fn func(ctx context.Context, tx *txn) error) error {
	if inflight, busy := ctx.Value(guardKey{}).(string); busy {
		return stream.Errorf(stream.CodeReentrant, "%s called during %s", op, inflight)
	}
	ctx, span := e.tracer.Start(ctx, "engine."+op, trace.WithAttributes(attribute.Int64("stream.id", int64(id))))
	defer span.End()
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()
	ctx = context.WithValue(ctx, guardKey{}, op)

	tx := &txn{e: e, now: e.clock.Now(), pol: e.policy.Load()}
	err := func() error {
		if tx.pol.Halted {
			return stream.Errorf(stream.CodeServiceHalted, "%s rejected while halted", op)
		}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return e.store.Commit(ctx, &tx.batch)
	}()
	if err != nil {
		tx.rollback(ctx)
		err = stream.ForStream(err, id)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		tx.finish(ctx)
		slog.Debug("operation committed", "op", op, "stream_id", id, "writes", tx.batch.Len())
	}
	observe(op, start, err)
	return err
}

func observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(stream.ClassOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	metrics.Operations.WithLabelValues(op, outcome).Inc()
	metrics.OperationDuration.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()) / 1000)
}

func (e *Engine) loadWithReceipt(ctx context.Context, id uint64) (*stream.Stream, *stream.Receipt, error) {
	s, err := e.store.Stream(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := e.store.Receipt(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return s, rc, nil
}

// requireEither passes when the caller is a or b.
func (e *Engine) requireEither(ctx context.Context, a, b stream.Address) error {
	if err := e.auth.Require(ctx, a); err != nil {
		if err := e.auth.Require(ctx, b); err != nil {
			return stream.Errorf(stream.CodeUnauthorized, "caller is neither %s nor %s", a, b)
		}
	}
	return nil
}

func (e *Engine) requireArbiter(ctx context.Context, s *stream.Stream) error {
	if s.Arbiter == nil {
		return stream.ErrNoArbiter
	}
	if err := e.auth.Require(ctx, *s.Arbiter); err != nil {
		return stream.Wrap(stream.CodeNotArbiter, err, "arbiter authorization")
	}
	return nil
}

func (e *Engine) vault(id stream.Address) (vault.Vault, error) {
	if e.vaults == nil {
		return nil, stream.Errorf(stream.CodeVaultNotApproved, "no vaults configured")
	}
	return e.vaults.Get(id)
}
