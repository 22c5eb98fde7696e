// Package oracle provides price feeds for USD-pegged streams.
package oracle

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
	"github.com/gyaneshwarpardhi/tokenstream/internal/usdpeg"
)

// Feed reports the latest token price.
type Feed interface {
	Price(ctx context.Context) (usdpeg.Price, error)
}

// Static is a feed with an operator-set price. Until Set pins an
// observation time it reports the price as observed now.
type Static struct {
	mu     sync.RWMutex
	value  int64
	asOf   int64
	pinned bool
	failed error
	now    func() int64
}

// NewStatic parses a decimal USD price such as "0.1234".
func NewStatic(price string) (*Static, error) {
	v, err := parsePrice(price)
	if err != nil {
		return nil, err
	}
	return &Static{value: v, now: func() int64 { return time.Now().Unix() }}, nil
}

// WithClock overrides the time source, for tests.
func (f *Static) WithClock(now func() int64) *Static {
	f.now = now
	return f
}

func (f *Static) Price(context.Context) (usdpeg.Price, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.failed != nil {
		return usdpeg.Price{}, f.failed
	}
	asOf := f.asOf
	if !f.pinned {
		asOf = f.now()
	}
	return usdpeg.Price{Value: f.value, AsOf: asOf}, nil
}

// Set replaces the price and pins its observation time.
func (f *Static) Set(price string, asOf int64) error {
	v, err := parsePrice(price)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value, f.asOf, f.pinned = v, asOf, true
	return nil
}

// Fail makes every later read return err; nil restores the feed.
func (f *Static) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = err
}

// String renders the current price as a decimal.
func (f *Static) String() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return usdpeg.Format(f.value)
}

func parsePrice(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("oracle: invalid price %q: %w", s, err)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("oracle: price %s must be positive", s)
	}
	return usdpeg.Parse(d.String())
}

// Registry maps oracle ids to feeds.
// It is safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu    sync.RWMutex
	feeds map[string]Feed
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{feeds: make(map[string]Feed)}
}

// Register adds a feed. Panics on duplicate id to surface misconfiguration early.
func (r *Registry) Register(id string, f Feed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.feeds[id]; exists {
		panic(fmt.Sprintf("oracle registry: duplicate feed %q", id))
	}
	r.feeds[id] = f
}

// Get returns the feed registered under id.
func (r *Registry) Get(id string) (Feed, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.feeds[id]
	if !ok {
		return nil, stream.Errorf(stream.CodeOracleFailed, "no price feed %q", id)
	}
	return f, nil
}

// IDs returns every registered feed id, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.feeds))
	for k := range r.feeds {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
