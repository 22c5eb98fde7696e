// Package auth is the authorization collaborator. The authenticated
// principal travels in the request context; capabilities such as the
// compliance-officer role are granted per address.
package auth

import (
	"context"
	"slices"
	"sync"

	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

// Capability is a role that is not derived from a stream's own parties.
type Capability string

const ComplianceOfficer Capability = "compliance_officer"

type principalKey struct{}

// WithPrincipal returns ctx carrying the authenticated principal.
func WithPrincipal(ctx context.Context, p stream.Address) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// Principal returns the principal in ctx, if any.
func Principal(ctx context.Context) (stream.Address, bool) {
	p, ok := ctx.Value(principalKey{}).(stream.Address)
	return p, ok && p != ""
}

// Grants holds capability assignments. The zero value grants nothing.
type Grants struct {
	mu    sync.RWMutex
	roles map[Capability]map[stream.Address]struct{}
}

// NewGrants creates an empty grant table.
func NewGrants() *Grants {
	return &Grants{roles: make(map[Capability]map[stream.Address]struct{})}
}

// Require fails with ErrUnauthorized unless ctx is authenticated as p.
func (g *Grants) Require(ctx context.Context, p stream.Address) error {
	got, ok := Principal(ctx)
	if !ok {
		return stream.Errorf(stream.CodeUnauthorized, "no principal")
	}
	if got != p {
		return stream.Errorf(stream.CodeUnauthorized, "%s is not %s", got, p)
	}
	return nil
}

// Has reports whether p holds c.
func (g *Grants) Has(_ context.Context, p stream.Address, c Capability) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.roles[c][p]
	return ok
}

// Replace sets the holders of c, dropping previous ones.
func (g *Grants) Replace(c Capability, holders []stream.Address) {
	set := make(map[stream.Address]struct{}, len(holders))
	for _, h := range holders {
		set[h] = struct{}{}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.roles == nil {
		g.roles = make(map[Capability]map[stream.Address]struct{})
	}
	g.roles[c] = set
}

// Holders lists the holders of c, sorted.
func (g *Grants) Holders(c Capability) []stream.Address {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]stream.Address, 0, len(g.roles[c]))
	for h := range g.roles[c] {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}
