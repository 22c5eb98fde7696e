package vault

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

// Registry maps approved vault addresses to their implementations.
// It is safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu     sync.RWMutex
	vaults map[stream.Address]Vault
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{vaults: make(map[stream.Address]Vault)}
}

// Register approves a vault. Panics on duplicate address to surface misconfiguration early.
func (r *Registry) Register(id stream.Address, v Vault) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.vaults[id]; exists {
		panic(fmt.Sprintf("vault registry: duplicate vault %q", id))
	}
	r.vaults[id] = v
}

// Get returns the approved vault at id.
func (r *Registry) Get(id stream.Address) (Vault, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vaults[id]
	if !ok {
		return nil, stream.Errorf(stream.CodeVaultNotApproved, "vault %q is not approved", id)
	}
	return v, nil
}

// IDs returns every approved vault address, sorted.
func (r *Registry) IDs() []stream.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]stream.Address, 0, len(r.vaults))
	for k := range r.vaults {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
