package sku

import "sync"

// Registry tracks every identifier and SKU issued within one batch and is
// the single source of truth for "already issued in this run". Claims are
// atomic per item. A registry lives for exactly one batch; start the next
// batch with a fresh one (or call Reset).
type Registry struct {
	mu          sync.Mutex
	identifiers map[string]bool
	skus        map[string]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		identifiers: make(map[string]bool),
		skus:        make(map[string]bool),
	}
}

// ClaimIdentifier records the identifier and reports whether it was free.
// A false return leaves the registry unchanged.
func (r *Registry) ClaimIdentifier(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.identifiers[id] {
		return false
	}
	r.identifiers[id] = true
	return true
}

// ClaimSKU records the SKU and reports whether it was free.
func (r *Registry) ClaimSKU(s string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.skus[s] {
		return false
	}
	r.skus[s] = true
	return true
}

// HasIdentifier reports whether the identifier was issued in this batch.
func (r *Registry) HasIdentifier(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identifiers[id]
}

// HasSKU reports whether the SKU was issued in this batch.
func (r *Registry) HasSKU(s string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skus[s]
}

// Counts returns how many identifiers and SKUs have been issued.
func (r *Registry) Counts() (identifiers, skus int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.identifiers), len(r.skus)
}

// Reset clears the registry for a new batch.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identifiers = make(map[string]bool)
	r.skus = make(map[string]bool)
}
