// Package registry owns the set of currently tracked tokens.
package registry

import (
	"sort"
	"sync"
	"time"

	"token-radar/internal/domain"
)

// Registry is the mutex-guarded set of tracked tokens.
// All mutation goes through exclusive-access operations so concurrent
// readers always observe a consistent set.
type Registry struct {
	mu     sync.RWMutex
	tokens map[string]*domain.Token // keyed by token address

	now func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		tokens: make(map[string]*domain.Token),
		now:    time.Now,
	}
}

// Add registers a token. Adding an already-tracked address is a no-op.
// Returns true if the token was newly added. TrackedSince is stamped here.
func (r *Registry) Add(tok domain.Token) bool {
	if tok.Address == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[tok.Address]; exists {
		return false
	}

	tok.TrackedSince = r.now().UnixMilli()
	r.tokens[tok.Address] = &tok
	return true
}

// Remove untracks a token. Returns true if it was present.
func (r *Registry) Remove(address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[address]; !exists {
		return false
	}
	delete(r.tokens, address)
	return true
}

// Get returns a copy of the tracked token, if present.
func (r *Registry) Get(address string) (domain.Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tok, exists := r.tokens[address]
	if !exists {
		return domain.Token{}, false
	}
	return *tok, true
}

// Has reports whether the address is tracked.
func (r *Registry) Has(address string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tokens[address]
	return exists
}

// SetPool records a resolved pool address for a tracked token.
func (r *Registry) SetPool(address string, pool *string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tok, exists := r.tokens[address]; exists {
		tok.Pool = pool
	}
}

// Snapshot returns a copy of all tracked tokens, sorted by address
// for deterministic iteration.
func (r *Registry) Snapshot() []domain.Token {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Token, 0, len(r.tokens))
	for _, tok := range r.tokens {
		result = append(result, *tok)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Address < result[j].Address
	})
	return result
}

// Len returns the number of tracked tokens.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}
