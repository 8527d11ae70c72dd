package tix

import (
	"sort"
	"sync"
)

// Currency describes a currency entry in the platform registry.
type Currency struct {
	Code   string
	Label  string
	Format string
}

// Registry collects the currencies the platform can sell tickets in.
// Gateway modules contribute the currencies they settle.
type Registry struct {
	mu   sync.Mutex
	byCC map[string]Currency
}

// NewRegistry returns an empty currency registry.
func NewRegistry() *Registry {
	return &Registry{byCC: make(map[string]Currency)}
}

// Register adds or replaces a currency definition.
func (r *Registry) Register(c Currency) {
	if c.Code == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCC[c.Code] = c
}

// Lookup returns the currency for a code.
func (r *Registry) Lookup(code string) (Currency, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byCC[code]
	return c, ok
}

// All returns the registered currencies sorted by label.
func (r *Registry) All() []Currency {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Currency, 0, len(r.byCC))
	for _, c := range r.byCC {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}
