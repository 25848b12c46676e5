// Package registry holds the logical-model catalog: the single source of
// truth for pricing, provider ownership, capability flags, and fallback
// chains. Entries are loaded once at startup and never mutated.
package registry

import (
	"errors"
	"fmt"

	"github.com/auraforge/relay/internal/domain"
)

// Registry implements the domain.ModelRegistry interface.
type Registry struct {
	entries []domain.ModelEntry
	byName  map[string]int
}

// New creates a registry from the given entries. It validates that every
// fallback chain references known models, contains no cycles, and ends in an
// always-available model.
func New(entries []domain.ModelEntry) (*Registry, error) {
	if len(entries) == 0 {
		return nil, errors.New("registry requires at least one model entry")
	}

	r := &Registry{
		entries: make([]domain.ModelEntry, 0, len(entries)),
		byName:  make(map[string]int, len(entries)),
	}

	for _, e := range entries {
		if e.Name == "" {
			return nil, errors.New("model entry name cannot be empty")
		}
		if e.Provider == "" {
			return nil, fmt.Errorf("model %s: provider cannot be empty", e.Name)
		}
		if _, exists := r.byName[e.Name]; exists {
			return nil, fmt.Errorf("model %s declared twice", e.Name)
		}
		r.byName[e.Name] = len(r.entries)
		r.entries = append(r.entries, e)
	}

	for _, e := range r.entries {
		if err := r.validateChain(e); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// validateChain checks a single entry's fallback chain.
func (r *Registry) validateChain(entry domain.ModelEntry) error {
	seen := map[string]bool{entry.Name: true}

	last := entry
	for _, name := range entry.Fallbacks {
		idx, ok := r.byName[name]
		if !ok {
			return fmt.Errorf("model %s: fallback %s is not registered", entry.Name, name)
		}
		if seen[name] {
			return fmt.Errorf("model %s: fallback chain revisits %s", entry.Name, name)
		}
		seen[name] = true
		last = r.entries[idx]
	}

	if !last.AlwaysAvailable {
		return fmt.Errorf("model %s: fallback chain must end in an always-available model", entry.Name)
	}

	return nil
}

// Resolve returns the entry for a logical name.
func (r *Registry) Resolve(name string) (domain.ModelEntry, error) {
	idx, ok := r.byName[name]
	if !ok {
		return domain.ModelEntry{}, fmt.Errorf("%w: %s", domain.ErrUnknownModel, name)
	}
	return r.entries[idx], nil
}

// Has reports whether a logical name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// ByTier returns entries of a tier in declaration order.
func (r *Registry) ByTier(tier domain.ModelTier) []domain.ModelEntry {
	var out []domain.ModelEntry
	for _, e := range r.entries {
		if e.Tier == tier {
			out = append(out, e)
		}
	}
	return out
}

// WithCapability returns entries matching the filter in declaration order.
func (r *Registry) WithCapability(match func(domain.Capability) bool) []domain.ModelEntry {
	var out []domain.ModelEntry
	for _, e := range r.entries {
		if match(e.Capabilities) {
			out = append(out, e)
		}
	}
	return out
}

// Entries returns all entries in declaration order.
func (r *Registry) Entries() []domain.ModelEntry {
	out := make([]domain.ModelEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// ResolveConcrete returns the entry whose concrete id matches. Falls back to
// logical-name lookup so callers can pass either form.
func (r *Registry) ResolveConcrete(concreteID string) (domain.ModelEntry, error) {
	for _, e := range r.entries {
		if e.Concrete() == concreteID {
			return e, nil
		}
	}
	return r.Resolve(concreteID)
}
