package registry

import (
	"fmt"
	"sort"
	"strings"

	"gitlab.com/zkboost.net/internal/core/ports/secondary"
	"gitlab.com/zkboost.net/internal/domain"
)

// Binding is a resolved program together with the adapter serving it.
type Binding struct {
	Program domain.ProgramDescriptor
	Backend secondary.Backend
}

// Registry maps program ids to bindings. It is immutable once built and safe
// for concurrent readers.
type Registry struct {
	bindings map[string]Binding
	listing  []domain.ProgramDescriptor
}

// Build validates the program set against the available adapters.
func Build(programs []domain.ProgramDescriptor, backends map[domain.BackendKind]secondary.Backend) (*Registry, error) {
	r := &Registry{
		bindings: make(map[string]Binding, len(programs)),
		listing:  make([]domain.ProgramDescriptor, 0, len(programs)),
	}

	for _, p := range programs {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("program with empty id")
		}
		if _, dup := r.bindings[p.ID]; dup {
			return nil, fmt.Errorf("duplicate program id %q", p.ID)
		}
		backend, ok := backends[p.Backend]
		if !ok || backend == nil {
			return nil, fmt.Errorf("program %q: no adapter for backend kind %q", p.ID, p.Backend)
		}
		r.bindings[p.ID] = Binding{Program: p, Backend: backend}
		r.listing = append(r.listing, p)
	}

	sort.Slice(r.listing, func(i, j int) bool { return r.listing[i].ID < r.listing[j].ID })
	return r, nil
}

// Resolve returns the binding for id or a NotFound error.
func (r *Registry) Resolve(id string) (Binding, error) {
	b, ok := r.bindings[id]
	if !ok {
		return Binding{}, domain.Errorf(domain.KindNotFound, "resolve", "unknown program %q", id)
	}
	return b, nil
}

// Programs lists the loaded programs sorted by id.
func (r *Registry) Programs() []domain.ProgramDescriptor {
	out := make([]domain.ProgramDescriptor, len(r.listing))
	copy(out, r.listing)
	return out
}

// Len is the number of loaded programs.
func (r *Registry) Len() int {
	return len(r.listing)
}

// Kinds returns the distinct backend kinds in use, sorted.
func (r *Registry) Kinds() []domain.BackendKind {
	seen := map[domain.BackendKind]struct{}{}
	var kinds []domain.BackendKind
	for _, p := range r.listing {
		if _, ok := seen[p.Backend]; ok {
			continue
		}
		seen[p.Backend] = struct{}{}
		kinds = append(kinds, p.Backend)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
