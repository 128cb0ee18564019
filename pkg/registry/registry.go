// Package registry provides a thread-safe catalogue of flows addressable
// by name and category.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rendis/streamflow/pkg/flow"
	"github.com/rendis/streamflow/pkg/schema"
)

// Entry is the registry's view of a flow: any Flow[In, Out] satisfies it.
type Entry interface {
	Name() string
	Metadata() map[string]any
}

// Info describes one registered flow.
type Info struct {
	Name       string         `json:"name"`
	FlowName   string         `json:"flow_name"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Categories []string       `json:"categories,omitempty"`
}

// Registry is an injectable, thread-safe flow catalogue. A flow may
// belong to several categories; removing it purges it from every one.
type Registry struct {
	mu         sync.RWMutex
	flows      map[string]Entry
	categories map[string]map[string]struct{}
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		flows:      make(map[string]Entry),
		categories: make(map[string]map[string]struct{}),
	}
}

// Register adds a flow under name, optionally tagging it with categories.
// Returns error on duplicate name.
func (r *Registry) Register(name string, f Entry, categories ...string) error {
	if f == nil {
		return schema.NewError(schema.ErrCodeValidation, "flow is nil")
	}
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "flow name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.flows[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "flow %q already registered", name)
	}
	r.flows[name] = f
	for _, cat := range categories {
		if cat == "" {
			continue
		}
		if r.categories[cat] == nil {
			r.categories[cat] = make(map[string]struct{})
		}
		r.categories[cat][name] = struct{}{}
	}
	return nil
}

// Get retrieves a flow by name.
func (r *Registry) Get(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.flows[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "flow %q not registered", name)
	}
	return f, nil
}

// Has checks whether a flow is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.flows[name]
	return ok
}

// Count returns the number of registered flows.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.flows)
}

// List returns registered names sorted alphabetically. With a category it
// lists only that category's members; an unknown category is empty.
func (r *Registry) List(category ...string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	if len(category) > 0 && category[0] != "" {
		for name := range r.categories[category[0]] {
			names = append(names, name)
		}
	} else {
		for name := range r.flows {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Categories returns all category names sorted alphabetically.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cats := make([]string, 0, len(r.categories))
	for cat := range r.categories {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	return cats
}

// Search returns names whose registered name, flow name, or metadata keys
// or values contain the query, case-insensitively.
func (r *Registry) Search(query string) []string {
	q := strings.ToLower(query)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, f := range r.flows {
		if matchesQuery(q, name, f) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func matchesQuery(q, name string, f Entry) bool {
	if strings.Contains(strings.ToLower(name), q) {
		return true
	}
	if strings.Contains(strings.ToLower(f.Name()), q) {
		return true
	}
	for k, v := range f.Metadata() {
		if strings.Contains(strings.ToLower(k), q) {
			return true
		}
		if strings.Contains(strings.ToLower(fmt.Sprintf("%v", v)), q) {
			return true
		}
	}
	return false
}

// Remove deletes a flow and purges it from every category, dropping
// categories that become empty.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.flows[name]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "flow %q not registered", name)
	}
	delete(r.flows, name)
	for cat, members := range r.categories {
		delete(members, name)
		if len(members) == 0 {
			delete(r.categories, cat)
		}
	}
	return nil
}

// Clear removes every flow, or only one category's flows when given.
func (r *Registry) Clear(category ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(category) == 0 || category[0] == "" {
		r.flows = make(map[string]Entry)
		r.categories = make(map[string]map[string]struct{})
		return
	}
	cat := category[0]
	for name := range r.categories[cat] {
		delete(r.flows, name)
		for other, members := range r.categories {
			if other == cat {
				continue
			}
			delete(members, name)
			if len(members) == 0 {
				delete(r.categories, other)
			}
		}
	}
	delete(r.categories, cat)
}

// Info reports a flow's registered name, underlying flow name, metadata,
// and category memberships.
func (r *Registry) Info(name string) (*Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.flows[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "flow %q not registered", name)
	}
	var cats []string
	for cat, members := range r.categories {
		if _, in := members[name]; in {
			cats = append(cats, cat)
		}
	}
	sort.Strings(cats)
	return &Info{
		Name:       name,
		FlowName:   f.Name(),
		Metadata:   f.Metadata(),
		Categories: cats,
	}, nil
}

// Lookup retrieves a flow by name with its concrete item types. Free
// function because Go methods cannot introduce type parameters.
func Lookup[In, Out any](r *Registry, name string) (flow.Flow[In, Out], error) {
	var zero flow.Flow[In, Out]
	entry, err := r.Get(name)
	if err != nil {
		return zero, err
	}
	typed, ok := entry.(flow.Flow[In, Out])
	if !ok {
		return zero, schema.NewErrorf(schema.ErrCodeValidation, "flow %q is a %T, not the requested type", name, entry)
	}
	return typed, nil
}
