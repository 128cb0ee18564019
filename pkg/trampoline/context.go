// Package trampoline drives iterative control flow over a mutable
// key/value Context, using explicit exit, break, and skip data signals
// stored in the Context itself.
package trampoline

import (
	"maps"
	"sync"
)

// Signal keys. Steps read and write these through the Context store.
const (
	KeyExit  = "trampoline.exit"
	KeyBreak = "trampoline.break"
	KeySkip  = "trampoline.skip"
)

// Context is the minimal key/value store the trampoline needs. Fork
// returns an independent copy sharing no mutable state with the
// original.
type Context interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Fork() Context
}

// MapContext is the provided map-backed Context implementation.
type MapContext struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewMapContext creates an empty MapContext.
func NewMapContext() *MapContext {
	return &MapContext{values: make(map[string]any)}
}

func (c *MapContext) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *MapContext) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Fork snapshots the store into a new independent context. Mutations on
// either side after the fork never alias.
func (c *MapContext) Fork() Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &MapContext{values: maps.Clone(c.values)}
}

// SetExit marks the context so the driving loop terminates.
func SetExit(c Context) { c.Set(KeyExit, true) }

// SetBreak marks the context so the current pass aborts and restarts.
func SetBreak(c Context) { c.Set(KeyBreak, true) }

// SetSkip marks the context so one designated sub-step is suppressed.
func SetSkip(c Context) { c.Set(KeySkip, true) }

// ClearBreak removes the break signal.
func ClearBreak(c Context) { c.Set(KeyBreak, false) }

// ClearSkip removes the skip signal.
func ClearSkip(c Context) { c.Set(KeySkip, false) }

// ExitSignaled reports whether the exit signal is set.
func ExitSignaled(c Context) bool { return flagSet(c, KeyExit) }

// BreakSignaled reports whether the break signal is set.
func BreakSignaled(c Context) bool { return flagSet(c, KeyBreak) }

// SkipSignaled reports whether the skip signal is set.
func SkipSignaled(c Context) bool { return flagSet(c, KeySkip) }

func flagSet(c Context, key string) bool {
	v, ok := c.Get(key)
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}
