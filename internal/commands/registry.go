package commands

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps command names and aliases to their implementations.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]Command
	primary []string
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Command)}
}

// Register adds a command under its name and every alias. A name collision
// is an error so init-time registration fails loudly.
func (r *Registry) Register(c Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := append([]string{c.Name()}, c.Aliases()...)
	for _, key := range keys {
		if _, taken := r.byName[key]; taken {
			return fmt.Errorf("command already registered: %s", key)
		}
	}
	for _, key := range keys {
		r.byName[key] = c
	}
	r.primary = append(r.primary, c.Name())
	sort.Strings(r.primary)
	return nil
}

// Find looks up a command by name or alias.
func (r *Registry) Find(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.byName[name]
	return cmd, ok
}

// All returns the registered commands in name order, one entry per command
// regardless of aliases.
func (r *Registry) All() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Command, len(r.primary))
	for i, name := range r.primary {
		out[i] = r.byName[name]
	}
	return out
}

// DefaultRegistry is the registry the commands in this package register
// themselves into.
var DefaultRegistry = NewRegistry()

// Register adds a command to the default registry, panicking on collision.
func Register(c Command) {
	if err := DefaultRegistry.Register(c); err != nil {
		panic(err)
	}
}
