package capability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/factoryops/core"
)

// Registry resolves managed capabilities by case-insensitive name.
// It implements core.Resolver and is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]core.Capability
}

// NewRegistry returns a registry holding caps.
func NewRegistry(caps ...core.Capability) (*Registry, error) {
	r := &Registry{agents: make(map[string]core.Capability, len(caps))}
	for _, c := range caps {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds c under its name. Names must be unique ignoring case.
func (r *Registry) Register(c core.Capability) error {
	name := c.Info().Name
	if name == "" {
		return fmt.Errorf("register capability: empty name")
	}
	key := strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[key]; exists {
		return fmt.Errorf("register capability: %q already registered", name)
	}
	r.agents[key] = c
	return nil
}

// Resolve implements core.Resolver.
func (r *Registry) Resolve(_ context.Context, name string) (core.Capability, error) {
	r.mu.RLock()
	c, ok := r.agents[strings.ToLower(strings.TrimSpace(name))]
	r.mu.RUnlock()
	if !ok {
		return nil, core.NewResolutionError(core.NotFound, name, nil)
	}
	return c, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for _, c := range r.agents {
		names = append(names, c.Info().Name)
	}
	sort.Strings(names)
	return names
}
