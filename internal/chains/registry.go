// internal/chains/registry.go
package chains

import (
	"fmt"
	"sort"
	"sync"

	"settlement-service/internal/domain"
)

// Registry holds one adapter per enabled network
type Registry struct {
	adapters map[domain.Network]domain.ChainAdapter
	mu       sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[domain.Network]domain.ChainAdapter),
	}
}

// Register adds an adapter to the registry
func (r *Registry) Register(adapter domain.ChainAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Network()] = adapter
}

// Get retrieves the adapter for a network
func (r *Registry) Get(network domain.Network) (domain.ChainAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[network]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not enabled", domain.ErrUnsupportedNetwork, network)
	}

	return adapter, nil
}

// Networks returns all registered networks, sorted
func (r *Registry) Networks() []domain.Network {
	r.mu.RLock()
	defer r.mu.RUnlock()

	networks := make([]domain.Network, 0, len(r.adapters))
	for n := range r.adapters {
		networks = append(networks, n)
	}
	sort.Slice(networks, func(i, j int) bool { return networks[i] < networks[j] })

	return networks
}
