package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/lighthouse/internal/clock"
	"github.com/okian/lighthouse/internal/config"
)

// Driver opens a Store from configuration.
type Driver func(ctx context.Context, cfg config.StoreConfig, clk clock.Clock) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Driver{}
)

// Register adds a named driver to the global registry.
// It is intended to be called from init() in each driver package.
func Register(name string, d Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = d
}

// Open selects the driver named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, clk clock.Clock) (Store, error) {
	registryMu.RLock()
	d, ok := registry[cfg.Driver]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown store driver %q (registered: %v)", cfg.Driver, Drivers())
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return d(ctx, cfg, clk)
}

// Drivers lists registered driver names in sorted order.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func init() { //nolint:gochecknoinits // driver registration
	Register(DriverMemory, func(_ context.Context, _ config.StoreConfig, _ clock.Clock) (Store, error) {
		return NewMemoryStore(), nil
	})
}
