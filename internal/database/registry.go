package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/koustreak/dbconnector/internal/errs"
)

// OpenFunc connects to a database described by cfg and returns a ready DB.
// Implementations must ping before returning.
type OpenFunc func(ctx context.Context, cfg *Config) (DB, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[Driver]OpenFunc)
)

// Register makes a driver available to Open. Driver packages call it from
// init; registering the same driver twice replaces the previous entry.
func Register(d Driver, open OpenFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d] = open
}

// Registered returns the drivers currently available, sorted by name.
func Registered() []Driver {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]Driver, 0, len(registry))
	for d := range registry {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Open dispatches to the registered driver for cfg.Driver.
func Open(ctx context.Context, cfg *Config) (DB, error) {
	if cfg == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "missing database config")
	}
	if !cfg.Driver.Valid() {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "Unsupported database type: %s", cfg.Driver)
	}

	registryMu.RLock()
	open, ok := registry[cfg.Driver]
	registryMu.RUnlock()
	if !ok {
		return nil, errs.New(errs.ErrKindUnsupported, fmt.Sprintf("driver %q is not compiled in", cfg.Driver))
	}
	return open(ctx, cfg)
}
