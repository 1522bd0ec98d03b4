// Package store holds the connection.Store implementations and the
// profile bootstrap file loader.
package store

import (
	"context"
	"fmt"

	"github.com/koustreak/dbconnector/internal/connection"
)

// Kind selects a Store implementation.
type Kind string

const (
	KindMemory Kind = "memory"
	KindSQLite Kind = "sqlite"
)

// Backend is a connection.Store that owns resources.
type Backend interface {
	connection.Store
	Close() error
}

// Options configures Open.
type Options struct {
	Kind Kind

	// Path is the SQLite database file.
	Path string

	// Secret, when set, seals stored passwords.
	Secret string
}

// Open returns the Store selected by opts.Kind.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Kind {
	case KindMemory, "":
		return NewMemoryStore(), nil
	case KindSQLite:
		return OpenSQLite(ctx, opts.Path, opts.Secret)
	default:
		return nil, fmt.Errorf("unknown store kind %q", opts.Kind)
	}
}
