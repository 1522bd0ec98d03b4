package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/koustreak/dbconnector/internal/config"
	"github.com/koustreak/dbconnector/internal/connection"
	"github.com/koustreak/dbconnector/internal/filestore/minio"
	"github.com/koustreak/dbconnector/internal/logger"
	"github.com/koustreak/dbconnector/internal/query"
	"github.com/koustreak/dbconnector/internal/server"
	"github.com/koustreak/dbconnector/internal/store"
	"github.com/koustreak/dbconnector/internal/structure"
)

// app is a fully wired API server and the resources it owns.
type app struct {
	server  *server.Server
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp opens the profile store, seeds it from the connections file and
// connects the optional object store.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{}

	opts := cfg.StoreOptions()
	if opts.Kind == store.KindSQLite {
		if dir := filepath.Dir(opts.Path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create store directory: %w", err)
			}
		}
	}
	backend, err := store.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = backend.Close() })

	conns := connection.NewManager(backend, connection.ManagerConfig{
		ConnectTimeout: cfg.ConnectTimeout,
		Logger:         log.With().Str("component", "connections").Logger(),
	})
	a.closers = append(a.closers, conns.Close)

	if cfg.ConnectionsFile != "" {
		profiles, err := store.LoadProfilesFile(cfg.ConnectionsFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		if _, err := conns.Bootstrap(ctx, profiles); err != nil {
			a.Close()
			return nil, err
		}
	}

	exec := &query.Executor{
		QueryTimeout: cfg.QueryTimeout,
		ReadOnly:     cfg.ReadOnly,
		MaxPageSize:  cfg.MaxPageSize,
		Log:          log.With().Str("component", "query").Logger(),
	}

	var archiver *query.Archiver
	if fc := cfg.ObjectStore(); fc.Enabled() {
		objects, err := minio.New(ctx, fc)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = objects.Close() })
		archiver = &query.Archiver{
			Store:    objects,
			Bucket:   fc.Bucket,
			URLTTL:   fc.URLTTL,
			Executor: exec,
		}
		log.With().Str("endpoint", fc.Endpoint).Str("bucket", fc.Bucket).Logger().Info("export archive enabled")
	}

	a.server = server.New(server.Config{
		Addr:        cfg.Addr,
		CORSOrigins: cfg.CORSOrigins,
		Connections: conns,
		Executor:    exec,
		Inspector:   &structure.Inspector{Log: log.With().Str("component", "structure").Logger()},
		Archiver:    archiver,
		Logger:      log,
	})
	return a, nil
}
