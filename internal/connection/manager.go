package connection

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koustreak/dbconnector/internal/database"
	"github.com/koustreak/dbconnector/internal/errs"
	"github.com/koustreak/dbconnector/internal/logger"
)

const (
	msgTestSuccess = "Connection successful"
	msgTestFailed  = "Connection failed: "
)

// ManagerConfig tunes a Manager.
type ManagerConfig struct {
	// ConnectTimeout bounds opening a pool and the test round trip.
	ConnectTimeout time.Duration

	Logger *logger.Logger
}

// Manager maps connection ids to profiles and their live pools.
// Pools are opened on first use and kept until Remove or Close.
// It is safe for concurrent use by multiple goroutines.
type Manager struct {
	store          Store
	log            *logger.Logger
	connectTimeout time.Duration

	mu    sync.RWMutex
	pools map[string]database.DB
}

// NewManager returns a Manager backed by store.
func NewManager(store Store, cfg ManagerConfig) *Manager {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		store:          store,
		log:            log,
		connectTimeout: cfg.ConnectTimeout,
		pools:          make(map[string]database.DB),
	}
}

// Test opens a throwaway connection for p, runs a trivial statement and
// closes it. It never returns an error: failures are reported in message.
func (m *Manager) Test(ctx context.Context, p Profile) (bool, string) {
	if m.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.connectTimeout)
		defer cancel()
	}

	db, err := database.Open(ctx, p.DatabaseConfig(m.connectTimeout))
	if err != nil {
		m.log.WarnWith("connection test failed", err, map[string]interface{}{
			"name": p.Name, "db_type": string(p.DBType), "host": p.Host,
		})
		return false, msgTestFailed + err.Error()
	}
	defer db.Close()

	rows, err := db.Query(ctx, database.PingQuery(p.DBType))
	if err != nil {
		return false, msgTestFailed + err.Error()
	}
	rows.Next()
	err = rows.Err()
	rows.Close()
	if err != nil {
		return false, msgTestFailed + err.Error()
	}

	return true, msgTestSuccess
}

// Add assigns p a new id, persists it and opens its pool. A pool that
// fails to open is retried on the next Get.
func (m *Manager) Add(ctx context.Context, p Profile) (Profile, error) {
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}

	p.ID = uuid.NewString()
	if err := m.store.Save(ctx, p); err != nil {
		return Profile{}, err
	}

	m.log.With().Str("connection_id", p.ID).Str("name", p.Name).Logger().Info("connection added")

	if _, err := m.open(ctx, p); err != nil {
		m.log.WarnWith("pool not opened, will retry on first use", err, map[string]interface{}{
			"connection_id": p.ID,
		})
	}
	return p, nil
}

// Remove closes the pool for id and deletes its profile. Unknown ids are
// not an error.
func (m *Manager) Remove(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}

	m.mu.Lock()
	db, ok := m.pools[id]
	delete(m.pools, id)
	m.mu.Unlock()

	if ok {
		db.Close()
	}

	m.log.With().Str("connection_id", id).Logger().Info("connection removed")
	return nil
}

// Get returns the live pool for id, opening it if needed.
func (m *Manager) Get(ctx context.Context, id string) (database.DB, error) {
	m.mu.RLock()
	db, ok := m.pools[id]
	m.mu.RUnlock()
	if ok {
		return db, nil
	}

	p, err := m.Profile(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.open(ctx, p)
}

// Profile returns the stored profile for id, password included.
func (m *Manager) Profile(ctx context.Context, id string) (Profile, error) {
	p, err := m.store.Get(ctx, id)
	if err != nil {
		if errs.IsNotFound(err) {
			return Profile{}, errs.Newf(errs.ErrKindNotFound, "Connection not found: %s", id)
		}
		return Profile{}, err
	}
	return p, nil
}

// List returns every profile with its password masked.
func (m *Manager) List(ctx context.Context) ([]Profile, error) {
	profiles, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Profile, len(profiles))
	for i, p := range profiles {
		out[i] = p.Masked()
	}
	return out, nil
}

// Bootstrap saves every profile whose name is not already registered and
// returns how many were added. Pools are not opened.
func (m *Manager) Bootstrap(ctx context.Context, profiles []Profile) (int, error) {
	existing, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}
	names := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		names[p.Name] = struct{}{}
	}

	added := 0
	for _, p := range profiles {
		if _, dup := names[p.Name]; dup {
			m.log.Debugf("skipping connection %q: name already registered", p.Name)
			continue
		}
		if err := p.Validate(); err != nil {
			return added, errs.Wrap(errs.ErrKindInvalidInput, "invalid connection "+p.Name, err)
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if err := m.store.Save(ctx, p); err != nil {
			return added, err
		}
		names[p.Name] = struct{}{}
		added++
	}

	m.log.With().Int("added", added).Int("skipped", len(profiles)-added).Logger().Info("connections bootstrapped")
	return added, nil
}

// Close closes every open pool.
func (m *Manager) Close() {
	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[string]database.DB)
	m.mu.Unlock()

	for _, db := range pools {
		db.Close()
	}
}

// open connects outside the lock; if another goroutine won the race its
// pool is kept and ours is closed. A profile removed while connecting is
// reported as not found and its pool is never registered.
func (m *Manager) open(ctx context.Context, p Profile) (database.DB, error) {
	db, err := database.Open(ctx, p.DatabaseConfig(m.connectTimeout))
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.pools[p.ID]; ok {
		m.mu.Unlock()
		db.Close()
		return existing, nil
	}
	// Remove deletes from the store before taking the lock.
	if _, err := m.Profile(ctx, p.ID); err != nil {
		m.mu.Unlock()
		db.Close()
		return nil, err
	}
	m.pools[p.ID] = db
	m.mu.Unlock()

	m.log.With().Str("connection_id", p.ID).Str("db_type", string(p.DBType)).Logger().Debug("pool opened")
	return db, nil
}
