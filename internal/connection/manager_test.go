package connection_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koustreak/dbconnector/internal/connection"
	"github.com/koustreak/dbconnector/internal/database"
	"github.com/koustreak/dbconnector/internal/errs"
	"github.com/koustreak/dbconnector/internal/store"
	"github.com/koustreak/dbconnector/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver registers a FakeDB factory for DriverPostgres and counts opens.
type fakeDriver struct {
	opens   atomic.Int32
	openErr error
	last    atomic.Pointer[testutil.FakeDB]
	lastCfg atomic.Pointer[database.Config]
}

func registerFake(t *testing.T) *fakeDriver {
	t.Helper()
	fd := &fakeDriver{}
	database.Register(database.DriverPostgres, func(_ context.Context, cfg *database.Config) (database.DB, error) {
		fd.opens.Add(1)
		fd.lastCfg.Store(cfg)
		if fd.openErr != nil {
			return nil, fd.openErr
		}
		db := &testutil.FakeDB{Engine: database.DriverPostgres}
		fd.last.Store(db)
		return db, nil
	})
	return fd
}

func validProfile(name string) connection.Profile {
	return connection.Profile{
		Name:     name,
		DBType:   database.DriverPostgres,
		Host:     "localhost",
		Port:     5432,
		Username: "postgres",
		Password: "secret",
	}
}

func newManager(t *testing.T) (*connection.Manager, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	m := connection.NewManager(st, connection.ManagerConfig{
		ConnectTimeout: time.Second,
		Logger:         testutil.NewTestLogger(t),
	})
	t.Cleanup(m.Close)
	return m, st
}

func TestManager_Test(t *testing.T) {
	fd := registerFake(t)
	m, _ := newManager(t)

	ok, msg := m.Test(context.Background(), validProfile("pg"))
	assert.True(t, ok)
	assert.Equal(t, "Connection successful", msg)

	db := fd.last.Load()
	require.NotNil(t, db)
	assert.True(t, db.Closed(), "test connection is closed afterwards")
	require.Len(t, db.Calls(), 1)
	assert.Equal(t, "SELECT 1", db.Calls()[0].SQL)

	cfg := fd.lastCfg.Load()
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, "postgres", cfg.User)
	assert.Equal(t, time.Second, cfg.ConnectTimeout)
}

func TestManager_Test_Failure(t *testing.T) {
	fd := registerFake(t)
	fd.openErr = errs.Wrap(errs.ErrKindConnectionFailed, "ping failed", errors.New("connection refused"))
	m, _ := newManager(t)

	ok, msg := m.Test(context.Background(), validProfile("pg"))
	assert.False(t, ok)
	assert.Equal(t, "Connection failed: ping failed: connection refused", msg)
}

func TestManager_Test_UnsupportedType(t *testing.T) {
	registerFake(t)
	m, _ := newManager(t)

	p := validProfile("x")
	p.DBType = "sqlite"

	ok, msg := m.Test(context.Background(), p)
	assert.False(t, ok)
	assert.Equal(t, "Connection failed: Unsupported database type: sqlite", msg)
}

func TestManager_AddGetRemove(t *testing.T) {
	fd := registerFake(t)
	m, st := newManager(t)
	ctx := context.Background()

	p, err := m.Add(ctx, validProfile("pg"))
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, int32(1), fd.opens.Load())

	stored, err := st.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret", stored.Password)

	db, err := m.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Same(t, fd.last.Load(), db)
	assert.Equal(t, int32(1), fd.opens.Load(), "pool is reused")

	require.NoError(t, m.Remove(ctx, p.ID))
	assert.True(t, fd.last.Load().Closed())

	_, err = m.Get(ctx, p.ID)
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
	assert.Equal(t, "Connection not found: "+p.ID, err.Error())

	assert.NoError(t, m.Remove(ctx, p.ID), "remove is idempotent")
	assert.NoError(t, m.Remove(ctx, "never-existed"))
}

func TestManager_Add_Invalid(t *testing.T) {
	registerFake(t)
	m, _ := newManager(t)

	p := validProfile("")
	p.Port = 0

	_, err := m.Add(context.Background(), p)
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
	assert.Contains(t, err.Error(), "Field: name, Tag: required")
	assert.Contains(t, err.Error(), "Field: port, Tag: min")
}

func TestManager_Get_OpensPersistedProfileLazily(t *testing.T) {
	fd := registerFake(t)
	m, st := newManager(t)
	ctx := context.Background()

	p := validProfile("persisted")
	p.ID = "persisted-id"
	require.NoError(t, st.Save(ctx, p))

	db, err := m.Get(ctx, "persisted-id")
	require.NoError(t, err)
	assert.Equal(t, database.DriverPostgres, db.Driver())
	assert.Equal(t, int32(1), fd.opens.Load())
}

func TestManager_Get_RemovedWhileConnecting(t *testing.T) {
	m, st := newManager(t)
	ctx := context.Background()

	p := validProfile("racing")
	p.ID = "racing-id"
	require.NoError(t, st.Save(ctx, p))

	var opened []*testutil.FakeDB
	database.Register(database.DriverPostgres, func(context.Context, *database.Config) (database.DB, error) {
		require.NoError(t, m.Remove(ctx, "racing-id"))
		db := &testutil.FakeDB{Engine: database.DriverPostgres}
		opened = append(opened, db)
		return db, nil
	})

	_, err := m.Get(ctx, "racing-id")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))

	require.Len(t, opened, 1)
	assert.True(t, opened[0].Closed(), "pool of a removed profile is closed, not kept")

	_, err = m.Get(ctx, "racing-id")
	assert.True(t, errs.IsNotFound(err))
	assert.Len(t, opened, 1)
}

func TestManager_List_MasksPasswords(t *testing.T) {
	registerFake(t)
	m, _ := newManager(t)
	ctx := context.Background()

	_, err := m.Add(ctx, validProfile("one"))
	require.NoError(t, err)
	_, err = m.Add(ctx, validProfile("two"))
	require.NoError(t, err)

	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, p := range list {
		assert.Equal(t, "***", p.Password)
	}
	assert.Equal(t, "one", list[0].Name)

	// The stored profile keeps its real password.
	full, err := m.Profile(ctx, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "secret", full.Password)
}

func TestManager_Bootstrap(t *testing.T) {
	fd := registerFake(t)
	m, _ := newManager(t)
	ctx := context.Background()

	_, err := m.Add(ctx, validProfile("existing"))
	require.NoError(t, err)
	opensAfterAdd := fd.opens.Load()

	added, err := m.Bootstrap(ctx, []connection.Profile{
		validProfile("existing"),
		validProfile("fresh"),
		validProfile("fresh"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, opensAfterAdd, fd.opens.Load(), "bootstrap does not open pools")

	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "fresh", list[1].Name)
	assert.NotEmpty(t, list[1].ID)
}

func TestManager_Bootstrap_Invalid(t *testing.T) {
	registerFake(t)
	m, _ := newManager(t)

	bad := validProfile("bad")
	bad.Host = ""

	_, err := m.Bootstrap(context.Background(), []connection.Profile{bad})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestManager_Close(t *testing.T) {
	fd := registerFake(t)
	m, _ := newManager(t)

	_, err := m.Add(context.Background(), validProfile("pg"))
	require.NoError(t, err)

	m.Close()
	assert.True(t, fd.last.Load().Closed())
}
