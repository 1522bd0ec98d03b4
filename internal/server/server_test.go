package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koustreak/dbconnector/internal/connection"
	"github.com/koustreak/dbconnector/internal/database"
	"github.com/koustreak/dbconnector/internal/errs"
	"github.com/koustreak/dbconnector/internal/query"
	"github.com/koustreak/dbconnector/internal/store"
	"github.com/koustreak/dbconnector/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seededID = "conn-1"

type fixture struct {
	db      *testutil.FakeDB
	store   *store.MemoryStore
	conns   *connection.Manager
	opens   atomic.Int32
	openErr error
	handler http.Handler
}

// newFixture registers a fake postgres driver that always returns the same
// FakeDB, so tests can seed results and inspect calls.
func newFixture(t *testing.T, opts ...func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		db:    &testutil.FakeDB{Engine: database.DriverPostgres},
		store: store.NewMemoryStore(),
	}
	database.Register(database.DriverPostgres, func(context.Context, *database.Config) (database.DB, error) {
		f.opens.Add(1)
		if f.openErr != nil {
			return nil, f.openErr
		}
		return f.db, nil
	})

	log := testutil.NewTestLogger(t)
	f.conns = connection.NewManager(f.store, connection.ManagerConfig{ConnectTimeout: time.Second, Logger: log})
	t.Cleanup(f.conns.Close)

	cfg := Config{
		Connections: f.conns,
		Executor:    &query.Executor{QueryTimeout: 5 * time.Second, Log: log},
		Logger:      log,
	}
	for _, o := range opts {
		o(&cfg)
	}
	f.handler = New(cfg).Handler()
	return f
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	require.NoError(t, f.store.Save(context.Background(), connection.Profile{
		ID:       seededID,
		Name:     "local",
		DBType:   database.DriverPostgres,
		Host:     "localhost",
		Port:     5432,
		Username: "postgres",
		Password: "secret",
	}))
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]string](t, rec)["detail"]
}

const profileJSON = `{"name":"local","db_type":"postgres","host":"localhost","port":5432,"username":"postgres","password":"secret"}`

func TestRootAndHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DB Connector API", decodeBody[map[string]string](t, rec)["message"])

	rec = f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody[map[string]string](t, rec)["status"])
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", detail(t, rec))
}

func TestCORS(t *testing.T) {
	f := newFixture(t)

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/connections/", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := preflight("http://localhost:5173")
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = preflight("http://evil.example.com")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestTestConnection(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/connections/test", profileJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[testResult](t, rec)
	assert.True(t, res.Success)
	assert.Equal(t, "Connection successful", res.Message)
	assert.True(t, f.db.Closed())
}

func TestTestConnection_Failure(t *testing.T) {
	f := newFixture(t)
	f.openErr = errs.Wrap(errs.ErrKindConnectionFailed, "ping failed", errors.New("connection refused"))

	rec := f.do(t, http.MethodPost, "/api/connections/test", profileJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[testResult](t, rec)
	assert.False(t, res.Success)
	assert.Equal(t, "Connection failed: ping failed: connection refused", res.Message)
}

func TestTestConnection_InvalidBody(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing name", `{"db_type":"postgres","host":"h","port":5432,"username":"u"}`, "Field: name, Tag: required"},
		{"bad type", `{"name":"n","db_type":"sqlite","host":"h","port":5432,"username":"u"}`, "Field: db_type, Tag: oneof"},
		{"bad port", `{"name":"n","db_type":"mysql","host":"h","port":70000,"username":"u"}`, "Field: port, Tag: max"},
		{"malformed", `{"name":`, "invalid JSON body"},
		{"empty", "", "request body is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/connections/test", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Contains(t, detail(t, rec), tt.want)
		})
	}
	assert.Zero(t, f.opens.Load())
}

func TestCreateListDeleteConnection(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/connections/", profileJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decodeBody[connection.Profile](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "local", created.Name)
	assert.Equal(t, connection.MaskedPassword, created.Password)

	for _, path := range []string{"/api/connections/", "/api/connections"} {
		rec = f.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code, path)
		list := decodeBody[[]connection.Profile](t, rec)
		require.Len(t, list, 1, path)
		assert.Equal(t, created.ID, list[0].ID)
		assert.Equal(t, "***", list[0].Password)
	}

	rec = f.do(t, http.MethodDelete, "/api/connections/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Connection deleted successfully", decodeBody[map[string]string](t, rec)["message"])

	rec = f.do(t, http.MethodGet, "/api/connections/", "")
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = f.do(t, http.MethodDelete, "/api/connections/"+created.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code, "delete is idempotent")
}

func TestCreateConnection_TestFails(t *testing.T) {
	f := newFixture(t)
	f.openErr = errs.Wrap(errs.ErrKindPermissionDenied, "ping failed", errors.New("password authentication failed"))

	rec := f.do(t, http.MethodPost, "/api/connections", profileJSON)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Connection failed: ping failed: password authentication failed", detail(t, rec))

	list, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStructure(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.db.Schemas = []string{"pg_catalog", "public"}
	f.db.Tables = map[string][]string{"public": {"users"}}
	f.db.Columns = map[string][]database.ColumnInfo{
		"public.users": {{Name: "id", DataType: "integer"}},
	}

	rec := f.do(t, http.MethodGet, "/api/database/"+seededID+"/structure", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `[{"name":"public","type":"schema","children":[
		{"name":"users","type":"table","children":[
			{"name":"id (integer)","type":"column","children":null}
		]}
	]}]`, rec.Body.String())
}

func TestStructure_Empty(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	rec := f.do(t, http.MethodGet, "/api/database/"+seededID+"/structure", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestStructure_UnknownConnection(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/database/missing/structure", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Connection not found: missing", detail(t, rec))
}

func TestTableRows(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.db.Results = map[string]testutil.Result{
		`SELECT COUNT(*) FROM "public"."users"`: {Columns: []string{"count"}, Rows: [][]any{{int64(3)}}},
		`SELECT * FROM "public"."users" ORDER BY "id" DESC LIMIT $1 OFFSET $2`: {
			Columns: []string{"id", "name"},
			Rows:    [][]any{{int64(3), "linus"}, {int64(2), "grace"}},
		},
	}

	rec := f.do(t, http.MethodGet, "/api/database/"+seededID+"/tables/public/users/rows?page_size=2&order_by=-id", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"columns":["id","name"],"rows":[[3,"linus"],[2,"grace"]],"total_rows":3,"page":1,"page_size":2,"has_more":true}`, rec.Body.String())
}

func TestTableRows_BadParams(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	rec := f.do(t, http.MethodGet, "/api/database/"+seededID+"/tables/public/users/rows?page=abc", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, `page must be an integer, got "abc"`, detail(t, rec))

	rec = f.do(t, http.MethodGet, "/api/database/"+seededID+"/tables/public/users/rows?page=0", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func usersResult() map[string]testutil.Result {
	return map[string]testutil.Result{
		"SELECT id, name FROM users": {
			Columns: []string{"id", "name"},
			Rows:    [][]any{{int64(1), "ada"}, {int64(2), nil}, {int64(3), "linus"}},
		},
	}
}

func TestExecute(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.db.Results = usersResult()

	rec := f.do(t, http.MethodPost, "/api/query/execute",
		`{"connection_id":"conn-1","query":"SELECT id, name FROM users","page":1,"page_size":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"columns":["id","name"],"rows":[[1,"ada"],[2,null]],"total_rows":3,"page":1,"page_size":2,"has_more":true}`, rec.Body.String())
}

func TestExecute_Defaults(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.db.Results = usersResult()

	rec := f.do(t, http.MethodPost, "/api/query/execute", `{"connection_id":"conn-1","query":"SELECT id, name FROM users"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[query.Result](t, rec)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 50, res.PageSize)
	assert.Len(t, res.Rows, 3)
	assert.False(t, res.HasMore)
}

func TestExecute_BlankQueryNeverReachesDatabase(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	rec := f.do(t, http.MethodPost, "/api/query/execute", `{"connection_id":"conn-1","query":"   "}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "query must not be empty", detail(t, rec))
	assert.Zero(t, f.opens.Load())
	assert.Empty(t, f.db.Calls())
}

func TestExecute_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		queryErr   error
		wantStatus int
	}{
		{"missing connection id", `{"query":"SELECT 1"}`, nil, http.StatusUnprocessableEntity},
		{"unknown connection", `{"connection_id":"nope","query":"SELECT 1"}`, nil, http.StatusNotFound},
		{"page size too large", `{"connection_id":"conn-1","query":"SELECT 1","page_size":5000}`, nil, http.StatusUnprocessableEntity},
		{"page zero", `{"connection_id":"conn-1","query":"SELECT 1","page":0}`, nil, http.StatusUnprocessableEntity},
		{"syntax error", `{"connection_id":"conn-1","query":"SELEC 1"}`, errs.New(errs.ErrKindQueryFailed, "syntax error"), http.StatusBadRequest},
		{"timeout", `{"connection_id":"conn-1","query":"SELECT pg_sleep(60)"}`, errs.New(errs.ErrKindTimeout, "query timed out"), http.StatusGatewayTimeout},
		{"denied", `{"connection_id":"conn-1","query":"SELECT * FROM secrets"}`, errs.New(errs.ErrKindPermissionDenied, "permission denied"), http.StatusForbidden},
		{"unclassified", `{"connection_id":"conn-1","query":"SELECT 1"}`, errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t)
			f.db.QueryErr = tt.queryErr

			rec := f.do(t, http.MethodPost, "/api/query/execute", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.NotEmpty(t, detail(t, rec))
		})
	}
}

func TestExecute_ReadOnly(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Executor.ReadOnly = true })
	f.seed(t)

	rec := f.do(t, http.MethodPost, "/api/query/execute", `{"connection_id":"conn-1","query":"DELETE FROM users"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, detail(t, rec), "read-only mode")
	assert.Empty(t, f.db.Calls())
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.db.Results = usersResult()

	rec := f.do(t, http.MethodPost, "/api/query/export", `{"connection_id":"conn-1","query":"SELECT id, name FROM users"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/tab-separated-values", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=export.tsv", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "id\tname\n1\tada\n2\t\n3\tlinus\n", rec.Body.String())
}

func TestExport_CSV(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.db.Results = usersResult()

	rec := f.do(t, http.MethodPost, "/api/query/export", `{"connection_id":"conn-1","query":"SELECT id, name FROM users","format":"csv"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=export.csv", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "id,name\n1,ada\n2,\n3,linus\n", rec.Body.String())
}

func TestExport_Errors(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	f.db.QueryErr = errs.New(errs.ErrKindQueryFailed, "relation \"nope\" does not exist")

	rec := f.do(t, http.MethodPost, "/api/query/export", `{"connection_id":"conn-1","query":"SELECT * FROM nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, `relation "nope" does not exist`, detail(t, rec))

	rec = f.do(t, http.MethodPost, "/api/query/export", `{"connection_id":"conn-1","query":"SELECT 1","format":"xlsx"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/query/export", `{"connection_id":"conn-1","query":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestArchive_NotConfigured(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	rec := f.do(t, http.MethodPost, "/api/query/export/archive", `{"connection_id":"conn-1","query":"SELECT id, name FROM users"}`)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "object storage is not configured", detail(t, rec))
}

func TestArchive(t *testing.T) {
	objects := testutil.NewFakeObjectStore()
	f := newFixture(t, func(c *Config) {
		c.Archiver = &query.Archiver{
			Store:  objects,
			Bucket: "exports",
			URLTTL: time.Hour,
			Now:    func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) },
		}
	})
	f.seed(t)
	f.db.Results = usersResult()

	rec := f.do(t, http.MethodPost, "/api/query/export/archive", `{"connection_id":"conn-1","query":"SELECT id, name FROM users"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decodeBody[query.ArchiveResult](t, rec)
	assert.Equal(t, "exports", res.Bucket)
	assert.Equal(t, "exports/conn-1/20240309T140507Z.tsv", res.Key)
	assert.Equal(t, 3, res.Rows)
	assert.NotEmpty(t, res.URL)

	data, ok := objects.Object("exports", res.Key)
	require.True(t, ok)
	assert.Equal(t, "id\tname\n1\tada\n2\t\n3\tlinus\n", string(data))
}

func TestServe_GracefulShutdown(t *testing.T) {
	s := New(Config{Logger: testutil.NewTestLogger(t)})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
