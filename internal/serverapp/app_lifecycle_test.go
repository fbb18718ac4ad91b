package serverapp

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"autoapi/internal/config"
	"autoapi/internal/entity"
	"autoapi/internal/hooks"
	"autoapi/internal/logging"
	"autoapi/internal/naming"
	"autoapi/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: "error", Format: "text"})
}

const lifecycleDDL = `
CREATE TABLE families (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL);
CREATE TABLE products (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	family_id INTEGER,
	price REAL,
	active BOOLEAN,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE images (id INTEGER PRIMARY KEY AUTOINCREMENT, url TEXT, product_id INTEGER NOT NULL);
INSERT INTO families (name) VALUES ('Seating');
INSERT INTO products (name, family_id, price, active) VALUES ('Chair', 1, 10.5, 1), ('Lamp', NULL, 25.0, 1);
INSERT INTO images (url, product_id) VALUES ('chair.png', 1);
`

// sqliteConfig writes a seeded database and the catalog definitions into a
// temp dir and returns a config serving them.
func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "catalog.db")
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(lifecycleDDL)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	entitiesPath := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(entitiesPath, []byte(testutil.CatalogYAML), 0o600))

	return &config.Config{
		Connectors: map[string]config.ConnectorConfig{
			config.DefaultConnector: {
				Driver: config.DriverSQLite,
				DSN:    dbPath,
				Pool:   config.PoolConfig{MaxOpen: 1, MaxIdle: 1},
			},
		},
		Entities: config.EntitiesConfig{Files: []string{entitiesPath}},
		Server: config.ServerConfig{
			Port:               0,
			GraphQLPath:        "/graphql",
			RESTPrefix:         "/table",
			RESTEnabled:        true,
			ShutdownTimeout:    time.Second,
			HealthCheckTimeout: time.Second,
		},
		Planner: config.PlannerConfig{DefaultLimit: 10},
		Observability: config.ObservabilityConfig{
			ServiceName: "autoapi-test",
			Logging:     config.LoggingConfig{Level: "error", Format: "text"},
		},
		Naming: naming.DefaultConfig(),
	}
}

func TestWaitForStop_SignalWins(t *testing.T) {
	app := &App{logger: testLogger()}
	stop := make(chan os.Signal, 1)
	stop <- syscall.SIGTERM

	reason, err := app.WaitForStop(stop, make(chan error, 1))
	require.NoError(t, err)
	assert.Equal(t, "signal", reason)
}

func TestWaitForStop_ServerErrorWins(t *testing.T) {
	app := &App{logger: testLogger()}
	serverErrors := make(chan error, 1)
	serverErrors <- errors.New("boom")

	reason, err := app.WaitForStop(make(chan os.Signal, 1), serverErrors)
	require.Error(t, err)
	assert.Equal(t, "server_error", reason)
	assert.Contains(t, err.Error(), "boom")
}

func TestWaitForStop_NoChannels(t *testing.T) {
	app := &App{logger: testLogger()}
	_, err := app.WaitForStop(nil, nil)
	require.Error(t, err)
}

func TestShutdown_Idempotent(t *testing.T) {
	app := &App{logger: testLogger()}
	var calls int32
	app.cleanup.push("test", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, app.Shutdown(ctx))
	require.NoError(t, app.Shutdown(ctx))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCleanupStack_ReverseOrderAndFailures(t *testing.T) {
	var order []string
	var s cleanupStack
	s.push("first", func(context.Context) error { order = append(order, "first"); return nil })
	s.push("second", func(context.Context) error { order = append(order, "second"); return errors.New("close failed") })
	s.push("third", func(context.Context) error { order = append(order, "third"); return nil })

	failed := s.run(context.Background(), testLogger())
	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestNew_RequiresConfigAndLogger(t *testing.T) {
	_, err := New(nil, testLogger())
	require.Error(t, err)
	_, err = New(&config.Config{}, nil)
	require.Error(t, err)
}

func TestStart_BeforeInit_Fails(t *testing.T) {
	app := &App{logger: testLogger()}
	_, err := app.Start()
	require.Error(t, err)
}

func TestStartAndShutdown_HappyPath(t *testing.T) {
	app := &App{
		cfg:        &config.Config{},
		logger:     testLogger(),
		serverAddr: "127.0.0.1:0",
		srv: &http.Server{
			Addr:    "127.0.0.1:0",
			Handler: http.NewServeMux(),
		},
		initialized: true,
	}
	app.cleanup.push("HTTP server", func(ctx context.Context) error {
		return app.srv.Shutdown(ctx)
	})

	_, err := app.Start()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, app.Shutdown(ctx))
}

func TestInitFailure_DoesNotMarkInitialized(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Entities.Files = []string{filepath.Join(t.TempDir(), "missing.yaml")}

	app, err := New(cfg, testLogger())
	require.NoError(t, err)
	require.Error(t, app.Init(context.Background()))

	app.stateMu.Lock()
	defer app.stateMu.Unlock()
	assert.False(t, app.initialized)
	assert.Nil(t, app.handler)
}

func TestInit_ServesGraphQLAndREST(t *testing.T) {
	var afterSent atomic.Int32
	builder := hooks.NewBuilder()
	require.NoError(t, builder.Register("products", entity.OpQuery, hooks.AfterResultSent,
		func(_ context.Context, hc hooks.Context) (hooks.Context, error) {
			afterSent.Add(1)
			return hc, nil
		}))

	app, err := New(sqliteConfig(t), testLogger(), WithHooks(builder))
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })
	require.NoError(t, app.Init(context.Background()), "Init is idempotent")

	h := app.Handler()
	require.NotNil(t, h)
	require.NotNil(t, app.Engine())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","connectors":{"default":"ok"}}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/table/products?order=name", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list struct {
		Results []map[string]any `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Results, 2)
	assert.Equal(t, "Chair", list.Results[0]["name"])

	body := `{"query":"{ products(filter: {name: {_eq: \"Chair\"}}) { name families { name } images { url } } }"}`
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var gql struct {
		Data struct {
			Products []struct {
				Name     string
				Families struct{ Name string }
				Images   []struct{ URL string }
			} `json:"products"`
		} `json:"data"`
		Errors []map[string]any `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &gql), rec.Body.String())
	require.Empty(t, gql.Errors)
	require.Len(t, gql.Data.Products, 1)
	assert.Equal(t, "Seating", gql.Data.Products[0].Families.Name)
	require.Len(t, gql.Data.Products[0].Images, 1)
	assert.Equal(t, "chair.png", gql.Data.Products[0].Images[0].URL)

	assert.EqualValues(t, 2, afterSent.Load(), "one REST and one GraphQL query")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/graphql", rec.Header().Get("Location"))
}
