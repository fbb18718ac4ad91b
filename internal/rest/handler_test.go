package rest

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"autoapi/internal/dbexec"
	"autoapi/internal/engine"
	"autoapi/internal/entity"
	"autoapi/internal/hooks"
	"autoapi/internal/planner"
	"autoapi/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const catalogDDL = `
CREATE TABLE families (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL);
CREATE TABLE products (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	family_id INTEGER REFERENCES families(id),
	price REAL,
	active BOOLEAN,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE images (id INTEGER PRIMARY KEY AUTOINCREMENT, url TEXT, product_id INTEGER NOT NULL);

INSERT INTO families (name) VALUES ('Seating'), ('Tables');
INSERT INTO products (name, family_id, price, active) VALUES
	('Chair', 1, 10.5, 1),
	('Stool', 1, 7.0, 1),
	('Desk', 2, 120.0, 0),
	('Lamp', NULL, 25.0, 1);
INSERT INTO images (url, product_id) VALUES ('chair.png', 1), ('chair-side.png', 1), ('lamp.png', 4);
`

func newTestHandler(t *testing.T, table *hooks.Table) *Handler {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(catalogDDL)
	require.NoError(t, err)

	pool := dbexec.NewPool()
	_, err = pool.Add("default", "sqlite", db, nil, planner.Options{})
	require.NoError(t, err)

	eng, err := engine.New(testutil.Catalog(t), pool, engine.Options{Hooks: table})
	require.NoError(t, err)
	return NewHandler(eng, "table/")
}

func serve(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	}
	return rec, decoded
}

func names(t *testing.T, results any) []string {
	t.Helper()
	rows, ok := results.([]any)
	require.True(t, ok, "results is %T", results)
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.(map[string]any)["name"].(string))
	}
	return out
}

func TestHandler_Prefix(t *testing.T) {
	h := newTestHandler(t, nil)
	assert.Equal(t, "/table", h.Prefix())
}

func TestHandler_List(t *testing.T) {
	h := newTestHandler(t, nil)

	rec, body := serve(t, h, http.MethodGet, "/table/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, []string{"Chair", "Stool", "Desk", "Lamp"}, names(t, body["results"]))
	first := body["results"].([]any)[0].(map[string]any)
	assert.NotContains(t, first, "created_at")
	assert.Equal(t, float64(1), first["family_id"])

	_, body = serve(t, h, http.MethodGet, "/table/products?limit=2&page=1&order=name", "")
	assert.Equal(t, []string{"Lamp", "Stool"}, names(t, body["results"]))

	_, body = serve(t, h, http.MethodGet, "/table/products?order=-price&limit=0", "")
	assert.Equal(t, []string{"Desk", "Lamp", "Chair", "Stool"}, names(t, body["results"]))
}

func TestHandler_ListFilter(t *testing.T) {
	h := newTestHandler(t, nil)

	filter := url.QueryEscape(`{"families": {"name": {"_eq": "Seating"}}, "name": {"_in": ["Chair", "Desk"]}}`)
	rec, body := serve(t, h, http.MethodGet, "/table/products?filter="+filter, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Chair"}, names(t, body["results"]))

	rec, body = serve(t, h, http.MethodGet, "/table/products?filter="+url.QueryEscape(`{"price": {"_eq": 7}}`), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["message"], "price")

	rec, body = serve(t, h, http.MethodGet, "/table/products?filter=not-json", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "filter must be a JSON object", body["message"])

	rec, _ = serve(t, h, http.MethodGet, "/table/products?limit=ten", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ListFriendlyData(t *testing.T) {
	h := newTestHandler(t, nil)

	_, body := serve(t, h, http.MethodGet, "/table/products?friendlyData", "")
	rows := body["results"].([]any)
	require.Len(t, rows, 4)
	assert.Equal(t, "Seating", rows[0].(map[string]any)["family_id"])
	assert.Equal(t, "Tables", rows[2].(map[string]any)["family_id"])
	assert.Nil(t, rows[3].(map[string]any)["family_id"])

	_, body = serve(t, h, http.MethodGet, "/table/products?friendlyData=false", "")
	assert.Equal(t, float64(1), body["results"].([]any)[0].(map[string]any)["family_id"])
}

func TestHandler_Count(t *testing.T) {
	h := newTestHandler(t, nil)

	rec, body := serve(t, h, http.MethodGet, "/table/products/count", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(4), body["count"])

	_, body = serve(t, h, http.MethodGet, "/table/products/count?filter="+url.QueryEscape(`{"active": {"_eq": true}}`), "")
	assert.Equal(t, float64(3), body["count"])
}

func TestHandler_Config(t *testing.T) {
	h := newTestHandler(t, nil)

	rec, body := serve(t, h, http.MethodGet, "/table/products/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	results := body["results"].(map[string]any)
	assert.Equal(t, "products", results["name"])
	assert.Equal(t, "id", results["pk"])
	assert.Equal(t, "Products", results["label"])
	assert.NotEmpty(t, results["columns"])
}

func TestHandler_Get(t *testing.T) {
	h := newTestHandler(t, nil)

	rec, body := serve(t, h, http.MethodGet, "/table/products/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	result := body["result"].(map[string]any)
	assert.Equal(t, "Chair", result["name"])
	assert.NotContains(t, result, "images")

	_, body = serve(t, h, http.MethodGet, "/table/products/1?includeRelations=true", "")
	result = body["result"].(map[string]any)
	assert.Len(t, result["images"], 2)
	assert.Equal(t, "Seating", result["families"].(map[string]any)["name"])

	rec, body = serve(t, h, http.MethodGet, "/table/products/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, body["message"], "not found")

	rec, _ = serve(t, h, http.MethodGet, "/table/products/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_UnknownEntity(t *testing.T) {
	h := newTestHandler(t, nil)

	rec, body := serve(t, h, http.MethodGet, "/table/orders", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, body["message"], "orders")
}

func TestHandler_Unauthorized(t *testing.T) {
	h := newTestHandler(t, nil)

	rec, body := serve(t, h, http.MethodGet, "/table/users", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Not authorized", body["message"])
}

func TestHandler_Mutations(t *testing.T) {
	h := newTestHandler(t, nil)

	rec, body := serve(t, h, http.MethodPost, "/table/products", `{"data": {"name": "Bench", "family_id": 1, "price": 40}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	added := body["results"].([]any)
	require.Len(t, added, 1)
	assert.Equal(t, float64(5), added[0].(map[string]any)["id"])
	assert.Equal(t, "Bench", added[0].(map[string]any)["name"])

	rec, body = serve(t, h, http.MethodPut, "/table/products", `{"id": 5, "data": {"name": "Long bench"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"Long bench"}, names(t, body["results"]))

	rec, body = serve(t, h, http.MethodPut, "/table/products", `{"filter": {"family_id": {"_eq": 1}}, "data": {"active": false}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.ElementsMatch(t, []string{"Chair", "Stool", "Long bench"}, names(t, body["results"]))

	rec, body = serve(t, h, http.MethodDelete, "/table/products/5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"deleted": float64(1)}, body["results"])

	rec, body = serve(t, h, http.MethodDelete, "/table/images", `{"filter": {"product_id": {"_eq": 1}}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"deleted": float64(2)}, body["results"])
}

func TestHandler_MutationErrors(t *testing.T) {
	h := newTestHandler(t, nil)

	rec, body := serve(t, h, http.MethodPost, "/table/products", `{"data": {"name": "Bench", "colour": "red"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["message"], "colour")

	rec, body = serve(t, h, http.MethodPost, "/table/products", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "data is required", body["message"])

	rec, _ = serve(t, h, http.MethodPost, "/table/products", `{"data": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = serve(t, h, http.MethodDelete, "/table/products", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "delete requires a filter", body["message"])
}

func TestHandler_UpdateRequiresFilter(t *testing.T) {
	h := newTestHandler(t, nil)

	rec, body := serve(t, h, http.MethodPut, "/table/families", `{"data": {"name": "Renamed"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "update requires a filter", body["message"])

	rec, body = serve(t, h, http.MethodPut, "/table/families", `{"filter": {}, "data": {"name": "Renamed"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "update requires a filter", body["message"])

	rec, body = serve(t, h, http.MethodGet, "/table/families", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Seating", "Tables"}, names(t, body["results"]))
}

func TestHandler_AfterResultSentRunsAfterResponse(t *testing.T) {
	builder := hooks.NewBuilder()
	var bodyAtHook string
	var rec *httptest.ResponseRecorder
	require.NoError(t, builder.Register("families", entity.OpQuery, hooks.AfterResultSent,
		func(_ context.Context, hc hooks.Context) (hooks.Context, error) {
			bodyAtHook = rec.Body.String()
			return hc, nil
		}))
	h := newTestHandler(t, builder.Build())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/table/families", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, bodyAtHook, `"Seating"`)
}

func TestBoolParam(t *testing.T) {
	for raw, want := range map[string]bool{
		"":           false,
		"flag":       true,
		"flag=":      true,
		"flag=1":     true,
		"flag=true":  true,
		"flag=yes":   true,
		"flag=false": false,
		"flag=0":     false,
		"other=true": false,
	} {
		q, err := url.ParseQuery(raw)
		require.NoError(t, err)
		assert.Equal(t, want, boolParam(q, "flag"), raw)
	}
}
