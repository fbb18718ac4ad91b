package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"autoapi/internal/config"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func corsRequest(method, origin string) *http.Request {
	req := httptest.NewRequest(method, "/table/products", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestCORS_Disabled(t *testing.T) {
	rr := httptest.NewRecorder()
	CORS(config.CORSConfig{})(okHandler()).ServeHTTP(rr, corsRequest(http.MethodGet, "http://example.com"))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_AllowedAndDisallowedOrigins(t *testing.T) {
	handler := CORS(config.CORSConfig{
		Enabled:          true,
		AllowedOrigins:   []string{" http://localhost:3000 ", ""},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
	})(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, corsRequest(http.MethodGet, "http://localhost:3000"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, []string{"Origin"}, rr.Header().Values("Vary"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "X-Request-ID", rr.Header().Get("Access-Control-Expose-Headers"))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, corsRequest(http.MethodGet, "http://evil.example"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Preflight(t *testing.T) {
	handler := CORS(config.CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         600,
	})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("preflight reached the handler")
	}))

	req := corsRequest(http.MethodOptions, "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "GET, POST, PUT, DELETE", rr.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, Authorization", rr.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "600", rr.Header().Get("Access-Control-Max-Age"))

	req = corsRequest(http.MethodOptions, "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", "DELETE")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORS_PlainOptionsPassesThrough(t *testing.T) {
	rr := httptest.NewRecorder()
	CORS(config.CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}})(okHandler()).
		ServeHTTP(rr, corsRequest(http.MethodOptions, "http://localhost:3000"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCORS_WildcardIgnoresCredentials(t *testing.T) {
	rr := httptest.NewRecorder()
	CORS(config.CORSConfig{
		Enabled:          true,
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
	})(okHandler()).ServeHTTP(rr, corsRequest(http.MethodGet, "http://any.example"))

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
	assert.Empty(t, rr.Header().Get("Vary"))
}
