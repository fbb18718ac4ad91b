// Package rest serves the entity operations as JSON routes under a path prefix.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"autoapi/internal/apperr"
	"autoapi/internal/engine"
	"autoapi/internal/hooks"
	"autoapi/internal/logging"
	"autoapi/internal/planner"
)

// DefaultLimit is the page size of list routes without a limit parameter.
const DefaultLimit = 10

const maxBodyBytes = 1 << 20

// Handler routes REST requests to the engine.
type Handler struct {
	engine *engine.Engine
	prefix string
	mux    *http.ServeMux
}

// NewHandler registers the entity routes under prefix, e.g. "/table".
func NewHandler(eng *engine.Engine, prefix string) *Handler {
	prefix = "/" + strings.Trim(prefix, "/")
	h := &Handler{engine: eng, prefix: prefix, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET "+prefix+"/{table}", h.route(h.list))
	h.mux.HandleFunc("GET "+prefix+"/{table}/count", h.route(h.count))
	h.mux.HandleFunc("GET "+prefix+"/{table}/config", h.route(h.config))
	h.mux.HandleFunc("GET "+prefix+"/{table}/{id}", h.route(h.get))
	h.mux.HandleFunc("POST "+prefix+"/{table}", h.route(h.add))
	h.mux.HandleFunc("PUT "+prefix+"/{table}", h.route(h.update))
	h.mux.HandleFunc("DELETE "+prefix+"/{table}/{id}", h.route(h.deleteByID))
	h.mux.HandleFunc("DELETE "+prefix+"/{table}", h.route(h.deleteByFilter))
	return h
}

// Prefix returns the normalized route prefix.
func (h *Handler) Prefix() string { return h.prefix }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// routeFunc returns the response key and value of a successful request.
type routeFunc func(r *http.Request) (string, any, error)

// route writes the result of fn and then flushes the afterResultSent hooks
// queued while it ran.
func (h *Handler) route(fn routeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, deferred := hooks.WithDeferred(r.Context())
		key, value, err := fn(r.WithContext(ctx))
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		writeJSON(ctx, w, http.StatusOK, map[string]any{key: value})
		_ = http.NewResponseController(w).Flush()
		deferred.Flush(context.WithoutCancel(ctx))
	}
}

func (h *Handler) list(r *http.Request) (string, any, error) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), "limit", DefaultLimit)
	if err != nil {
		return "", nil, err
	}
	page, err := intParam(q.Get("page"), "page", 0)
	if err != nil {
		return "", nil, err
	}
	filter, err := filterParam(q.Get("filter"))
	if err != nil {
		return "", nil, err
	}
	var order []string
	if raw := strings.TrimSpace(q.Get("order")); raw != "" {
		order = strings.Split(raw, ",")
	}

	rows, err := h.engine.Query(r.Context(), engine.QueryRequest{
		Entity:   r.PathValue("table"),
		Filter:   filter,
		Page:     planner.LegacyPage(limit, page),
		Order:    order,
		Friendly: boolParam(q, "friendlyData"),
	})
	if err != nil {
		return "", nil, err
	}
	return "results", rows, nil
}

func (h *Handler) count(r *http.Request) (string, any, error) {
	filter, err := filterParam(r.URL.Query().Get("filter"))
	if err != nil {
		return "", nil, err
	}
	n, err := h.engine.Count(r.Context(), r.PathValue("table"), filter)
	if err != nil {
		return "", nil, err
	}
	return "count", n, nil
}

func (h *Handler) config(r *http.Request) (string, any, error) {
	cfg, err := h.engine.Config(r.Context(), r.PathValue("table"))
	if err != nil {
		return "", nil, err
	}
	return "results", cfg, nil
}

func (h *Handler) get(r *http.Request) (string, any, error) {
	row, err := h.engine.Get(r.Context(), r.PathValue("table"), r.PathValue("id"),
		boolParam(r.URL.Query(), "includeRelations"))
	if err != nil {
		return "", nil, err
	}
	return "result", row, nil
}

type writeBody struct {
	ID     any            `json:"id"`
	Filter map[string]any `json:"filter"`
	Data   map[string]any `json:"data"`
}

func (h *Handler) add(r *http.Request) (string, any, error) {
	body, err := decodeBody(r)
	if err != nil {
		return "", nil, err
	}
	if body.Data == nil {
		return "", nil, apperr.InvalidInput("data is required")
	}
	rows, err := h.engine.Add(r.Context(), r.PathValue("table"), body.Data)
	if err != nil {
		return "", nil, err
	}
	return "results", rows, nil
}

func (h *Handler) update(r *http.Request) (string, any, error) {
	body, err := decodeBody(r)
	if err != nil {
		return "", nil, err
	}
	if body.Data == nil {
		return "", nil, apperr.InvalidInput("data is required")
	}
	rows, err := h.engine.Update(r.Context(), engine.UpdateRequest{
		Entity: r.PathValue("table"),
		ID:     body.ID,
		Filter: body.Filter,
		Data:   body.Data,
	})
	if err != nil {
		return "", nil, err
	}
	return "results", rows, nil
}

func (h *Handler) deleteByID(r *http.Request) (string, any, error) {
	result, err := h.engine.Delete(r.Context(), r.PathValue("table"), r.PathValue("id"), nil)
	if err != nil {
		return "", nil, err
	}
	return "results", result, nil
}

func (h *Handler) deleteByFilter(r *http.Request) (string, any, error) {
	body, err := decodeBody(r)
	if err != nil {
		return "", nil, err
	}
	result, err := h.engine.Delete(r.Context(), r.PathValue("table"), body.ID, body.Filter)
	if err != nil {
		return "", nil, err
	}
	return "results", result, nil
}

func decodeBody(r *http.Request) (writeBody, error) {
	var body writeBody
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return body, nil
		}
		return body, apperr.InvalidInput("invalid JSON body: %v", err)
	}
	return body, nil
}

func filterParam(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var filter map[string]any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&filter); err != nil {
		return nil, apperr.InvalidFilter("filter must be a JSON object")
	}
	return filter, nil
}

func intParam(raw, name string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.InvalidInput("%s must be an integer", name)
	}
	return n, nil
}

// boolParam treats a present parameter as set unless it parses as false,
// so ?friendlyData and ?friendlyData=1 both enable the option.
func boolParam(q url.Values, name string) bool {
	if !q.Has(name) {
		return false
	}
	raw := q.Get(name)
	if raw == "" {
		return true
	}
	b, err := strconv.ParseBool(raw)
	return err != nil || b
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.FromContext(ctx).Warn("failed to write response", slog.String("error", err.Error()))
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError && !apperr.Is(err, apperr.KindUpstream) {
		logging.FromContext(ctx).Error("request failed", slog.String("error", err.Error()))
	}
	writeJSON(ctx, w, status, map[string]string{"message": apperr.PublicMessage(err)})
}
