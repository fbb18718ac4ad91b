package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"autoapi/internal/entity"
	"autoapi/internal/relations"

	"github.com/graphql-go/graphql"
)

// batchParentKeyField tags every row with the key of the batch it was loaded
// in, so relation resolvers can find its siblings.
const batchParentKeyField = "__batch_parent_key"

type batchState struct {
	mu          sync.Mutex
	parentRows  map[string][]entity.Row
	loads       map[string]*relationLoad
	cacheHits   int32
	cacheMisses int32
}

// relationLoad is the single fetch shared by every parent of one batch.
type relationLoad struct {
	once  sync.Once
	index relations.Index
	err   error
}

type batchStateKey struct{}

// NewBatchingContext injects a request-scoped batch state for resolvers.
func NewBatchingContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, batchStateKey{}, &batchState{
		parentRows: make(map[string][]entity.Row),
		loads:      make(map[string]*relationLoad),
	})
}

func getBatchState(ctx context.Context) (*batchState, bool) {
	if ctx == nil {
		return nil, false
	}

	state, ok := ctx.Value(batchStateKey{}).(*batchState)
	return state, ok
}

// BatchStats reports relation cache hits and misses for the request.
func BatchStats(ctx context.Context) (hits, misses int32, ok bool) {
	state, ok := getBatchState(ctx)
	if !ok {
		return 0, 0, false
	}
	return state.GetCacheHits(), state.GetCacheMisses(), true
}

func (s *batchState) addParentRows(parentKey string, rows []entity.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.parentRows[parentKey] = append(s.parentRows[parentKey], rows...)
}

func (s *batchState) getParentRows(parentKey string) []entity.Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.parentRows[parentKey]
}

// relationLoad returns the load registered under relKey, creating it when
// absent. created reports whether this call created it.
func (s *batchState) relationLoad(relKey string) (load *relationLoad, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.loads[relKey]; ok {
		return existing, false
	}
	load = &relationLoad{}
	s.loads[relKey] = load
	return load, true
}

// IncrementCacheHit increments the cache hit counter.
func (s *batchState) IncrementCacheHit() {
	atomic.AddInt32(&s.cacheHits, 1)
}

// IncrementCacheMiss increments the cache miss counter.
func (s *batchState) IncrementCacheMiss() {
	atomic.AddInt32(&s.cacheMisses, 1)
}

// GetCacheHits returns the current cache hit count.
func (s *batchState) GetCacheHits() int32 {
	return atomic.LoadInt32(&s.cacheHits)
}

// GetCacheMisses returns the current cache miss count.
func (s *batchState) GetCacheMisses() int32 {
	return atomic.LoadInt32(&s.cacheMisses)
}

// seedBatchRows registers rows returned by a field as the parents of any
// relation selected beneath it.
func seedBatchRows(ctx context.Context, parentKey string, rows []entity.Row) {
	if len(rows) == 0 {
		return
	}
	state, ok := getBatchState(ctx)
	if !ok {
		return
	}
	for _, row := range rows {
		row[batchParentKeyField] = parentKey
	}
	state.addParentRows(parentKey, rows)
}

func parentKeyFromSource(row entity.Row) (string, bool) {
	key, ok := row[batchParentKeyField].(string)
	return key, ok
}

// pathKey renders the response path without list indexes, so every element
// of a list shares one key: "families.0.products" becomes "families.products".
func pathKey(path *graphql.ResponsePath) string {
	if path == nil {
		return ""
	}
	parts := make([]string, 0, 4)
	for current := path; current != nil; current = current.Prev {
		if _, isIndex := current.Key.(int); isIndex {
			continue
		}
		parts = append(parts, fmt.Sprint(current.Key))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

func stableArgsKey(args map[string]interface{}) string {
	if len(args) == 0 {
		return ""
	}

	keys := make([]string, 0, len(args))
	for key := range args {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, key := range keys {
		parts[i] = fmt.Sprintf("%s=%v", key, args[key])
	}
	return strings.Join(parts, ",")
}

// rowsOf flattens an index into its rows, each row once.
func rowsOf(index relations.Index) []entity.Row {
	keys := make([]string, 0, len(index))
	for key := range index {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var rows []entity.Row
	for _, key := range keys {
		rows = append(rows, index[key]...)
	}
	return rows
}
