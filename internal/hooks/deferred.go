package hooks

import (
	"context"
	"sync"
)

// Deferred queues afterResultSent work for one request. The transport
// flushes it once the response has been written.
type Deferred struct {
	mu    sync.Mutex
	calls []func(context.Context)
}

type deferredKey struct{}

// WithDeferred attaches a new queue to ctx.
func WithDeferred(ctx context.Context) (context.Context, *Deferred) {
	d := &Deferred{}
	return context.WithValue(ctx, deferredKey{}, d), d
}

// DeferredFromContext returns the request queue, or nil.
func DeferredFromContext(ctx context.Context) *Deferred {
	d, _ := ctx.Value(deferredKey{}).(*Deferred)
	return d
}

func (d *Deferred) push(fn func(context.Context)) {
	d.mu.Lock()
	d.calls = append(d.calls, fn)
	d.mu.Unlock()
}

// Len reports the number of queued calls.
func (d *Deferred) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// Flush runs and clears the queued calls in order.
func (d *Deferred) Flush(ctx context.Context) {
	if d == nil {
		return
	}
	d.mu.Lock()
	calls := d.calls
	d.calls = nil
	d.mu.Unlock()
	for _, fn := range calls {
		fn(ctx)
	}
}

// Defer schedules the afterResultSent stage for hc. Without a request queue
// the stage runs immediately.
func (t *Table) Defer(ctx context.Context, hc Context) {
	if hc.Entity == nil || len(t.Lookup(hc.Entity.Name, hc.Operation, AfterResultSent)) == 0 {
		return
	}
	run := func(ctx context.Context) {
		_, _ = t.Run(ctx, AfterResultSent, hc)
	}
	if d := DeferredFromContext(ctx); d != nil {
		d.push(run)
		return
	}
	run(ctx)
}
