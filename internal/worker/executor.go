package worker

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Supported reports whether calls may be moved to a background worker.
// It is computed once per process.
var Supported = sync.OnceValue(func() bool {
	if v := os.Getenv("WIDGETS_WORKER_DISABLED"); v != "" {
		if off, err := strconv.ParseBool(v); err == nil && off {
			return false
		}
	}
	return runtime.GOMAXPROCS(0) > 1
})

// Executor runs calls either inline on the caller's goroutine or through a
// background Client.
type Executor struct {
	d      *Dispatcher
	client *Client
	closed atomic.Bool
}

func NewExecutor(d *Dispatcher, background bool) *Executor {
	e := &Executor{d: d}
	if background {
		e.client = NewClient(d)
	}
	return e
}

// NewDefaultExecutor picks background execution when Supported.
func NewDefaultExecutor(d *Dispatcher) *Executor { return NewExecutor(d, Supported()) }

func (e *Executor) Background() bool { return e.client != nil }

func (e *Executor) Dispatcher() *Dispatcher { return e.d }

func (e *Executor) Init(ctx context.Context, key string, spec DatasetSpec) (Response, error) {
	if e.client != nil {
		return e.client.Init(ctx, key, spec)
	}
	return e.d.Init(ctx, InitMessage{DatasetKey: key, RequestID: uuid.NewString(), Dataset: spec}), nil
}

func (e *Executor) Call(ctx context.Context, key string, m Method, params any) (Response, error) {
	if e.client != nil {
		return e.client.Call(ctx, key, m, params)
	}
	req, err := newRequest(key, m, params)
	if err != nil {
		return Response{}, err
	}
	return e.d.Call(ctx, req), nil
}

// Do answers a caller-built request, keeping its request id.
func (e *Executor) Do(ctx context.Context, req Request) (Response, error) {
	if e.client == nil {
		return e.d.Call(ctx, req), nil
	}
	// correlate on a private id so duplicate caller ids cannot collide
	callerID := req.RequestID
	req.RequestID = uuid.NewString()
	r, err := e.client.roundTrip(ctx, req.RequestID, Envelope{Call: &req})
	r.RequestID = callerID
	return r, err
}

func (e *Executor) Invalidate(ctx context.Context, key string) error {
	return e.d.Invalidate(ctx, key)
}

func (e *Executor) Drop(ctx context.Context, key string) error {
	return e.d.Drop(ctx, key)
}

// Readiness reports whether calls are accepted and how many datasets are
// registered.
func (e *Executor) Readiness() (bool, int) {
	return !e.closed.Load(), e.d.Registry().Len()
}

func (e *Executor) Close() {
	e.closed.Store(true)
	if e.client != nil {
		e.client.Close()
	}
}
