package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var ErrClosed = errors.New("worker closed")

// Envelope carries exactly one of Init or Call.
type Envelope struct {
	Init *InitMessage
	Call *Request
}

// Worker is the message loop in front of a Dispatcher.
type Worker struct {
	d *Dispatcher
}

func NewWorker(d *Dispatcher) *Worker { return &Worker{d: d} }

// Run consumes in until it is closed or ctx is done. Init messages are
// applied in arrival order; calls run on their own goroutine and may
// complete out of order. out is closed once every started call has
// answered.
func (w *Worker) Run(ctx context.Context, in <-chan Envelope, out chan<- Response) {
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		close(out)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-in:
			if !ok {
				return
			}
			switch {
			case env.Init != nil:
				send(ctx, out, w.d.Init(ctx, *env.Init))
			case env.Call != nil:
				req := *env.Call
				wg.Add(1)
				go func() {
					defer wg.Done()
					send(ctx, out, w.d.Call(ctx, req))
				}()
			}
		}
	}
}

func send(ctx context.Context, out chan<- Response, r Response) {
	select {
	case out <- r:
	case <-ctx.Done():
	}
}

// Client runs a Worker on a background goroutine and correlates its
// responses by request id.
type Client struct {
	in      chan Envelope
	quit    chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc
	once    sync.Once
	mu      sync.Mutex
	pending map[string]chan Response
}

func NewClient(d *Dispatcher) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		in:      make(chan Envelope),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		cancel:  cancel,
		pending: make(map[string]chan Response),
	}
	out := make(chan Response, 16)
	go NewWorker(d).Run(ctx, c.in, out)
	go c.readLoop(out)
	return c
}

func (c *Client) readLoop(out <-chan Response) {
	defer close(c.done)
	for r := range out {
		c.mu.Lock()
		ch, ok := c.pending[r.RequestID]
		delete(c.pending, r.RequestID)
		c.mu.Unlock()
		if ok {
			ch <- r
		}
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// roundTrip waits for the response to env. ctx only bounds the wait; a call
// already handed to the worker still runs to completion.
func (c *Client) roundTrip(ctx context.Context, id string, env Envelope) (Response, error) {
	ch := make(chan Response, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	select {
	case c.in <- env:
	case <-ctx.Done():
		c.forget(id)
		return Response{}, ctx.Err()
	case <-c.quit:
		c.forget(id)
		return Response{}, ErrClosed
	}
	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		c.forget(id)
		return Response{}, ctx.Err()
	case <-c.done:
		c.forget(id)
		return Response{}, ErrClosed
	}
}

func (c *Client) Init(ctx context.Context, key string, spec DatasetSpec) (Response, error) {
	id := uuid.NewString()
	return c.roundTrip(ctx, id, Envelope{Init: &InitMessage{DatasetKey: key, RequestID: id, Dataset: spec}})
}

// Call sends a method call. params is sent as-is when it is a
// json.RawMessage and JSON encoded otherwise.
func (c *Client) Call(ctx context.Context, key string, m Method, params any) (Response, error) {
	req, err := newRequest(key, m, params)
	if err != nil {
		return Response{}, err
	}
	return c.roundTrip(ctx, req.RequestID, Envelope{Call: &req})
}

// Close stops the worker. Pending calls return ErrClosed.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.quit)
		c.cancel()
		<-c.done
	})
}

func newRequest(key string, m Method, params any) (Request, error) {
	var raw json.RawMessage
	switch p := params.(type) {
	case nil:
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return Request{}, fmt.Errorf("encode params: %w", err)
		}
		raw = b
	}
	return Request{DatasetKey: key, RequestID: uuid.NewString(), Method: m, Params: raw}, nil
}
