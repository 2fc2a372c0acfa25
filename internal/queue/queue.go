// Package queue buffers remote calls and flushes them as one batch per endpoint.
//
// A flush is never sent immediately: Flush schedules it on the next tick of
// the Scheduler, so every call enqueued by the surrounding burst of activity
// joins the same batch. Calls are grouped by endpoint name only, each
// endpoint receives one ordered batch, and its responses are matched back to
// the calls by position.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"batchrpc/internal/endpoint"
	"batchrpc/internal/exception"
	"batchrpc/internal/future"
	"batchrpc/internal/wire"
)

var (
	ErrClosed          = errors.New("queue is closed")
	ErrMissingResponse = errors.New("missing response")
)

// record is one in-flight call owned by the queue until its future settles
type record struct {
	id       string
	call     *wire.Call
	endpoint endpoint.Endpoint
	future   *future.Future
}

// Queue coalesces calls into per-endpoint batches
type Queue struct {
	exceptions *exception.Registry
	scheduler  Scheduler
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	buffer      []*record
	flushFuture *future.Future // set while a flush is scheduled
	running     *future.Future // latest detached flush still sending
	closed      bool
	mu          sync.Mutex

	inflight sync.WaitGroup
}

// Option configures a Queue
type Option func(*Queue)

// WithScheduler sets the scheduler that defers flushes
func WithScheduler(s Scheduler) Option {
	return func(q *Queue) { q.scheduler = s }
}

// WithLogger sets the logger used for batch diagnostics
func WithLogger(logger zerolog.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// New creates a new Queue. Failures are reconstructed through exceptions.
func New(exceptions *exception.Registry, opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		exceptions: exceptions,
		scheduler:  NewTimerScheduler(DefaultFlushDelay),
		logger:     zerolog.Nop(),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With().Str("component", "queue").Logger()
	return q
}

// Enqueue buffers a call for ep and returns its future. It never blocks.
func (q *Queue) Enqueue(call *wire.Call, ep endpoint.Endpoint) *future.Future {
	rec := &record{
		id:       uuid.NewString(),
		call:     call,
		endpoint: ep,
		future:   future.New(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		rec.future.Reject(ErrClosed)
		return rec.future
	}
	q.buffer = append(q.buffer, rec)
	return rec.future
}

// Len returns the number of buffered calls not yet detached by a flush
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buffer)
}

// Flush requests a flush on the next tick and returns a future settling once
// every batch of that flush has been answered. While a flush is scheduled
// the same future is returned. With nothing buffered the future of the flush
// still sending is returned, or an already resolved one.
func (q *Queue) Flush() *future.Future {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.flushFuture != nil {
		return q.flushFuture
	}
	if len(q.buffer) == 0 {
		if q.running != nil {
			return q.running
		}
		return future.Resolved(nil)
	}

	q.flushFuture = future.New()
	q.scheduler.Next(q.run)
	return q.flushFuture
}

// run detaches the buffer and sends it
func (q *Queue) run() {
	q.mu.Lock()
	records := q.buffer
	flush := q.flushFuture
	q.buffer = nil
	q.flushFuture = nil
	if len(records) > 0 {
		if flush == nil {
			flush = future.New()
		}
		q.running = flush
		q.inflight.Add(1)
	}
	q.mu.Unlock()

	if len(records) == 0 {
		if flush != nil {
			flush.Resolve(nil)
		}
		return
	}
	defer q.inflight.Done()
	defer q.finish(flush)

	// group by endpoint name, keeping first-seen order
	var order []string
	groups := make(map[string][]*record)
	for _, rec := range records {
		name := rec.endpoint.Name()
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], rec)
	}

	q.logger.Debug().
		Int("calls", len(records)).
		Int("batches", len(order)).
		Msg("flushing queue")

	var wg sync.WaitGroup
	for _, name := range order {
		wg.Add(1)
		go func(name string, batch []*record) {
			defer wg.Done()
			q.sendBatch(name, batch)
		}(name, groups[name])
	}
	wg.Wait()
}

// finish resolves a completed flush and forgets it if it is still the latest
func (q *Queue) finish(flush *future.Future) {
	q.mu.Lock()
	if q.running == flush {
		q.running = nil
	}
	q.mu.Unlock()
	flush.Resolve(nil)
}

// sendBatch sends one endpoint's batch and settles every call in it
func (q *Queue) sendBatch(name string, batch []*record) {
	calls := make([]*wire.Call, len(batch))
	for i, rec := range batch {
		calls[i] = rec.call
	}

	responses, err := q.send(batch[0].endpoint, calls)
	if err == nil {
		err = endpoint.CheckBatch(name, calls, responses)
	}
	if err != nil {
		q.logger.Warn().
			Err(err).
			Str("endpoint", name).
			Int("calls", len(batch)).
			Msg("batch failed")
		for _, rec := range batch {
			rec.future.Reject(err)
		}
		return
	}

	for i, rec := range batch {
		q.settle(name, rec, responses[i])
	}

	q.logger.Debug().
		Str("endpoint", name).
		Int("calls", len(batch)).
		Msg("batch completed")
}

// send calls the endpoint, turning a panic into a batch failure
func (q *Queue) send(ep endpoint.Endpoint, calls []*wire.Call) (responses []*wire.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			responses = nil
			err = &endpoint.TransportError{Endpoint: ep.Name(), Err: fmt.Errorf("send panicked: %v", r)}
		}
	}()
	return ep.Send(q.ctx, calls)
}

// settle resolves or rejects one call from its response
func (q *Queue) settle(name string, rec *record, resp *wire.Response) {
	if resp == nil {
		rec.future.Reject(&endpoint.TransportError{Endpoint: name, Err: ErrMissingResponse})
		return
	}
	if resp.Success {
		rec.future.Resolve(resp.Result)
		return
	}

	failure, err := resp.Failure()
	if err != nil {
		rec.future.Reject(&endpoint.TransportError{Endpoint: name, Err: err})
		return
	}

	if failure.HasTrace() {
		q.logger.Error().
			Str("callID", rec.id).
			Str("endpoint", name).
			Str("call", rec.call.String()).
			Str("traceback", exception.Format(failure)).
			Msg("error in remote call")
	}

	rec.future.Reject(q.exceptions.Reconstruct(failure))
}

// Close stops accepting calls, flushes what is buffered and waits for
// in-flight batches until ctx is done.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	pending := len(q.buffer) > 0
	q.mu.Unlock()

	if pending {
		q.run()
	}

	done := make(chan struct{})
	go func() {
		q.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.logger.Info().Msg("queue closed")
		return nil
	case <-ctx.Done():
		q.cancel()
		return fmt.Errorf("waiting for in-flight batches: %w", ctx.Err())
	}
}
