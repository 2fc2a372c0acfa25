// Package dispatch exposes every registered operation behind one name-indexed
// call surface.
//
// Invoke validates the arguments against the operation contract, enqueues
// the call for the endpoint serving it and asks the queue to flush. Contract
// violations are returned synchronously and never reach the queue. The
// dispatcher follows endpoint and exception kind registrations made after it
// was created.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"batchrpc/internal/cache"
	"batchrpc/internal/endpoint"
	"batchrpc/internal/exception"
	"batchrpc/internal/future"
	"batchrpc/internal/queue"
	"batchrpc/internal/wire"
)

type undefined struct{}

// Undefined marks an argument that was not given. Passing it anywhere in the
// argument list fails the invocation; nil is an explicit null and is allowed.
var Undefined interface{} = undefined{}

type route struct {
	op       endpoint.Operation
	endpoint endpoint.Endpoint
}

// Dispatcher validates invocations and feeds them to the queue
type Dispatcher struct {
	queue      *queue.Queue
	exceptions *exception.Registry
	cache      cache.Cache
	logger     zerolog.Logger

	routes map[string]route
	kinds  map[string]*exception.Kind
	mu     sync.RWMutex
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithCache enables result caching for cacheable operations
func WithCache(c cache.Cache) Option {
	return func(d *Dispatcher) { d.cache = c }
}

// WithLogger sets the dispatcher logger
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// New creates a dispatcher over the operations of every endpoint in endpoints
// and the kinds in exceptions, including those registered later.
func New(endpoints *endpoint.Registry, exceptions *exception.Registry, q *queue.Queue, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		queue:      q,
		exceptions: exceptions,
		logger:     zerolog.Nop(),
		routes:     make(map[string]route),
		kinds:      make(map[string]*exception.Kind),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With().Str("component", "dispatcher").Logger()

	// subscribe before the snapshot so nothing registered in between is missed
	endpoints.OnCreate(func(ep endpoint.Endpoint) {
		if err := d.addEndpoint(ep); err != nil {
			d.logger.Error().Err(err).Str("endpoint", ep.Name()).Msg("failed to add endpoint")
		}
	})
	exceptions.OnDefine(d.addKind)

	for _, ep := range endpoints.Endpoints() {
		if err := d.addEndpoint(ep); err != nil {
			return nil, err
		}
	}
	for _, kind := range exceptions.Kinds() {
		d.addKind(kind)
	}

	return d, nil
}

// addEndpoint routes every operation of ep to it. Adding the same endpoint
// twice is a no-op; an operation already served by another endpoint fails.
func (d *Dispatcher) addEndpoint(ep endpoint.Endpoint) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ops := ep.Operations()
	for _, op := range ops {
		if r, ok := d.routes[op.Name]; ok && r.endpoint.Name() != ep.Name() {
			return fmt.Errorf("%w: %s (endpoints %s and %s)", ErrDuplicateOperation, op.Name, r.endpoint.Name(), ep.Name())
		}
	}
	for _, op := range ops {
		d.routes[op.Name] = route{op: op, endpoint: ep}
	}

	d.logger.Debug().
		Str("endpoint", ep.Name()).
		Int("operations", len(ops)).
		Msg("endpoint added")
	return nil
}

func (d *Dispatcher) addKind(kind *exception.Kind) {
	d.mu.Lock()
	d.kinds[kind.Name()] = kind
	d.mu.Unlock()
}

// Invoke calls operation name with the contract's version
func (d *Dispatcher) Invoke(name string, args ...interface{}) (*future.Future, error) {
	r, err := d.validate(name, args)
	if err != nil {
		return nil, err
	}
	return d.submit(r, r.op.Version, args), nil
}

// InvokeVersion calls operation name, sending version instead of the contract's
func (d *Dispatcher) InvokeVersion(name, version string, args ...interface{}) (*future.Future, error) {
	r, err := d.validate(name, args)
	if err != nil {
		return nil, err
	}
	return d.submit(r, version, args), nil
}

// validate checks the invocation against the operation contract
func (d *Dispatcher) validate(name string, args []interface{}) (route, error) {
	d.mu.RLock()
	r, ok := d.routes[name]
	d.mu.RUnlock()
	if !ok {
		return route{}, fmt.Errorf("%w '%s'", ErrUnknownOperation, name)
	}

	op := r.op
	n := len(args)
	switch {
	case op.MinArgs == op.MaxArgs && n != op.MinArgs:
		return route{}, &ArityError{Operation: name, Kind: ArityExact, Min: op.MinArgs, Max: op.MaxArgs, Received: n}
	case n < op.MinArgs:
		return route{}, &ArityError{Operation: name, Kind: ArityTooFew, Min: op.MinArgs, Max: op.MaxArgs, Received: n}
	case n > op.MaxArgs:
		return route{}, &ArityError{Operation: name, Kind: ArityTooMany, Min: op.MinArgs, Max: op.MaxArgs, Received: n}
	}

	for i, arg := range args {
		if arg == Undefined {
			return route{}, &UndefinedArgumentError{Operation: name, Argument: op.ArgName(i), Index: i}
		}
	}
	return r, nil
}

// submit enqueues a validated call and requests a flush
func (d *Dispatcher) submit(r route, version string, args []interface{}) *future.Future {
	args = append([]interface{}(nil), args...)

	var key string
	cacheable := false
	if d.cache != nil && r.op.Cacheable {
		key, cacheable = cache.Key(r.op.Name, version, args)
	}
	if cacheable {
		if data, ok := d.cache.Get(key); ok {
			d.logger.Debug().Str("operation", r.op.Name).Msg("cache hit")
			return future.Resolved(data)
		}
	}

	f := d.queue.Enqueue(wire.NewCall(r.op.Name, version, args), r.endpoint)
	d.queue.Flush()

	if cacheable {
		go func() {
			if result, err := f.Wait(context.Background()); err == nil {
				d.cache.Set(key, result)
			}
		}()
	}
	return f
}

// Operations returns the contracts of every known operation sorted by name
func (d *Dispatcher) Operations() []endpoint.Operation {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ops := make([]endpoint.Operation, 0, len(d.routes))
	for _, r := range d.routes {
		ops = append(ops, r.op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}

// Operation returns the contract of operation name and the endpoint serving it
func (d *Dispatcher) Operation(name string) (endpoint.Operation, string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.routes[name]
	if !ok {
		return endpoint.Operation{}, "", false
	}
	return r.op, r.endpoint.Name(), true
}

// Exception returns the exception kind registered under name
func (d *Dispatcher) Exception(name string) (*exception.Kind, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	k, ok := d.kinds[name]
	return k, ok
}
