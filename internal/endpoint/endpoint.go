// Package endpoint defines named transport targets and the registry they are
// looked up in.
//
// An Endpoint serves a fixed list of operations and knows how to send an
// ordered batch of calls, returning one response per call in the same order.
// Three transports are provided: URLEndpoint (plain HTTP, one request per
// batch), JSONRPCEndpoint (JSON-RPC 2.0, one request per call) and WSEndpoint
// (one WebSocket frame per batch).
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"batchrpc/internal/wire"
)

var (
	ErrEmptyName            = errors.New("endpoint name is required")
	ErrDuplicateEndpoint    = errors.New("endpoint already registered")
	ErrDuplicateOperation   = errors.New("operation already registered")
	ErrInvalidOperation     = errors.New("invalid operation")
	ErrUnexpectedStatus     = errors.New("unexpected status code")
	ErrBatchSizeMismatch    = errors.New("batch response size mismatch")
	ErrNotConnected         = errors.New("WebSocket not connected")
	ErrConnectionClosed     = errors.New("connection closed")
	ErrUnsupportedTransport = errors.New("unsupported transport")
)

// Endpoint is a named transport target
type Endpoint interface {
	// Name is the process-wide unique key used for routing and batch grouping
	Name() string
	// Operations lists the operations served by this endpoint
	Operations() []Operation
	// Send delivers the calls as one batch. On success the returned slice has
	// exactly len(calls) entries in the same order. A transport fault fails
	// the whole batch.
	Send(ctx context.Context, calls []*wire.Call) ([]*wire.Response, error)
}

// Operation is the static contract of one remotely invocable operation
type Operation struct {
	Name      string
	Version   string
	MinArgs   int
	MaxArgs   int
	ArgNames  []string
	Cacheable bool
}

// Validate checks the arity bounds of the contract
func (o Operation) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidOperation)
	}
	if o.MinArgs < 0 || o.MaxArgs < o.MinArgs {
		return fmt.Errorf("%w: %s: argument bounds [%d, %d]", ErrInvalidOperation, o.Name, o.MinArgs, o.MaxArgs)
	}
	if len(o.ArgNames) != 0 && len(o.ArgNames) != o.MaxArgs {
		return fmt.Errorf("%w: %s: %d argument names for %d arguments", ErrInvalidOperation, o.Name, len(o.ArgNames), o.MaxArgs)
	}
	return nil
}

// ArgName returns the name of the i-th parameter, or a positional placeholder
func (o Operation) ArgName(i int) string {
	if i >= 0 && i < len(o.ArgNames) {
		return o.ArgNames[i]
	}
	return fmt.Sprintf("#%d", i)
}

// TransportError fails a whole batch
type TransportError struct {
	Endpoint string
	Status   int // HTTP status, 0 when not applicable
	Err      error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("endpoint %s: status %d: %v", e.Endpoint, e.Status, e.Err)
	}
	return fmt.Sprintf("endpoint %s: %v", e.Endpoint, e.Err)
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// CheckBatch verifies the positional correspondence of a batch response
func CheckBatch(endpointName string, calls []*wire.Call, responses []*wire.Response) error {
	if len(responses) != len(calls) {
		return &TransportError{
			Endpoint: endpointName,
			Err:      fmt.Errorf("%w: expected %d, got %d", ErrBatchSizeMismatch, len(calls), len(responses)),
		}
	}
	return nil
}

// base carries the identity shared by all transports
type base struct {
	name       string
	operations []Operation
}

// Name returns the endpoint name
func (b *base) Name() string {
	return b.name
}

// Operations returns a copy of the served operations
func (b *base) Operations() []Operation {
	ops := make([]Operation, len(b.operations))
	copy(ops, b.operations)
	return ops
}

// Registry holds endpoints by name
type Registry struct {
	endpoints map[string]Endpoint
	order     []Endpoint
	observers []func(Endpoint)
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		endpoints: make(map[string]Endpoint),
	}
}

// Register stores the endpoint under its name and notifies OnCreate observers.
// Registering a second endpoint with the same name fails.
func (r *Registry) Register(ep Endpoint) error {
	name := ep.Name()
	if name == "" {
		return ErrEmptyName
	}
	opNames := make(map[string]bool)
	for _, op := range ep.Operations() {
		if err := op.Validate(); err != nil {
			return fmt.Errorf("endpoint %s: %w", name, err)
		}
		if opNames[op.Name] {
			return fmt.Errorf("endpoint %s: %w: %s", name, ErrDuplicateOperation, op.Name)
		}
		opNames[op.Name] = true
	}

	r.mu.Lock()
	if _, exists := r.endpoints[name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateEndpoint, name)
	}
	r.endpoints[name] = ep
	r.order = append(r.order, ep)
	observers := make([]func(Endpoint), len(r.observers))
	copy(observers, r.observers)
	r.mu.Unlock()

	for _, fn := range observers {
		fn(ep)
	}
	return nil
}

// Lookup returns the endpoint registered under name
func (r *Registry) Lookup(name string) (Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[name]
	return ep, ok
}

// Endpoints returns all endpoints in registration order
func (r *Registry) Endpoints() []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	eps := make([]Endpoint, len(r.order))
	copy(eps, r.order)
	return eps
}

// OnCreate registers a callback invoked for every endpoint registered afterwards
func (r *Registry) OnCreate(fn func(Endpoint)) {
	r.mu.Lock()
	r.observers = append(r.observers, fn)
	r.mu.Unlock()
}

// Close closes every endpoint that holds connections
func (r *Registry) Close() error {
	var errs []error
	for _, ep := range r.Endpoints() {
		if c, ok := ep.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("endpoint %s: %w", ep.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
