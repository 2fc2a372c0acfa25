// Package future provides a settle-once result handle with independent
// fulfil and reject capabilities.
package future

import (
	"context"
	"encoding/json"
	"sync"
)

// Future is the pending result of a remote call or a flush
type Future struct {
	done   chan struct{}
	once   sync.Once
	result json.RawMessage
	err    error
}

// New creates an unsettled future
func New() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future that is already fulfilled with result
func Resolved(result json.RawMessage) *Future {
	f := New()
	f.Resolve(result)
	return f
}

// Rejected returns a future that is already rejected with err
func Rejected(err error) *Future {
	f := New()
	f.Reject(err)
	return f
}

// Resolve fulfils the future. Returns false if it was already settled.
func (f *Future) Resolve(result json.RawMessage) bool {
	return f.settle(result, nil)
}

// Reject fails the future. Returns false if it was already settled.
func (f *Future) Reject(err error) bool {
	return f.settle(nil, err)
}

func (f *Future) settle(result json.RawMessage, err error) bool {
	settled := false
	f.once.Do(func() {
		f.result = result
		f.err = err
		settled = true
		close(f.done)
	})
	return settled
}

// Done returns a channel that is closed once the future settles
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// IsSettled returns true if the future has been resolved or rejected
func (f *Future) IsSettled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future settles or ctx is done.
// Giving up on the wait does not cancel the underlying call.
func (f *Future) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Decode waits for the result and unmarshals it into v
func (f *Future) Decode(ctx context.Context, v interface{}) error {
	result, err := f.Wait(ctx)
	if err != nil {
		return err
	}
	if len(result) == 0 {
		return nil
	}
	return json.Unmarshal(result, v)
}

// Err returns the rejection error of a settled future, nil otherwise
func (f *Future) Err() error {
	if !f.IsSettled() {
		return nil
	}
	return f.err
}
