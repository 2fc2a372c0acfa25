// Package exception maps failure descriptors reported by a remote endpoint to
// typed local errors.
//
// Error kinds form a single-inheritance tree rooted at the base kind
// "Exception". Kinds are defined at runtime by name:
//
//	reg := exception.NewRegistry()
//	lookupErr, _ := reg.Define("LookupError", "")
//	keyErr, _ := reg.Define("KeyError", "LookupError")
//
//	err := reg.Reconstruct(&wire.Failure{Type: "KeyError", Message: "missing"})
//	errors.Is(err, keyErr)    // true
//	errors.Is(err, lookupErr) // true, via the parent chain
package exception

import (
	"errors"
	"fmt"
	"sync"

	"batchrpc/internal/wire"
)

// BaseKindName is the name of the root kind every other kind derives from
const BaseKindName = "Exception"

var (
	ErrEmptyName     = errors.New("exception kind name is required")
	ErrDuplicateKind = errors.New("exception kind already defined")
	ErrUnknownParent = errors.New("unknown parent exception kind")
)

// Kind is a named error class with an optional parent
type Kind struct {
	name   string
	parent *Kind
}

// Name returns the kind name
func (k *Kind) Name() string {
	return k.name
}

// Parent returns the parent kind, nil for the base kind
func (k *Kind) Parent() *Kind {
	return k.parent
}

// Error lets a kind be used as an errors.Is target
func (k *Kind) Error() string {
	return k.name
}

// IsA returns true if k is other or derives from it
func (k *Kind) IsA(other *Kind) bool {
	for cur := k; cur != nil; cur = cur.parent {
		if cur == other {
			return true
		}
	}
	return false
}

// New creates an error of this kind
func (k *Kind) New(message string) *Error {
	return &Error{Kind: k, Message: message}
}

// Error is a remote exception reconstructed locally
type Error struct {
	Kind    *Kind
	Message string
	Trace   []wire.Frame // kept for diagnostics only
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.name
	}
	return e.Kind.name + ": " + e.Message
}

// Is reports whether target is a kind this error belongs to
func (e *Error) Is(target error) bool {
	k, ok := target.(*Kind)
	if !ok {
		return false
	}
	return e.Kind.IsA(k)
}

// KindName returns the name of the error's kind
func (e *Error) KindName() string {
	return e.Kind.name
}

// Registry holds the defined exception kinds
type Registry struct {
	base      *Kind
	kinds     map[string]*Kind
	order     []*Kind
	observers []func(*Kind)
	mu        sync.RWMutex
}

// NewRegistry creates a registry containing only the base kind
func NewRegistry() *Registry {
	base := &Kind{name: BaseKindName}
	return &Registry{
		base:  base,
		kinds: map[string]*Kind{BaseKindName: base},
		order: []*Kind{base},
	}
}

// Base returns the root kind
func (r *Registry) Base() *Kind {
	return r.base
}

// Define creates and registers a new kind. An empty parent means the base kind.
// Observers registered with OnDefine are notified after registration.
func (r *Registry) Define(name, parent string) (*Kind, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	r.mu.Lock()
	if _, exists := r.kinds[name]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateKind, name)
	}
	parentKind := r.base
	if parent != "" {
		p, ok := r.kinds[parent]
		if !ok {
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: %s (parent of %s)", ErrUnknownParent, parent, name)
		}
		parentKind = p
	}
	kind := &Kind{name: name, parent: parentKind}
	r.kinds[name] = kind
	r.order = append(r.order, kind)
	observers := make([]func(*Kind), len(r.observers))
	copy(observers, r.observers)
	r.mu.Unlock()

	for _, fn := range observers {
		fn(kind)
	}
	return kind, nil
}

// Lookup returns the kind registered under name
func (r *Registry) Lookup(name string) (*Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[name]
	return k, ok
}

// Kinds returns all kinds in definition order, base kind first
func (r *Registry) Kinds() []*Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]*Kind, len(r.order))
	copy(kinds, r.order)
	return kinds
}

// OnDefine registers a callback invoked for every kind defined afterwards
func (r *Registry) OnDefine(fn func(*Kind)) {
	r.mu.Lock()
	r.observers = append(r.observers, fn)
	r.mu.Unlock()
}

// Reconstruct turns a failure descriptor into a typed error.
// Unknown type names fall back to the base kind; a nil descriptor yields a
// bare base-kind error without message.
func (r *Registry) Reconstruct(f *wire.Failure) *Error {
	if f == nil {
		return r.base.New("")
	}
	kind, ok := r.Lookup(f.Type)
	if !ok {
		kind = r.base
	}
	return &Error{
		Kind:    kind,
		Message: f.Message,
		Trace:   f.Trace,
	}
}
