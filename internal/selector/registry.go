package selector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Built-in selector kinds.
const (
	KindCSS   = "css"
	KindXPath = "xpath"
	KindJSON  = "json"
	KindRegex = "regex"
	KindText  = "text"
	KindJS    = "js"
)

var (
	// ErrNotFound is returned when no selector is registered for a kind.
	ErrNotFound = errors.New("selector not found")
	// ErrInvalidExpression marks a malformed selector expression.
	ErrInvalidExpression = errors.New("invalid selector expression")
)

// Request is a single selector invocation.
type Request struct {
	// Document is the read-only source.
	Document *Document
	// Expression is the selector expression after the `@kind:` marker.
	Expression string
	// Suffix is the value-extraction modifier (`text`, `html`, an attribute
	// name, ...). Empty when the rule carried none.
	Suffix string
	// Variables are the scope variables of the evaluation.
	Variables map[string]interface{}
	// All requests every match as a []interface{} instead of the first one.
	All bool
}

// Selector evaluates an expression against a document. A missing match is
// reported as a nil value with a nil error; malformed expressions return an
// error.
type Selector interface {
	Select(ctx context.Context, req *Request) (interface{}, error)
}

// Validator is implemented by selectors that can reject a malformed
// expression before it is evaluated.
type Validator interface {
	Validate(expression string) error
}

// CacheClearer is implemented by selectors that keep compiled expressions.
type CacheClearer interface {
	ClearCache()
}

// Func adapts a function to the Selector interface.
type Func func(ctx context.Context, req *Request) (interface{}, error)

// Select calls f.
func (f Func) Select(ctx context.Context, req *Request) (interface{}, error) {
	return f(ctx, req)
}

// Registry maps selector kinds to selectors.
type Registry struct {
	mu        sync.RWMutex
	selectors map[string]Selector
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{selectors: make(map[string]Selector)}
}

// Register binds kind to s, replacing any previous binding.
func (r *Registry) Register(kind string, s Selector) error {
	if kind == "" {
		return fmt.Errorf("selector kind is required")
	}
	if s == nil {
		return fmt.Errorf("selector %q is nil", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.selectors[kind] = s
	return nil
}

// Lookup returns the selector registered for kind.
func (r *Registry) Lookup(kind string) (Selector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.selectors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, kind)
	}
	return s, nil
}

// Has reports whether kind is registered.
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.selectors[kind]
	return ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.selectors))
	for k := range r.selectors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Select dispatches req to the selector registered for kind.
func (r *Registry) Select(ctx context.Context, kind string, req *Request) (interface{}, error) {
	s, err := r.Lookup(kind)
	if err != nil {
		return nil, err
	}
	return s.Select(ctx, req)
}

// Validate checks expression against the selector registered for kind. Kinds
// whose selector does not implement Validator accept any expression.
func (r *Registry) Validate(kind, expression string) error {
	s, err := r.Lookup(kind)
	if err != nil {
		return err
	}
	v, ok := s.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(expression); err != nil {
		return fmt.Errorf("%w: %s %q: %v", ErrInvalidExpression, kind, expression, err)
	}
	return nil
}

// ClearCaches drops the compiled expressions held by registered selectors.
func (r *Registry) ClearCaches() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.selectors {
		if c, ok := s.(CacheClearer); ok {
			c.ClearCache()
		}
	}
}

// NewDefaultRegistry returns a registry holding the six built-in kinds. The
// js kind is backed by sandbox; a nil sandbox leaves it unregistered.
func NewDefaultRegistry(sandbox ExpressionEvaluator) *Registry {
	r := NewRegistry()
	_ = r.Register(KindCSS, NewCSS())
	_ = r.Register(KindXPath, NewXPath())
	_ = r.Register(KindJSON, NewKeyPath())
	_ = r.Register(KindRegex, NewRegex())
	_ = r.Register(KindText, Text{})
	if sandbox != nil {
		_ = r.Register(KindJS, NewSandbox(sandbox))
	}
	return r
}
