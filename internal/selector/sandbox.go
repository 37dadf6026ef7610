package selector

import (
	"context"
	"errors"
	"fmt"

	"github.com/aescanero/dago-node-extract/internal/eval/cel"
)

// ExpressionEvaluator is the sandboxed expression capability behind the js
// kind.
type ExpressionEvaluator interface {
	Evaluate(ctx context.Context, expression string, in cel.Input) (interface{}, error)
	ValidateExpression(expression string) error
	ClearCache()
}

// Sandbox evaluates restricted expressions against the scope variables and
// a read-only view of the document.
type Sandbox struct {
	eval ExpressionEvaluator
}

// NewSandbox creates the js selector.
func NewSandbox(eval ExpressionEvaluator) *Sandbox {
	return &Sandbox{eval: eval}
}

// Select implements Selector.
func (s *Sandbox) Select(ctx context.Context, req *Request) (interface{}, error) {
	in := cel.Input{
		Vars:   req.Variables,
		Source: req.Document.Text(),
	}
	if data, ok := req.Document.Data(); ok {
		in.Data = data
	}

	v, err := s.eval.Evaluate(ctx, req.Expression, in)
	if err != nil {
		if errors.Is(err, cel.ErrCompile) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
		}
		return nil, fmt.Errorf("sandbox: %w", err)
	}
	return v, nil
}

// Validate implements Validator.
func (s *Sandbox) Validate(expression string) error {
	return s.eval.ValidateExpression(expression)
}

// ClearCache implements CacheClearer.
func (s *Sandbox) ClearCache() {
	s.eval.ClearCache()
}
