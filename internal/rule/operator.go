package rule

import "context"

// Operator is a caller registered binary operator. Operands are the values
// of the left and right sub-trees, nil when a sub-tree failed. Operators
// must not modify scope.
type Operator interface {
	Apply(ctx context.Context, left, right interface{}, scope *Scope) (interface{}, error)
}

// OperatorFunc adapts a function to the Operator interface.
type OperatorFunc func(ctx context.Context, left, right interface{}, scope *Scope) (interface{}, error)

// Apply calls f.
func (f OperatorFunc) Apply(ctx context.Context, left, right interface{}, scope *Scope) (interface{}, error) {
	return f(ctx, left, right, scope)
}
