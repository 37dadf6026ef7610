package rule

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aescanero/dago-node-extract/internal/selector"
	"go.uber.org/zap"
)

// evaluator walks one compiled tree against one document, depth first and
// left to right.
type evaluator struct {
	engine *Engine
	doc    *selector.Document
	scope  *Scope
	// all puts every selector in list mode.
	all bool
}

// fatal reports whether err must abort the walk instead of being absorbed by
// a fallback or concatenation. Missing values and runtime faults of a
// selector or operator are absorbed; malformed expressions and unknown kinds
// are not.
func fatal(err *Error) bool {
	switch err.Code {
	case CodeTimeout, CodeDepthExceeded, CodeSelectorNotFound:
		return true
	case CodeSelector:
		return errors.Is(err.Err, selector.ErrInvalidExpression)
	}
	return false
}

func (ev *evaluator) eval(ctx context.Context, n Node) (interface{}, string, *Error) {
	switch t := n.(type) {
	case *Leaf:
		return ev.evalLeaf(ctx, t)
	case *OpNode:
		switch t.Op {
		case OpFallback:
			return ev.evalFallback(ctx, t)
		case OpConcat:
			return ev.evalConcat(ctx, t, ev.engine.opts.ConcatPolicy == ConcatAbort)
		default:
			return ev.evalCustom(ctx, t)
		}
	}
	return nil, "", newError(CodeSyntax, n.Pos(), "unknown node %T", n)
}

func (ev *evaluator) evalLeaf(ctx context.Context, leaf *Leaf) (interface{}, string, *Error) {
	if err := ctx.Err(); err != nil {
		return nil, leaf.Kind, timeoutError(leaf.Offset, err)
	}

	v, err := ev.engine.registry.Select(ctx, leaf.Kind, &selector.Request{
		Document:   ev.doc,
		Expression: leaf.Expression,
		Suffix:     leaf.Suffix,
		Variables:  ev.scope.Variables(),
		All:        ev.all,
	})
	if errors.Is(err, selector.ErrNotFound) {
		return nil, leaf.Kind, &Error{
			Code:    CodeSelectorNotFound,
			Pos:     leaf.Offset,
			Kind:    leaf.Kind,
			Message: "no selector registered for kind " + leaf.Kind,
			Err:     err,
		}
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, leaf.Kind, timeoutError(leaf.Offset, ctxErr)
		}
		ev.engine.logger.Debug("selector failed",
			zap.String("kind", leaf.Kind),
			zap.String("expression", leaf.Expression),
			zap.Error(err),
		)
		return nil, leaf.Kind, &Error{
			Code:    CodeSelector,
			Pos:     leaf.Offset,
			Kind:    leaf.Kind,
			Message: fmt.Sprintf("evaluating %s", leaf),
			Err:     err,
		}
	}

	if leaf.Clean != nil {
		v = clean(v, leaf.Clean)
	}
	if !present(v) {
		return nil, leaf.Kind, &Error{
			Code:    CodeEmpty,
			Pos:     leaf.Offset,
			Kind:    leaf.Kind,
			Message: fmt.Sprintf("%s produced no value", leaf),
		}
	}
	return v, leaf.Kind, nil
}

func (ev *evaluator) evalFallback(ctx context.Context, n *OpNode) (interface{}, string, *Error) {
	var causes []*Error
	for _, c := range n.Children {
		var (
			v    interface{}
			kind string
			err  *Error
		)
		// an alternative is a whole value: a concatenation missing a part
		// fails so that the next alternative is tried
		if op, ok := c.(*OpNode); ok && op.Op == OpConcat {
			v, kind, err = ev.evalConcat(ctx, op, true)
		} else {
			v, kind, err = ev.eval(ctx, c)
		}
		if err == nil && !present(v) {
			err = &Error{
				Code:    CodeEmpty,
				Pos:     c.Pos(),
				Kind:    kind,
				Message: "alternative produced no value",
			}
		}
		if err == nil {
			return v, kind, nil
		}
		if fatal(err) {
			return nil, "", err
		}
		causes = append(causes, err)
	}
	return nil, "", &Error{
		Code:    CodeAllAlternativesFailed,
		Pos:     n.Offset,
		Message: fmt.Sprintf("all %d alternatives failed", len(n.Children)),
		Causes:  causes,
	}
}

// evalConcat joins the text of every child. With abort set a failing child
// fails the node; otherwise it contributes the empty string.
func (ev *evaluator) evalConcat(ctx context.Context, n *OpNode, abort bool) (interface{}, string, *Error) {
	var sb strings.Builder
	for _, c := range n.Children {
		v, _, err := ev.eval(ctx, c)
		if err != nil {
			if fatal(err) || abort {
				return nil, SelectorComposite, err
			}
			continue
		}
		s, _ := toText(v)
		sb.WriteString(s)
	}
	return sb.String(), SelectorComposite, nil
}

func (ev *evaluator) evalCustom(ctx context.Context, n *OpNode) (interface{}, string, *Error) {
	op, ok := ev.engine.operators[n.Op]
	if !ok {
		return nil, SelectorComposite, newError(CodeSyntax, n.Offset, "unknown operator symbol %q", n.Op)
	}

	operands := make([]interface{}, len(n.Children))
	for i, c := range n.Children {
		v, _, err := ev.eval(ctx, c)
		if err != nil {
			if fatal(err) {
				return nil, SelectorComposite, err
			}
			continue
		}
		operands[i] = v
	}

	v, err := op.Apply(ctx, operands[0], operands[1], ev.scope)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, SelectorComposite, timeoutError(n.Offset, ctxErr)
		}
		return nil, SelectorComposite, &Error{
			Code:    CodeOperator,
			Pos:     n.Offset,
			Message: fmt.Sprintf("operator %q failed", n.Op),
			Err:     err,
		}
	}
	if !present(v) {
		return nil, SelectorComposite, &Error{
			Code:    CodeEmpty,
			Pos:     n.Offset,
			Message: fmt.Sprintf("operator %q produced no value", n.Op),
		}
	}
	return v, SelectorComposite, nil
}

func timeoutError(pos int, err error) *Error {
	return &Error{Code: CodeTimeout, Pos: pos, Message: "evaluation deadline exceeded", Err: err}
}
