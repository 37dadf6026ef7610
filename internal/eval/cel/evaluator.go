package cel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

const (
	// DefaultCostLimit bounds the runtime cost of a single evaluation.
	DefaultCostLimit = 100000

	// DefaultProgramCacheSize bounds the number of compiled programs kept.
	DefaultProgramCacheSize = 256

	interruptCheckFrequency = 100
)

var (
	// ErrCostExceeded is returned when an expression exceeds its cost budget.
	ErrCostExceeded = errors.New("expression cost limit exceeded")
	// ErrCompile is returned when an expression does not compile.
	ErrCompile = errors.New("expression does not compile")
)

// Input is the read-only view an expression is evaluated against.
type Input struct {
	// Vars holds the caller supplied variables, exposed as `vars`.
	Vars map[string]interface{}
	// Source is the document text, exposed as `source`.
	Source string
	// Data is the decoded document when it is JSON, exposed as `data`.
	Data interface{}
}

// Evaluator evaluates CEL expressions
type Evaluator struct {
	env       *cel.Env
	costLimit uint64
	cache     *lru.Cache
	mu        sync.Mutex
}

// NewEvaluator creates a new CEL evaluator. A zero costLimit selects
// DefaultCostLimit.
func NewEvaluator(costLimit uint64) (*Evaluator, error) {
	if costLimit == 0 {
		costLimit = DefaultCostLimit
	}

	env, err := cel.NewEnv(
		cel.Variable("vars", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("source", cel.StringType),
		cel.Variable("data", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{
		env:       env,
		costLimit: costLimit,
		cache:     lru.New(DefaultProgramCacheSize),
	}, nil
}

// Evaluate evaluates a CEL expression against the given input. Evaluation is
// interrupted when ctx is done.
func (e *Evaluator) Evaluate(ctx context.Context, expression string, in Input) (interface{}, error) {
	// Get or compile program
	program, err := e.getProgram(expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, err)
	}

	vars := in.Vars
	if vars == nil {
		vars = map[string]interface{}{}
	}

	out, _, err := program.ContextEval(ctx, map[string]interface{}{
		"vars":   vars,
		"source": in.Source,
		"data":   in.Data,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("evaluation interrupted: %w", ctxErr)
		}
		if isCostError(err) {
			return nil, fmt.Errorf("%w: %v", ErrCostExceeded, err)
		}
		return nil, fmt.Errorf("evaluation failed: %w", err)
	}

	if out == types.NullValue {
		return nil, nil
	}
	return out.Value(), nil
}

// getProgram gets a compiled program from cache or compiles it
func (e *Evaluator) getProgram(expression string) (cel.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if program, ok := e.cache.Get(expression); ok {
		return program.(cel.Program), nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("parse error: %w", issues.Err())
	}

	program, err := e.env.Program(ast,
		cel.CostLimit(e.costLimit),
		cel.InterruptCheckFrequency(interruptCheckFrequency),
	)
	if err != nil {
		return nil, fmt.Errorf("program generation error: %w", err)
	}

	e.cache.Add(expression, program)

	return program, nil
}

// ValidateExpression validates a CEL expression without evaluating it
func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return issues.Err()
	}
	return nil
}

// ClearCache clears the compiled program cache
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache.Clear()
}

func isCostError(err error) bool {
	return strings.Contains(err.Error(), "cost limit exceeded")
}
