package rule

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/aescanero/dago-node-extract/internal/eval/cel"
	"github.com/aescanero/dago-node-extract/internal/selector"
	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// Engine compiles and evaluates rule strings. It is safe for concurrent use.
type Engine struct {
	opts      Options
	registry  *selector.Registry
	operators map[string]Operator
	symbols   []string
	logger    *zap.Logger

	trees   *lruCache
	results *lruCache

	hits   atomic.Uint64
	misses atomic.Uint64
	parses atomic.Uint64
}

// NewEngine creates an engine with the built-in selector kinds plus
// opts.CustomSelectors.
func NewEngine(opts Options, logger *zap.Logger) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	opts.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	sandbox, err := cel.NewEvaluator(opts.CELCostLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}

	registry := selector.NewDefaultRegistry(sandbox)
	for kind, s := range opts.CustomSelectors {
		if err := registry.Register(kind, s); err != nil {
			return nil, fmt.Errorf("failed to register selector: %w", err)
		}
	}

	operators := make(map[string]Operator, len(opts.CustomOperators))
	symbols := make([]string, 0, len(opts.CustomOperators))
	for sym, op := range opts.CustomOperators {
		operators[sym] = op
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	return &Engine{
		opts:      opts,
		registry:  registry,
		operators: operators,
		symbols:   symbols,
		logger:    logger,
		trees:     newLRUCache(cacheTree, opts.CacheSize, opts.Recorder),
		results:   newLRUCache(cacheResult, opts.CacheSize, opts.Recorder),
	}, nil
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// Kinds returns the registered selector kinds.
func (e *Engine) Kinds() []string {
	return e.registry.Kinds()
}

// Compile compiles rule without evaluating it, using the tree cache when
// enabled.
func (e *Engine) Compile(rule string) (Node, error) {
	n, _, err := e.tree(rule)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Parse evaluates rule against doc. In lenient mode failures are captured in
// the result and the error is always nil; in strict mode the first failure
// is also returned as the error.
func (e *Engine) Parse(ctx context.Context, doc *selector.Document, rule string, scope *Scope) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	res := e.parse(ctx, doc, rule, scope, false)
	return res, e.strictErr(res.Errors)
}

// ParseBatch evaluates every field against doc under one deadline. Results
// keep the order of fields. In lenient mode a failing field does not affect
// its siblings; in strict mode the first failing field aborts the batch.
func (e *Engine) ParseBatch(ctx context.Context, doc *selector.Document, fields Fields, scope *Scope) (BatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	return e.parseBatch(ctx, doc, fields, scope)
}

// ParseArray selects items with itemRule and evaluates fields against each
// item. Markup items become documents of their outer HTML, JSON items
// documents of their JSON text. Each item is evaluated in a child scope
// holding the item `index`.
func (e *Engine) ParseArray(ctx context.Context, doc *selector.Document, itemRule string, fields Fields, scope *Scope) (*ArrayResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	start := time.Now()
	if scope == nil {
		scope = NewScope(nil)
	}

	items := e.parse(ctx, doc, itemRule, scope, true)
	out := &ArrayResult{Success: items.Success, Errors: items.Errors, Items: []BatchResult{}}
	if !items.Success {
		out.Meta.Duration = time.Since(start)
		return out, e.strictErr(out.Errors)
	}

	list, ok := items.Data.([]interface{})
	if !ok {
		list = []interface{}{items.Data}
	}

	for i, item := range list {
		child := scope.Child(map[string]interface{}{"index": i})
		if child.Depth() > e.opts.MaxDepth {
			err := newError(CodeDepthExceeded, -1, "item scope depth %d exceeds max depth %d", child.Depth(), e.opts.MaxDepth)
			out.Success = false
			out.Errors = append(out.Errors, err.withRule(itemRule))
			break
		}

		itemDoc, err := itemDocument(item)
		if err != nil {
			out.Errors = append(out.Errors, asError(err, CodeSelector).withRule(itemRule))
			continue
		}

		batch, err := e.parseBatch(ctx, itemDoc, fields, child)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out.Items = append(out.Items, batch)
	}

	out.Meta.Duration = time.Since(start)
	return out, e.strictErr(out.Errors)
}

// ClearCache drops all cached trees and results, and the compiled
// expressions held by the selectors. Counters are kept.
func (e *Engine) ClearCache() {
	e.trees.clear()
	e.results.clear()
	e.registry.ClearCaches()
}

// Stats returns the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		CacheSize:   e.trees.len(),
		CacheHits:   e.hits.Load(),
		CacheMisses: e.misses.Load(),
		TotalParses: e.parses.Load(),
	}
}

func (e *Engine) parseBatch(ctx context.Context, doc *selector.Document, fields Fields, scope *Scope) (BatchResult, error) {
	out := make(BatchResult, 0, len(fields))
	for _, f := range fields {
		res := e.parse(ctx, doc, f.Rule, scope, false)
		if err := e.strictErr(res.Errors); err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Key, err)
		}
		out = append(out, FieldResult{Key: f.Key, Result: res})
	}
	return out, nil
}

// strictErr returns the first error in strict mode.
func (e *Engine) strictErr(errs []*Error) error {
	if !e.opts.StrictMode || len(errs) == 0 {
		return nil
	}
	return errs[0]
}

// parse is the single internal evaluation path. It never fails: errors are
// recorded in the returned result.
func (e *Engine) parse(ctx context.Context, doc *selector.Document, rule string, scope *Scope, all bool) *Result {
	start := time.Now()
	e.parses.Add(1)

	if scope == nil {
		scope = NewScope(nil)
	}
	res := &Result{Rule: rule}

	finish := func(err *Error) *Result {
		res.Meta.Duration = time.Since(start)
		if err != nil {
			res.Success = false
			res.Data = nil
			res.Errors = append(res.Errors, err.withRule(rule))
			e.opts.Recorder.RecordError(string(err.Code))
			e.opts.Recorder.RecordParse("failure", res.Meta.Duration)
		} else {
			res.Success = true
			e.opts.Recorder.RecordParse("success", res.Meta.Duration)
		}
		return res
	}

	if doc == nil {
		return finish(newError(CodeSelector, -1, "document is nil"))
	}
	if scope.Depth() > e.opts.MaxDepth {
		return finish(newError(CodeDepthExceeded, -1, "scope depth %d exceeds max depth %d", scope.Depth(), e.opts.MaxDepth))
	}

	tree, cached, err := e.tree(rule)
	res.Meta.TreeCached = cached
	if err != nil {
		e.logger.Debug("rule compilation failed", zap.String("rule", rule), zap.Error(err))
		return finish(err)
	}
	if e.opts.Debug {
		res.Meta.Tree = tree.String()
	}

	key, cacheable := e.resultKey(rule, doc, scope, all)
	if cacheable {
		if v, ok := e.results.get(key); ok {
			e.opts.Recorder.RecordCacheHit(cacheResult)
			hit := v.(*Result).clone()
			hit.Meta = res.Meta
			hit.Meta.ResultCached = true
			hit.Meta.Duration = time.Since(start)
			e.opts.Recorder.RecordParse("success", hit.Meta.Duration)
			return hit
		}
		e.opts.Recorder.RecordCacheMiss(cacheResult)
	}

	v, kind, evalErr := e.run(ctx, &evaluator{engine: e, doc: doc, scope: scope, all: all}, tree)
	if evalErr != nil {
		if evalErr.Code == CodeTimeout {
			e.logger.Warn("rule evaluation timed out",
				zap.String("rule", rule),
				zap.Duration("timeout", e.opts.Timeout),
			)
		}
		return finish(evalErr)
	}
	if !present(v) {
		return finish(newError(CodeEmpty, 0, "rule produced no value"))
	}

	res.Data = v
	res.Selector = kind
	finish(nil)
	if cacheable {
		e.results.add(key, res.clone())
	}
	return res
}

// run evaluates tree, returning early when ctx expires even if a selector
// blocks. An abandoned walk finishes in the background.
func (e *Engine) run(ctx context.Context, ev *evaluator, tree Node) (interface{}, string, *Error) {
	type outcome struct {
		v    interface{}
		kind string
		err  *Error
	}

	done := make(chan outcome, 1)
	go func() {
		v, kind, err := ev.eval(ctx, tree)
		done <- outcome{v, kind, err}
	}()

	select {
	case o := <-done:
		return o.v, o.kind, o.err
	case <-ctx.Done():
		return nil, "", timeoutError(tree.Pos(), ctx.Err())
	}
}

// tree returns the compiled tree of rule and whether it came from the cache.
func (e *Engine) tree(rule string) (Node, bool, *Error) {
	if e.opts.EnableCache {
		if n, ok := e.trees.get(rule); ok {
			e.hits.Add(1)
			e.opts.Recorder.RecordCacheHit(cacheTree)
			return n.(Node), true, nil
		}
		e.misses.Add(1)
		e.opts.Recorder.RecordCacheMiss(cacheTree)
	}

	n, err := compile(rule, compileOptions{
		maxDepth: e.opts.MaxDepth,
		symbols:  e.symbols,
		known:    e.registry.Has,
	})
	if err != nil {
		return nil, false, err
	}
	for _, leaf := range Leaves(n) {
		if verr := e.registry.Validate(leaf.Kind, leaf.Expression); verr != nil {
			return nil, false, &Error{
				Code:    CodeSelector,
				Pos:     leaf.Offset,
				Kind:    leaf.Kind,
				Rule:    rule,
				Message: fmt.Sprintf("invalid expression in %s", leaf),
				Err:     verr,
			}
		}
	}

	if e.opts.EnableCache {
		e.trees.add(rule, n)
	}
	return n, false, nil
}

// resultKey builds the result cache key from the rule, the document
// fingerprint and the scope variables.
func (e *Engine) resultKey(rule string, doc *selector.Document, scope *Scope, all bool) (string, bool) {
	if !e.opts.CacheResults {
		return "", false
	}
	vars, err := json.Marshal(scope.Variables())
	if err != nil {
		return "", false
	}
	return rule + "\x00" +
		strconv.FormatUint(doc.Fingerprint(), 16) + "\x00" +
		strconv.FormatUint(xxhash.Sum64(vars), 16) + "\x00" +
		strconv.FormatBool(all), true
}

func itemDocument(item interface{}) (*selector.Document, error) {
	if s, ok := item.(string); ok {
		return selector.NewDocument(s, selector.ContentAuto), nil
	}
	return selector.NewDataDocument(item)
}
