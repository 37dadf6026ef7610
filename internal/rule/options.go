package rule

import (
	"fmt"
	"time"

	"github.com/aescanero/dago-node-extract/internal/selector"
)

// ConcatPolicy decides how a failing child of a concatenation is treated.
type ConcatPolicy string

const (
	// ConcatEmpty renders a failing child as the empty string.
	ConcatEmpty ConcatPolicy = "empty"
	// ConcatAbort fails the whole concatenation on the first failing child.
	ConcatAbort ConcatPolicy = "abort"
)

// Defaults applied by DefaultOptions and to zero fields in NewEngine.
const (
	DefaultTimeout   = 5 * time.Second
	DefaultMaxDepth  = 10
	DefaultCacheSize = 100
)

// Options configures an Engine. Start from DefaultOptions; NewEngine fills
// zero Timeout, MaxDepth, CacheSize and ConcatPolicy with their defaults.
type Options struct {
	// Timeout is the deadline of one top-level call.
	Timeout time.Duration
	// MaxDepth bounds parenthesis nesting and nested item scopes.
	MaxDepth int
	// EnableCache toggles the compiled tree cache.
	EnableCache bool
	// CacheSize bounds each cache.
	CacheSize int
	// CacheResults memoizes successful results per rule, document and
	// variables.
	CacheResults bool
	// StrictMode returns failures as errors instead of capturing them in
	// the result.
	StrictMode bool
	// Debug adds the compiled tree to result metadata.
	Debug bool
	// ConcatPolicy selects the failing-child behavior of concatenation.
	ConcatPolicy ConcatPolicy
	// CELCostLimit bounds the cost of one js expression; 0 selects the
	// evaluator default.
	CELCostLimit uint64

	// CustomSelectors are merged over the built-in kinds.
	CustomSelectors map[string]selector.Selector
	// CustomOperators maps operator symbols to operators. Symbols are made
	// of punctuation and bind like &&.
	CustomOperators map[string]Operator

	// Recorder receives metrics; nil disables them.
	Recorder Recorder
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:      DefaultTimeout,
		MaxDepth:     DefaultMaxDepth,
		EnableCache:  true,
		CacheSize:    DefaultCacheSize,
		ConcatPolicy: ConcatEmpty,
	}
}

func (o *Options) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.CacheSize <= 0 {
		o.CacheSize = DefaultCacheSize
	}
	if o.ConcatPolicy == "" {
		o.ConcatPolicy = ConcatEmpty
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
}

// Validate checks the options.
func (o *Options) Validate() error {
	switch o.ConcatPolicy {
	case "", ConcatEmpty, ConcatAbort:
	default:
		return fmt.Errorf("concat policy must be one of: %s, %s", ConcatEmpty, ConcatAbort)
	}

	for sym, op := range o.CustomOperators {
		if op == nil {
			return fmt.Errorf("operator %q is nil", sym)
		}
		switch sym {
		case "":
			return fmt.Errorf("operator symbol is required")
		case symFallback, symConcat, symClean:
			return fmt.Errorf("operator symbol %q is reserved", sym)
		}
		if punctRun(sym) != sym {
			return fmt.Errorf("operator symbol %q must consist of punctuation", sym)
		}
	}

	for kind, s := range o.CustomSelectors {
		if s == nil {
			return fmt.Errorf("selector %q is nil", kind)
		}
		if kind == "" || !validKind(kind) {
			return fmt.Errorf("invalid selector kind %q", kind)
		}
	}
	return nil
}

func validKind(kind string) bool {
	for i := 0; i < len(kind); i++ {
		if !isIdent(kind[i]) {
			return false
		}
	}
	return true
}

// Recorder receives engine metrics.
type Recorder interface {
	RecordParse(outcome string, duration time.Duration)
	RecordError(code string)
	RecordCacheHit(cache string)
	RecordCacheMiss(cache string)
	RecordCacheEviction(cache string)
	SetCacheSize(cache string, size int)
}

type nopRecorder struct{}

func (nopRecorder) RecordParse(string, time.Duration) {}
func (nopRecorder) RecordError(string)                {}
func (nopRecorder) RecordCacheHit(string)             {}
func (nopRecorder) RecordCacheMiss(string)            {}
func (nopRecorder) RecordCacheEviction(string)        {}
func (nopRecorder) SetCacheSize(string, int)          {}
