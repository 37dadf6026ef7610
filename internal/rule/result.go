package rule

import (
	"time"

	"go.uber.org/multierr"
)

// SelectorComposite is reported as Result.Selector when an operator, not a
// single selector, produced the value.
const SelectorComposite = "composite"

// Result is the envelope of one rule evaluation.
type Result struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Rule    string      `json:"rule"`
	// Selector is the kind that produced Data, or SelectorComposite.
	Selector string   `json:"selector,omitempty"`
	Errors   []*Error `json:"errors,omitempty"`
	Meta     Meta     `json:"meta"`
}

// Meta carries timing and cache information of a Result.
type Meta struct {
	Duration     time.Duration `json:"duration"`
	TreeCached   bool          `json:"tree_cached"`
	ResultCached bool          `json:"result_cached"`
	// Tree is the compiled tree, set in debug mode.
	Tree string `json:"tree,omitempty"`
}

// Err combines the captured errors into one error, nil on success.
func (r *Result) Err() error {
	var err error
	for _, e := range r.Errors {
		err = multierr.Append(err, e)
	}
	return err
}

// Text returns Data as text, "" when absent.
func (r *Result) Text() string {
	s, _ := toText(r.Data)
	return s
}

func (r *Result) clone() *Result {
	c := *r
	c.Errors = append([]*Error(nil), r.Errors...)
	return &c
}

// Field is a named rule of a batch.
type Field struct {
	Key  string `json:"key"`
	Rule string `json:"rule"`
}

// Fields is an ordered set of named rules.
type Fields []Field

// FieldResult is the result of one named rule.
type FieldResult struct {
	Key    string  `json:"key"`
	Result *Result `json:"result"`
}

// BatchResult holds per-field results in input order.
type BatchResult []FieldResult

// Get returns the result of key, nil when absent.
func (b BatchResult) Get(key string) *Result {
	for _, f := range b {
		if f.Key == key {
			return f.Result
		}
	}
	return nil
}

// Data returns key → value for every field, nil values for failed fields.
func (b BatchResult) Data() map[string]interface{} {
	out := make(map[string]interface{}, len(b))
	for _, f := range b {
		out[f.Key] = f.Result.Data
	}
	return out
}

// ArrayResult is the result of ParseArray.
type ArrayResult struct {
	// Success reports whether the item rule matched.
	Success bool          `json:"success"`
	Items   []BatchResult `json:"items"`
	Errors  []*Error      `json:"errors,omitempty"`
	Meta    Meta          `json:"meta"`
}

// Data returns one key → value map per item.
func (a *ArrayResult) Data() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(a.Items))
	for _, item := range a.Items {
		out = append(out, item.Data())
	}
	return out
}

// Stats are engine counters.
type Stats struct {
	CacheSize   int    `json:"cacheSize"`
	CacheHits   uint64 `json:"cacheHits"`
	CacheMisses uint64 `json:"cacheMisses"`
	TotalParses uint64 `json:"totalParses"`
}
