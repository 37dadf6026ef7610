package rule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aescanero/dago-node-extract/internal/selector"
	"go.uber.org/zap"
)

const testHTML = `<html><body>
<h1 class="title">Hello</h1>
<span class="price">价格：￥128.50元</span>
<a class="next" href="/list?page=3">Next</a>
<ul>
  <li class="product"><span class="name">Apple</span><span class="cost">1.50</span></li>
  <li class="product"><span class="name">Pear</span><span class="cost">2.75</span></li>
  <li class="product"><span class="name">Plum</span></li>
</ul>
</body></html>`

const testJSON = `{"shop":"corner","items":[{"name":"Apple","cost":1.5},{"name":"Pear","cost":2.75}]}`

func htmlDoc() *selector.Document {
	return selector.NewDocument(testHTML, selector.ContentHTML)
}

func newTestEngine(t *testing.T, mutate func(*Options)) *Engine {
	t.Helper()
	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	e, err := NewEngine(opts, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

// countingSelector records how often it was invoked.
type countingSelector struct {
	calls atomic.Int64
	value interface{}
}

func (s *countingSelector) Select(context.Context, *selector.Request) (interface{}, error) {
	s.calls.Add(1)
	return s.value, nil
}

func TestEngine_Parse(t *testing.T) {
	e := newTestEngine(t, nil)
	doc := htmlDoc()

	tests := []struct {
		name     string
		rule     string
		want     string
		selector string
	}{
		{"css text", "@css:.title@text", "Hello", "css"},
		{"css attribute", "@css:a.next@href", "/list?page=3", "css"},
		{"fallback to constant", "@css:.missing@text || @text:X", "X", "text"},
		{"concat with constant", "@css:.title@text && @text: - Y", "Hello - Y", SelectorComposite},
		{"clean", `@css:.price@text##\d+\.\d+`, "128.50", "css"},
		{"clean with group", `@css:a.next@href##page=(\d+)`, "3", "css"},
		{"xpath text", "@xpath://h1@text", "Hello", "xpath"},
		{"xpath attribute", "@xpath://a/@href", "/list?page=3", "xpath"},
		{"regex", `@regex:page=(\d+)`, "3", "regex"},
		{"grouped fallback in concat", "(@css:.missing || @css:h1) && @text:!", "Hello!", SelectorComposite},
		{"fallback past a failing concatenation", "@css:.missing@text && @css:.gone@text || @text:X", "X", "text"},
		{"constant separator", "@css:.title@text && @text: - && @css:a.next@text", "Hello - Next", SelectorComposite},
		{"runtime sandbox fault falls back", "@js:vars.missing || @text:X", "X", "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Parse(context.Background(), doc, tt.rule, nil)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if !res.Success {
				t.Fatalf("Parse(%q) failed: %v", tt.rule, res.Err())
			}
			if res.Data != tt.want {
				t.Errorf("Data = %#v, want %#v", res.Data, tt.want)
			}
			if res.Selector != tt.selector {
				t.Errorf("Selector = %q, want %q", res.Selector, tt.selector)
			}
			if res.Rule != tt.rule {
				t.Errorf("Rule = %q, want %q", res.Rule, tt.rule)
			}
		})
	}
}

func TestEngine_ParseJSON(t *testing.T) {
	e := newTestEngine(t, nil)
	doc := selector.NewDocument(testJSON, selector.ContentAuto)

	tests := []struct {
		rule string
		want interface{}
	}{
		{"@json:$.shop", "corner"},
		{"@json:items[1].name", "Pear"},
		{"@json:$.items[0].cost", 1.5},
		{"@json:$.missing || @json:$.shop", "corner"},
		{"@js:data.items.size()", int64(2)},
		{"@js:data.shop + '-' + string(size(data.items))", "corner-2"},
	}

	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			res, err := e.Parse(context.Background(), doc, tt.rule, nil)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if !res.Success {
				t.Fatalf("Parse(%q) failed: %v", tt.rule, res.Err())
			}
			if res.Data != tt.want {
				t.Errorf("Data = %#v (%T), want %#v", res.Data, res.Data, tt.want)
			}
		})
	}
}

func TestEngine_Variables(t *testing.T) {
	e := newTestEngine(t, nil)
	scope := NewScope(map[string]interface{}{"site": "shop"})

	res, err := e.Parse(context.Background(), htmlDoc(), "@js:vars.site + ':' || @text:none", scope)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if res.Data != "shop:" {
		t.Errorf("Data = %v, want shop:", res.Data)
	}
}

func TestEngine_PrecedenceGrouping(t *testing.T) {
	// A fails, so the first concatenation fails as a whole and the
	// fallback takes C && D; B must never leak into the output.
	const rule = "@css:.missing@text && @text:B || @css:.title@text && @text:D"

	for _, policy := range []ConcatPolicy{ConcatEmpty, ConcatAbort} {
		t.Run(string(policy), func(t *testing.T) {
			e := newTestEngine(t, func(o *Options) { o.ConcatPolicy = policy })
			res, err := e.Parse(context.Background(), htmlDoc(), rule, nil)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if res.Data != "HelloD" {
				t.Errorf("Data = %v, want HelloD", res.Data)
			}
		})
	}
}

func TestEngine_ConcatPolicy(t *testing.T) {
	const rule = "@css:.title@text && @css:.missing@text && @text:!"

	t.Run("empty renders missing child as empty string", func(t *testing.T) {
		e := newTestEngine(t, nil)
		res, _ := e.Parse(context.Background(), htmlDoc(), rule, nil)
		if !res.Success || res.Data != "Hello!" {
			t.Errorf("got success=%v data=%v, want Hello!", res.Success, res.Data)
		}
	})

	t.Run("abort fails the concatenation", func(t *testing.T) {
		e := newTestEngine(t, func(o *Options) { o.ConcatPolicy = ConcatAbort })
		res, _ := e.Parse(context.Background(), htmlDoc(), rule, nil)
		if res.Success {
			t.Fatalf("expected failure, got %v", res.Data)
		}
		if !errors.Is(res.Errors[0], ErrEmpty) {
			t.Errorf("error = %v, want EmptyResult", res.Errors[0])
		}
	})

	t.Run("abort is absorbed by an enclosing fallback", func(t *testing.T) {
		e := newTestEngine(t, func(o *Options) { o.ConcatPolicy = ConcatAbort })
		res, _ := e.Parse(context.Background(), htmlDoc(), "("+rule+") || @text:fallback", nil)
		if res.Data != "fallback" {
			t.Errorf("Data = %v, want fallback", res.Data)
		}
	})
}

func TestEngine_Failures(t *testing.T) {
	e := newTestEngine(t, nil)

	tests := []struct {
		name string
		rule string
		code Code
	}{
		{"syntax", "@css:a &&", CodeSyntax},
		{"unknown kind", "@nope:x", CodeSelectorNotFound},
		{"unknown kind in fallback", "@css:h1 || @nope:x", CodeSelectorNotFound},
		{"empty result", "@css:.missing", CodeEmpty},
		{"clean without match", `@css:h1##\d+`, CodeEmpty},
		{"all alternatives failed", "@css:.a || @css:.b", CodeAllAlternativesFailed},
		{"invalid selector expression", "@css:[[", CodeSelector},
		{"empty concatenation", "@css:.a && @css:.b", CodeEmpty},
		{"failing concatenations in fallback", "@css:.a && @css:.b || @css:.c && @text:x", CodeAllAlternativesFailed},
		{"malformed css in fallback", "@css:!! || @text:X", CodeSelector},
		{"malformed regex in fallback", "@regex:a** || @text:X", CodeSelector},
		{"malformed regex in concatenation", "@css:.title@text && @regex:a** && @text:!", CodeSelector},
		{"malformed js", "@js:1 + || @text:X", CodeSelector},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Parse(context.Background(), htmlDoc(), tt.rule, nil)
			if err != nil {
				t.Fatalf("lenient Parse() returned error %v", err)
			}
			if res.Success {
				t.Fatalf("expected failure, got %v", res.Data)
			}
			if res.Data != nil {
				t.Errorf("Data = %v, want nil", res.Data)
			}
			if len(res.Errors) != 1 {
				t.Fatalf("len(Errors) = %d, want 1", len(res.Errors))
			}
			if res.Errors[0].Code != tt.code {
				t.Errorf("code = %s, want %s (%v)", res.Errors[0].Code, tt.code, res.Errors[0])
			}
			if res.Errors[0].Rule != tt.rule {
				t.Errorf("error rule = %q, want %q", res.Errors[0].Rule, tt.rule)
			}
			if res.Err() == nil {
				t.Error("Err() = nil for failed result")
			}
		})
	}
}

func TestEngine_FallbackCauses(t *testing.T) {
	e := newTestEngine(t, nil)
	res, _ := e.Parse(context.Background(), htmlDoc(), "@css:.a || @css:.b || @css:.c", nil)
	if len(res.Errors) != 1 {
		t.Fatalf("len(Errors) = %d, want 1", len(res.Errors))
	}
	if got := len(res.Errors[0].Causes); got != 3 {
		t.Errorf("len(Causes) = %d, want 3", got)
	}
}

func TestEngine_StrictMode(t *testing.T) {
	e := newTestEngine(t, func(o *Options) { o.StrictMode = true })

	res, err := e.Parse(context.Background(), htmlDoc(), "@css:.missing", nil)
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("error = %v, want EmptyResult", err)
	}
	if res == nil || res.Success {
		t.Errorf("expected failed result alongside the error")
	}

	if _, err := e.Parse(context.Background(), htmlDoc(), "@css:.title", nil); err != nil {
		t.Errorf("unexpected error on success: %v", err)
	}

	tests := []struct {
		name string
		rule string
	}{
		{"malformed regex before a default", "@regex:a** || @text:X"},
		{"malformed css before a default", "@css:!! || @text:X"},
		{"malformed regex in concatenation", "@css:.title@text && @regex:a** && @text:!"},
		{"malformed js", "@js:1 + || @text:X"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Parse(context.Background(), htmlDoc(), tt.rule, nil)
			if !errors.Is(err, ErrSelector) {
				t.Fatalf("error = %v, want SelectorError", err)
			}
			if !errors.Is(err, selector.ErrInvalidExpression) {
				t.Errorf("error = %v, want it to wrap ErrInvalidExpression", err)
			}
			if res == nil || res.Success || res.Data != nil {
				t.Errorf("expected failed result, got %+v", res)
			}
		})
	}
}

func TestEngine_FallbackSkipsIncompleteConcatenation(t *testing.T) {
	e := newTestEngine(t, nil)

	res, _ := e.Parse(context.Background(), htmlDoc(), "@css:.missing@text && @css:.gone@text || @css:.none", nil)
	if res.Success {
		t.Fatalf("expected failure, got %v", res.Data)
	}
	if !errors.Is(res.Errors[0], ErrAllAlternativesFailed) {
		t.Fatalf("error = %v, want AllAlternativesFailed", res.Errors[0])
	}
	causes := res.Errors[0].Causes
	if len(causes) != 2 || causes[0].Code != CodeEmpty || causes[1].Code != CodeEmpty {
		t.Errorf("causes = %v, want two EmptyResult", causes)
	}
}

func TestEngine_DepthGuardSkipsEvaluation(t *testing.T) {
	counter := &countingSelector{value: "x"}
	e := newTestEngine(t, func(o *Options) {
		o.MaxDepth = 3
		o.CustomSelectors = map[string]selector.Selector{"count": counter}
	})

	rule := "@count:a && " + strings.Repeat("(", 4) + "@count:b" + strings.Repeat(")", 4)
	res, _ := e.Parse(context.Background(), htmlDoc(), rule, nil)
	if res.Success {
		t.Fatal("expected failure")
	}
	if !errors.Is(res.Errors[0], ErrDepthExceeded) {
		t.Errorf("error = %v, want DepthExceeded", res.Errors[0])
	}
	if n := counter.calls.Load(); n != 0 {
		t.Errorf("selector called %d times, want 0", n)
	}
}

func TestEngine_ScopeDepth(t *testing.T) {
	e := newTestEngine(t, func(o *Options) { o.MaxDepth = 1 })
	scope := NewScope(nil).Child(nil).Child(nil)

	res, _ := e.Parse(context.Background(), htmlDoc(), "@css:h1", scope)
	if res.Success || !errors.Is(res.Errors[0], ErrDepthExceeded) {
		t.Errorf("expected DepthExceeded, got %+v", res)
	}
}

func TestEngine_Cache(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	doc := htmlDoc()

	first, _ := e.Parse(ctx, doc, "@css:h1", nil)
	second, _ := e.Parse(ctx, doc, "@css:h1", nil)
	if first.Meta.TreeCached || !second.Meta.TreeCached {
		t.Errorf("TreeCached = %v, %v; want false, true", first.Meta.TreeCached, second.Meta.TreeCached)
	}

	stats := e.Stats()
	if stats.CacheHits != 1 || stats.CacheMisses != 1 || stats.CacheSize != 1 || stats.TotalParses != 2 {
		t.Errorf("Stats() = %+v", stats)
	}

	e.ClearCache()
	if size := e.Stats().CacheSize; size != 0 {
		t.Errorf("CacheSize after ClearCache = %d, want 0", size)
	}

	_, _ = e.Parse(ctx, doc, "@css:h1", nil)
	stats = e.Stats()
	if stats.CacheMisses != 2 || stats.TotalParses != 3 {
		t.Errorf("Stats() after clear = %+v", stats)
	}
}

// clearingSelector counts ClearCache calls.
type clearingSelector struct {
	countingSelector
	cleared atomic.Int64
}

func (s *clearingSelector) ClearCache() {
	s.cleared.Add(1)
}

func TestEngine_ClearCacheFlushesSelectors(t *testing.T) {
	s := &clearingSelector{}
	e := newTestEngine(t, func(o *Options) {
		o.CustomSelectors = map[string]selector.Selector{"counted": s}
	})

	e.ClearCache()
	if n := s.cleared.Load(); n != 1 {
		t.Errorf("selector cleared %d times, want 1", n)
	}
}

func TestEngine_CacheDisabled(t *testing.T) {
	e := newTestEngine(t, func(o *Options) { o.EnableCache = false })
	for i := 0; i < 3; i++ {
		res, _ := e.Parse(context.Background(), htmlDoc(), "@css:h1", nil)
		if res.Meta.TreeCached {
			t.Error("TreeCached with cache disabled")
		}
	}
	stats := e.Stats()
	if stats.CacheHits != 0 || stats.CacheMisses != 0 || stats.CacheSize != 0 || stats.TotalParses != 3 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestEngine_CacheEviction(t *testing.T) {
	e := newTestEngine(t, func(o *Options) { o.CacheSize = 2 })
	for i := 0; i < 5; i++ {
		_, _ = e.Parse(context.Background(), htmlDoc(), fmt.Sprintf("@text:%d", i), nil)
	}
	if size := e.Stats().CacheSize; size != 2 {
		t.Errorf("CacheSize = %d, want 2", size)
	}
}

func TestEngine_ResultCache(t *testing.T) {
	counter := &countingSelector{value: "v"}
	e := newTestEngine(t, func(o *Options) {
		o.CacheResults = true
		o.CustomSelectors = map[string]selector.Selector{"count": counter}
	})
	ctx := context.Background()
	doc := htmlDoc()

	first, _ := e.Parse(ctx, doc, "@count:x", nil)
	second, _ := e.Parse(ctx, doc, "@count:x", nil)
	if first.Meta.ResultCached || !second.Meta.ResultCached {
		t.Errorf("ResultCached = %v, %v; want false, true", first.Meta.ResultCached, second.Meta.ResultCached)
	}
	if second.Data != "v" {
		t.Errorf("cached Data = %v, want v", second.Data)
	}

	// different variables are a different entry
	_, _ = e.Parse(ctx, doc, "@count:x", NewScope(map[string]interface{}{"k": 1}))
	// a different document is a different entry
	_, _ = e.Parse(ctx, selector.NewDocument("<p>other</p>", selector.ContentHTML), "@count:x", nil)

	if n := counter.calls.Load(); n != 3 {
		t.Errorf("selector called %d times, want 3", n)
	}
}

func TestEngine_Deterministic(t *testing.T) {
	e := newTestEngine(t, nil)
	doc := htmlDoc()
	const rule = `@css:.missing || (@css:.title@text && @text: / && @css:.price##\d+)`

	first, _ := e.Parse(context.Background(), doc, rule, nil)
	for i := 0; i < 5; i++ {
		res, _ := e.Parse(context.Background(), doc, rule, nil)
		if res.Data != first.Data || res.Success != first.Success {
			t.Fatalf("run %d: got %v, want %v", i, res.Data, first.Data)
		}
	}
	if first.Data != "Hello / 128" {
		t.Errorf("Data = %v, want Hello / 128", first.Data)
	}
}

func TestEngine_Concurrent(t *testing.T) {
	e := newTestEngine(t, nil)
	doc := htmlDoc()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rule := fmt.Sprintf("@css:.title@text && @text:%d", i%4)
			res, _ := e.Parse(context.Background(), doc, rule, nil)
			if want := fmt.Sprintf("Hello%d", i%4); res.Data != want {
				t.Errorf("Data = %v, want %s", res.Data, want)
			}
		}(i)
	}
	wg.Wait()
}

func TestEngine_CustomOperator(t *testing.T) {
	e := newTestEngine(t, func(o *Options) {
		o.CustomOperators = map[string]Operator{
			"<>": OperatorFunc(func(_ context.Context, left, right interface{}, scope *Scope) (interface{}, error) {
				sep, _ := scope.Lookup("sep")
				l, _ := toText(left)
				r, _ := toText(right)
				return l + fmt.Sprint(sep) + r, nil
			}),
			"!!": OperatorFunc(func(context.Context, interface{}, interface{}, *Scope) (interface{}, error) {
				return nil, errors.New("boom")
			}),
		}
	})
	scope := NewScope(map[string]interface{}{"sep": "|"})

	res, _ := e.Parse(context.Background(), htmlDoc(), "@css:.title <> @text:world", scope)
	if res.Data != "Hello|world" || res.Selector != SelectorComposite {
		t.Errorf("got %v (%s), want Hello|world", res.Data, res.Selector)
	}

	res, _ = e.Parse(context.Background(), htmlDoc(), "@css:.missing <> @text:world", scope)
	if res.Data != "|world" {
		t.Errorf("failed operand: Data = %v, want |world", res.Data)
	}

	res, _ = e.Parse(context.Background(), htmlDoc(), "@css:.title !! @text:x", scope)
	if res.Success || !errors.Is(res.Errors[0], ErrOperator) {
		t.Errorf("expected OperatorError, got %+v", res.Errors)
	}

	res, _ = e.Parse(context.Background(), htmlDoc(), "(@css:.title !! @text:x) || @text:ok", scope)
	if res.Data != "ok" {
		t.Errorf("fallback over failed operator: Data = %v, want ok", res.Data)
	}
}

func TestEngine_CustomSelectorOverridesBuiltin(t *testing.T) {
	e := newTestEngine(t, func(o *Options) {
		o.CustomSelectors = map[string]selector.Selector{
			"text": selector.Func(func(_ context.Context, req *selector.Request) (interface{}, error) {
				return strings.ToUpper(req.Expression), nil
			}),
		}
	})
	res, _ := e.Parse(context.Background(), htmlDoc(), "@text:abc", nil)
	if res.Data != "ABC" {
		t.Errorf("Data = %v, want ABC", res.Data)
	}
}

func TestEngine_Timeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	e := newTestEngine(t, func(o *Options) {
		o.Timeout = 50 * time.Millisecond
		o.CustomSelectors = map[string]selector.Selector{
			"block": selector.Func(func(context.Context, *selector.Request) (interface{}, error) {
				<-release
				return "late", nil
			}),
		}
	})

	start := time.Now()
	res, _ := e.Parse(context.Background(), htmlDoc(), "@block:x || @text:fallback", nil)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Parse took %v", elapsed)
	}
	if res.Success {
		t.Fatalf("expected timeout, got %v", res.Data)
	}
	if !errors.Is(res.Errors[0], ErrTimeout) {
		t.Errorf("error = %v, want Timeout", res.Errors[0])
	}
}

func TestEngine_CanceledContext(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, _ := e.Parse(ctx, htmlDoc(), "@css:h1", nil)
	if res.Success || !errors.Is(res.Errors[0], ErrTimeout) {
		t.Errorf("expected Timeout, got %+v", res)
	}
}

func TestEngine_Debug(t *testing.T) {
	e := newTestEngine(t, func(o *Options) { o.Debug = true })
	res, _ := e.Parse(context.Background(), htmlDoc(), "@css:h1 || @text:x", nil)
	if res.Meta.Tree != "(fallback @css:h1 @text:x)" {
		t.Errorf("Meta.Tree = %q", res.Meta.Tree)
	}

	e = newTestEngine(t, nil)
	res, _ = e.Parse(context.Background(), htmlDoc(), "@css:h1", nil)
	if res.Meta.Tree != "" {
		t.Errorf("Meta.Tree = %q without debug", res.Meta.Tree)
	}
}

func TestEngine_ParseBatch(t *testing.T) {
	e := newTestEngine(t, nil)
	fields := Fields{
		{Key: "title", Rule: "@css:.title@text"},
		{Key: "missing", Rule: "@css:.missing"},
		{Key: "price", Rule: `@css:.price##\d+\.\d+`},
		{Key: "broken", Rule: "@css:h1 &&"},
	}

	batch, err := e.ParseBatch(context.Background(), htmlDoc(), fields, nil)
	if err != nil {
		t.Fatalf("ParseBatch() error = %v", err)
	}
	if len(batch) != len(fields) {
		t.Fatalf("len = %d, want %d", len(batch), len(fields))
	}
	for i, f := range fields {
		if batch[i].Key != f.Key {
			t.Errorf("batch[%d].Key = %s, want %s", i, batch[i].Key, f.Key)
		}
	}

	if got := batch.Get("title").Data; got != "Hello" {
		t.Errorf("title = %v", got)
	}
	if got := batch.Get("price").Data; got != "128.50" {
		t.Errorf("price = %v", got)
	}
	if batch.Get("missing").Success {
		t.Error("missing should fail")
	}
	if r := batch.Get("broken"); r.Success || r.Errors[0].Code != CodeSyntax {
		t.Errorf("broken = %+v", r)
	}
	if batch.Get("nope") != nil {
		t.Error("Get of unknown key should be nil")
	}

	data := batch.Data()
	if data["title"] != "Hello" || data["missing"] != nil {
		t.Errorf("Data() = %v", data)
	}
}

func TestEngine_ParseBatchStrict(t *testing.T) {
	counter := &countingSelector{value: "x"}
	e := newTestEngine(t, func(o *Options) {
		o.StrictMode = true
		o.CustomSelectors = map[string]selector.Selector{"count": counter}
	})
	fields := Fields{
		{Key: "a", Rule: "@count:a"},
		{Key: "b", Rule: "@css:.missing"},
		{Key: "c", Rule: "@count:c"},
	}

	batch, err := e.ParseBatch(context.Background(), htmlDoc(), fields, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrEmpty) {
		t.Errorf("error = %v, want EmptyResult", err)
	}
	if !strings.Contains(err.Error(), `field "b"`) {
		t.Errorf("error %q does not name the field", err)
	}
	if batch != nil {
		t.Errorf("batch = %v, want nil", batch)
	}
	if n := counter.calls.Load(); n != 1 {
		t.Errorf("fields after the failure were evaluated: %d calls", n)
	}
}

func TestEngine_ParseArray(t *testing.T) {
	e := newTestEngine(t, nil)
	fields := Fields{
		{Key: "name", Rule: "@css:.name@text"},
		{Key: "cost", Rule: "@css:.cost@text || @text:n/a"},
		{Key: "index", Rule: "@js:vars.index"},
	}

	arr, err := e.ParseArray(context.Background(), htmlDoc(), "@css:li.product", fields, nil)
	if err != nil {
		t.Fatalf("ParseArray() error = %v", err)
	}
	if !arr.Success {
		t.Fatalf("ParseArray() failed: %v", arr.Errors)
	}

	want := []map[string]interface{}{
		{"name": "Apple", "cost": "1.50", "index": int64(0)},
		{"name": "Pear", "cost": "2.75", "index": int64(1)},
		{"name": "Plum", "cost": "n/a", "index": int64(2)},
	}
	got := arr.Data()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		for k, v := range want[i] {
			if got[i][k] != v {
				t.Errorf("item %d %s = %#v, want %#v", i, k, got[i][k], v)
			}
		}
	}
}

func TestEngine_ParseArrayJSON(t *testing.T) {
	e := newTestEngine(t, nil)
	doc := selector.NewDocument(testJSON, selector.ContentJSON)
	fields := Fields{
		{Key: "name", Rule: "@json:name"},
		{Key: "cost", Rule: "@json:cost"},
	}

	arr, err := e.ParseArray(context.Background(), doc, "@json:$.items", fields, nil)
	if err != nil {
		t.Fatalf("ParseArray() error = %v", err)
	}
	got := arr.Data()
	if len(got) != 2 || got[0]["name"] != "Apple" || got[1]["cost"] != 2.75 {
		t.Errorf("Data() = %v", got)
	}
}

func TestEngine_ParseArrayNoItems(t *testing.T) {
	e := newTestEngine(t, nil)
	arr, err := e.ParseArray(context.Background(), htmlDoc(), "@css:.missing", Fields{{Key: "a", Rule: "@css:a"}}, nil)
	if err != nil {
		t.Fatalf("ParseArray() error = %v", err)
	}
	if arr.Success || len(arr.Items) != 0 || len(arr.Errors) != 1 {
		t.Errorf("ParseArray() = %+v", arr)
	}
}

func TestEngine_ParseArrayDepth(t *testing.T) {
	e := newTestEngine(t, func(o *Options) { o.MaxDepth = 1 })
	scope := NewScope(nil).Child(nil)

	arr, _ := e.ParseArray(context.Background(), htmlDoc(), "@css:li.product", Fields{{Key: "n", Rule: "@css:.name"}}, scope)
	if arr.Success || !errors.Is(arr.Errors[0], ErrDepthExceeded) {
		t.Errorf("expected DepthExceeded, got %+v", arr)
	}
}

func TestNewEngine_InvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"bad concat policy", func(o *Options) { o.ConcatPolicy = "skip" }},
		{"reserved operator", func(o *Options) {
			o.CustomOperators = map[string]Operator{"||": OperatorFunc(nil)}
		}},
		{"operator with letters", func(o *Options) {
			o.CustomOperators = map[string]Operator{"and": OperatorFunc(nil)}
		}},
		{"nil selector", func(o *Options) {
			o.CustomSelectors = map[string]selector.Selector{"x": nil}
		}},
		{"bad selector kind", func(o *Options) {
			o.CustomSelectors = map[string]selector.Selector{"a:b": selector.Text{}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			if _, err := NewEngine(opts, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewEngine_ZeroOptions(t *testing.T) {
	e, err := NewEngine(Options{}, nil)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	o := e.Options()
	if o.Timeout != DefaultTimeout || o.MaxDepth != DefaultMaxDepth || o.CacheSize != DefaultCacheSize || o.ConcatPolicy != ConcatEmpty {
		t.Errorf("Options() = %+v", o)
	}
	kinds := strings.Join(e.Kinds(), ",")
	if kinds != "css,js,json,regex,text,xpath" {
		t.Errorf("Kinds() = %s", kinds)
	}
}
