package selector

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Value-kind suffixes understood by the markup selectors. Any other suffix
// names an attribute.
const (
	SuffixText      = "text"
	SuffixHTML      = "html"
	SuffixOuterHTML = "outerHtml"
)

var eqPseudo = regexp.MustCompile(`:eq\((\d+)\)\s*$`)

// CSS selects document nodes with a CSS selector.
//
// Without a suffix the trimmed text of the first match is returned. A
// trailing `:eq(n)` picks the n-th (zero based) match instead. In list mode
// every match is returned, as outer markup when no suffix is given.
type CSS struct{}

// NewCSS creates the css selector.
func NewCSS() *CSS {
	return &CSS{}
}

// Select implements Selector.
func (s *CSS) Select(ctx context.Context, req *Request) (interface{}, error) {
	expr := strings.TrimSpace(req.Expression)
	index := -1
	if m := eqPseudo.FindStringSubmatch(expr); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("%w: bad index in %q", ErrInvalidExpression, expr)
		}
		index = n
		expr = strings.TrimSpace(expr[:len(expr)-len(m[0])])
	}

	matcher, err := cascadia.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: css %q: %v", ErrInvalidExpression, expr, err)
	}

	doc, err := req.Document.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	sel := doc.FindMatcher(matcher)
	if index >= 0 {
		sel = sel.Eq(index)
	}
	if sel.Length() == 0 {
		return nil, nil
	}

	if req.All {
		values := make([]interface{}, 0, sel.Length())
		sel.EachWithBreak(func(_ int, item *goquery.Selection) bool {
			if req.Suffix == "" {
				if h, err := goquery.OuterHtml(item); err == nil {
					values = append(values, h)
				}
			} else if v, ok := cssValue(item, req.Suffix); ok {
				values = append(values, v)
			}
			return ctx.Err() == nil
		})
		return values, ctx.Err()
	}

	v, ok := cssValue(sel.First(), req.Suffix)
	if !ok {
		return nil, nil
	}
	return v, nil
}

func cssValue(sel *goquery.Selection, suffix string) (string, bool) {
	switch suffix {
	case "", SuffixText:
		return strings.TrimSpace(sel.Text()), true
	case SuffixHTML:
		h, err := sel.Html()
		return h, err == nil
	case SuffixOuterHTML:
		h, err := goquery.OuterHtml(sel)
		return h, err == nil
	default:
		return sel.Attr(suffix)
	}
}
