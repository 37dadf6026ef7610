package selector

import (
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
)

// XPath evaluates a tree-query expression against the document's markup
// tree. Node results yield their text (or attribute value for attribute
// nodes); scalar results such as count() are returned as is.
type XPath struct{}

// NewXPath creates the xpath selector.
func NewXPath() *XPath {
	return &XPath{}
}

// Select implements Selector.
func (s *XPath) Select(ctx context.Context, req *Request) (interface{}, error) {
	expr, err := xpath.Compile(strings.TrimSpace(req.Expression))
	if err != nil {
		return nil, fmt.Errorf("%w: xpath %q: %v", ErrInvalidExpression, req.Expression, err)
	}

	root, err := req.Document.HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	result := expr.Evaluate(htmlquery.CreateXPathNavigator(root))
	iter, ok := result.(*xpath.NodeIterator)
	if !ok {
		// number, string or boolean
		return result, nil
	}

	var values []interface{}
	for iter.MoveNext() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, ok := xpathValue(iter.Current(), req)
		if !ok {
			continue
		}
		if !req.All {
			return v, nil
		}
		values = append(values, v)
	}

	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}

func xpathValue(nav xpath.NodeNavigator, req *Request) (string, bool) {
	if nav.NodeType() == xpath.AttributeNode {
		return nav.Value(), true
	}

	hn, ok := nav.(*htmlquery.NodeNavigator)
	if !ok {
		return strings.TrimSpace(nav.Value()), true
	}
	node := hn.Current()

	switch req.Suffix {
	case "":
		if req.All {
			return htmlquery.OutputHTML(node, true), true
		}
		return strings.TrimSpace(htmlquery.InnerText(node)), true
	case SuffixText:
		return strings.TrimSpace(htmlquery.InnerText(node)), true
	case SuffixHTML:
		return htmlquery.OutputHTML(node, false), true
	case SuffixOuterHTML:
		return htmlquery.OutputHTML(node, true), true
	default:
		for _, a := range node.Attr {
			if a.Key == req.Suffix {
				return a.Val, true
			}
		}
		return "", false
	}
}
