package selector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// SuffixRaw returns the matched JSON text instead of the decoded value.
const SuffixRaw = "raw"

// KeyPath navigates JSON documents with dot/bracket key paths:
//
//	$.store.book[0].title
//	store.book[*].title
//	items['odd.key']
//
// `*` and `[*]` iterate array elements. A missing segment yields nil.
type KeyPath struct{}

// NewKeyPath creates the json selector.
func NewKeyPath() *KeyPath {
	return &KeyPath{}
}

// Select implements Selector.
func (s *KeyPath) Select(ctx context.Context, req *Request) (interface{}, error) {
	path, err := ToGJSONPath(req.Expression)
	if err != nil {
		return nil, err
	}

	text := req.Document.Text()
	if !gjson.Valid(text) {
		return nil, nil
	}

	var res gjson.Result
	if path == "" {
		res = gjson.Parse(text)
	} else {
		res = gjson.Get(text, path)
	}
	if !res.Exists() || res.Type == gjson.Null {
		return nil, nil
	}

	if req.All {
		var items []interface{}
		if res.IsArray() {
			res.ForEach(func(_, v gjson.Result) bool {
				items = append(items, v.Raw)
				return ctx.Err() == nil
			})
		} else {
			items = append(items, res.Raw)
		}
		return items, ctx.Err()
	}

	if req.Suffix == SuffixRaw {
		return res.Raw, nil
	}
	return res.Value(), nil
}

// ToGJSONPath translates a dot/bracket key path into gjson path syntax.
func ToGJSONPath(expr string) (string, error) {
	p := strings.TrimSpace(expr)
	p = strings.TrimPrefix(p, "$")
	p = strings.TrimPrefix(p, ".")

	var (
		parts []string
		cur   strings.Builder
	)
	flush := func() {
		switch seg := cur.String(); seg {
		case "":
		case "*":
			parts = append(parts, "#")
		default:
			parts = append(parts, seg)
		}
		cur.Reset()
	}

	for i := 0; i < len(p); i++ {
		c := p[i]
		switch c {
		case '.':
			flush()
		case '[':
			flush()
			end := strings.IndexByte(p[i:], ']')
			if end < 0 {
				return "", fmt.Errorf("%w: unterminated '[' in key path %q", ErrInvalidExpression, expr)
			}
			inner := strings.TrimSpace(p[i+1 : i+end])
			seg, err := bracketSegment(inner)
			if err != nil {
				return "", fmt.Errorf("%w: key path %q: %v", ErrInvalidExpression, expr, err)
			}
			parts = append(parts, seg)
			i += end
		case ']':
			return "", fmt.Errorf("%w: unexpected ']' in key path %q", ErrInvalidExpression, expr)
		case '\\', '|', '#', '@', '?', '!', '%', '=', '<', '>':
			cur.WriteByte('\\')
			cur.WriteByte(c)
		default:
			cur.WriteByte(c)
		}
	}
	flush()

	return strings.Join(parts, "."), nil
}

func bracketSegment(inner string) (string, error) {
	switch {
	case inner == "*":
		return "#", nil
	case len(inner) >= 2 && (inner[0] == '\'' || inner[0] == '"') && inner[len(inner)-1] == inner[0]:
		return escapeKey(inner[1 : len(inner)-1]), nil
	}
	n, err := strconv.Atoi(inner)
	if err != nil || n < 0 {
		return "", fmt.Errorf("bad index %q", inner)
	}
	return strconv.Itoa(n), nil
}

func escapeKey(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '.', '*', '?', '\\', '|', '#', '@', '!', '%', '=', '<', '>':
			b.WriteByte('\\')
		}
		b.WriteByte(key[i])
	}
	return b.String()
}
