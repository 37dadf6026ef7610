package selector

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/golang/groupcache/lru"
)

const regexCacheSize = 256

// Regex matches a regular expression against the document treated as text.
// It returns the first match, or its first capture group when the pattern
// defines one. In list mode every match is returned.
type Regex struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// NewRegex creates the regex selector.
func NewRegex() *Regex {
	return &Regex{cache: lru.New(regexCacheSize)}
}

// Select implements Selector.
func (s *Regex) Select(ctx context.Context, req *Request) (interface{}, error) {
	re, err := s.compile(req.Expression)
	if err != nil {
		return nil, err
	}

	text := req.Document.Text()
	group := 0
	if re.NumSubexp() > 0 {
		group = 1
	}

	if req.All {
		matches := re.FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			return nil, nil
		}
		values := make([]interface{}, 0, len(matches))
		for _, m := range matches {
			values = append(values, m[group])
		}
		return values, ctx.Err()
	}

	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil, nil
	}
	return m[group], nil
}

func (s *Regex) compile(expr string) (*regexp.Regexp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if re, ok := s.cache.Get(expr); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: regex %q: %v", ErrInvalidExpression, expr, err)
	}
	s.cache.Add(expr, re)
	return re, nil
}

// ClearCache implements CacheClearer.
func (s *Regex) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Clear()
}
