package selector

import "context"

// Text returns its expression verbatim without reading the document.
type Text struct{}

// Select implements Selector.
func (Text) Select(_ context.Context, req *Request) (interface{}, error) {
	return req.Expression, nil
}
