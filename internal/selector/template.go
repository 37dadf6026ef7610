package selector

import (
	"context"
	"fmt"
)

// KindTemplate is the kind the template selector is usually registered under.
const KindTemplate = "tpl"

// Renderer renders a template against data.
type Renderer interface {
	Render(template string, data interface{}) (string, error)
	ValidateTemplate(template string) error
	ClearCache()
}

// Template renders its expression as a Handlebars template. The template
// sees the scope variables as `vars`.
type Template struct {
	renderer Renderer
}

// NewTemplate creates a template selector.
func NewTemplate(r Renderer) *Template {
	return &Template{renderer: r}
}

// Select implements Selector.
func (s *Template) Select(_ context.Context, req *Request) (interface{}, error) {
	vars := req.Variables
	if vars == nil {
		vars = map[string]interface{}{}
	}
	out, err := s.renderer.Render(req.Expression, map[string]interface{}{"vars": vars})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	return out, nil
}

// Validate implements Validator.
func (s *Template) Validate(expression string) error {
	return s.renderer.ValidateTemplate(expression)
}

// ClearCache implements CacheClearer.
func (s *Template) ClearCache() {
	s.renderer.ClearCache()
}
