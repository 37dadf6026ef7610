package rule

// Scope is the evaluation context of a rule: the caller supplied variables
// and a back-reference to the scope it was derived from. Scopes are never
// mutated by the engine.
type Scope struct {
	vars   map[string]interface{}
	parent *Scope
	depth  int
}

// NewScope creates a root scope. vars is copied.
func NewScope(vars map[string]interface{}) *Scope {
	s := &Scope{vars: make(map[string]interface{}, len(vars))}
	for k, v := range vars {
		s.vars[k] = v
	}
	return s
}

// Child derives a nested scope one level deeper. Variables of the child
// shadow those of s.
func (s *Scope) Child(vars map[string]interface{}) *Scope {
	c := &Scope{
		vars:   make(map[string]interface{}, len(s.vars)+len(vars)),
		parent: s,
		depth:  s.depth + 1,
	}
	for k, v := range s.vars {
		c.vars[k] = v
	}
	for k, v := range vars {
		c.vars[k] = v
	}
	return c
}

// Lookup returns a variable.
func (s *Scope) Lookup(name string) (interface{}, bool) {
	v, ok := s.vars[name]
	return v, ok
}

// Variables returns the visible variables. The map must not be modified.
func (s *Scope) Variables() map[string]interface{} {
	return s.vars
}

// Parent returns the scope s was derived from, nil for a root scope.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Depth returns the nesting depth, 0 for a root scope.
func (s *Scope) Depth() int {
	return s.depth
}
