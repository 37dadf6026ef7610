package rule

import (
	"regexp"
)

// compileOptions controls Compile.
type compileOptions struct {
	// maxDepth bounds parenthesis nesting.
	maxDepth int
	// symbols are the registered custom operator symbols.
	symbols []string
	// known reports whether a selector kind is registered; nil skips the
	// check.
	known func(kind string) bool
}

// Compile parses a rule string into an evaluation tree.
//
//	Expression    := FallbackGroup ('||' FallbackGroup)*
//	FallbackGroup := ConcatTerm (('&&' | custom) ConcatTerm)*
//	ConcatTerm    := '(' Expression ')' | SelectorTerm
//	SelectorTerm  := '@' Kind ':' Expr ('@' Suffix)? ('##' CleanPattern)?
func Compile(rule string, maxDepth int, symbols ...string) (Node, error) {
	n, err := compile(rule, compileOptions{maxDepth: maxDepth, symbols: symbols})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func compile(rule string, opts compileOptions) (Node, *Error) {
	toks, err := lex(rule, opts.symbols)
	if err != nil {
		return nil, asError(err, CodeSyntax).withRule(rule)
	}

	p := &parser{toks: toks, opts: opts}
	n, perr := p.parseExpression()
	if perr != nil {
		return nil, perr.withRule(rule)
	}
	if t := p.peek(); t.kind != tokEOF {
		if t.kind == tokRParen {
			return nil, newError(CodeSyntax, t.pos, "unmatched ')'").withRule(rule)
		}
		return nil, newError(CodeSyntax, t.pos, "expected operator, found %s", t.kind).withRule(rule)
	}
	return n, nil
}

type parser struct {
	toks  []token
	i     int
	depth int
	opts  compileOptions
}

func (p *parser) peek() token {
	return p.toks[p.i]
}

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) parseExpression() (Node, *Error) {
	first, err := p.parseGroup()
	if err != nil {
		return nil, err
	}

	alts := []Node{first}
	for t := p.peek(); t.kind == tokOperator && t.text == symFallback; t = p.peek() {
		p.next()
		n, err := p.parseGroup()
		if err != nil {
			return nil, err
		}
		alts = append(alts, n)
	}

	if len(alts) == 1 {
		return first, nil
	}
	return &OpNode{Op: OpFallback, Children: alts, Offset: first.Pos()}, nil
}

func (p *parser) parseGroup() (Node, *Error) {
	acc, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	var chain *OpNode
	for t := p.peek(); t.kind == tokOperator && t.text != symFallback; t = p.peek() {
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}

		if t.text == symConcat {
			if chain != nil && acc == Node(chain) {
				chain.Children = append(chain.Children, right)
				continue
			}
			chain = &OpNode{Op: OpConcat, Children: []Node{acc, right}, Offset: acc.Pos()}
			acc = chain
			continue
		}
		acc = &OpNode{Op: t.text, Children: []Node{acc, right}, Offset: acc.Pos()}
	}
	return acc, nil
}

func (p *parser) parseTerm() (Node, *Error) {
	t := p.next()
	switch t.kind {
	case tokLParen:
		p.depth++
		if p.depth > p.opts.maxDepth {
			return nil, newError(CodeDepthExceeded, t.pos, "parenthesis nesting exceeds max depth %d", p.opts.maxDepth)
		}
		n, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.kind != tokRParen {
			return nil, newError(CodeSyntax, t.pos, "unmatched '('")
		}
		p.depth--
		return n, nil

	case tokSelector:
		return p.parseSelector(t)

	case tokRParen:
		return nil, newError(CodeSyntax, t.pos, "unmatched ')'")
	case tokOperator:
		return nil, newError(CodeSyntax, t.pos, "missing selector term before operator %q", t.text)
	case tokEOF:
		return nil, newError(CodeSyntax, t.pos, "unexpected end of rule, expected a selector term")
	}
	return nil, newError(CodeSyntax, t.pos, "unexpected %s", t.kind)
}

func (p *parser) parseSelector(t token) (Node, *Error) {
	if p.opts.known != nil && !p.opts.known(t.kindName) {
		return nil, &Error{
			Code:    CodeSelectorNotFound,
			Pos:     t.pos,
			Kind:    t.kindName,
			Message: "no selector registered for kind " + t.kindName,
		}
	}

	leaf := &Leaf{Kind: t.kindName, Expression: t.text, Offset: t.pos}
	if s := p.peek(); s.kind == tokSuffix {
		p.next()
		leaf.Suffix = s.text
	}
	if c := p.peek(); c.kind == tokClean {
		p.next()
		re, err := regexp.Compile(c.text)
		if err != nil {
			return nil, &Error{Code: CodeSyntax, Pos: c.pos, Message: "invalid clean pattern " + c.text, Err: err}
		}
		leaf.Clean = re
	}
	return leaf, nil
}
