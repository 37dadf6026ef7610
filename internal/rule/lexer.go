package rule

import (
	"sort"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokSelector
	tokSuffix
	tokClean
	tokOperator
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of rule"
	case tokSelector:
		return "selector"
	case tokSuffix:
		return "suffix"
	case tokClean:
		return "clean pattern"
	case tokOperator:
		return "operator"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	}
	return "token"
}

// token is a lexical unit of a rule string. For selectors kindName holds the
// selector kind and text the expression.
type token struct {
	kind     tokenKind
	pos      int
	kindName string
	text     string
}

// Built-in operator symbols.
const (
	symFallback = "||"
	symConcat   = "&&"
	symClean    = "##"
)

// scanMode controls how a selector expression is delimited.
type scanMode int

const (
	// scanFull tracks brackets, quotes and backslash escapes.
	scanFull scanMode = iota
	// scanPattern tracks brackets and backslash escapes.
	scanPattern
	// scanRaw tracks brackets only and keeps surrounding whitespace, up to
	// and including the whitespace before a concatenation.
	scanRaw
)

func modeFor(kind string) scanMode {
	switch kind {
	case "text":
		return scanRaw
	case "regex":
		return scanPattern
	}
	return scanFull
}

type lexer struct {
	input   string
	pos     int
	symbols []string
	tokens  []token
}

// lex splits a rule string into tokens. symbols lists the custom operator
// symbols in addition to || and &&.
func lex(input string, symbols []string) ([]token, error) {
	syms := append([]string{symFallback, symConcat}, symbols...)
	// longest first so that "|||" style symbols win over "||"
	sort.SliceStable(syms, func(i, j int) bool { return len(syms[i]) > len(syms[j]) })

	l := &lexer{input: input, symbols: syms}
	if err := l.run(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

func (l *lexer) emit(t token) {
	l.tokens = append(l.tokens, t)
}

func (l *lexer) run() error {
	for {
		l.skipSpace()
		if l.pos >= len(l.input) {
			l.emit(token{kind: tokEOF, pos: l.pos})
			return nil
		}

		c := l.input[l.pos]
		switch {
		case c == '(':
			l.emit(token{kind: tokLParen, pos: l.pos})
			l.pos++
		case c == ')':
			l.emit(token{kind: tokRParen, pos: l.pos})
			l.pos++
		case c == '@':
			if err := l.lexTerm(); err != nil {
				return err
			}
		default:
			if sym := l.symbolAt(l.pos); sym != "" {
				l.emit(token{kind: tokOperator, pos: l.pos, text: sym})
				l.pos += len(sym)
				continue
			}
			if run := punctRun(l.input[l.pos:]); run != "" {
				return newError(CodeSyntax, l.pos, "unknown operator symbol %q", run)
			}
			return newError(CodeSyntax, l.pos, "unexpected %q, expected a selector term", l.input[l.pos:l.pos+runeLen(l.input[l.pos:])])
		}
	}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.input) && isSpace(l.input[l.pos]) {
		l.pos++
	}
}

// lexTerm lexes `@kind:expression[@suffix][##pattern]`.
func (l *lexer) lexTerm() error {
	start := l.pos
	i := l.pos + 1
	for i < len(l.input) && isIdent(l.input[i]) {
		i++
	}
	kind := l.input[start+1 : i]
	if kind == "" {
		return newError(CodeSyntax, start, "missing selector kind after '@'")
	}
	if i >= len(l.input) || l.input[i] != ':' {
		return newError(CodeSyntax, start, "unterminated selector marker @%s, expected ':'", kind)
	}

	mode := modeFor(kind)
	exprStart := i + 1
	end, lastAt := l.scan(exprStart, mode, true)
	raw := l.input[exprStart:end]

	expr, suffix := raw, ""
	if mode != scanRaw {
		if lastAt >= 0 {
			if s, ok := suffixAt(raw, lastAt-exprStart); ok {
				expr, suffix = raw[:lastAt-exprStart], s
			}
		}
		expr = strings.TrimSpace(expr)
	}
	if expr == "" {
		return newError(CodeSyntax, start, "empty expression after @%s:", kind)
	}

	l.emit(token{kind: tokSelector, pos: start, kindName: kind, text: expr})
	if suffix != "" {
		l.emit(token{kind: tokSuffix, pos: lastAt, text: suffix})
	}
	l.pos = end

	if strings.HasPrefix(l.input[l.pos:], symClean) {
		cleanPos := l.pos
		pStart := l.pos + len(symClean)
		pEnd, _ := l.scan(pStart, scanPattern, false)
		pattern := strings.TrimSpace(l.input[pStart:pEnd])
		if pattern == "" {
			return newError(CodeSyntax, cleanPos, "empty clean pattern after '##'")
		}
		l.emit(token{kind: tokClean, pos: cleanPos, text: pattern})
		l.pos = pEnd
	}
	return nil
}

// scan returns the end offset of an expression starting at from, and the
// offset of the last '@' seen outside brackets and quotes (-1 if none). The
// expression ends before a top-level ')', '##' (when stopAtClean), an
// operator symbol, or whitespace leading to an operator symbol. In scanRaw
// mode whitespace leading to && belongs to the expression.
func (l *lexer) scan(from int, mode scanMode, stopAtClean bool) (int, int) {
	depth := 0
	var quote byte
	lastAt := -1

	i := from
	for i < len(l.input) {
		c := l.input[i]

		if quote != 0 {
			if c == '\\' {
				i += 2
				continue
			}
			if c == quote {
				quote = 0
			}
			i++
			continue
		}

		if c == '\\' && mode != scanRaw {
			i += 2
			continue
		}

		if depth == 0 {
			if c == ')' {
				return i, lastAt
			}
			if stopAtClean && strings.HasPrefix(l.input[i:], symClean) {
				return i, lastAt
			}
			if l.symbolAt(i) != "" {
				return i, lastAt
			}
			if isSpace(c) && l.operatorAhead(i) && !(mode == scanRaw && l.concatAhead(i)) {
				return i, lastAt
			}
			if c == '@' {
				lastAt = i
			}
		}

		switch c {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		case '\'', '"':
			if mode == scanFull {
				quote = c
			}
		}
		i++
	}
	if i > len(l.input) {
		i = len(l.input)
	}
	return i, lastAt
}

// operatorAhead reports whether the whitespace run at i is followed by an
// operator symbol, or by an unknown symbol that is itself followed by a new
// term.
func (l *lexer) operatorAhead(i int) bool {
	j := i
	for j < len(l.input) && isSpace(l.input[j]) {
		j++
	}
	if j >= len(l.input) {
		return false
	}
	if l.symbolAt(j) != "" {
		return true
	}

	run := punctRun(l.input[j:])
	if run == "" || strings.HasPrefix(run, symClean) {
		return false
	}
	k := j + len(run)
	if k >= len(l.input) || !isSpace(l.input[k]) {
		return false
	}
	for k < len(l.input) && isSpace(l.input[k]) {
		k++
	}
	return k < len(l.input) && (l.input[k] == '(' || startsTerm(l.input[k:]))
}

// concatAhead reports whether the whitespace run at i is followed by &&.
func (l *lexer) concatAhead(i int) bool {
	j := i
	for j < len(l.input) && isSpace(l.input[j]) {
		j++
	}
	return j < len(l.input) && l.symbolAt(j) == symConcat
}

func (l *lexer) symbolAt(i int) string {
	for _, s := range l.symbols {
		if strings.HasPrefix(l.input[i:], s) {
			return s
		}
	}
	return ""
}

// suffixAt reports whether raw[at:] is a value-kind suffix such as `@text`
// or `@href`.
func suffixAt(raw string, at int) (string, bool) {
	if at <= 0 {
		return "", false
	}
	if prev := raw[at-1]; prev == '/' || prev == ':' {
		// xpath attribute axis, or an expression consisting of the suffix only
		return "", false
	}
	name := strings.TrimRight(raw[at+1:], " \t\r\n")
	if name == "" || !isIdentStart(name[0]) {
		return "", false
	}
	for i := 1; i < len(name); i++ {
		if !isIdent(name[i]) {
			return "", false
		}
	}
	return name, true
}

// startsTerm reports whether s starts with `@kind:`.
func startsTerm(s string) bool {
	if len(s) < 3 || s[0] != '@' {
		return false
	}
	i := 1
	for i < len(s) && isIdent(s[i]) {
		i++
	}
	return i > 1 && i < len(s) && s[i] == ':'
}

func punctRun(s string) string {
	i := 0
	for i < len(s) && strings.IndexByte("|&+-*/<>=!?~^%;,.:#$", s[i]) >= 0 {
		i++
	}
	return s[:i]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdent(c byte) bool {
	return isIdentStart(c) || c == '-' || (c >= '0' && c <= '9')
}

func runeLen(s string) int {
	for i := range s {
		if i > 0 {
			return i
		}
	}
	return len(s)
}
