package rule

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorizes an evaluation failure.
type Code string

const (
	CodeSyntax                Code = "SyntaxError"           // malformed rule string
	CodeSelectorNotFound      Code = "SelectorNotFound"      // unregistered kind tag
	CodeSelector              Code = "SelectorError"         // kind-specific evaluation failure
	CodeAllAlternativesFailed Code = "AllAlternativesFailed" // every fallback branch failed
	CodeDepthExceeded         Code = "DepthExceeded"         // nesting deeper than MaxDepth
	CodeTimeout               Code = "Timeout"               // evaluation deadline expired
	CodeEmpty                 Code = "EmptyResult"           // the rule produced no value
	CodeOperator              Code = "OperatorError"         // a custom operator failed
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its Code.
var (
	ErrSyntax                = &Error{Code: CodeSyntax}
	ErrSelectorNotFound      = &Error{Code: CodeSelectorNotFound}
	ErrSelector              = &Error{Code: CodeSelector}
	ErrAllAlternativesFailed = &Error{Code: CodeAllAlternativesFailed}
	ErrDepthExceeded         = &Error{Code: CodeDepthExceeded}
	ErrTimeout               = &Error{Code: CodeTimeout}
	ErrEmpty                 = &Error{Code: CodeEmpty}
	ErrOperator              = &Error{Code: CodeOperator}
)

// Error is a structured evaluation failure.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Rule    string `json:"rule,omitempty"`
	// Pos is the byte offset in Rule the error refers to, -1 when unknown.
	Pos  int    `json:"pos"`
	Kind string `json:"kind,omitempty"`
	// Causes holds the failures of individual alternatives.
	Causes []*Error `json:"causes,omitempty"`
	Err    error    `json:"-"`
}

func newError(code Code, pos int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Code))
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Kind != "" {
		fmt.Fprintf(&sb, " (selector %s)", e.Kind)
	}
	if e.Rule != "" && e.Pos >= 0 {
		fmt.Fprintf(&sb, " at offset %d in %q", e.Pos, e.Rule)
	}
	if e.Err != nil && e.Err.Error() != e.Message {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// withRule returns e annotated with the rule string it belongs to.
func (e *Error) withRule(rule string) *Error {
	if e.Rule == "" {
		e.Rule = rule
	}
	return e
}

// asError converts any error into an *Error, defaulting to code.
func asError(err error, code Code) *Error {
	var re *Error
	if errors.As(err, &re) {
		return re
	}
	return &Error{Code: code, Pos: -1, Message: err.Error(), Err: err}
}
