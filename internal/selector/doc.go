// Package selector implements the selector registry and the built-in
// selector kinds a rule string can name.
//
// A selector evaluates one expression against a read-only Document:
//
//	css    CSS selector over the markup tree (goquery)
//	xpath  XPath over the markup tree (htmlquery)
//	json   dot/bracket key path over JSON (gjson)
//	regex  regular expression over the document text
//	text   constant text, the document is not read
//	js     sandboxed CEL expression over vars, source and data
//
// A missing match is not an error: selectors return a nil value and a nil
// error. Malformed expressions return an error wrapping
// ErrInvalidExpression.
//
// Additional kinds are registered with Registry.Register:
//
//	reg := selector.NewDefaultRegistry(celEvaluator)
//	reg.Register(selector.KindTemplate, selector.NewTemplate(template.NewEngine()))
package selector
