// Package cel provides the sandboxed expression capability used by the
// `js` selector kind.
//
// Expressions are written in CEL (Common Expression Language), a
// non-Turing complete language with no access to the host process. Each
// program runs under a cost limit and is interrupted when its context is
// done.
//
// Example usage:
//
//	evaluator, err := cel.NewEvaluator(0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := evaluator.Evaluate(ctx, "vars.name + ' (' + string(size(source)) + ')'", cel.Input{
//	    Vars:   map[string]interface{}{"name": "report"},
//	    Source: "<html>...</html>",
//	})
//
// Variables visible to expressions:
//   - vars: the caller supplied variables (map)
//   - source: the document as text
//   - data: the decoded document when it is JSON, null otherwise
package cel
