// Package rule implements the rule expression engine: it compiles rule
// strings into evaluation trees and evaluates them against documents.
//
// A rule combines selector terms with operators:
//   - Selector term: `@kind:expression[@suffix][##pattern]`
//   - Concatenation: `A && B` joins the text of A and B
//   - Fallback: `A || B` yields the first of A and B that produces a value
//   - Grouping: `(A || B) && C`
//
// Fallback binds loosest, so `A && B || C && D` reads as
// `(A && B) || (C && D)`; an alternative whose concatenation misses a part
// fails as a whole. A `##pattern` suffix cleans the value of the term it
// follows with a regular expression. Whitespace before `&&` belongs to a
// preceding `@text:` term, so `@css:a && @text: - && @css:b` joins with " - ".
//
// A missing match is a soft failure that fallback absorbs. A malformed
// expression or an unknown kind fails the whole rule.
//
// Example:
//
//	engine, err := rule.NewEngine(rule.DefaultOptions(), logger)
//	if err != nil {
//	    return err
//	}
//	doc := selector.NewDocument(html, selector.ContentHTML)
//	res, _ := engine.Parse(ctx, doc, "@css:h1@text || @text:untitled", nil)
//	fmt.Println(res.Data)
//
// Batch and array extraction:
//
//	fields := rule.Fields{
//	    {Key: "title", Rule: "@css:.title@text"},
//	    {Key: "price", Rule: "@css:.price@text##\\d+\\.\\d+"},
//	}
//	batch, _ := engine.ParseBatch(ctx, doc, fields, nil)
//	items, _ := engine.ParseArray(ctx, doc, "@css:.product", fields, nil)
//
// In lenient mode (the default) failures are captured in the result
// envelopes; with StrictMode the first failure is also returned as an error.
package rule
