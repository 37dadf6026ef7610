// Package template renders Handlebars templates for the `tpl` selector kind.
//
// Templates see the scope variables of the rule being evaluated, so a rule
// such as
//
//	@tpl:{{uppercase vars.site}} / {{default vars.section "home"}}
//
// renders text without touching the source document.
//
// Built-in helpers:
//   - uppercase, lowercase, trim
//   - default - Return default value if first arg is empty
//   - replace - Replace all occurrences of a substring
//   - truncate - Keep the first n characters
//   - join - Join array elements with separator
//   - len - Length of a string (in characters), array or map
package template
