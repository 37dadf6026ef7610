package rule

import (
	"regexp"
	"strings"
)

// Operator tags of the built-in operators.
const (
	OpFallback = "fallback"
	OpConcat   = "concat"
)

// Node is a node of a compiled evaluation tree. Trees are immutable once
// built and may be shared across concurrent evaluations.
type Node interface {
	// Pos is the byte offset of the node in its rule string.
	Pos() int
	String() string
	node()
}

// Leaf is a single selector term.
type Leaf struct {
	Kind       string
	Expression string
	Suffix     string
	// Clean is the attached cleaning pattern, nil when absent.
	Clean  *regexp.Regexp
	Offset int
}

// OpNode combines its children, evaluated left to right.
type OpNode struct {
	// Op is OpFallback, OpConcat or a custom operator symbol.
	Op       string
	Children []Node
	Offset   int
}

func (*Leaf) node()   {}
func (*OpNode) node() {}

// Pos implements Node.
func (l *Leaf) Pos() int { return l.Offset }

// Pos implements Node.
func (n *OpNode) Pos() int { return n.Offset }

// String renders the leaf back in rule syntax.
func (l *Leaf) String() string {
	var sb strings.Builder
	sb.WriteString("@")
	sb.WriteString(l.Kind)
	sb.WriteString(":")
	sb.WriteString(l.Expression)
	if l.Suffix != "" {
		sb.WriteString("@")
		sb.WriteString(l.Suffix)
	}
	if l.Clean != nil {
		sb.WriteString("##")
		sb.WriteString(l.Clean.String())
	}
	return sb.String()
}

// String renders the node as a parenthesized prefix expression.
func (n *OpNode) String() string {
	var sb strings.Builder
	sb.WriteString("(")
	sb.WriteString(n.Op)
	for _, c := range n.Children {
		sb.WriteString(" ")
		sb.WriteString(c.String())
	}
	sb.WriteString(")")
	return sb.String()
}

// Depth returns the nesting depth of the tree; a single leaf has depth 0.
func Depth(n Node) int {
	op, ok := n.(*OpNode)
	if !ok {
		return 0
	}
	max := 0
	for _, c := range op.Children {
		if d := Depth(c); d > max {
			max = d
		}
	}
	return max + 1
}

// Leaves returns the selector terms of the tree in evaluation order.
func Leaves(n Node) []*Leaf {
	switch t := n.(type) {
	case *Leaf:
		return []*Leaf{t}
	case *OpNode:
		var out []*Leaf
		for _, c := range t.Children {
			out = append(out, Leaves(c)...)
		}
		return out
	}
	return nil
}
