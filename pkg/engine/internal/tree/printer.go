package tree

import (
	"fmt"
	"io"
	"strings"
)

const (
	connectorMid   = "├── "
	connectorLast  = "└── "
	indentContinue = "│   "
	indentBlank    = "    "
)

// Printer renders a [Node] tree as indented text with box-drawing
// connectors.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Print renders the tree rooted at node.
func (p *Printer) Print(node *Node) {
	fmt.Fprintln(p.w, headline(node))
	p.printNested(node, "")
}

func (p *Printer) printNested(node *Node, prefix string) {
	if len(node.Comments) > 0 {
		commentPrefix := prefix + indentBlank
		if len(node.Children) > 0 {
			commentPrefix = prefix + indentContinue
		}
		for i, comment := range node.Comments {
			p.printNode(comment, commentPrefix, i == len(node.Comments)-1)
		}
	}
	for i, child := range node.Children {
		p.printNode(child, prefix, i == len(node.Children)-1)
	}
}

func (p *Printer) printNode(node *Node, prefix string, last bool) {
	connector, indent := connectorMid, indentContinue
	if last {
		connector, indent = connectorLast, indentBlank
	}
	fmt.Fprintln(p.w, prefix+connector+headline(node))
	p.printNested(node, prefix+indent)
}

func headline(node *Node) string {
	if len(node.Properties) == 0 {
		return node.Name
	}

	var sb strings.Builder
	sb.WriteString(node.Name)
	sb.WriteByte(' ')
	for i, prop := range node.Properties {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(prop.Key)
		sb.WriteByte('=')
		if prop.IsMultiValue {
			sb.WriteByte('(')
		}
		for j, value := range prop.Values {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%v", value)
		}
		if prop.IsMultiValue {
			sb.WriteByte(')')
		}
	}
	return sb.String()
}
