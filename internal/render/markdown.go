// ABOUTME: Markdown-to-terminal rendering via a goldmark AST walk.
// ABOUTME: Styles headings, emphasis, lists, code, and links with ANSI colors.

package render

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var (
	headingStyle = color.New(color.FgCyan, color.Bold)
	boldStyle    = color.New(color.Bold)
	italicStyle  = color.New(color.Italic)
	codeStyle    = color.New(color.FgYellow)
	linkStyle    = color.New(color.FgBlue, color.Underline)
	dimStyle     = color.New(color.Faint)
)

// Terminal renders markdown as ANSI-styled terminal text. Color codes are
// omitted automatically when stdout is not a terminal.
func Terminal(markdown string) string {
	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var b strings.Builder
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		renderBlock(&b, node, source, 0)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// renderBlock writes one block-level node.
func renderBlock(b *strings.Builder, node ast.Node, source []byte, indent int) {
	prefix := strings.Repeat("  ", indent)

	switch n := node.(type) {
	case *ast.Heading:
		b.WriteString(prefix)
		b.WriteString(headingStyle.Sprint(nodeText(n, source)))
		b.WriteString("\n")

	case *ast.Paragraph, *ast.TextBlock:
		b.WriteString(prefix)
		renderInline(b, node, source)
		b.WriteString("\n")

	case *ast.List:
		number := n.Start
		for item := n.FirstChild(); item != nil; item = item.NextSibling() {
			b.WriteString(prefix)
			if n.IsOrdered() {
				b.WriteString(fmt.Sprintf("%d. ", number))
				number++
			} else {
				b.WriteString("• ")
			}
			renderListItem(b, item, source, indent)
		}

	case *ast.FencedCodeBlock:
		renderCodeLines(b, n.Lines(), source, prefix)

	case *ast.CodeBlock:
		renderCodeLines(b, n.Lines(), source, prefix)

	case *ast.Blockquote:
		for child := n.FirstChild(); child != nil; child = child.NextSibling() {
			switch child.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				b.WriteString(prefix)
				b.WriteString(dimStyle.Sprint("> "))
				renderInline(b, child, source)
				b.WriteString("\n")
			default:
				// Nested lists and code blocks keep their structure
				renderBlock(b, child, source, indent+1)
			}
		}

	case *ast.ThematicBreak:
		b.WriteString(prefix)
		b.WriteString(dimStyle.Sprint(strings.Repeat("─", 40)))
		b.WriteString("\n")

	default:
		b.WriteString(prefix)
		renderInline(b, node, source)
		b.WriteString("\n")
	}
}

// renderListItem writes an item's first line inline and nests any child
// blocks beneath it.
func renderListItem(b *strings.Builder, item ast.Node, source []byte, indent int) {
	first := true
	for child := item.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.(type) {
		case *ast.TextBlock, *ast.Paragraph:
			if first {
				renderInline(b, child, source)
				b.WriteString("\n")
				first = false
				continue
			}
			renderBlock(b, child, source, indent+1)
		default:
			if first {
				b.WriteString("\n")
				first = false
			}
			renderBlock(b, child, source, indent+1)
		}
	}
	if first {
		b.WriteString("\n")
	}
}

// renderCodeLines writes code block content with a dim style.
func renderCodeLines(b *strings.Builder, lines *text.Segments, source []byte, prefix string) {
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		b.WriteString(prefix)
		b.WriteString("    ")
		b.WriteString(dimStyle.Sprint(strings.TrimRight(string(line.Value(source)), "\n")))
		b.WriteString("\n")
	}
}

// renderInline writes a node's inline children with emphasis, code, and
// link styling.
func renderInline(b *strings.Builder, node ast.Node, source []byte) {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *ast.Text:
			b.Write(n.Segment.Value(source))
			if n.SoftLineBreak() || n.HardLineBreak() {
				b.WriteString("\n")
			}

		case *ast.Emphasis:
			style := italicStyle
			if n.Level >= 2 {
				style = boldStyle
			}
			b.WriteString(style.Sprint(inlineText(n, source)))

		case *ast.CodeSpan:
			b.WriteString(codeStyle.Sprint(nodeText(n, source)))

		case *ast.Link:
			b.WriteString(linkStyle.Sprint(inlineText(n, source)))
			b.WriteString(dimStyle.Sprintf(" (%s)", n.Destination))

		case *ast.AutoLink:
			b.WriteString(linkStyle.Sprint(string(n.URL(source))))

		case *ast.Image:
			b.WriteString(dimStyle.Sprintf("[image: %s]", inlineText(n, source)))

		default:
			renderInline(b, child, source)
		}
	}
}

// inlineText collects the plain text of a node's inline children.
func inlineText(node ast.Node, source []byte) string {
	var b strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		if t, ok := child.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
			continue
		}
		b.WriteString(inlineText(child, source))
	}
	return b.String()
}

// nodeText collects the raw text under a node, including code span content.
func nodeText(node ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := n.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
