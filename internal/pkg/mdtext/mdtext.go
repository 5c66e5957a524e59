// Package mdtext flattens markdown to plain text for embedding. Formatting
// carries no retrieval signal; headings, emphasis and links only waste the
// provider's input budget.
package mdtext

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

func Strip(src string) string {
	source := []byte(src)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))
	var buf bytes.Buffer
	flatten(&buf, doc, source)
	return strings.TrimSpace(buf.String())
}

// Chunk splits a document into embedding-sized plain-text pieces. Level 1
// and 2 headings start a new section and every chunk cut from that section
// carries the heading as context; blocks accumulate until the character
// budget forces a flush. A single block larger than the budget is hard-split
// so no text is ever dropped.
func Chunk(src string, budget int) []string {
	if budget <= 0 {
		budget = 8000
	}
	source := []byte(src)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var chunks []string
	var parts []string
	var size int
	var heading string

	flush := func() {
		if len(parts) == 0 {
			return
		}
		content := strings.Join(parts, "\n")
		if heading != "" {
			content = "Heading: " + heading + "\n" + content
		}
		chunks = append(chunks, content)
		parts = nil
		size = 0
	}

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if h, ok := node.(*ast.Heading); ok && h.Level <= 2 {
			flush()
			heading = string(h.Text(source))
			continue
		}
		var buf bytes.Buffer
		flatten(&buf, node, source)
		txt := strings.TrimSpace(buf.String())
		if txt == "" {
			continue
		}
		for _, piece := range splitOversized(txt, budget) {
			if size > 0 && size+len(piece) > budget {
				flush()
			}
			parts = append(parts, piece)
			size += len(piece)
		}
	}
	flush()
	return chunks
}

func splitOversized(s string, budget int) []string {
	if len(s) <= budget {
		return []string{s}
	}
	runes := []rune(s)
	var pieces []string
	for start := 0; start < len(runes); start += budget {
		end := start + budget
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}

func flatten(buf *bytes.Buffer, root ast.Node, source []byte) {
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if _, ok := n.(*ast.Paragraph); ok {
				buf.WriteByte('\n')
			}
			if _, ok := n.(*ast.Heading); ok {
				buf.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.CodeBlock:
			writeLines(buf, source, t.BaseBlock)
		case *ast.FencedCodeBlock:
			writeLines(buf, source, t.BaseBlock)
		case *ast.CodeSpan:
			// inline code text arrives via child ast.Text nodes
		case *ast.AutoLink:
			buf.Write(t.URL(source))
		}
		return ast.WalkContinue, nil
	})
}

func writeLines(buf *bytes.Buffer, source []byte, block ast.BaseBlock) {
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(source))
	}
	buf.WriteByte('\n')
}
