package textextract

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownToText flattens markdown into plain paragraphs separated by
// blank lines, the shape the chunker's paragraph trimming expects.
// Fenced code blocks are kept verbatim as their own paragraph.
func MarkdownToText(source []byte) string {
	md := goldmark.New()
	reader := text.NewReader(source)
	doc := md.Parser().Parse(reader)

	var paragraphs []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.FencedCodeBlock:
			var sb strings.Builder
			for i := 0; i < n.Lines().Len(); i++ {
				line := n.Lines().At(i)
				sb.Write(line.Value(source))
			}
			if code := strings.TrimRight(sb.String(), "\n"); code != "" {
				paragraphs = append(paragraphs, code)
			}
		case *ast.List:
			var items []string
			for item := n.FirstChild(); item != nil; item = item.NextSibling() {
				if txt := blockText(item, source); txt != "" {
					items = append(items, txt)
				}
			}
			if len(items) > 0 {
				paragraphs = append(paragraphs, strings.Join(items, "\n"))
			}
		default:
			if txt := blockText(node, source); txt != "" {
				paragraphs = append(paragraphs, txt)
			}
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

func blockText(n ast.Node, source []byte) string {
	var sb strings.Builder
	ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Kind() == ast.KindText {
			sb.Write(node.(*ast.Text).Segment.Value(source))
			if node.(*ast.Text).HardLineBreak() || node.(*ast.Text).SoftLineBreak() {
				sb.WriteString("\n")
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
