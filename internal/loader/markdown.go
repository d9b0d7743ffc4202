package loader

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Markdown extracts the readable text of a markdown document, dropping
// markup such as emphasis markers, link targets and heading hashes.
type Markdown struct {
	parser goldmark.Markdown
}

// NewMarkdown creates a markdown loader backed by goldmark.
func NewMarkdown() *Markdown {
	return &Markdown{parser: goldmark.New()}
}

// Extract implements Loader.
func (m *Markdown) Extract(doc *RawDocument) (string, error) {
	source := doc.Content
	root := m.parser.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				b.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteString("\n")
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				b.Write(line.Value(source))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}

	return b.String(), nil
}
