// ABOUTME: Flattens markdown message bodies into plain terminal text
// ABOUTME: Walks the goldmark AST keeping text, code, list bullets and link targets

package render

import (
	"strconv"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var (
	markdownOnce   sync.Once
	markdownParser goldmark.Markdown
)

func parser() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownParser = goldmark.New(goldmark.WithExtensions(extension.Linkify, extension.Strikethrough))
	})
	return markdownParser
}

// PlainText renders markdown as plain text: emphasis markers are dropped,
// list items get "- " or "N. " bullets, links keep their target in
// parentheses, and blocks are separated by a single newline.
func PlainText(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}
	source := []byte(input)
	doc := parser().Parser().Parse(text.NewReader(source))

	f := &flattener{source: source}
	_ = ast.Walk(doc, f.walk)
	return strings.TrimRight(f.out.String(), "\n ")
}

type flattener struct {
	source []byte
	out    strings.Builder
	lists  []int // next number per nested ordered list, 0 for bullets
}

func (f *flattener) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Text:
		if entering {
			f.out.Write(node.Segment.Value(f.source))
			switch {
			case node.HardLineBreak():
				f.out.WriteByte('\n')
			case node.SoftLineBreak():
				f.out.WriteByte(' ')
			}
		}
	case *ast.String:
		if entering {
			f.out.Write(node.Value)
		}
	case *ast.AutoLink:
		if entering {
			f.out.Write(node.URL(f.source))
		}
		return ast.WalkSkipChildren, nil
	case *ast.Link:
		if !entering {
			dest := string(node.Destination)
			if dest != "" {
				f.out.WriteString(" (" + dest + ")")
			}
		}
	case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
		if entering {
			lines := n.Lines()
			for i := range lines.Len() {
				seg := lines.At(i)
				f.out.Write(seg.Value(f.source))
			}
			f.endBlock()
		}
		return ast.WalkSkipChildren, nil
	case *ast.List:
		if entering {
			next := 0
			if node.IsOrdered() {
				next = node.Start
				if next == 0 {
					next = 1
				}
			}
			f.lists = append(f.lists, next)
		} else {
			f.lists = f.lists[:len(f.lists)-1]
		}
	case *ast.ListItem:
		if entering && len(f.lists) > 0 {
			depth := len(f.lists) - 1
			f.out.WriteString(strings.Repeat("  ", depth))
			if next := f.lists[depth]; next > 0 {
				f.out.WriteString(strconv.Itoa(next) + ". ")
				f.lists[depth]++
			} else {
				f.out.WriteString("- ")
			}
		}
	case *ast.Paragraph, *ast.Heading, *ast.TextBlock:
		if !entering {
			f.endBlock()
		}
	case *ast.ThematicBreak:
		if entering {
			f.out.WriteString("---")
			f.endBlock()
		}
	}
	return ast.WalkContinue, nil
}

func (f *flattener) endBlock() {
	s := f.out.String()
	if s != "" && !strings.HasSuffix(s, "\n") {
		f.out.WriteByte('\n')
	}
}
