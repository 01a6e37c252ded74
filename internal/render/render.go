// Package render converts note Markdown to HTML with internal references
// resolved to UID-addressed links, and to plaintext for search.
package render

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds reference lookups per document.
const DefaultConcurrency = 8

// ResolveFunc returns the UID to link a reference to, or "" to render it as
// a placeholder. It may be called concurrently.
type ResolveFunc func(ctx context.Context, l Link) (string, error)

func newEngine() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM, wikiLinks{}),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
}

// Renderer holds a configured goldmark engine. Safe for concurrent use.
type Renderer struct {
	md          goldmark.Markdown
	concurrency int
}

// New returns a Renderer that runs at most concurrency lookups per document.
func New(concurrency int) *Renderer {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Renderer{md: newEngine(), concurrency: concurrency}
}

// HTML renders md. References are collected in document order first, resolved
// concurrently, then assigned back by position before the tree is rendered.
func (r *Renderer) HTML(ctx context.Context, md []byte, resolve ResolveFunc) (string, error) {
	doc := r.md.Parser().Parse(text.NewReader(md))
	nodes := collect(doc)

	if len(nodes) > 0 && resolve != nil {
		uids := make([]string, len(nodes))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.concurrency)
		for i, n := range nodes {
			g.Go(func() error {
				uid, err := resolve(gctx, n.Link)
				if err != nil {
					return fmt.Errorf("resolve [[%s]]: %w", n.Link.Target, err)
				}
				uids[i] = uid
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return "", err
		}
		for i, n := range nodes {
			n.UID = uids[i]
		}
	}

	var buf bytes.Buffer
	if err := r.md.Renderer().Render(&buf, md, doc); err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return buf.String(), nil
}

var (
	dataviewFence = regexp.MustCompile("(?s)```dataview\n(.*?)```")
	htmlComment   = regexp.MustCompile(`(?s)<!--.*?-->`)
	blankRuns     = regexp.MustCompile(`\n\s*\n`)
)

// Plaintext extracts readable text from md. Dataview queries keep their
// contents and HTML comments are dropped. It never panics.
func (r *Renderer) Plaintext(md []byte) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = "", fmt.Errorf("plaintext: %v", rec)
		}
	}()

	clean := dataviewFence.ReplaceAll(md, []byte("$1"))
	clean = htmlComment.ReplaceAll(clean, nil)

	doc := r.md.Parser().Parse(text.NewReader(clean))
	var b strings.Builder
	walkErr := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *WikiLink:
			if entering {
				b.WriteString(node.Link.Display())
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(clean))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
		case *ast.AutoLink:
			if entering {
				b.Write(node.URL(clean))
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(clean))
				}
				b.WriteString("\n\n")
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		default:
			if !entering && n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
				b.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})
	if walkErr != nil {
		return "", walkErr
	}

	plain := blankRuns.ReplaceAllString(b.String(), "\n\n")
	return strings.TrimSpace(plain), nil
}
