package render

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	noteparser "github.com/starford/folio/internal/parser"
)

// Link is one [[target#heading|alias]] reference as written in a note.
type Link struct {
	Target  string
	Heading string
	Alias   string
	Embed   bool
}

// Display returns the text shown for the link: the alias, else the heading,
// else the target.
func (l Link) Display() string {
	switch {
	case l.Alias != "":
		return l.Alias
	case l.Heading != "":
		return l.Heading
	default:
		return l.Target
	}
}

// KindWikiLink is the node kind of WikiLink.
var KindWikiLink = ast.NewNodeKind("WikiLink")

// WikiLink is an inline node for an internal reference. UID is set after
// resolution; an empty UID renders as an inert placeholder.
type WikiLink struct {
	ast.BaseInline
	Link Link
	UID  string
}

func (n *WikiLink) Kind() ast.NodeKind { return KindWikiLink }

func (n *WikiLink) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Target": n.Link.Target,
		"UID":    n.UID,
	}, nil)
}

type wikiLinkParser struct{}

var (
	openBrackets  = []byte("[[")
	closeBrackets = []byte("]]")
)

func (wikiLinkParser) Trigger() []byte { return []byte{'!', '['} }

func (wikiLinkParser) Parse(_ ast.Node, block text.Reader, _ parser.Context) ast.Node {
	line, _ := block.PeekLine()
	embed := false
	if len(line) > 0 && line[0] == '!' {
		embed = true
		line = line[1:]
	}
	if !bytes.HasPrefix(line, openBrackets) {
		return nil
	}
	end := bytes.Index(line[2:], closeBrackets)
	if end < 0 {
		return nil
	}
	inner := line[2 : 2+end]
	if len(bytes.TrimSpace(inner)) == 0 || bytes.ContainsAny(inner, "[]\n") {
		return nil
	}

	target, heading, alias := noteparser.SplitReference(string(inner))
	if target == "" && heading == "" {
		return nil
	}
	consumed := end + 4
	if embed {
		consumed++
	}
	block.Advance(consumed)
	return &WikiLink{Link: Link{Target: target, Heading: heading, Alias: alias, Embed: embed}}
}

type wikiLinkRenderer struct{}

func (wikiLinkRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindWikiLink, renderWikiLink)
}

func renderWikiLink(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	n := node.(*WikiLink)
	label := util.EscapeHTML([]byte(n.Link.Display()))
	if n.UID == "" {
		_, _ = w.WriteString(`<span class="internal-link unpublished">`)
		_, _ = w.Write(label)
		_, _ = w.WriteString(`</span>`)
		return ast.WalkSkipChildren, nil
	}
	uid := string(util.EscapeHTML([]byte(n.UID)))
	_, _ = w.WriteString(`<a class="internal-link" data-uid="` + uid + `" href="#u=` + uid + `">`)
	_, _ = w.Write(label)
	_, _ = w.WriteString(`</a>`)
	return ast.WalkSkipChildren, nil
}

// wikiLinks registers the wiki-link parser ahead of goldmark's link parser.
type wikiLinks struct{}

func (wikiLinks) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithInlineParsers(
		util.Prioritized(wikiLinkParser{}, 199),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(wikiLinkRenderer{}, 199),
	))
}

// Links returns every reference in md in document order, skipping code.
func Links(md []byte) []Link {
	doc := newEngine().Parser().Parse(text.NewReader(md))
	var out []Link
	for _, n := range collect(doc) {
		out = append(out, n.Link)
	}
	return out
}

func collect(doc ast.Node) []*WikiLink {
	var nodes []*WikiLink
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if wl, ok := n.(*WikiLink); ok {
			nodes = append(nodes, wl)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return nodes
}

// HasNoteTarget reports whether the reference can point at a note. Targets
// with a non-Markdown extension (images, PDFs) cannot.
func (l Link) HasNoteTarget() bool {
	if l.Target == "" {
		return false
	}
	base := l.Target
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	dot := strings.LastIndex(base, ".")
	if dot <= 0 {
		return true
	}
	ext := base[dot+1:]
	if len(ext) == 0 || len(ext) > 5 || strings.IndexFunc(ext, notAlnum) >= 0 {
		return true
	}
	return strings.EqualFold(ext, "md")
}

func notAlnum(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
}
