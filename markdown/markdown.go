// Package markdown renders post bodies to HTML and splits YAML frontmatter
// from Markdown documents.
package markdown

import (
	"bytes"
	"context"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/a-h/templ"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// WordsPerMinute is the reading speed used by TimeToRead.
const WordsPerMinute = 200

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(
			renderer.WithNodeRenderers(util.Prioritized(&imageRenderer{}, 100)),
		),
	)
}

// Render converts a Markdown body (frontmatter already removed) to HTML.
// Every image after the first is marked loading="lazy".
func Render(body []byte) (string, error) {
	var buf bytes.Buffer
	if err := newMarkdown().Convert(body, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Markdown returns a templ.Component that renders md as HTML.
func Markdown(md string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return newMarkdown().Convert([]byte(md), w)
	})
}

// PlainText returns the visible text of the paragraphs and headings in body.
func PlainText(body []byte) string {
	root := newMarkdown().Parser().Parse(text.NewReader(body))
	var blocks []string
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindParagraph, ast.KindHeading:
			var buf bytes.Buffer
			collectText(n, body, &buf)
			if s := strings.TrimSpace(buf.String()); s != "" {
				blocks = append(blocks, s)
			}
			return ast.WalkSkipChildren, nil
		case ast.KindFencedCodeBlock, ast.KindCodeBlock, ast.KindHTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(blocks, " ")
}

// Excerpt returns at most limit runes of the body text, cut on a word
// boundary and suffixed with an ellipsis when shortened.
func Excerpt(body []byte, limit int) string {
	plain := PlainText(body)
	if utf8.RuneCountInString(plain) <= limit {
		return plain
	}
	runes := []rune(plain)[:limit]
	cut := string(runes)
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}

// TimeToRead estimates reading time in whole minutes, never less than one.
func TimeToRead(body []byte) int {
	words := len(strings.Fields(PlainText(body)))
	minutes := (words + WordsPerMinute - 1) / WordsPerMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}

func collectText(n ast.Node, source []byte, buf *bytes.Buffer) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		default:
			collectText(c, source, buf)
		}
	}
}

// imageRenderer renders images with lazy loading for all but the first
// image of a document. It is created per conversion.
type imageRenderer struct {
	count int
}

func (r *imageRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindImage, r.renderImage)
}

func (r *imageRenderer) renderImage(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.Image)
	r.count++

	_, _ = w.WriteString(`<img src="`)
	if !gmhtml.IsDangerousURL(n.Destination) {
		_, _ = w.Write(util.EscapeHTML(util.URLEscape(n.Destination, true)))
	}
	_, _ = w.WriteString(`" alt="`)
	var alt bytes.Buffer
	collectText(n, source, &alt)
	_, _ = w.Write(util.EscapeHTML(alt.Bytes()))
	_ = w.WriteByte('"')
	if n.Title != nil {
		_, _ = w.WriteString(` title="`)
		_, _ = w.Write(util.EscapeHTML(n.Title))
		_ = w.WriteByte('"')
	}
	if r.count > 1 {
		_, _ = w.WriteString(` loading="lazy"`)
	}
	_, _ = w.WriteString(">")
	return ast.WalkSkipChildren, nil
}
