package domain

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// WrapperMarker opens the content region of a rendered page.
const WrapperMarker = `id="wrapper">`

// ExtractFragment returns the text of snapshot from the wrapper marker to the
// end of the document. A snapshot without the marker is returned unchanged.
//
// Everything after the marker is extracted, including trailing footers, so
// script, style, noscript and template bodies are dropped before collecting
// text.
func ExtractFragment(snapshot string) string {
	idx := strings.Index(snapshot, WrapperMarker)
	if idx == -1 {
		return snapshot
	}
	return extractText(snapshot[idx+len(WrapperMarker):])
}

func extractText(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, template").Remove()

	var b strings.Builder
	for _, node := range doc.Nodes {
		collectText(&b, node)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func collectText(b *strings.Builder, node *html.Node) {
	switch node.Type {
	case html.TextNode:
		b.WriteString(node.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	}
	block := node.Type == html.ElementNode && isBlock(node.DataAtom)
	if block {
		b.WriteByte(' ')
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectText(b, child)
	}
	if block {
		b.WriteByte(' ')
	}
}

// isBlock reports elements whose boundaries separate words in extracted text.
func isBlock(a atom.Atom) bool {
	switch a {
	case atom.Address, atom.Article, atom.Aside, atom.Blockquote, atom.Br,
		atom.Dd, atom.Div, atom.Dl, atom.Dt, atom.Fieldset, atom.Figcaption,
		atom.Figure, atom.Footer, atom.Form, atom.H1, atom.H2, atom.H3,
		atom.H4, atom.H5, atom.H6, atom.Header, atom.Hr, atom.Li, atom.Main,
		atom.Nav, atom.Ol, atom.P, atom.Pre, atom.Section, atom.Table,
		atom.Td, atom.Th, atom.Tr, atom.Ul, atom.Body, atom.Title:
		return true
	default:
		return false
	}
}
