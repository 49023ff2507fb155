package browser

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is a static, parsed HTML page that satisfies the read side of the
// automation surface. It is used for saved debug snapshots and in tests.
type Document struct {
	doc *goquery.Document
}

// ParseHTML parses an HTML document.
func ParseHTML(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("browser: parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

// ParseHTMLString parses an HTML document held in memory.
func ParseHTMLString(html string) (*Document, error) {
	return ParseHTML(strings.NewReader(html))
}

// Title returns the document title.
func (d *Document) Title() string {
	return strings.TrimSpace(d.doc.Find("title").First().Text())
}

// FindAll returns every element matching the CSS selector.
func (d *Document) FindAll(selector string) ([]Element, error) {
	return wrapSelection(d.doc.Find(selector)), nil
}

// Has reports whether any element matches the selector.
func (d *Document) Has(selector string) bool {
	return d.doc.Find(selector).Length() > 0
}

// HTML returns the serialized document.
func (d *Document) HTML() (string, error) {
	return d.doc.Html()
}

type htmlElement struct {
	sel *goquery.Selection
}

func wrapSelection(sel *goquery.Selection) []Element {
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, htmlElement{sel: s})
	})
	return out
}

func (e htmlElement) FindAll(selector string) ([]Element, error) {
	return wrapSelection(e.sel.Find(selector)), nil
}

func (e htmlElement) Attr(name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

// Text approximates rendered text: block-level children and <br> become line
// breaks, matching what a live browser reports for innerText.
func (e htmlElement) Text() (string, error) {
	var b strings.Builder
	renderText(&b, e.sel)
	return strings.TrimSpace(collapseBlankLines(b.String())), nil
}

var blockTags = map[string]bool{
	"div": true, "p": true, "li": true, "section": true, "article": true,
	"header": true, "footer": true, "h1": true, "h2": true, "h3": true,
}

func renderText(b *strings.Builder, sel *goquery.Selection) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		switch {
		case goquery.NodeName(s) == "#text":
			b.WriteString(node.Data)
		case goquery.NodeName(s) == "br":
			b.WriteByte('\n')
		case goquery.NodeName(s) == "script" || goquery.NodeName(s) == "style":
		case blockTags[goquery.NodeName(s)]:
			b.WriteByte('\n')
			renderText(b, s)
			b.WriteByte('\n')
		default:
			renderText(b, s)
		}
	})
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}
