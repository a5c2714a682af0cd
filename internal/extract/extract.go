package extract

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// DefaultMinLength is the shortest extraction accepted as article text.
// Shorter results usually mean a paywall, a cookie wall or boilerplate.
const DefaultMinLength = 300

var (
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
	multiSpacePattern   = regexp.MustCompile(`[ \t\r\f\v]+`)
)

// noise elements never carry article prose.
const noiseSelector = "script, style, noscript, iframe, svg, nav, header, footer, aside, form, button, figure, figcaption"

var containerSelectors = []string{
	"[itemprop=articleBody]",
	"article",
	"main",
	"#article-body",
	".article-body",
	".article-content",
	".post-content",
	".entry-content",
	"#content",
}

// Extractor turns raw HTML into plain article text.
type Extractor struct {
	MinLength int
}

func NewExtractor(minLength int) *Extractor {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	return &Extractor{MinLength: minLength}
}

// Extract applies the paragraph heuristic first and the visible-text walk
// second, returning the first result that reaches MinLength, or "".
func (e *Extractor) Extract(page []byte) string {
	if text := paragraphText(page); e.longEnough(text) {
		return text
	}
	if text := visibleText(page); e.longEnough(text) {
		return text
	}
	return ""
}

func (e *Extractor) longEnough(text string) bool {
	return utf8.RuneCountInString(text) >= e.MinLength
}

// paragraphText picks the content container holding the most paragraph
// text and joins its paragraphs with blank lines.
func paragraphText(page []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return ""
	}
	doc.Find(noiseSelector).Remove()

	best := ""
	for _, sel := range containerSelectors {
		doc.Find(sel).Each(func(_ int, container *goquery.Selection) {
			if text := joinParagraphs(container); len(text) > len(best) {
				best = text
			}
		})
	}
	if best == "" {
		best = joinParagraphs(doc.Find("body"))
	}
	return best
}

func joinParagraphs(sel *goquery.Selection) string {
	var parts []string
	sel.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := normalizeSpace(p.Text())
		if text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n\n")
}

// visibleText walks the whole document and keeps every text node outside
// noise elements, breaking lines at block elements.
func visibleText(page []byte) string {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	collectText(doc, &sb, 0)
	return cleanText(sb.String())
}

func collectText(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 200 {
		return
	}

	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "header", "footer", "aside", "form", "button", "head":
			return
		case "p", "div", "section", "article", "h1", "h2", "h3", "h4", "h5", "h6", "li", "blockquote", "tr":
			sb.WriteString("\n\n")
			defer sb.WriteString("\n\n")
		case "br":
			sb.WriteString("\n")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb, depth+1)
	}
}

func normalizeSpace(s string) string {
	return strings.TrimSpace(multiSpacePattern.ReplaceAllString(strings.ReplaceAll(s, "\n", " "), " "))
}

func cleanText(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(multiSpacePattern.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = multiNewlinePattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
