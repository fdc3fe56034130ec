package pagecontext

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	minTextNodeChars     = 20
	minFallbackElemChars = 10
	minPrimaryChars      = 200
)

var skippedAtoms = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Template: true,
}

var chromeClasses = []string{"header", "footer", "nav", "menu"}

var chromeIDs = map[string]bool{"header": true, "footer": true, "navigation": true}

var fallbackAtoms = map[atom.Atom]bool{
	atom.P:  true,
	atom.H1: true,
	atom.H2: true,
	atom.H3: true,
	atom.H4: true,
	atom.H5: true,
	atom.H6: true,
	atom.Li: true,
}

// Extract parses an HTML document and returns its title and main text.
func Extract(r io.Reader, url string, maxChars int) (PageContext, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return PageContext{}, fmt.Errorf("parse html: %w", err)
	}
	return New(findTitle(doc), mainText(doc), url, maxChars), nil
}

// ExtractString is Extract over an in-memory document.
func ExtractString(doc, url string, maxChars int) (PageContext, error) {
	return Extract(strings.NewReader(doc), url, maxChars)
}

func mainText(doc *html.Node) string {
	if n := findMainContainer(doc); n != nil {
		return strings.TrimSpace(innerText(n))
	}

	body := findFirst(doc, func(n *html.Node) bool { return n.DataAtom == atom.Body })
	if body == nil {
		body = doc
	}
	var parts []string
	collectTextNodes(body, &parts)
	content := CollapseWhitespace(strings.Join(parts, " "))
	if len([]rune(content)) >= minPrimaryChars {
		return content
	}

	parts = parts[:0]
	collectFallbackElements(body, &parts)
	return strings.Join(parts, " ")
}

func findMainContainer(doc *html.Node) *html.Node {
	matchers := []func(*html.Node) bool{
		func(n *html.Node) bool { return n.DataAtom == atom.Article },
		func(n *html.Node) bool { return n.DataAtom == atom.Main },
		func(n *html.Node) bool { return hasClass(n, "content") },
		func(n *html.Node) bool { return attr(n, "id") == "content" },
	}
	for _, match := range matchers {
		if n := findFirst(doc, match); n != nil {
			return n
		}
	}
	return nil
}

func findTitle(doc *html.Node) string {
	n := findFirst(doc, func(n *html.Node) bool { return n.DataAtom == atom.Title })
	if n == nil {
		return ""
	}
	return CollapseWhitespace(innerText(n))
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func collectTextNodes(n *html.Node, out *[]string) {
	if n.Type == html.ElementNode && (skippedAtoms[n.DataAtom] || isHidden(n) || isPageChrome(n)) {
		return
	}
	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); len([]rune(text)) > minTextNodeChars {
			*out = append(*out, text)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectTextNodes(c, out)
	}
}

func collectFallbackElements(n *html.Node, out *[]string) {
	if n.Type == html.ElementNode {
		switch {
		case skippedAtoms[n.DataAtom]:
			return
		case n.DataAtom == atom.Nav || n.DataAtom == atom.Header || n.DataAtom == atom.Footer:
			return
		case fallbackAtoms[n.DataAtom]:
			if text := CollapseWhitespace(innerText(n)); len([]rune(text)) > minFallbackElemChars {
				*out = append(*out, text)
			}
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectFallbackElements(c, out)
	}
}

// innerText approximates the rendered text of n, skipping non-content elements.
func innerText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedAtoms[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		if n.Type == html.ElementNode && isBlock(n.DataAtom) {
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlock(n.DataAtom) {
			b.WriteByte(' ')
		}
	}
	walk(n)
	return b.String()
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Br, atom.Li, atom.Tr, atom.Td, atom.Th,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Section, atom.Article, atom.Main, atom.Pre, atom.Blockquote:
		return true
	default:
		return false
	}
}

func isHidden(n *html.Node) bool {
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "hidden":
			return true
		case "style":
			style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}

func isPageChrome(n *html.Node) bool {
	for _, class := range chromeClasses {
		if hasClass(n, class) {
			return true
		}
	}
	return chromeIDs[attr(n, "id")]
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
