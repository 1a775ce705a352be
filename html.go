package epubreader

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// entityNameToNumeric maps lowercase HTML entity names to their XML numeric
// character references. encoding/xml does not recognise HTML named entities,
// so we convert them before parsing OPF/NCX files.
var entityNameToNumeric = map[string][]byte{
	"nbsp": []byte("&#160;"), "mdash": []byte("&#8212;"), "ndash": []byte("&#8211;"),
	"hellip": []byte("&#8230;"),
	"lsquo": []byte("&#8216;"), "rsquo": []byte("&#8217;"),
	"ldquo": []byte("&#8220;"), "rdquo": []byte("&#8221;"),
	"copy": []byte("&#169;"), "reg": []byte("&#174;"), "trade": []byte("&#8482;"),
	"bull": []byte("&#8226;"), "middot": []byte("&#183;"),
	"eacute": []byte("&#233;"), "egrave": []byte("&#232;"),
	"aacute": []byte("&#225;"), "agrave": []byte("&#224;"),
	"ouml": []byte("&#246;"), "uuml": []byte("&#252;"), "auml": []byte("&#228;"),
	"ccedil": []byte("&#231;"), "ntilde": []byte("&#241;"),
	"laquo": []byte("&#171;"), "raquo": []byte("&#187;"),
	"times": []byte("&#215;"), "deg": []byte("&#176;"), "sect": []byte("&#167;"),
}

// htmlEntityPattern matches the HTML named entities above case-insensitively.
var htmlEntityPattern = regexp.MustCompile(
	`(?i)&(nbsp|mdash|ndash|hellip|lsquo|rsquo|ldquo|rdquo|copy|reg|trade|bull|middot|` +
		`eacute|egrave|aacute|agrave|ouml|uuml|auml|ccedil|ntilde|laquo|raquo|times|deg|sect);`)

// preprocessHTMLEntities replaces common HTML named entities with their
// numeric character references so that XML parsers accept the data.
func preprocessHTMLEntities(data []byte) []byte {
	return htmlEntityPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := strings.ToLower(string(match[1 : len(match)-1]))
		if replacement, ok := entityNameToNumeric[name]; ok {
			return replacement
		}
		return match
	})
}

// selfClosingSkipTagPattern finds <script/> and <style/>, which the HTML
// parser would otherwise treat as opening a raw-text element that swallows
// the rest of the document.
var selfClosingSkipTagPattern = regexp.MustCompile(`(?is)<(script|style)\b([^>]*)/>`)

func normalizeSelfClosingSkipTags(htmlData []byte) []byte {
	if !selfClosingSkipTagPattern.Match(htmlData) {
		return htmlData
	}
	return selfClosingSkipTagPattern.ReplaceAll(htmlData, []byte(`<$1$2></$1>`))
}

// containerTags are the block elements considered by the leaf-container tier.
var containerTags = map[atom.Atom]bool{
	atom.Div:        true,
	atom.Section:    true,
	atom.Article:    true,
	atom.Main:       true,
	atom.Aside:      true,
	atom.Header:     true,
	atom.Footer:     true,
	atom.Blockquote: true,
	atom.Li:         true,
	atom.Dd:         true,
	atom.Dt:         true,
	atom.Td:         true,
	atom.Th:         true,
	atom.Pre:        true,
	atom.Figure:     true,
	atom.Figcaption: true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
}

var headingTags = map[atom.Atom]bool{
	atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true,
}

// newlineRuns splits body text for the last extraction tier.
var newlineRuns = regexp.MustCompile(`[\r\n]+`)

// document is a parsed chapter file.
type document struct {
	root *html.Node
	body *html.Node
}

func parseDocument(data []byte) (*document, error) {
	root, err := html.Parse(bytes.NewReader(normalizeSelfClosingSkipTags(data)))
	if err != nil {
		return nil, err
	}
	d := &document{root: root, body: findElement(root, atom.Body)}
	if d.body == nil {
		d.body = root
	}
	return d, nil
}

// paragraphs runs the extraction tiers in order and returns the output of
// the first one that produces anything.
func (d *document) paragraphs() []string {
	if out := d.tagParagraphs(); len(out) > 0 {
		return out
	}
	if out := d.leafContainerParagraphs(); len(out) > 0 {
		return out
	}
	return d.lineParagraphs()
}

// tagParagraphs is tier one: every <p> element.
func (d *document) tagParagraphs() []string {
	var out []string
	walkElements(d.body, func(n *html.Node) bool {
		if n.DataAtom != atom.P {
			return true
		}
		if text := collapseSpaces(textContent(n)); text != "" {
			out = append(out, text)
		}
		return false
	})
	return out
}

// leafContainerParagraphs is tier two: every container element without a
// nested container descendant.
func (d *document) leafContainerParagraphs() []string {
	var out []string
	walkElements(d.body, func(n *html.Node) bool {
		if !containerTags[n.DataAtom] || hasContainerDescendant(n) {
			return true
		}
		if text := collapseSpaces(textContent(n)); text != "" {
			out = append(out, text)
		}
		return false
	})
	return out
}

// lineParagraphs is tier three: the body text split on newline runs.
func (d *document) lineParagraphs() []string {
	var out []string
	for _, line := range newlineRuns.Split(textContent(d.body), -1) {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// heading returns the first non-empty heading text in document order.
func (d *document) heading() string {
	var title string
	walkElements(d.root, func(n *html.Node) bool {
		if title != "" {
			return false
		}
		if headingTags[n.DataAtom] {
			title = collapseSpaces(textContent(n))
			return false
		}
		return true
	})
	return title
}

func hasContainerDescendant(n *html.Node) bool {
	found := false
	for c := n.FirstChild; c != nil && !found; c = c.NextSibling {
		walkElements(c, func(e *html.Node) bool {
			if containerTags[e.DataAtom] {
				found = true
			}
			return !found
		})
	}
	return found
}

// walkElements visits element nodes depth-first in document order. fn
// returns false to skip the node's children. script and style subtrees are
// never visited.
func walkElements(n *html.Node, fn func(*html.Node) bool) {
	if n.Type == html.ElementNode {
		if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
			return
		}
		if !fn(n) {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkElements(c, fn)
	}
}

// textContent concatenates the text nodes below n, skipping script and style.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}
			if n.DataAtom == atom.Br {
				sb.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return sb.String()
}

// findElement performs a depth-first search for a node with the given atom tag.
func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if result := findElement(c, a); result != nil {
			return result
		}
	}
	return nil
}

// collapseSpaces trims s and replaces every internal whitespace run with a
// single space.
func collapseSpaces(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

func isMarkup(mediaType string) bool {
	return strings.Contains(strings.ToLower(mediaType), "html")
}

func isXML(mediaType string) bool {
	return strings.Contains(strings.ToLower(mediaType), "xml")
}
