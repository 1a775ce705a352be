package epubreader

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/antchfx/xmlquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ncxMediaType marks the ePub 2 navigation control document.
const ncxMediaType = "application/x-dtbncx+xml"

const (
	exprNavPoints = `//*[local-name()='navPoint']`
	exprNavLabel  = `./*[local-name()='navLabel']/*[local-name()='text']`
	exprNavSrc    = `./*[local-name()='content']`
)

// buildTocMap resolves chapter titles from the navigation document. The
// NCX is consulted first; the XHTML nav document is used only when the NCX
// is absent or produced no entries.
func (b *Book) buildTocMap() TocMap {
	toc := make(TocMap)

	if item, ok := b.findNCXItem(); ok {
		if ncxPath, data, ok := b.readNavFile(item); ok {
			if err := parseNCXInto(toc, data, ncxPath, b.pkg.Path); err != nil {
				b.warn("failed to parse NCX", "path", ncxPath, "error", err)
			}
		}
	}
	if len(toc) > 0 {
		return toc
	}

	if item, ok := b.findNavItem(); ok {
		if navPath, data, ok := b.readNavFile(item); ok {
			if err := parseNavInto(toc, data, navPath, b.pkg.Path); err != nil {
				b.warn("failed to parse nav document", "path", navPath, "error", err)
			}
		}
	}
	return toc
}

// findNCXItem returns the first manifest item typed as NCX, falling back to
// the item named by the spine toc attribute.
func (b *Book) findNCXItem() (ManifestItem, bool) {
	for _, mi := range b.pkg.Manifest {
		if strings.EqualFold(mi.MediaType, ncxMediaType) {
			return mi, true
		}
	}
	if b.pkg.TocID != "" {
		return b.pkg.Item(b.pkg.TocID)
	}
	return ManifestItem{}, false
}

// findNavItem returns the XHTML navigation document: an item flagged with
// the "nav" property, else the first markup item whose href mentions nav
// or toc.
func (b *Book) findNavItem() (ManifestItem, bool) {
	for _, mi := range b.pkg.Manifest {
		if hasToken(mi.Properties, "nav") && isMarkup(mi.MediaType) {
			return mi, true
		}
	}
	for _, mi := range b.pkg.Manifest {
		href := strings.ToLower(mi.Href)
		if (strings.Contains(href, "nav") || strings.Contains(href, "toc")) && isMarkup(mi.MediaType) {
			return mi, true
		}
	}
	return ManifestItem{}, false
}

// readNavFile resolves and reads a navigation document. Failures are
// recorded as warnings and reported as ok == false.
func (b *Book) readNavFile(item ManifestItem) (string, []byte, bool) {
	p, err := ResolvePath(b.pkg.Path, item.Href)
	if err != nil {
		b.warn("navigation document path unusable", "href", item.Href, "error", err)
		return "", nil, false
	}
	data, err := b.archive.ReadFile(p)
	if err != nil {
		b.warn("navigation document unavailable", "path", p, "error", fmt.Errorf("%v: %w", err, ErrMissingResource))
		return "", nil, false
	}
	return p, data, true
}

// parseNCXInto writes every navPoint (any depth, document order) into toc,
// keyed by its content src without fragment. Later points overwrite
// earlier ones for the same href.
func parseNCXInto(toc TocMap, data []byte, ncxPath, opfPath string) error {
	data = preprocessHTMLEntities(stripBOM(data))
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("epubreader: parse NCX: %w", err)
	}

	for _, np := range xmlquery.Find(doc, exprNavPoints) {
		content := xmlquery.FindOne(np, exprNavSrc)
		if content == nil {
			continue
		}
		href := StripFragment(strings.TrimSpace(content.SelectAttr("src")))
		if href == "" {
			continue
		}
		var title string
		if label := xmlquery.FindOne(np, exprNavLabel); label != nil {
			title = collapseSpaces(label.InnerText())
		}
		putTocEntry(toc, href, title, ncxPath, opfPath)
	}
	return nil
}

// parseNavInto writes every anchor inside a <nav> element into toc.
func parseNavInto(toc TocMap, data []byte, navPath, opfPath string) error {
	doc, err := html.Parse(bytes.NewReader(stripBOM(data)))
	if err != nil {
		return fmt.Errorf("epubreader: parse nav document: %w", err)
	}

	var walk func(n *html.Node, inNav bool)
	walk = func(n *html.Node, inNav bool) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Nav:
				inNav = true
			case atom.A:
				if inNav {
					href := StripFragment(strings.TrimSpace(attrValue(n, "href")))
					title := collapseSpaces(nodeTextContent(n))
					if href != "" && title != "" {
						putTocEntry(toc, href, title, navPath, opfPath)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inNav)
		}
	}
	walk(doc, false)
	return nil
}

// putTocEntry stores title under href as written. When the navigation file
// lives in a different directory than the package document, the href is
// also stored relative to the package directory so that manifest hrefs
// still match.
func putTocEntry(toc TocMap, href, title, navPath, opfPath string) {
	toc[href] = title

	navDir, opfDir := path.Dir(navPath), path.Dir(opfPath)
	if navDir == opfDir {
		return
	}
	full, err := ResolvePath(navPath, href)
	if err != nil {
		return
	}
	if opfDir == "." {
		toc[full] = title
	} else if rel, ok := strings.CutPrefix(full, opfDir+"/"); ok {
		toc[rel] = title
	}
}

// hasToken reports whether the space-separated list contains tok.
func hasToken(list, tok string) bool {
	for _, t := range strings.Fields(list) {
		if t == tok {
			return true
		}
	}
	return false
}

// attrValue returns the value of the attribute with the given key on n.
func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// nodeTextContent recursively collects all text content within a node.
func nodeTextContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeTextContent(c))
	}
	return sb.String()
}
