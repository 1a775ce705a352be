package epubreader

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
)

// dcNamespace is the Dublin Core elements namespace used by OPF metadata.
const dcNamespace = "http://purl.org/dc/elements/1.1/"

// unknownTitle is used when the package document carries no title at all.
const unknownTitle = "Unknown"

// XPath expressions are matched by local name so that documents with or
// without a default namespace parse the same way.
const (
	exprTitles   = `//*[local-name()='title']`
	exprCreators = `//*[local-name()='metadata']//*[local-name()='creator']`
	exprLanguage = `//*[local-name()='metadata']//*[local-name()='language']`
	exprItems    = `//*[local-name()='manifest']/*[local-name()='item']`
	exprSpine    = `//*[local-name()='spine']`
	exprItemRefs = `//*[local-name()='spine']/*[local-name()='itemref']`
)

// parseOPF parses the package document at opfPath.
func parseOPF(data []byte, opfPath string) (*Package, error) {
	data = preprocessHTMLEntities(stripBOM(data))

	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("epubreader: parse package document %s: %v: %w", opfPath, err, ErrMalformedArchive)
	}

	pkg := &Package{
		Path:  opfPath,
		Title: packageTitle(doc),
	}

	for _, n := range xmlquery.Find(doc, exprCreators) {
		if v := strings.TrimSpace(n.InnerText()); v != "" {
			pkg.Creators = append(pkg.Creators, v)
		}
	}
	if n := xmlquery.FindOne(doc, exprLanguage); n != nil {
		pkg.Language = strings.TrimSpace(n.InnerText())
	}

	pkg.Manifest, pkg.byID = buildManifest(xmlquery.Find(doc, exprItems))

	if spine := xmlquery.FindOne(doc, exprSpine); spine != nil {
		pkg.TocID = strings.TrimSpace(spine.SelectAttr("toc"))
	}
	for _, ref := range xmlquery.Find(doc, exprItemRefs) {
		id := strings.TrimSpace(ref.SelectAttr("idref"))
		if id == "" {
			continue
		}
		pkg.Spine = append(pkg.Spine, id)
	}

	return pkg, nil
}

// packageTitle prefers the first non-empty dc:title, then the first
// non-empty element named "title" in any namespace, then unknownTitle.
func packageTitle(doc *xmlquery.Node) string {
	nodes := xmlquery.Find(doc, exprTitles)
	for _, n := range nodes {
		if n.NamespaceURI != dcNamespace && n.Prefix != "dc" {
			continue
		}
		if v := strings.TrimSpace(n.InnerText()); v != "" {
			return v
		}
	}
	for _, n := range nodes {
		if v := strings.TrimSpace(n.InnerText()); v != "" {
			return v
		}
	}
	return unknownTitle
}

// buildManifest returns the manifest in document order together with an
// id index. The index is filled in document order, so the last item with a
// given id wins; duplicate hrefs under different ids are kept.
func buildManifest(nodes []*xmlquery.Node) ([]ManifestItem, map[string]ManifestItem) {
	items := make([]ManifestItem, 0, len(nodes))
	byID := make(map[string]ManifestItem, len(nodes))
	for _, n := range nodes {
		mi := ManifestItem{
			ID:         strings.TrimSpace(n.SelectAttr("id")),
			Href:       strings.TrimSpace(n.SelectAttr("href")),
			MediaType:  strings.TrimSpace(n.SelectAttr("media-type")),
			Properties: n.SelectAttr("properties"),
		}
		items = append(items, mi)
		if mi.ID != "" {
			byID[mi.ID] = mi
		}
	}
	return items, byID
}
