package library

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/simp-lee/epubreader"
)

func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	store, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store)
}

// buildEPub returns a minimal ePub 2 archive with one chapter per body.
func buildEPub(t *testing.T, title, creator string, bodies ...string) []byte {
	t.Helper()
	var manifest, spine, nav bytes.Buffer
	manifest.WriteString(`<item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>`)
	files := map[string]string{}
	for i, body := range bodies {
		id := fmt.Sprintf("c%d", i+1)
		href := id + ".xhtml"
		fmt.Fprintf(&manifest, `<item id="%s" href="%s" media-type="application/xhtml+xml"/>`, id, href)
		fmt.Fprintf(&spine, `<itemref idref="%s"/>`, id)
		fmt.Fprintf(&nav, `<navPoint id="n%d"><navLabel><text>Part %d</text></navLabel><content src="%s"/></navPoint>`, i+1, i+1, href)
		files["OEBPS/"+href] = `<html xmlns="http://www.w3.org/1999/xhtml"><body>` + body + `</body></html>`
	}
	files["META-INF/container.xml"] = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`
	files["OEBPS/content.opf"] = fmt.Sprintf(`<?xml version="1.0"?>
<package version="2.0" xmlns="http://www.idpf.org/2007/opf">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>%s</dc:title><dc:creator>%s</dc:creator></metadata>
  <manifest>%s</manifest>
  <spine toc="ncx">%s</spine>
</package>`, title, creator, manifest.String(), spine.String())
	files["OEBPS/toc.ncx"] = `<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/"><navMap>` + nav.String() + `</navMap></ncx>`

	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	w, _ := zw.Create("mimetype")
	io.WriteString(w, "application/epub+zip")
	for name, content := range files {
		fw, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		io.WriteString(fw, content)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func openEPub(t *testing.T, raw []byte) *epubreader.Book {
	t.Helper()
	book, err := epubreader.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	t.Cleanup(func() { book.Close() })
	return book
}
