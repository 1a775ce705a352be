package epubreader

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// validContainerXML is a well-formed META-INF/container.xml pointing to an OPF.
const validContainerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// mapArchive is an in-memory Archive keyed by archive-internal path.
type mapArchive map[string]string

func (m mapArchive) ReadFile(name string) ([]byte, error) {
	s, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrFileNotFound)
	}
	return []byte(s), nil
}

// buildTestEPubBytes creates an in-memory ZIP archive from the provided files
// map (path → content). mimetype, when present, is written first.
func buildTestEPubBytes(t testing.TB, files map[string]string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	names := make([]string, 0, len(files))
	for name := range files {
		if name != "mimetype" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := files["mimetype"]; ok {
		names = append([]string{"mimetype"}, names...)
	}

	for _, name := range names {
		fw, err := zw.Create(name)
		if err != nil {
			t.Fatalf("buildTestEPubBytes: create %s: %v", name, err)
		}
		if _, err := io.WriteString(fw, files[name]); err != nil {
			t.Fatalf("buildTestEPubBytes: write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("buildTestEPubBytes: close writer: %v", err)
	}
	return buf.Bytes()
}

// buildTestEPubFile writes an ePub (ZIP) archive to a temporary file and
// returns the file path.
func buildTestEPubFile(t testing.TB, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	fp := filepath.Join(dir, "test.epub")
	if err := os.WriteFile(fp, buildTestEPubBytes(t, files), 0644); err != nil {
		t.Fatalf("buildTestEPubFile: write file: %v", err)
	}
	return fp
}

// testChapter describes one spine item for buildBookFiles.
type testChapter struct {
	id, href, navTitle, body string
}

// buildBookFiles returns a complete ePub 2 file map with an NCX naming each
// chapter that has a navTitle.
func buildBookFiles(title string, chapters []testChapter) map[string]string {
	var manifest, spine, nav strings.Builder
	manifest.WriteString(`<item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>`)
	for i, ch := range chapters {
		fmt.Fprintf(&manifest, `<item id="%s" href="%s" media-type="application/xhtml+xml"/>`, ch.id, ch.href)
		fmt.Fprintf(&spine, `<itemref idref="%s"/>`, ch.id)
		if ch.navTitle != "" {
			fmt.Fprintf(&nav, `<navPoint id="np%d" playOrder="%d"><navLabel><text>%s</text></navLabel><content src="%s"/></navPoint>`,
				i+1, i+1, ch.navTitle, ch.href)
		}
	}

	files := map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": validContainerXML,
		"OEBPS/content.opf": fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package version="2.0" xmlns="http://www.idpf.org/2007/opf" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>%s</dc:title>
    <dc:creator>Jane Doe</dc:creator>
    <dc:language>en</dc:language>
  </metadata>
  <manifest>%s</manifest>
  <spine toc="ncx">%s</spine>
</package>`, title, manifest.String(), spine.String()),
		"OEBPS/toc.ncx": fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>%s</navMap>
</ncx>`, nav.String()),
	}
	for _, ch := range chapters {
		files["OEBPS/"+ch.href] = xhtml(ch.body)
	}
	return files
}

// xhtml wraps body markup in a minimal XHTML document.
func xhtml(body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><head><title>t</title></head><body>` + body + `</body></html>`
}
