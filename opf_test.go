package epubreader

import (
	"errors"
	"reflect"
	"testing"
)

const sampleOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package version="3.0" xmlns="http://www.idpf.org/2007/opf" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>  The Long Road  </dc:title>
    <dc:title>Subtitle</dc:title>
    <dc:creator>Ann Author</dc:creator>
    <dc:creator> </dc:creator>
    <dc:creator>Bob Writer</dc:creator>
    <dc:language>en-GB</dc:language>
  </metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="c1" href="text/c1.xhtml" media-type="application/xhtml+xml"/>
    <item id="c2" href="text/c2.xhtml" media-type="application/xhtml+xml"/>
    <item id="dup" href="text/c1.xhtml" media-type="application/xhtml+xml"/>
    <item id="css" href="style.css" media-type="text/css"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="c1"/>
    <itemref/>
    <itemref idref="c2" linear="no"/>
    <itemref idref="dup"/>
  </spine>
</package>`

func TestParseOPF(t *testing.T) {
	pkg, err := parseOPF([]byte(sampleOPF), "OEBPS/content.opf")
	if err != nil {
		t.Fatalf("parseOPF() error = %v", err)
	}

	if pkg.Title != "The Long Road" {
		t.Errorf("Title = %q, want %q", pkg.Title, "The Long Road")
	}
	if want := []string{"Ann Author", "Bob Writer"}; !reflect.DeepEqual(pkg.Creators, want) {
		t.Errorf("Creators = %v, want %v", pkg.Creators, want)
	}
	if pkg.Language != "en-GB" {
		t.Errorf("Language = %q, want en-GB", pkg.Language)
	}
	if pkg.TocID != "ncx" {
		t.Errorf("TocID = %q, want ncx", pkg.TocID)
	}

	wantIDs := []string{"nav", "c1", "c2", "dup", "css"}
	if len(pkg.Manifest) != len(wantIDs) {
		t.Fatalf("len(Manifest) = %d, want %d", len(pkg.Manifest), len(wantIDs))
	}
	for i, id := range wantIDs {
		if pkg.Manifest[i].ID != id {
			t.Errorf("Manifest[%d].ID = %q, want %q", i, pkg.Manifest[i].ID, id)
		}
	}

	// Duplicate hrefs under different ids are both kept.
	c1, _ := pkg.Item("c1")
	dup, _ := pkg.Item("dup")
	if c1.Href != "text/c1.xhtml" || dup.Href != "text/c1.xhtml" {
		t.Errorf("duplicate hrefs not preserved: c1=%q dup=%q", c1.Href, dup.Href)
	}
	if nav, _ := pkg.Item("nav"); nav.Properties != "nav" {
		t.Errorf("nav.Properties = %q, want nav", nav.Properties)
	}

	if want := []string{"c1", "c2", "dup"}; !reflect.DeepEqual(pkg.Spine, want) {
		t.Errorf("Spine = %v, want %v", pkg.Spine, want)
	}
}

func TestParseOPF_DuplicateIDLastWins(t *testing.T) {
	pkg, err := parseOPF([]byte(`<package><manifest>
  <item id="a" href="first.xhtml" media-type="application/xhtml+xml"/>
  <item id="a" href="second.xhtml" media-type="application/xhtml+xml"/>
</manifest></package>`), "content.opf")
	if err != nil {
		t.Fatalf("parseOPF() error = %v", err)
	}
	item, ok := pkg.Item("a")
	if !ok || item.Href != "second.xhtml" {
		t.Errorf("Item(a) = %+v, %v; want href second.xhtml", item, ok)
	}
	if len(pkg.Manifest) != 2 {
		t.Errorf("len(Manifest) = %d, want 2", len(pkg.Manifest))
	}
}

func TestParseOPF_TitleFallbacks(t *testing.T) {
	tests := []struct {
		name string
		opf  string
		want string
	}{
		{
			name: "dc title",
			opf:  `<package xmlns:dc="http://purl.org/dc/elements/1.1/"><metadata><dc:title>DC</dc:title></metadata></package>`,
			want: "DC",
		},
		{
			name: "empty dc title skipped",
			opf:  `<package xmlns:dc="http://purl.org/dc/elements/1.1/"><metadata><dc:title> </dc:title><dc:title>Second</dc:title></metadata></package>`,
			want: "Second",
		},
		{
			name: "generic title element",
			opf:  `<package><metadata><title>Plain</title></metadata></package>`,
			want: "Plain",
		},
		{
			name: "no title",
			opf:  `<package><metadata/></package>`,
			want: "Unknown",
		},
		{
			name: "html entities",
			opf:  `<package xmlns:dc="http://purl.org/dc/elements/1.1/"><metadata><dc:title>Caf&eacute; &mdash; Noir</dc:title></metadata></package>`,
			want: "Café — Noir",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg, err := parseOPF([]byte(tt.opf), "content.opf")
			if err != nil {
				t.Fatalf("parseOPF() error = %v", err)
			}
			if pkg.Title != tt.want {
				t.Errorf("Title = %q, want %q", pkg.Title, tt.want)
			}
		})
	}
}

func TestParseOPF_Invalid(t *testing.T) {
	_, err := parseOPF([]byte(`<package><manifest>`), "content.opf")
	if !errors.Is(err, ErrMalformedArchive) {
		t.Errorf("error = %v, want ErrMalformedArchive", err)
	}
}

func TestPreprocessHTMLEntities(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`Hello&nbsp;World &mdash; An&hellip;`, `Hello&#160;World &#8212; An&#8230;`},
		{`&LDQUO;x&rdquo;`, `&#8220;x&#8221;`},
		{`&amp; &lt; &gt;`, `&amp; &lt; &gt;`},
		{`&unknown;`, `&unknown;`},
	}
	for _, tt := range tests {
		if got := string(preprocessHTMLEntities([]byte(tt.in))); got != tt.want {
			t.Errorf("preprocessHTMLEntities(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
