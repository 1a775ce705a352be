package epubreader

// Chapter is one accepted spine item reduced to plain paragraphs.
// Chapters are immutable once produced.
type Chapter struct {
	// Title comes from the TOC, the first heading, or is synthesized as
	// "Chapter n" from the number of chapters already accepted.
	Title string

	// Paragraphs holds the trimmed, non-empty paragraph texts in document order.
	Paragraphs []string

	// WordCount is the number of non-whitespace runes across all paragraphs.
	// It is not a linguistic word count.
	WordCount int

	// Href is the archive-internal path the chapter was read from.
	Href string

	// SpineIndex is the position of the source item in the spine.
	SpineIndex int
}

// Package holds what ingestion needs from the package (OPF) document.
type Package struct {
	// Path is the archive-internal path of the package document.
	Path string

	// Title is the first dc:title, else the first non-empty title-like
	// element, else "Unknown".
	Title string

	// Creators lists non-empty dc:creator values in document order.
	Creators []string

	// Language is the first dc:language value.
	Language string

	// Manifest lists items in document order.
	Manifest []ManifestItem

	// Spine lists manifest ids in reading order.
	Spine []string

	// TocID is the spine toc attribute (ePub 2), if any.
	TocID string

	byID map[string]ManifestItem
}

// ManifestItem is one entry of the package manifest.
type ManifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties string
}

// Item returns the manifest item with the given id.
func (p *Package) Item(id string) (ManifestItem, bool) {
	mi, ok := p.byID[id]
	return mi, ok
}

// Skip records a spine item that ingestion left out and why.
type Skip struct {
	SpineIndex int
	ID         string
	Href       string

	// Err wraps one of ErrMissingResource, ErrUnsupportedMedia,
	// ErrEmptyContent or ErrPathEscapesRoot.
	Err error
}

// TocMap maps an href (fragment stripped) to its navigation label.
// Later entries for the same href overwrite earlier ones.
type TocMap map[string]string
