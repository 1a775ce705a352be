package epubreader

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// extractChapters walks the spine in order and keeps every item that
// yields paragraphs. Items are processed one at a time because synthesized
// titles depend on how many chapters were already accepted.
func (b *Book) extractChapters(ctx context.Context, toc TocMap) error {
	for i, id := range b.pkg.Spine {
		if err := ctx.Err(); err != nil {
			return err
		}

		ch, err := b.extractChapter(i, id, toc)
		if err != nil {
			b.skip(Skip{SpineIndex: i, ID: id, Href: ch.Href, Err: err})
			continue
		}
		b.chapters = append(b.chapters, ch)
	}
	return nil
}

// extractChapter turns one spine item into a Chapter. The returned error is
// always one of the soft-skip conditions.
func (b *Book) extractChapter(spineIndex int, id string, toc TocMap) (Chapter, error) {
	item, ok := b.pkg.Item(id)
	if !ok {
		return Chapter{}, fmt.Errorf("spine id %q not in manifest: %w", id, ErrMissingResource)
	}
	if !isMarkup(item.MediaType) && !isXML(item.MediaType) {
		return Chapter{Href: item.Href}, fmt.Errorf("%s (%s): %w", item.Href, item.MediaType, ErrUnsupportedMedia)
	}

	p, err := ResolvePath(b.pkg.Path, item.Href)
	if err != nil {
		return Chapter{Href: item.Href}, err
	}
	data, err := b.archive.ReadFile(p)
	if err != nil {
		return Chapter{Href: p}, fmt.Errorf("%s: %v: %w", p, err, ErrMissingResource)
	}

	doc, err := parseDocument(data)
	if err != nil {
		return Chapter{Href: p}, fmt.Errorf("%s: %v: %w", p, err, ErrEmptyContent)
	}
	paragraphs := doc.paragraphs()
	if len(paragraphs) == 0 {
		return Chapter{Href: p}, fmt.Errorf("%s: %w", p, ErrEmptyContent)
	}

	return Chapter{
		Title:      b.chapterTitle(item.Href, toc, doc),
		Paragraphs: paragraphs,
		WordCount:  WordCount(paragraphs),
		Href:       p,
		SpineIndex: spineIndex,
	}, nil
}

// chapterTitle looks the item up in the TOC by raw then decoded href, then
// falls back to the first heading, then to a synthesized number.
func (b *Book) chapterTitle(href string, toc TocMap, doc *document) string {
	if title := toc[href]; title != "" {
		return title
	}
	if decoded, err := url.PathUnescape(href); err == nil {
		if title := toc[decoded]; title != "" {
			return title
		}
	}
	if title := doc.heading(); title != "" {
		return title
	}
	return fmt.Sprintf("Chapter %d", len(b.chapters)+1)
}

// WordCount returns the number of non-whitespace runes in the joined
// paragraphs. CJK text counts one per character; Latin text counts letters,
// not words.
func WordCount(paragraphs []string) int {
	n := 0
	for _, p := range paragraphs {
		for _, r := range p {
			if !unicode.IsSpace(r) {
				n++
			}
		}
	}
	return n
}

// skip records a soft failure for a spine item.
func (b *Book) skip(s Skip) {
	b.skipped = append(b.skipped, s)
	b.log.Debug("spine item skipped",
		"spine_index", s.SpineIndex,
		"id", s.ID,
		"href", s.Href,
		"reason", skipReason(s.Err),
		"error", s.Err)
}

// skipReason names the sentinel behind a skip for log output.
func skipReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingResource):
		return "missing_resource"
	case errors.Is(err, ErrUnsupportedMedia):
		return "unsupported_media"
	case errors.Is(err, ErrEmptyContent):
		return "empty_content"
	case errors.Is(err, ErrPathEscapesRoot):
		return "path_escapes_root"
	default:
		return strings.ToLower(fmt.Sprintf("%T", err))
	}
}
