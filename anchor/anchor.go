// Package anchor relocates a saved passage of text after the layout that
// produced its position has changed.
//
// A target matches a paragraph when, after normalization, either one
// contains the other. Normalization applies Unicode NFC, collapses runs of
// whitespace to single spaces and trims both ends.
package anchor

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/simp-lee/epubreader/library"
	"github.com/simp-lee/epubreader/paginate"
)

// Location addresses a paragraph in scroll mode.
type Location struct {
	ChapterIndex int
	Paragraph    int
}

// Normalize returns s in the form used for matching.
func Normalize(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// Matches reports whether candidate contains target or target contains
// candidate. Either side being empty after normalization never matches.
func Matches(candidate, target string) bool {
	return matches(Normalize(candidate), Normalize(target))
}

func matches(c, t string) bool {
	if c == "" || t == "" {
		return false
	}
	return strings.Contains(c, t) || strings.Contains(t, c)
}

// FindPage returns the index of the first page holding a fragment whose
// source paragraph matches target, or 0 when none does.
func FindPage(pages []paginate.Page, target string) int {
	t := Normalize(target)
	if t == "" {
		return 0
	}
	for i, page := range pages {
		for _, f := range page.Fragments {
			if matches(Normalize(f.Source), t) {
				return i
			}
		}
	}
	return 0
}

// FindParagraph returns the first paragraph among chapters matching
// target. ok is false when nothing matches, in which case the reader
// stays at the top.
func FindParagraph(chapters []library.StoredChapter, target string) (loc Location, ok bool) {
	t := Normalize(target)
	if t == "" {
		return Location{}, false
	}
	for _, ch := range chapters {
		for j, p := range ch.Paragraphs {
			if matches(Normalize(p), t) {
				return Location{ChapterIndex: ch.Index, Paragraph: j}, true
			}
		}
	}
	return Location{}, false
}

// Resolve picks the page to show for saved progress over freshly computed
// pages. The target text wins when set; otherwise the saved page index is
// clamped into range.
func Resolve(progress library.Progress, pages []paginate.Page) int {
	if progress.TargetText != nil && Normalize(*progress.TargetText) != "" {
		return FindPage(pages, *progress.TargetText)
	}
	if progress.PageIndex == nil || len(pages) == 0 {
		return 0
	}
	return max(0, min(*progress.PageIndex, len(pages)-1))
}
