// Package library stores ingested books and the reader's own records
// (quotes, settings, reading progress) in an opaque key-value store, and
// moves them in and out of a single backup envelope.
package library

import "github.com/simp-lee/epubreader/paginate"

// BookMeta describes one ingested book.
type BookMeta struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Tags         []string      `json:"tags"`
	ChapterCount int           `json:"chapterCount"`
	ChapterMeta  []ChapterMeta `json:"chapterMeta"`

	// Fingerprint is the BLAKE3 hash of the source archive; ingesting the
	// same archive twice returns the existing book.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// ChapterMeta is the per-chapter summary kept on BookMeta.
type ChapterMeta struct {
	Title     string `json:"title"`
	WordCount int    `json:"wordCount"`
}

// StoredChapter is a chapter as persisted, addressed by book and index.
type StoredChapter struct {
	Index      int      `json:"index"`
	BookID     string   `json:"bookId"`
	Title      string   `json:"title"`
	Paragraphs []string `json:"paragraphs"`
	WordCount  int      `json:"wordCount"`
}

// Quote is an excerpt the reader saved.
type Quote struct {
	// ID is a decimal number zero-padded to at least three digits.
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Author       *string  `json:"author"`
	Source       *string  `json:"source"`
	Tags         []string `json:"tags"`
	ChapterIndex int      `json:"chapterIndex"`
	ChapterTitle string   `json:"chapterTitle"`
}

// ReadMode selects continuous scrolling or discrete pages.
type ReadMode string

const (
	ReadModeScroll   ReadMode = "scroll"
	ReadModePageTurn ReadMode = "pageTurn"
)

// Settings are the reader preferences.
type Settings struct {
	FontSize         float64  `json:"fontSize"`
	LineHeight       float64  `json:"lineHeight"`
	ParagraphSpacing float64  `json:"paragraphSpacing"`
	StartingID       int      `json:"startingId"`
	Authors          []string `json:"authors"`
	AutoScrollSpeed  float64  `json:"autoScrollSpeed"`
	ReadMode         ReadMode `json:"readMode"`
}

// DefaultSettings returns the settings used before the reader saves any.
func DefaultSettings() Settings {
	return Settings{
		FontSize:         18,
		LineHeight:       1.8,
		ParagraphSpacing: 1,
		StartingID:       1,
		Authors:          []string{},
		AutoScrollSpeed:  1,
		ReadMode:         ReadModeScroll,
	}
}

// Params returns pagination parameters for a content box of the given size.
func (s Settings) Params(width, height float64) paginate.Params {
	return paginate.Params{
		FontSize:         s.FontSize,
		LineHeight:       s.LineHeight,
		ParagraphSpacing: s.ParagraphSpacing,
		Width:            width,
		Height:           height,
	}
}

// Progress is the saved reading position of one book.
type Progress struct {
	ChapterIndex int     `json:"chapterIndex"`
	ScrollTop    float64 `json:"scrollTop"`
	PageIndex    *int    `json:"pageIndex,omitempty"`
	TargetText   *string `json:"targetText,omitempty"`
}
