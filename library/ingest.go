package library

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"slices"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/simp-lee/epubreader"
)

// Fingerprint returns the hex BLAKE3 digest of a raw archive.
func Fingerprint(raw []byte) string {
	sum := blake3.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Ingest stores a parsed book and its chapters. raw is the archive the
// book was parsed from; a book already stored with the same fingerprint
// is returned unchanged. The book's creators are merged into the known
// authors of the settings record.
func Ingest(ctx context.Context, lib *Library, book *epubreader.Book, raw []byte, tags []string) (BookMeta, error) {
	fp := Fingerprint(raw)

	books, err := lib.Books(ctx)
	if err != nil {
		return BookMeta{}, err
	}
	for _, b := range books {
		if b.Fingerprint == fp {
			lib.log.Info("book already in library", "id", b.ID, "title", b.Title)
			return b, nil
		}
	}

	chapters := book.Chapters()
	meta := BookMeta{
		ID:           uuid.NewString(),
		Title:        book.Title(),
		Tags:         slices.Clone(tags),
		ChapterCount: len(chapters),
		ChapterMeta:  make([]ChapterMeta, len(chapters)),
		Fingerprint:  fp,
	}
	if meta.Tags == nil {
		meta.Tags = []string{}
	}

	stored := make([]StoredChapter, len(chapters))
	for i, ch := range chapters {
		meta.ChapterMeta[i] = ChapterMeta{Title: ch.Title, WordCount: ch.WordCount}
		stored[i] = StoredChapter{
			Index:      i,
			BookID:     meta.ID,
			Title:      ch.Title,
			Paragraphs: ch.Paragraphs,
			WordCount:  ch.WordCount,
		}
	}

	if err := lib.SaveBook(ctx, meta, stored); err != nil {
		return BookMeta{}, err
	}
	if err := mergeAuthors(ctx, lib, book.Package().Creators); err != nil {
		return BookMeta{}, err
	}

	lib.log.Info("book ingested",
		"id", meta.ID,
		"title", meta.Title,
		"chapters", meta.ChapterCount,
		"skipped", len(book.Skipped()))
	return meta, nil
}

// IngestFile opens the archive at path and ingests it.
func IngestFile(ctx context.Context, lib *Library, path string, tags []string, opts ...epubreader.Option) (BookMeta, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return BookMeta{}, fmt.Errorf("library: read %s: %w", path, err)
	}
	book, err := epubreader.NewReader(bytes.NewReader(raw), int64(len(raw)), opts...)
	if err != nil {
		return BookMeta{}, err
	}
	defer book.Close()
	return Ingest(ctx, lib, book, raw, tags)
}

func mergeAuthors(ctx context.Context, lib *Library, creators []string) error {
	if len(creators) == 0 {
		return nil
	}
	settings, err := lib.Settings(ctx)
	if err != nil {
		return err
	}
	changed := false
	for _, c := range creators {
		if c == "" || slices.Contains(settings.Authors, c) {
			continue
		}
		settings.Authors = append(settings.Authors, c)
		changed = true
	}
	if !changed {
		return nil
	}
	return lib.SaveSettings(ctx, settings)
}
