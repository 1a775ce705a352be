package epubreader

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Book is an ingested ePub: its package document, the accepted chapters
// and a record of every spine item that was skipped.
//
// A Book is immutable after ingestion and safe for concurrent reads.
type Book struct {
	archive  Archive
	closer   io.Closer // non-nil only when created via Open()
	log      *slog.Logger
	pkg      *Package
	chapters []Chapter
	skipped  []Skip
	warnings []string
}

// Option configures ingestion.
type Option func(*Book)

// WithLogger sets the logger used for skip and warning diagnostics.
// The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(b *Book) {
		if l != nil {
			b.log = l
		}
	}
}

// Open ingests the ePub file at the given path.
// The caller must call Close when done reading from the book.
func Open(path string, opts ...Option) (*Book, error) {
	zrc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("epubreader: open %s: %v: %w", path, err, ErrMalformedArchive)
	}

	b, err := Parse(context.Background(), newZipArchive(&zrc.Reader), opts...)
	if err != nil {
		zrc.Close()
		return nil, err
	}
	b.closer = zrc
	return b, nil
}

// NewReader ingests an ePub from an io.ReaderAt with the given size.
// The caller is responsible for the lifetime of r.
func NewReader(r io.ReaderAt, size int64, opts ...Option) (*Book, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("epubreader: open zip: %v: %w", err, ErrMalformedArchive)
	}
	return Parse(context.Background(), newZipArchive(zr), opts...)
}

// Parse ingests an ePub from any Archive. Stages run sequentially:
// container, package document, navigation document, then chapters in
// spine order. Only ErrMalformedArchive and context cancellation are
// returned as errors; everything else degrades to a skipped item.
func Parse(ctx context.Context, a Archive, opts ...Option) (*Book, error) {
	b := &Book{
		archive: a,
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}

	opfPath, err := parseContainer(a)
	if err != nil {
		return nil, err
	}

	data, err := a.ReadFile(opfPath)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return nil, fmt.Errorf("epubreader: package document %s missing: %w", opfPath, ErrMalformedArchive)
		}
		return nil, fmt.Errorf("epubreader: read package document %s: %v: %w", opfPath, err, ErrMalformedArchive)
	}

	b.pkg, err = parseOPF(data, opfPath)
	if err != nil {
		return nil, err
	}

	toc := b.buildTocMap()
	if err := b.extractChapters(ctx, toc); err != nil {
		return nil, err
	}

	b.log.Debug("book ingested",
		"title", b.pkg.Title,
		"package", opfPath,
		"spine", len(b.pkg.Spine),
		"chapters", len(b.chapters),
		"skipped", len(b.skipped))
	return b, nil
}

// Close releases resources held by the Book. When the Book was created via
// Open, Close closes the underlying file. Close is idempotent.
func (b *Book) Close() error {
	if b.closer != nil {
		err := b.closer.Close()
		b.closer = nil
		return err
	}
	return nil
}

// ReadFile reads a file from the archive by its archive-internal path.
func (b *Book) ReadFile(name string) ([]byte, error) {
	return b.archive.ReadFile(name)
}

// Title returns the package title.
func (b *Book) Title() string {
	return b.pkg.Title
}

// Package returns a copy of the parsed package document.
func (b *Book) Package() Package {
	out := *b.pkg
	out.Creators = append([]string(nil), b.pkg.Creators...)
	out.Manifest = append([]ManifestItem(nil), b.pkg.Manifest...)
	out.Spine = append([]string(nil), b.pkg.Spine...)
	return out
}

// Chapters returns the accepted chapters in spine order. Indices into the
// result are the canonical chapter indices.
func (b *Book) Chapters() []Chapter {
	out := make([]Chapter, len(b.chapters))
	for i, ch := range b.chapters {
		out[i] = ch
		out[i].Paragraphs = append([]string(nil), ch.Paragraphs...)
	}
	return out
}

// Skipped returns the spine items left out of Chapters, in spine order.
func (b *Book) Skipped() []Skip {
	return append([]Skip(nil), b.skipped...)
}

// Warnings returns non-fatal problems that do not belong to a spine item,
// such as an unreadable navigation document.
func (b *Book) Warnings() []string {
	return append([]string(nil), b.warnings...)
}

// warn records a warning and logs it. args are slog-style key/value pairs.
func (b *Book) warn(msg string, args ...any) {
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&sb, " %v=%v", args[i], args[i+1])
	}
	b.warnings = append(b.warnings, sb.String())
	b.log.Warn(msg, args...)
}
