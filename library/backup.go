package library

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ulikunitz/xz"
)

// EnvelopeVersion is the only backup format version understood.
const EnvelopeVersion = 1

var xzMagic = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}

// Envelope is a self-contained backup of one book and the reader's
// records.
type Envelope struct {
	Version    int             `json:"version"`
	ExportedAt int64           `json:"exportedAt"` // unix milliseconds
	BookMeta   BookMeta        `json:"bookMeta"`
	Chapters   []StoredChapter `json:"chapters"`
	Quotes     []Quote         `json:"quotes"`
	Settings   Settings        `json:"settings"`
	Progress   Progress        `json:"progress"`
}

// Export collects the book bookID with its chapters and progress, every
// saved quote, and the settings into an envelope stamped with the
// current time.
func Export(ctx context.Context, lib *Library, bookID string) (Envelope, error) {
	meta, err := lib.Book(ctx, bookID)
	if err != nil {
		return Envelope{}, err
	}
	chapters, err := lib.AllChapters(ctx, bookID)
	if err != nil {
		return Envelope{}, err
	}
	quotes, err := lib.Quotes(ctx)
	if err != nil {
		return Envelope{}, err
	}
	settings, err := lib.Settings(ctx)
	if err != nil {
		return Envelope{}, err
	}
	progress, err := lib.Progress(ctx, bookID)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Version:    EnvelopeVersion,
		ExportedAt: time.Now().UnixMilli(),
		BookMeta:   meta,
		Chapters:   chapters,
		Quotes:     quotes,
		Settings:   settings,
		Progress:   progress,
	}, nil
}

// WriteEnvelope encodes env as JSON to w, xz-compressed when compress is
// set.
func WriteEnvelope(w io.Writer, env Envelope, compress bool) error {
	if !compress {
		return writeJSON(w, env)
	}
	zw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("library: xz writer: %w", err)
	}
	if err := writeJSON(zw, env); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("library: xz close: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, env Envelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return fmt.Errorf("library: encode backup: %w", err)
	}
	return nil
}

// ReadEnvelope decodes an envelope written by WriteEnvelope, compressed
// or not. An envelope without version or exportedAt, or with a version
// other than EnvelopeVersion, fails with ErrInvalidBackup.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if head, _ := br.Peek(len(xzMagic)); bytes.Equal(head, xzMagic) {
		zr, err := xz.NewReader(br)
		if err != nil {
			return Envelope{}, fmt.Errorf("library: xz reader: %v: %w", err, ErrInvalidBackup)
		}
		src = zr
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return Envelope{}, fmt.Errorf("library: read backup: %w", err)
	}
	return DecodeEnvelope(data)
}

// DecodeEnvelope parses and validates the JSON form of an envelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var head struct {
		Version    *int   `json:"version"`
		ExportedAt *int64 `json:"exportedAt"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Envelope{}, fmt.Errorf("library: decode backup: %v: %w", err, ErrInvalidBackup)
	}
	if head.Version == nil || head.ExportedAt == nil {
		return Envelope{}, fmt.Errorf("library: missing version or exportedAt: %w", ErrInvalidBackup)
	}
	if *head.Version != EnvelopeVersion {
		return Envelope{}, fmt.Errorf("library: backup version %d: %w", *head.Version, ErrInvalidBackup)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("library: decode backup: %v: %w", err, ErrInvalidBackup)
	}
	return env, nil
}

// Import replaces every record in the library with the contents of env.
// Nothing is merged: records absent from env are gone afterwards. The
// presence of version and exportedAt is checked by DecodeEnvelope; Import
// only rejects an unsupported version.
func Import(ctx context.Context, lib *Library, env Envelope) error {
	if env.Version != EnvelopeVersion {
		return fmt.Errorf("library: import: %w", ErrInvalidBackup)
	}

	id := env.BookMeta.ID
	records := make([]Record, 0, len(env.Chapters)+len(env.Quotes)+3)
	add := func(bucket, key string, v any) error {
		r, err := encode(bucket, key, v)
		if err != nil {
			return err
		}
		records = append(records, r)
		return nil
	}

	if err := add(bucketBooks, id, env.BookMeta); err != nil {
		return err
	}
	for _, ch := range env.Chapters {
		ch.BookID = id
		if err := add(bucketChapters, chapterKey(id, ch.Index), ch); err != nil {
			return err
		}
	}
	for _, q := range env.Quotes {
		if err := add(bucketQuotes, q.ID, q); err != nil {
			return err
		}
	}
	if err := add(bucketSettings, settingsKey, env.Settings); err != nil {
		return err
	}
	if err := add(bucketProgress, id, env.Progress); err != nil {
		return err
	}

	if err := lib.store.Batch(ctx, true, records); err != nil {
		return err
	}
	lib.log.Info("backup imported",
		"book", id,
		"chapters", len(env.Chapters),
		"quotes", len(env.Quotes))
	return nil
}
