package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

const (
	bucketBooks    = "books"
	bucketChapters = "chapters"
	bucketQuotes   = "quotes"
	bucketSettings = "settings"
	bucketProgress = "progress"

	settingsKey = "settings"
)

// Library is a typed view over a Store, one JSON document per record.
type Library struct {
	store Store
	log   *slog.Logger
}

// Option configures a Library.
type Option func(*Library)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(lib *Library) {
		if l != nil {
			lib.log = l
		}
	}
}

// New returns a Library over store.
func New(store Store, opts ...Option) *Library {
	lib := &Library{store: store, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(lib)
	}
	return lib
}

// Store returns the underlying store.
func (l *Library) Store() Store { return l.store }

func chapterKey(bookID string, index int) string {
	return fmt.Sprintf("%s/%06d", bookID, index)
}

func encode(bucket, key string, v any) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Record{}, fmt.Errorf("library: encode %s/%s: %w", bucket, key, err)
	}
	return Record{Bucket: bucket, Key: key, Value: data}, nil
}

func (l *Library) get(ctx context.Context, bucket, key string, v any) error {
	data, err := l.store.Get(ctx, bucket, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("library: decode %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (l *Library) put(ctx context.Context, bucket, key string, v any) error {
	r, err := encode(bucket, key, v)
	if err != nil {
		return err
	}
	return l.store.Put(ctx, r.Bucket, r.Key, r.Value)
}

func list[T any](ctx context.Context, s Store, bucket, prefix string) ([]T, error) {
	values, err := s.List(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(values))
	for _, data := range values {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("library: decode %s: %w", bucket, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Books returns every stored book, ordered by id.
func (l *Library) Books(ctx context.Context) ([]BookMeta, error) {
	return list[BookMeta](ctx, l.store, bucketBooks, "")
}

// Book returns the book with the given id.
func (l *Library) Book(ctx context.Context, id string) (BookMeta, error) {
	var meta BookMeta
	err := l.get(ctx, bucketBooks, id, &meta)
	return meta, err
}

// SaveBook writes meta and its chapters in one batch.
func (l *Library) SaveBook(ctx context.Context, meta BookMeta, chapters []StoredChapter) error {
	records := make([]Record, 0, len(chapters)+1)
	r, err := encode(bucketBooks, meta.ID, meta)
	if err != nil {
		return err
	}
	records = append(records, r)
	for _, ch := range chapters {
		ch.BookID = meta.ID
		r, err := encode(bucketChapters, chapterKey(meta.ID, ch.Index), ch)
		if err != nil {
			return err
		}
		records = append(records, r)
	}
	return l.store.Batch(ctx, false, records)
}

// DeleteBook removes a book together with its chapters and progress.
func (l *Library) DeleteBook(ctx context.Context, id string) error {
	if err := l.store.Delete(ctx, bucketChapters, id+"/"); err != nil {
		return err
	}
	if err := l.store.Delete(ctx, bucketProgress, id); err != nil {
		return err
	}
	return l.store.Delete(ctx, bucketBooks, id)
}

// Chapter returns one stored chapter.
func (l *Library) Chapter(ctx context.Context, bookID string, index int) (StoredChapter, error) {
	var ch StoredChapter
	err := l.get(ctx, bucketChapters, chapterKey(bookID, index), &ch)
	return ch, err
}

// Chapters returns the stored chapters with index in [start, end], in
// index order. Missing indexes are skipped.
func (l *Library) Chapters(ctx context.Context, bookID string, start, end int) ([]StoredChapter, error) {
	var out []StoredChapter
	for i := start; i <= end; i++ {
		ch, err := l.Chapter(ctx, bookID, i)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, nil
}

// AllChapters returns every stored chapter of a book in index order.
func (l *Library) AllChapters(ctx context.Context, bookID string) ([]StoredChapter, error) {
	return list[StoredChapter](ctx, l.store, bucketChapters, bookID+"/")
}

// Quotes returns every saved quote, ordered by id.
func (l *Library) Quotes(ctx context.Context) ([]Quote, error) {
	return list[Quote](ctx, l.store, bucketQuotes, "")
}

// SaveQuote creates or replaces q.
func (l *Library) SaveQuote(ctx context.Context, q Quote) error {
	return l.put(ctx, bucketQuotes, q.ID, q)
}

// AddQuote assigns q the next free id and saves it.
func (l *Library) AddQuote(ctx context.Context, q Quote) (Quote, error) {
	settings, err := l.Settings(ctx)
	if err != nil {
		return Quote{}, err
	}
	quotes, err := l.Quotes(ctx)
	if err != nil {
		return Quote{}, err
	}
	q.ID = NextQuoteID(quotes, settings.StartingID)
	if err := l.SaveQuote(ctx, q); err != nil {
		return Quote{}, err
	}
	l.log.Debug("quote added", "id", q.ID, "chapter", q.ChapterIndex)
	return q, nil
}

// Settings returns the saved settings, or DefaultSettings when none exist.
func (l *Library) Settings(ctx context.Context) (Settings, error) {
	s := DefaultSettings()
	err := l.get(ctx, bucketSettings, settingsKey, &s)
	if errors.Is(err, ErrNotFound) {
		return DefaultSettings(), nil
	}
	return s, err
}

// SaveSettings replaces the settings record.
func (l *Library) SaveSettings(ctx context.Context, s Settings) error {
	return l.put(ctx, bucketSettings, settingsKey, s)
}

// Progress returns the saved progress of a book. A book never opened
// reports the zero Progress.
func (l *Library) Progress(ctx context.Context, bookID string) (Progress, error) {
	var p Progress
	err := l.get(ctx, bucketProgress, bookID, &p)
	if errors.Is(err, ErrNotFound) {
		return Progress{}, nil
	}
	return p, err
}

// SaveProgress replaces the progress record of a book.
func (l *Library) SaveProgress(ctx context.Context, bookID string, p Progress) error {
	return l.put(ctx, bucketProgress, bookID, p)
}
