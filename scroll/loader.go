// Package scroll keeps a contiguous window of chapters materialized for
// continuous-scroll reading. The window grows by one chapter at either
// edge as the reader nears it and is replaced wholesale on a jump.
//
// Every fetch captures the loader's generation before its I/O starts and
// is discarded if a jump happened meanwhile, so a slow fetch for an old
// position can never land in the new window.
package scroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/simp-lee/epubreader/library"
)

var (
	// ErrPrependInFlight is returned by NearTop while an earlier prepend
	// has not been completed or cancelled.
	ErrPrependInFlight = errors.New("scroll: prepend already in flight")

	// ErrStale reports a fetch whose result was dropped because the
	// window was reset while it ran.
	ErrStale = errors.New("scroll: result superseded by a newer reset")

	// ErrNoChapters is returned by New for a book without chapters.
	ErrNoChapters = errors.New("scroll: book has no chapters")
)

// DefaultExpiration is how long a chapter scrolled out of the window
// stays cached.
const DefaultExpiration = 10 * time.Minute

// Source fetches stored chapters with index in [start, end].
type Source interface {
	Chapters(ctx context.Context, bookID string, start, end int) ([]library.StoredChapter, error)
}

// Window is the inclusive range of chapter indexes currently shown.
type Window struct {
	Start, End int
}

// Contains reports whether i lies in the window.
func (w Window) Contains(i int) bool { return i >= w.Start && i <= w.End }

// Prepend identifies one pending prepend. Pass it back to CompletePrepend
// once the prepended chapter has been laid out.
type Prepend struct {
	Index      int
	generation uint64
	seq        uint64
}

// Loader manages the window for one book.
type Loader struct {
	src    Source
	bookID string
	count  int
	log    *slog.Logger
	cache  *cache.Cache

	mu         sync.Mutex
	window     Window
	generation uint64
	pending    *Prepend
	seq        uint64
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(ld *Loader) {
		if l != nil {
			ld.log = l
		}
	}
}

// WithExpiration sets how long chapters outside the window stay cached.
func WithExpiration(d time.Duration) Option {
	return func(ld *Loader) {
		ld.cache = cache.New(d, 2*d)
	}
}

// New returns a loader over a book of count chapters. The window starts
// at chapter 0 with nothing fetched; call Reset to load it.
func New(src Source, bookID string, count int, opts ...Option) (*Loader, error) {
	if count <= 0 {
		return nil, ErrNoChapters
	}
	l := &Loader{
		src:    src,
		bookID: bookID,
		count:  count,
		log:    slog.New(slog.DiscardHandler),
		cache:  cache.New(DefaultExpiration, 2*DefaultExpiration),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Count returns the number of chapters in the book.
func (l *Loader) Count() int { return l.count }

// Window returns the current window.
func (l *Loader) Window() Window {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.window
}

// Generation returns the current generation. It increases on every reset.
func (l *Loader) Generation() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generation
}

// Reset replaces the window with the single chapter target, clamped into
// range, and fetches it. Any pending prepend is abandoned.
func (l *Loader) Reset(ctx context.Context, target int) error {
	target = max(0, min(target, l.count-1))

	l.mu.Lock()
	old := l.window
	l.window = Window{Start: target, End: target}
	l.generation++
	l.pending = nil
	gen := l.generation
	for i := old.Start; i <= old.End; i++ {
		if i != target {
			l.unpin(i)
		}
	}
	hit := l.pin(target)
	l.mu.Unlock()

	l.log.Debug("window reset", "book", l.bookID, "target", target, "generation", gen)
	if hit {
		return nil
	}
	return l.fetch(ctx, gen, target)
}

// JumpTo is Reset under the name navigation code uses.
func (l *Loader) JumpTo(ctx context.Context, target int) error {
	return l.Reset(ctx, target)
}

// NearBottom extends the window by one chapter past its end. It reports
// false when the window already ends at the last chapter.
func (l *Loader) NearBottom(ctx context.Context) (bool, error) {
	l.mu.Lock()
	if l.window.End >= l.count-1 {
		l.mu.Unlock()
		return false, nil
	}
	l.window.End++
	index, gen := l.window.End, l.generation
	hit := l.pin(index)
	l.mu.Unlock()

	if hit {
		return true, nil
	}
	if err := l.fetch(ctx, gen, index); err != nil {
		l.retract(gen, index, true)
		return false, err
	}
	return true, nil
}

// NearTop extends the window by one chapter before its start and returns
// a token for the pending prepend. It returns nil when the window already
// starts at chapter 0, and ErrPrependInFlight while an earlier prepend is
// pending. Once the new chapter is laid out, the caller passes the token
// to CompletePrepend to get the corrected scroll offset.
func (l *Loader) NearTop(ctx context.Context) (*Prepend, error) {
	l.mu.Lock()
	if l.pending != nil {
		l.mu.Unlock()
		return nil, ErrPrependInFlight
	}
	if l.window.Start == 0 {
		l.mu.Unlock()
		return nil, nil
	}
	l.window.Start--
	l.seq++
	p := &Prepend{Index: l.window.Start, generation: l.generation, seq: l.seq}
	l.pending = p
	hit := l.pin(p.Index)
	l.mu.Unlock()

	l.log.Debug("prepend started", "book", l.bookID, "index", p.Index)
	if hit {
		return p, nil
	}
	if err := l.fetch(ctx, p.generation, p.Index); err != nil {
		l.retract(p.generation, p.Index, false)
		l.CancelPrepend(p)
		return nil, err
	}
	return p, nil
}

// CompletePrepend clears the pending prepend p and returns scrollTop
// shifted by the height the prepended content added, so the reader's
// position stays put. A token that is no longer pending returns scrollTop
// unchanged.
func (l *Loader) CompletePrepend(p *Prepend, oldHeight, newHeight, scrollTop float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p == nil || l.pending == nil || l.pending.seq != p.seq {
		return scrollTop
	}
	l.pending = nil
	return scrollTop + (newHeight - oldHeight)
}

// CancelPrepend clears the pending prepend p without any correction.
func (l *Loader) CancelPrepend(p *Prepend) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p != nil && l.pending != nil && l.pending.seq == p.seq {
		l.pending = nil
	}
}

// Prepending reports whether a prepend is pending.
func (l *Loader) Prepending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending != nil
}

// Visible returns the fetched chapters of the window in index order.
// Chapters still being fetched are left out.
func (l *Loader) Visible() []library.StoredChapter {
	l.mu.Lock()
	w := l.window
	l.mu.Unlock()

	out := make([]library.StoredChapter, 0, w.End-w.Start+1)
	for i := w.Start; i <= w.End; i++ {
		if ch, ok := l.Chapter(i); ok {
			out = append(out, ch)
		}
	}
	return out
}

// Chapter returns chapter i if it is cached, inside the window or not.
func (l *Loader) Chapter(i int) (library.StoredChapter, bool) {
	v, ok := l.cache.Get(cacheKey(i))
	if !ok {
		return library.StoredChapter{}, false
	}
	return v.(library.StoredChapter), true
}

func (l *Loader) fetch(ctx context.Context, gen uint64, index int) error {
	chapters, err := l.src.Chapters(ctx, l.bookID, index, index)
	if err != nil {
		return fmt.Errorf("scroll: fetch chapter %d: %w", index, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.generation {
		l.log.Debug("stale fetch dropped", "book", l.bookID, "index", index, "generation", gen, "current", l.generation)
		return ErrStale
	}
	for _, ch := range chapters {
		l.store(ch)
	}
	return nil
}

// retract shrinks the window so it ends before index (bottom) or starts
// after it (top) once the fetch for index failed, as long as no reset has
// replaced the window since. Chapters cut off with it stay cached but
// unpinned.
func (l *Loader) retract(gen uint64, index int, bottom bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.generation {
		return
	}
	if bottom {
		if index <= l.window.Start || index > l.window.End {
			return
		}
		for i := index; i <= l.window.End; i++ {
			l.unpin(i)
		}
		l.window.End = index - 1
		return
	}
	if index >= l.window.End || index < l.window.Start {
		return
	}
	for i := l.window.Start; i <= index; i++ {
		l.unpin(i)
	}
	l.window.Start = index + 1
}

// store caches ch, pinned when it lies in the window. Must hold l.mu.
func (l *Loader) store(ch library.StoredChapter) {
	d := cache.DefaultExpiration
	if l.window.Contains(ch.Index) {
		d = cache.NoExpiration
	}
	l.cache.Set(cacheKey(ch.Index), ch, d)
}

// pin marks a cached chapter as never expiring and reports whether it
// was cached. Must hold l.mu.
func (l *Loader) pin(i int) bool {
	ch, ok := l.Chapter(i)
	if ok {
		l.cache.Set(cacheKey(i), ch, cache.NoExpiration)
	}
	return ok
}

// unpin lets a cached chapter expire. Must hold l.mu.
func (l *Loader) unpin(i int) {
	if ch, ok := l.Chapter(i); ok {
		l.cache.Set(cacheKey(i), ch, cache.DefaultExpiration)
	}
}

func cacheKey(i int) string { return strconv.Itoa(i) }
