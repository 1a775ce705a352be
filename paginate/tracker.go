package paginate

import "sync"

// Pass identifies one pagination run for one chapter.
type Pass struct {
	Chapter    int
	generation uint64
}

// Tracker keeps the current pages per chapter and makes sure a newer pass
// supersedes an older one instead of merging with it. A pass that finishes
// after a newer pass for the same chapter began is discarded.
//
// A Tracker is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	next    uint64
	latest  map[int]uint64
	current map[int][]Page
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		latest:  make(map[int]uint64),
		current: make(map[int][]Page),
	}
}

// Begin starts a pass for chapter, superseding any pass still running.
func (t *Tracker) Begin(chapter int) Pass {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.latest[chapter] = t.next
	return Pass{Chapter: chapter, generation: t.next}
}

// Commit stores pages for the pass's chapter if the pass is still the
// latest one. It reports whether the pages were accepted.
func (t *Tracker) Commit(p Pass, pages []Page) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latest[p.Chapter] != p.generation {
		return false
	}
	t.current[p.Chapter] = pages
	return true
}

// Current returns the committed pages of chapter.
func (t *Tracker) Current(chapter int) ([]Page, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pages, ok := t.current[chapter]
	return pages, ok
}

// Invalidate drops every committed result, for example after a layout
// change. Passes already running stay valid.
func (t *Tracker) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.current)
}

// Run paginates a chapter as a tracked pass and commits the result.
// It returns the pages and whether they became current.
func (t *Tracker) Run(chapter int, paragraphs []string, title string, p Params, m Measurer) ([]Page, bool) {
	pass := t.Begin(chapter)
	pages := Paginate(paragraphs, title, p, m)
	return pages, t.Commit(pass, pages)
}
