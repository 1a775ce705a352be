package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/simp-lee/epubreader/library"
)

func newTestServer(t *testing.T) (*Server, *library.Library) {
	t.Helper()
	store, err := library.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	lib := library.New(store)

	meta := library.BookMeta{
		ID:           "b1",
		Title:        "Test Book",
		Tags:         []string{},
		ChapterCount: 2,
		ChapterMeta:  []library.ChapterMeta{{Title: "One"}, {Title: "Two"}},
	}
	chapters := []library.StoredChapter{
		{Index: 0, Title: "One", Paragraphs: []string{"First paragraph of the book.", "Second paragraph."}},
		{Index: 1, Title: "Two", Paragraphs: []string{strings.Repeat("long text ", 200), "The needle is here."}},
	}
	if err := lib.SaveBook(t.Context(), meta, chapters); err != nil {
		t.Fatalf("SaveBook() error = %v", err)
	}
	return New(lib, WithRateLimit(0, 0)), lib
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestServer_Books(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/books", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /books = %d", rec.Code)
	}
	books := decodeBody[[]library.BookMeta](t, rec)
	if len(books) != 1 || books[0].ID != "b1" {
		t.Errorf("books = %+v", books)
	}

	if rec := do(t, s, http.MethodGet, "/books/b1", ""); rec.Code != http.StatusOK {
		t.Errorf("GET /books/b1 = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/books/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET /books/nope = %d, want 404", rec.Code)
	}
}

func TestServer_Chapters(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/books/b1/chapters/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET chapter = %d", rec.Code)
	}
	if ch := decodeBody[library.StoredChapter](t, rec); ch.Title != "Two" {
		t.Errorf("chapter = %+v", ch)
	}

	rec = do(t, s, http.MethodGet, "/books/b1/chapters?start=0&end=5", "")
	if got := decodeBody[[]library.StoredChapter](t, rec); len(got) != 2 {
		t.Errorf("range returned %d chapters, want 2", len(got))
	}

	tests := []struct {
		target string
		want   int
	}{
		{"/books/b1/chapters/x", http.StatusBadRequest},
		{"/books/b1/chapters/7", http.StatusNotFound},
		{"/books/b1/chapters?start=3&end=1", http.StatusBadRequest},
	}
	for _, tc := range tests {
		if rec := do(t, s, http.MethodGet, tc.target, ""); rec.Code != tc.want {
			t.Errorf("GET %s = %d, want %d", tc.target, rec.Code, tc.want)
		}
	}
}

func TestServer_PagesWithTarget(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/books/b1/chapters/1/pages?width=300&height=400&target=needle", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET pages = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody[pagesBody](t, rec)
	if len(body.Pages) < 2 {
		t.Fatalf("len(pages) = %d, want several", len(body.Pages))
	}
	if !body.Pages[0].ShowTitle {
		t.Error("first page does not show the title")
	}
	if body.Current == nil || *body.Current != len(body.Pages)-1 {
		t.Errorf("current = %v, want last page %d", body.Current, len(body.Pages)-1)
	}

	if rec := do(t, s, http.MethodGet, "/books/b1/chapters/1/pages?measurer=laser", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown measurer = %d, want 400", rec.Code)
	}
}

func TestServer_Locate(t *testing.T) {
	s, _ := newTestServer(t)

	body := decodeBody[locateBody](t, do(t, s, http.MethodGet, "/books/b1/chapters/0/locate?text=Second", ""))
	if !body.Found || body.Paragraph != 1 {
		t.Errorf("locate = %+v", body)
	}
	body = decodeBody[locateBody](t, do(t, s, http.MethodGet, "/books/b1/chapters/0/locate?text=absent", ""))
	if body.Found || body.Paragraph != 0 || body.ChapterIndex != 0 {
		t.Errorf("locate(absent) = %+v, want top of chapter", body)
	}
}

func TestServer_SettingsAndProgress(t *testing.T) {
	s, _ := newTestServer(t)

	got := decodeBody[library.Settings](t, do(t, s, http.MethodGet, "/settings", ""))
	if got.FontSize != 18 || got.ReadMode != library.ReadModeScroll {
		t.Errorf("default settings = %+v", got)
	}
	rec := do(t, s, http.MethodPut, "/settings", `{"fontSize": 20, "lineHeight": 1.5, "readMode": "pageTurn"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT /settings = %d: %s", rec.Code, rec.Body.String())
	}
	got = decodeBody[library.Settings](t, do(t, s, http.MethodGet, "/settings", ""))
	if got.FontSize != 20 || got.ReadMode != library.ReadModePageTurn || got.StartingID != 1 {
		t.Errorf("settings after PUT = %+v", got)
	}
	if rec := do(t, s, http.MethodPut, "/settings", `{"readMode": "sideways"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid readMode = %d, want 400", rec.Code)
	}

	rec = do(t, s, http.MethodPut, "/books/b1/progress", `{"chapterIndex": 1, "scrollTop": 120, "targetText": "needle"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT progress = %d: %s", rec.Code, rec.Body.String())
	}
	p := decodeBody[library.Progress](t, do(t, s, http.MethodGet, "/books/b1/progress", ""))
	if p.ChapterIndex != 1 || p.TargetText == nil || *p.TargetText != "needle" {
		t.Errorf("progress = %+v", p)
	}
	if rec := do(t, s, http.MethodPut, "/books/b1/progress", `{"chapterIndex": 9}`); rec.Code != http.StatusBadRequest {
		t.Errorf("out of range progress = %d, want 400", rec.Code)
	}
}

func TestServer_Quotes(t *testing.T) {
	s, _ := newTestServer(t)

	for _, want := range []string{"001", "002"} {
		rec := do(t, s, http.MethodPost, "/quotes", `{"text": "a line", "chapterIndex": 0, "chapterTitle": "One"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("POST /quotes = %d: %s", rec.Code, rec.Body.String())
		}
		if q := decodeBody[library.Quote](t, rec); q.ID != want {
			t.Errorf("quote id = %q, want %q", q.ID, want)
		}
	}
	quotes := decodeBody[[]library.Quote](t, do(t, s, http.MethodGet, "/quotes", ""))
	if len(quotes) != 2 {
		t.Errorf("len(quotes) = %d, want 2", len(quotes))
	}
	if rec := do(t, s, http.MethodPost, "/quotes", `{"text": ""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty quote = %d, want 400", rec.Code)
	}
}

func TestServer_RateLimit(t *testing.T) {
	store, err := library.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	s := New(library.New(store), WithRateLimit(2, time.Minute))

	var last int
	for range 3 {
		last = do(t, s, http.MethodGet, "/books", "").Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", last)
	}
}
