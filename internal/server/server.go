// Package server exposes a library over a small JSON HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/simp-lee/epubreader/anchor"
	"github.com/simp-lee/epubreader/internal/logging"
	"github.com/simp-lee/epubreader/library"
	"github.com/simp-lee/epubreader/paginate"
)

// Server routes requests to a library.
type Server struct {
	lib    *library.Library
	log    *slog.Logger
	router chi.Router

	rateLimit  int
	rateWindow time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRateLimit limits each client IP to n requests per window. n <= 0
// disables limiting.
func WithRateLimit(n int, window time.Duration) Option {
	return func(s *Server) {
		s.rateLimit = n
		s.rateWindow = window
	}
}

// New returns a Server over lib.
func New(lib *library.Library, opts ...Option) *Server {
	s := &Server{
		lib:        lib,
		log:        slog.New(slog.DiscardHandler),
		router:     chi.NewRouter(),
		rateLimit:  100,
		rateWindow: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(logging.Middleware(s.log, middleware.GetReqID))
	r.Use(middleware.Recoverer)
	if s.rateLimit > 0 {
		r.Use(httprate.LimitByIP(s.rateLimit, s.rateWindow))
	}

	r.Get("/books", s.handleBooks)
	r.Route("/books/{id}", func(r chi.Router) {
		r.Get("/", s.handleBook)
		r.Get("/chapters", s.handleChapterRange)
		r.Get("/chapters/{index}", s.handleChapter)
		r.Get("/chapters/{index}/pages", s.handlePages)
		r.Get("/chapters/{index}/locate", s.handleLocate)
		r.Get("/progress", s.handleGetProgress)
		r.Put("/progress", s.handlePutProgress)
	})
	r.Get("/settings", s.handleGetSettings)
	r.Put("/settings", s.handlePutSettings)
	r.Get("/quotes", s.handleQuotes)
	r.Post("/quotes", s.handleAddQuote)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, library.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

var errBadRequest = errors.New("bad request")

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }
func (e *requestError) Unwrap() error { return errBadRequest }

func intParam(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, badRequest("invalid " + name)
	}
	return v, nil
}

func floatQuery(r *http.Request, name string, def float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, badRequest("invalid " + name)
	}
	return f, nil
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid body: " + err.Error())
	}
	return nil
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.lib.Books(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.lib.Book(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleChapter(w http.ResponseWriter, r *http.Request) {
	index, err := intParam(r, "index")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ch, err := s.lib.Chapter(r.Context(), chi.URLParam(r, "id"), index)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// handleChapterRange serves a scroll window: chapters start..end inclusive.
func (s *Server) handleChapterRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err1 := strconv.Atoi(q.Get("start"))
	end, err2 := strconv.Atoi(q.Get("end"))
	if err1 != nil || err2 != nil || start < 0 || end < start {
		s.fail(w, r, badRequest("invalid start or end"))
		return
	}
	chapters, err := s.lib.Chapters(r.Context(), chi.URLParam(r, "id"), start, end)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if chapters == nil {
		chapters = []library.StoredChapter{}
	}
	writeJSON(w, http.StatusOK, chapters)
}

type fragmentBody struct {
	Text         string `json:"text"`
	Continuation bool   `json:"continuation"`
}

type pageBody struct {
	ShowTitle bool           `json:"showTitle"`
	Fragments []fragmentBody `json:"fragments"`
}

type pagesBody struct {
	Title string     `json:"title"`
	Pages []pageBody `json:"pages"`

	// Current is the page holding the target text, when one was given.
	Current *int `json:"current,omitempty"`
}

func (s *Server) handlePages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	index, err := intParam(r, "index")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	width, err := floatQuery(r, "width", 600)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	height, err := floatQuery(r, "height", 800)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	ch, err := s.lib.Chapter(ctx, chi.URLParam(r, "id"), index)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	settings, err := s.lib.Settings(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	params := settings.Params(width, height)
	m, err := paginate.NewMeasurer(r.URL.Query().Get("measurer"), params)
	if err != nil {
		s.fail(w, r, badRequest(err.Error()))
		return
	}

	pages := paginate.Paginate(ch.Paragraphs, ch.Title, params, m)
	body := pagesBody{Title: ch.Title, Pages: make([]pageBody, len(pages))}
	for i, p := range pages {
		pb := pageBody{ShowTitle: p.ShowTitle, Fragments: make([]fragmentBody, len(p.Fragments))}
		for j, f := range p.Fragments {
			pb.Fragments[j] = fragmentBody{Text: f.Text, Continuation: f.Continuation}
		}
		body.Pages[i] = pb
	}
	if target := r.URL.Query().Get("target"); target != "" {
		cur := anchor.FindPage(pages, target)
		body.Current = &cur
	}
	writeJSON(w, http.StatusOK, body)
}

type locateBody struct {
	Found        bool `json:"found"`
	ChapterIndex int  `json:"chapterIndex"`
	Paragraph    int  `json:"paragraph"`
}

func (s *Server) handleLocate(w http.ResponseWriter, r *http.Request) {
	index, err := intParam(r, "index")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ch, err := s.lib.Chapter(r.Context(), chi.URLParam(r, "id"), index)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	loc, ok := anchor.FindParagraph([]library.StoredChapter{ch}, r.URL.Query().Get("text"))
	if !ok {
		loc = anchor.Location{ChapterIndex: index}
	}
	writeJSON(w, http.StatusOK, locateBody{Found: ok, ChapterIndex: loc.ChapterIndex, Paragraph: loc.Paragraph})
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.lib.Progress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	book, err := s.lib.Book(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var p library.Progress
	if err := decode(r, &p); err != nil {
		s.fail(w, r, err)
		return
	}
	if p.ChapterIndex < 0 || p.ChapterIndex >= book.ChapterCount {
		s.fail(w, r, badRequest("chapterIndex out of range"))
		return
	}
	if err := s.lib.SaveProgress(ctx, id, p); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.lib.Settings(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	settings := library.DefaultSettings()
	if err := decode(r, &settings); err != nil {
		s.fail(w, r, err)
		return
	}
	switch settings.ReadMode {
	case library.ReadModeScroll, library.ReadModePageTurn:
	default:
		s.fail(w, r, badRequest("invalid readMode"))
		return
	}
	if settings.FontSize <= 0 || settings.LineHeight <= 0 {
		s.fail(w, r, badRequest("fontSize and lineHeight must be positive"))
		return
	}
	if err := s.lib.SaveSettings(r.Context(), settings); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	quotes, err := s.lib.Quotes(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quotes)
}

func (s *Server) handleAddQuote(w http.ResponseWriter, r *http.Request) {
	var q library.Quote
	if err := decode(r, &q); err != nil {
		s.fail(w, r, err)
		return
	}
	if q.Text == "" {
		s.fail(w, r, badRequest("text is required"))
		return
	}
	q, err := s.lib.AddQuote(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}
