package library

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func seedLibrary(t *testing.T, lib *Library) BookMeta {
	t.Helper()
	ctx := t.Context()
	raw := buildEPub(t, "Backup Me", "C", "<p>alpha</p>", "<p>beta</p>")
	meta, err := Ingest(ctx, lib, openEPub(t, raw), raw, []string{"t"})
	if err != nil {
		t.Fatal(err)
	}
	author := "C"
	if _, err := lib.AddQuote(ctx, Quote{Text: "alpha", Author: &author, ChapterIndex: 0, ChapterTitle: "Part 1"}); err != nil {
		t.Fatal(err)
	}
	if err := lib.SaveProgress(ctx, meta.ID, Progress{ChapterIndex: 1, ScrollTop: 42}); err != nil {
		t.Fatal(err)
	}
	return meta
}

func TestExportImport_RoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := "plain"
		if compress {
			name = "xz"
		}
		t.Run(name, func(t *testing.T) {
			src := newTestLibrary(t)
			meta := seedLibrary(t, src)
			ctx := t.Context()

			env, err := Export(ctx, src, meta.ID)
			if err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			if env.Version != 1 || env.ExportedAt == 0 {
				t.Fatalf("envelope header = %d, %d", env.Version, env.ExportedAt)
			}

			var buf bytes.Buffer
			if err := WriteEnvelope(&buf, env, compress); err != nil {
				t.Fatalf("WriteEnvelope() error = %v", err)
			}
			if compress != bytes.HasPrefix(buf.Bytes(), xzMagic) {
				t.Fatalf("compressed = %v but xz magic present = %v", compress, !compress)
			}

			got, err := ReadEnvelope(&buf)
			if err != nil {
				t.Fatalf("ReadEnvelope() error = %v", err)
			}
			if !reflect.DeepEqual(got, env) {
				t.Fatalf("ReadEnvelope() = %+v\nwant %+v", got, env)
			}

			dst := newTestLibrary(t)
			if err := dst.SaveBook(ctx, BookMeta{ID: "stale"}, nil); err != nil {
				t.Fatal(err)
			}
			if err := Import(ctx, dst, got); err != nil {
				t.Fatalf("Import() error = %v", err)
			}

			books, _ := dst.Books(ctx)
			if len(books) != 1 || books[0].ID != meta.ID {
				t.Errorf("Books() after import = %+v, want only %q", books, meta.ID)
			}
			chapters, _ := dst.AllChapters(ctx, meta.ID)
			if len(chapters) != 2 {
				t.Errorf("len(chapters) = %d, want 2", len(chapters))
			}
			quotes, _ := dst.Quotes(ctx)
			if len(quotes) != 1 || quotes[0].ID != "001" {
				t.Errorf("quotes = %+v", quotes)
			}
			p, _ := dst.Progress(ctx, meta.ID)
			if p.ChapterIndex != 1 || p.ScrollTop != 42 {
				t.Errorf("progress = %+v", p)
			}
		})
	}
}

func TestReadEnvelope_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing version", `{"exportedAt": 1700000000000, "bookMeta": {}}`},
		{"missing exportedAt", `{"version": 1}`},
		{"unknown version", `{"version": 2, "exportedAt": 1}`},
		{"not json", `hello`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadEnvelope(strings.NewReader(tc.data))
			if !errors.Is(err, ErrInvalidBackup) {
				t.Errorf("ReadEnvelope() error = %v, want ErrInvalidBackup", err)
			}
		})
	}
}

func TestImport_InvalidLeavesLibraryUntouched(t *testing.T) {
	lib := newTestLibrary(t)
	ctx := t.Context()
	if err := lib.SaveBook(ctx, BookMeta{ID: "keep"}, nil); err != nil {
		t.Fatal(err)
	}

	if err := Import(ctx, lib, Envelope{}); !errors.Is(err, ErrInvalidBackup) {
		t.Fatalf("Import(empty) error = %v, want ErrInvalidBackup", err)
	}
	if _, err := lib.Book(ctx, "keep"); err != nil {
		t.Errorf("existing book lost: %v", err)
	}
}

func TestDecodeEnvelope_ZeroExportedAtImports(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"version": 1, "exportedAt": 0, "bookMeta": {"id": "b"}}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}
	lib := newTestLibrary(t)
	if err := Import(t.Context(), lib, env); err != nil {
		t.Fatalf("Import() error = %v, want a decoded envelope to import", err)
	}
	if _, err := lib.Book(t.Context(), "b"); err != nil {
		t.Errorf("Book() after import error = %v", err)
	}
}
