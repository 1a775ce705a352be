// Command epubreader ingests ePub files into a local library and reads
// them back as chapters, pages and anchors.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/simp-lee/epubreader"
	"github.com/simp-lee/epubreader/anchor"
	"github.com/simp-lee/epubreader/internal/logging"
	"github.com/simp-lee/epubreader/internal/server"
	"github.com/simp-lee/epubreader/library"
	"github.com/simp-lee/epubreader/paginate"
)

// CLI defines the command-line interface.
type CLI struct {
	DB        string         `name:"db" default:"epubreader.db" env:"EPUBREADER_DB" help:"Library database path" type:"path"`
	LogLevel  string         `name:"log-level" default:"info" env:"EPUBREADER_LOG_LEVEL" help:"Log level (debug, info, warn, error)"`
	LogFormat logging.Format `name:"log-format" default:"text" enum:"text,json" help:"Log output format"`

	Ingest   IngestCmd   `cmd:"" help:"Add an ePub file to the library"`
	List     ListCmd     `cmd:"" help:"List books in the library"`
	Paginate PaginateCmd `cmd:"" help:"Lay a chapter out into pages"`
	Locate   LocateCmd   `cmd:"" help:"Find the paragraph holding some text"`
	Export   ExportCmd   `cmd:"" help:"Write a book and the reader's records to a backup file"`
	Import   ImportCmd   `cmd:"" help:"Replace the library with a backup file"`
	Serve    ServeCmd    `cmd:"" help:"Serve the library over HTTP"`
}

// app is what every command runs against.
type app struct {
	lib *library.Library
	log *slog.Logger
	out io.Writer
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// IngestCmd adds a book.
type IngestCmd struct {
	File string   `arg:"" help:"ePub file" type:"existingfile"`
	Tags []string `name:"tag" short:"t" help:"Tag to attach (repeatable)"`
}

func (c *IngestCmd) Run(ctx context.Context, a *app) error {
	meta, err := library.IngestFile(ctx, a.lib, c.File, c.Tags, epubreader.WithLogger(a.log))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s\t%s\t%d chapters\n", meta.ID, meta.Title, meta.ChapterCount)
	return nil
}

// ListCmd lists books.
type ListCmd struct {
	JSON bool `help:"Print JSON instead of a table"`
}

func (c *ListCmd) Run(ctx context.Context, a *app) error {
	books, err := a.lib.Books(ctx)
	if err != nil {
		return err
	}
	if c.JSON {
		return a.printJSON(books)
	}
	for _, b := range books {
		fmt.Fprintf(a.out, "%s\t%s\t%d chapters\n", b.ID, b.Title, b.ChapterCount)
	}
	return nil
}

// PaginateCmd prints the pages of one chapter.
type PaginateCmd struct {
	Book     string  `arg:"" help:"Book id"`
	Chapter  int     `arg:"" help:"Chapter index"`
	Width    float64 `default:"600" help:"Content width in pixels"`
	Height   float64 `default:"800" help:"Content height in pixels"`
	FontSize float64 `name:"font-size" help:"Override the saved font size"`
	Measurer string  `default:"grid" enum:"grid,wrap,font" help:"Text measurer"`
	Target   string  `help:"Report the page holding this text"`
}

func (c *PaginateCmd) Run(ctx context.Context, a *app) error {
	ch, err := a.lib.Chapter(ctx, c.Book, c.Chapter)
	if err != nil {
		return err
	}
	settings, err := a.lib.Settings(ctx)
	if err != nil {
		return err
	}
	if c.FontSize > 0 {
		settings.FontSize = c.FontSize
	}
	params := settings.Params(c.Width, c.Height)
	m, err := paginate.NewMeasurer(c.Measurer, params)
	if err != nil {
		return err
	}

	pages := paginate.Paginate(ch.Paragraphs, ch.Title, params, m)
	for i, p := range pages {
		fmt.Fprintf(a.out, "--- page %d/%d ---\n", i+1, len(pages))
		if p.ShowTitle {
			fmt.Fprintf(a.out, "# %s\n\n", ch.Title)
		}
		for _, f := range p.Fragments {
			fmt.Fprintln(a.out, f.Text)
		}
	}
	if c.Target != "" {
		fmt.Fprintf(a.out, "target on page %d\n", anchor.FindPage(pages, c.Target)+1)
	}
	return nil
}

// LocateCmd finds text in a chapter.
type LocateCmd struct {
	Book    string `arg:"" help:"Book id"`
	Chapter int    `arg:"" help:"Chapter index"`
	Text    string `arg:"" help:"Text to find"`
}

func (c *LocateCmd) Run(ctx context.Context, a *app) error {
	ch, err := a.lib.Chapter(ctx, c.Book, c.Chapter)
	if err != nil {
		return err
	}
	loc, ok := anchor.FindParagraph([]library.StoredChapter{ch}, c.Text)
	if !ok {
		fmt.Fprintln(a.out, "not found")
		return nil
	}
	fmt.Fprintf(a.out, "chapter %d paragraph %d\n", loc.ChapterIndex, loc.Paragraph)
	return nil
}

// ExportCmd writes a backup.
type ExportCmd struct {
	Book string `arg:"" help:"Book id"`
	File string `arg:"" help:"Backup file to write" type:"path"`
	XZ   bool   `name:"xz" help:"Compress with xz"`
}

func (c *ExportCmd) Run(ctx context.Context, a *app) error {
	env, err := library.Export(ctx, a.lib, c.Book)
	if err != nil {
		return err
	}
	f, err := os.Create(c.File)
	if err != nil {
		return err
	}
	if err := library.WriteEnvelope(f, env, c.XZ); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	a.log.Info("backup written", "file", c.File, "chapters", len(env.Chapters), "quotes", len(env.Quotes))
	return nil
}

// ImportCmd restores a backup.
type ImportCmd struct {
	File string `arg:"" help:"Backup file to read" type:"existingfile"`
}

func (c *ImportCmd) Run(ctx context.Context, a *app) error {
	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()
	env, err := library.ReadEnvelope(f)
	if err != nil {
		return err
	}
	if err := library.Import(ctx, a.lib, env); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "imported %s\n", env.BookMeta.Title)
	return nil
}

// ServeCmd runs the HTTP server until interrupted.
type ServeCmd struct {
	Addr      string        `default:"127.0.0.1:8080" env:"EPUBREADER_ADDR" help:"Listen address"`
	RateLimit int           `name:"rate-limit" default:"100" help:"Requests per client per window (0 disables)"`
	Window    time.Duration `default:"1m" help:"Rate limit window"`
}

func (c *ServeCmd) Run(ctx context.Context, a *app) error {
	srv := &http.Server{
		Addr:              c.Addr,
		Handler:           server.New(a.lib, server.WithLogger(a.log), server.WithRateLimit(c.RateLimit, c.Window)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.log.Info("server_startup", "addr", c.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("epubreader"),
		kong.Description("Read ePub books from a local library"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Writers(stdout, stderr),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cli.LogLevel)
	if err != nil {
		return err
	}
	log := logging.InitLogger(stderr, level, cli.LogFormat)

	store, err := library.OpenSQLite(cli.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	a := &app{lib: library.New(store, library.WithLogger(log)), log: log, out: stdout}
	kctx.BindTo(ctx, (*context.Context)(nil))
	return kctx.Run(a)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "epubreader:", err)
		stop()
		os.Exit(1)
	}
}
