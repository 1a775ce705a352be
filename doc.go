// Package epubreader ingests ePub archives into an ordered list of chapters
// ready for paginated or continuous-scroll reading.
//
// Ingestion runs in fixed stages: the container entry point locates the
// package document, the package document yields the manifest and spine, the
// navigation document (NCX or XHTML nav) yields chapter titles, and every
// spine item is reduced to plain paragraphs.
//
// # Opening an ePub
//
// Use [Open] to ingest a file by path, [NewReader] to read from an
// [io.ReaderAt], or [Parse] for any [Archive] implementation:
//
//	book, err := epubreader.Open("book.epub")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer book.Close()
//
//	for _, ch := range book.Chapters() {
//	    fmt.Println(ch.Title, ch.WordCount)
//	}
//
// # Partial ingestion
//
// Only [ErrMalformedArchive] aborts ingestion. Spine items that are missing
// ([ErrMissingResource]), not markup ([ErrUnsupportedMedia]) or empty
// ([ErrEmptyContent]) are skipped and reported by [Book.Skipped].
//
// Pagination, windowed scroll loading and anchor lookup live in the
// paginate, scroll and anchor subpackages; persisted records live in
// library.
package epubreader
