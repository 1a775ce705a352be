package epubreader

import "errors"

// Sentinel errors returned by the epubreader package.
var (
	// ErrMalformedArchive indicates the archive has no usable entry point
	// (META-INF/container.xml) or the package document it names is absent
	// or unreadable. It is the only error that aborts ingestion.
	ErrMalformedArchive = errors.New("epubreader: malformed archive")

	// ErrMissingResource indicates a chapter or navigation file referenced by
	// the package document is not present in the archive. Ingestion skips it.
	ErrMissingResource = errors.New("epubreader: referenced resource missing")

	// ErrUnsupportedMedia indicates a spine item whose media type is neither
	// markup nor XML. Ingestion skips it.
	ErrUnsupportedMedia = errors.New("epubreader: unsupported media type")

	// ErrEmptyContent indicates a spine item from which no paragraph text
	// could be extracted by any tier. Ingestion skips it.
	ErrEmptyContent = errors.New("epubreader: no extractable content")

	// ErrFileNotFound indicates the requested file does not exist
	// in the archive.
	ErrFileNotFound = errors.New("epubreader: file not found in archive")

	// ErrPathEscapesRoot indicates a relative reference climbs above the
	// archive root ("../" past the first segment).
	ErrPathEscapesRoot = errors.New("epubreader: path escapes archive root")
)
