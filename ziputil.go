package epubreader

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"
)

// maxDecompressSize is the maximum allowed decompressed size for a single ZIP entry.
// This guards against zip bomb attacks. Defaults to 256 MB.
const maxDecompressSize int64 = 256 * 1024 * 1024

// Archive is the read side of a packaged document container. ReadFile
// returns ErrFileNotFound (possibly wrapped) when name is absent.
type Archive interface {
	ReadFile(name string) ([]byte, error)
}

// zipArchive serves entries of a ZIP file through exact-match and
// lowercase indexes.
type zipArchive struct {
	zr    *zip.Reader
	exact map[string]*zip.File
	lower map[string]*zip.File
	limit int64
}

func newZipArchive(zr *zip.Reader) *zipArchive {
	a := &zipArchive{
		zr:    zr,
		exact: make(map[string]*zip.File, len(zr.File)),
		lower: make(map[string]*zip.File, len(zr.File)),
		limit: maxDecompressSize,
	}
	for _, f := range zr.File {
		if _, exists := a.exact[f.Name]; !exists {
			a.exact[f.Name] = f // first match wins for exact
		}
		lower := strings.ToLower(f.Name)
		if _, exists := a.lower[lower]; !exists {
			a.lower[lower] = f // first match wins for case-insensitive
		}
	}
	return a
}

// find looks up a ZIP entry by path, trying an exact match first and then
// a case-insensitive one.
func (a *zipArchive) find(name string) *zip.File {
	if f, ok := a.exact[name]; ok {
		return f
	}
	if f, ok := a.lower[strings.ToLower(name)]; ok {
		return f
	}
	return nil
}

// ReadFile implements Archive.
func (a *zipArchive) ReadFile(name string) ([]byte, error) {
	f := a.find(name)
	if f == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrFileNotFound)
	}
	return readZipFileWithLimit(f, a.limit)
}

// isSafePath checks whether p is a safe ZIP-internal path that does not
// escape the archive root via path traversal (e.g., "../../../etc/passwd").
func isSafePath(p string) bool {
	cleaned := path.Clean(p)
	if strings.HasPrefix(cleaned, "/") {
		return false
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return false
	}
	return true
}

// stripBOM removes a leading UTF-8 BOM (0xEF 0xBB 0xBF) from data, if present.
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// readZipFileWithLimit reads the full contents of a ZIP entry, refusing
// unsafe entry names and anything that decompresses beyond limit.
func readZipFileWithLimit(f *zip.File, limit int64) ([]byte, error) {
	if !isSafePath(f.Name) {
		return nil, fmt.Errorf("epubreader: unsafe zip entry path: %s", f.Name)
	}

	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("epubreader: zip entry %s too large: %d bytes (max %d)", f.Name, f.UncompressedSize64, limit)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("epubreader: open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	// Read up to limit+1 to detect if the actual decompressed data
	// exceeds the limit (the declared size might be wrong/forged).
	lr := io.LimitReader(rc, limit+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, fmt.Errorf("epubreader: read zip entry %s: %w", f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("epubreader: zip entry %s decompressed size exceeds limit (%d bytes)", f.Name, limit)
	}

	return stripBOM(data), nil
}
