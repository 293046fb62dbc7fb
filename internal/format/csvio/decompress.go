package csvio

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// decompressStream wraps f with a decompressor when the path carries a .gz or
// .zst suffix. The returned closer, when non-nil, must be closed before f.
func decompressStream(f *os.File, path string) (io.Reader, io.Closer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		zr, err := gzip.NewReader(bufio.NewReaderSize(f, 1<<20))
		if err != nil {
			return nil, nil, err
		}
		return zr, zr, nil
	case ".zst":
		zr, err := zstd.NewReader(bufio.NewReaderSize(f, 1<<20))
		if err != nil {
			return nil, nil, err
		}
		rc := zr.IOReadCloser()
		return rc, rc, nil
	}
	return f, nil, nil
}
