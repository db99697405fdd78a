package compress

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const (
	TypeNone = "none"
	TypeGzip = "gzip"
	TypeZstd = "zstd"
)

// Backup artifacts are written with a moderate gzip level; the volume
// archives and record exports are dominated by already-compressed
// attachment payloads, so higher levels buy little.
const gzipLevel = 6

func WrapWriter(kind string, w io.Writer) (io.WriteCloser, error) {
	switch kind {
	case "", TypeNone:
		return nopWriteCloser{w}, nil
	case TypeGzip:
		return gzip.NewWriterLevel(w, gzipLevel)
	case TypeZstd:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("unsupported compression: %s", kind)
	}
}

func WrapReader(kind string, r io.Reader) (io.ReadCloser, error) {
	switch kind {
	case "", TypeNone:
		return io.NopCloser(r), nil
	case TypeGzip:
		return gzip.NewReader(r)
	case TypeZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{Decoder: dec}, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", kind)
	}
}

// NewGzipWriter wraps w with the backup gzip level.
func NewGzipWriter(w io.Writer) *gzip.Writer {
	gz, _ := gzip.NewWriterLevel(w, gzipLevel)
	return gz
}

// NewGzipReader opens a gzip stream for reading.
func NewGzipReader(r io.Reader) (*gzip.Reader, error) {
	return gzip.NewReader(r)
}

type nopWriteCloser struct{ io.Writer }

func (n nopWriteCloser) Close() error { return nil }

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}
