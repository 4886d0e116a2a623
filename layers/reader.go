package layers

import (
	"archive/tar"
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	apperrors "github.com/bibin-skaria/imgdump/internal/errors"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Reader streams classified entries out of one layer archive. The content of
// the current entry can be read from the Reader until the next call to Next.
type Reader struct {
	layer   string
	tr      *tar.Reader
	closers []func() error
}

// OpenArchive opens a layer archive from disk
func OpenArchive(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewArchiveError("open_layer", path, err)
	}

	r, err := NewReader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closers = append(r.closers, f.Close)

	return r, nil
}

// NewReader wraps a layer stream. layer names the archive in errors.
func NewReader(src io.Reader, layer string) (*Reader, error) {
	r := &Reader{layer: layer}

	stream, err := r.decompress(src)
	if err != nil {
		return nil, err
	}
	r.tr = tar.NewReader(stream)

	return r, nil
}

// decompress sniffs the compression from the first bytes of the stream
func (r *Reader) decompress(src io.Reader) (io.Reader, error) {
	br := bufio.NewReader(src)
	magic, err := br.Peek(len(zstdMagic))
	if err != nil && err != io.EOF {
		return nil, apperrors.NewArchiveError("detect_compression", r.layer, err)
	}

	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, apperrors.NewArchiveError("decompress", r.layer, err)
		}
		r.closers = append(r.closers, zr.Close)
		return zr, nil

	case bytes.HasPrefix(magic, zstdMagic):
		decoder, err := zstd.NewReader(br)
		if err != nil {
			return nil, apperrors.NewArchiveError("decompress", r.layer, err)
		}
		r.closers = append(r.closers, func() error {
			decoder.Close()
			return nil
		})
		return decoder, nil

	default:
		return br, nil
	}
}

// Next advances to the next entry with a usable name. It returns io.EOF when
// the archive is exhausted.
func (r *Reader) Next() (*Entry, error) {
	for {
		hdr, err := r.tr.Next()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, apperrors.NewArchiveError("read_entry", r.layer, err)
		}

		if entry, ok := classify(hdr); ok {
			return entry, nil
		}
	}
}

// Read reads the content of the current entry
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.tr.Read(p)
	if err != nil && err != io.EOF {
		return n, apperrors.NewArchiveError("read_content", r.layer, err)
	}
	return n, err
}

// Layer returns the name the reader reports in errors
func (r *Reader) Layer() string {
	return r.layer
}

// Close releases the decompressor and the underlying file, if any
func (r *Reader) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	r.closers = nil
	return first
}
