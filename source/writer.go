package source

import (
	"context"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/bibin-skaria/imgdump/internal/errors"
)

const (
	// DefaultChunkSize is the unit the export stream is cut into
	DefaultChunkSize = 1 << 20
	// DefaultConcurrency bounds the chunks held in memory at once
	DefaultConcurrency = 100
)

// CopyChunked copies src into dst. Chunks are read in order and handed to at
// most limit concurrent writers; every chunk is written at its own offset
// under one mutex, so dst ends up byte-identical to src.
func CopyChunked(ctx context.Context, dst io.WriterAt, src io.Reader, limit, chunkSize int) (int64, error) {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var (
		mu      sync.Mutex
		offset  int64
		readErr error
	)

	for gctx.Err() == nil {
		buf := make([]byte, chunkSize)
		n, err := io.ReadFull(src, buf)
		if n > 0 {
			chunk, at := buf[:n], offset
			offset += int64(n)

			g.Go(func() error {
				mu.Lock()
				defer mu.Unlock()
				if _, err := dst.WriteAt(chunk, at); err != nil {
					return apperrors.NewIOError("write_chunk", "", err)
				}
				return nil
			})
		}

		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			readErr = err
			break
		}
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	if readErr != nil {
		return 0, apperrors.NewAcquireError("read_export", "export stream failed", readErr)
	}
	if err := ctx.Err(); err != nil {
		return 0, apperrors.NewAcquireError("read_export", "export cancelled", err)
	}

	return offset, nil
}
