package source

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"math/rand"
	"sync"
	"testing"
)

// memWriterAt is an in-memory io.WriterAt
type memWriterAt struct {
	mu  sync.Mutex
	buf []byte
}

func (w *memWriterAt) WriteAt(p []byte, off int64) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if end := int(off) + len(p); end > len(w.buf) {
		grown := make([]byte, end)
		copy(grown, w.buf)
		w.buf = grown
	}
	copy(w.buf[off:], p)
	return len(p), nil
}

type failingWriterAt struct{}

func (failingWriterAt) WriteAt(p []byte, off int64) (int, error) {
	return 0, stderrors.New("disk full")
}

type failingReader struct{ after int }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.after <= 0 {
		return 0, stderrors.New("connection reset")
	}
	n := len(p)
	if n > r.after {
		n = r.after
	}
	r.after -= n
	return n, nil
}

func TestCopyChunkedPreservesOrder(t *testing.T) {
	data := make([]byte, 1<<16+123)
	rand.New(rand.NewSource(1)).Read(data)

	tests := []struct {
		name      string
		limit     int
		chunkSize int
	}{
		{name: "single writer", limit: 1, chunkSize: 1000},
		{name: "many small chunks", limit: 8, chunkSize: 97},
		{name: "one chunk", limit: 4, chunkSize: 1 << 20},
		{name: "defaults", limit: 0, chunkSize: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst memWriterAt
			n, err := CopyChunked(context.Background(), &dst, bytes.NewReader(data), tt.limit, tt.chunkSize)
			if err != nil {
				t.Fatalf("CopyChunked failed: %v", err)
			}
			if n != int64(len(data)) {
				t.Errorf("copied %d bytes, want %d", n, len(data))
			}
			if !bytes.Equal(dst.buf, data) {
				t.Error("output differs from input")
			}
		})
	}
}

func TestCopyChunkedEmpty(t *testing.T) {
	var dst memWriterAt
	n, err := CopyChunked(context.Background(), &dst, bytes.NewReader(nil), 2, 10)
	if err != nil || n != 0 {
		t.Errorf("CopyChunked(empty) = %d, %v; want 0, nil", n, err)
	}
}

func TestCopyChunkedErrors(t *testing.T) {
	if _, err := CopyChunked(context.Background(), failingWriterAt{}, bytes.NewReader(make([]byte, 100)), 2, 10); err == nil {
		t.Error("expected write error")
	}

	var dst memWriterAt
	if _, err := CopyChunked(context.Background(), &dst, &failingReader{after: 50}, 2, 10); err == nil {
		t.Error("expected read error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := CopyChunked(ctx, &dst, io.LimitReader(rand.New(rand.NewSource(2)), 1000), 2, 10); err == nil {
		t.Error("expected error for cancelled context")
	}
}
