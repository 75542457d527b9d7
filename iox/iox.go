// Package iox provides I/O helpers for resource cleanup and chunked reads.
package iox

import (
	"context"
	"errors"
	"io"
)

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup and b.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(client))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and discards the returned error.
// Use for non-Close cleanup calls (e.g. Flush) where errors are unactionable:
//
//	defer iox.DiscardErr(w.Flush)
func DiscardErr(fn func() error) { _ = fn() }

// DefaultChunkSize is the read size used by ReadChunks when size <= 0.
const DefaultChunkSize = 64 * 1024

// ReadChunks reads r until EOF, passing each chunk to fn in order. The
// chunk slice is reused between calls; fn must copy what it keeps.
// It stops early on a read error, an fn error, or ctx cancellation.
func ReadChunks(ctx context.Context, r io.Reader, size int, fn func([]byte) error) (int64, error) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	buf := make([]byte, size)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := r.Read(buf)
		if n > 0 {
			total += int64(n)
			if ferr := fn(buf[:n]); ferr != nil {
				return total, ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
