package ingest

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// FileType is the container format of an uploaded export.
type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypeJSON
	FileTypeZip
)

func (t FileType) String() string {
	switch t {
	case FileTypeJSON:
		return "json"
	case FileTypeZip:
		return "zip"
	default:
		return "unknown"
	}
}

// DetectFileType classifies an upload by its filename suffix. It never looks
// at the body, so an unsupported upload fails before any byte is read.
func DetectFileType(name string) (FileType, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	switch ext {
	case ".zip":
		return FileTypeZip, nil
	case ".json":
		return FileTypeJSON, nil
	default:
		return FileTypeUnknown, fmt.Errorf("DetectFileType: %q: %w", name, ErrUnsupportedFileType)
	}
}

// CountingReader counts bytes read from the underlying source and reports
// progress every Every bytes.
type CountingReader struct {
	r     io.Reader
	n     atomic.Int64
	every int64
	last  int64
	fn    func(total int64)
}

// NewCountingReader wraps r. fn may be nil; every <= 0 reports on every read.
func NewCountingReader(r io.Reader, every int64, fn func(total int64)) *CountingReader {
	return &CountingReader{r: r, every: every, fn: fn}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		total := c.n.Add(int64(n))
		if c.fn != nil && (c.every <= 0 || total-c.last >= c.every) {
			c.last = total
			c.fn(total)
		}
	}
	return n, err
}

// N reports the bytes read so far.
func (c *CountingReader) N() int64 {
	return c.n.Load()
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

// ContextReader returns a reader that fails with ctx.Err() once ctx is done.
func ContextReader(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
