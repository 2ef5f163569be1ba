package ingest

import (
	"bufio"
	"bytes"
	"compress/flate"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"strings"
)

// DefaultTargetFile is the conversations document inside an export archive.
const DefaultTargetFile = "conversations.json"

const (
	sigLocalFile      = 0x04034b50
	sigCentralDir     = 0x02014b50
	sigEndOfCentral   = 0x06054b50
	sigEndOfCentral64 = 0x06064b50
	sigDataDescriptor = 0x08074b50

	flagEncrypted      = 0x1
	flagDataDescriptor = 0x8

	methodStore   = 0
	methodDeflate = 8

	zip64ExtraID = 0x0001
	maxUint32    = 0xFFFFFFFF

	demuxReadBuffer = 32 << 10
)

// DemuxOptions controls which archive entry Demux extracts.
type DemuxOptions struct {
	// TargetSuffix is matched case-insensitively against the end of each
	// entry name. Defaults to DefaultTargetFile.
	TargetSuffix string

	Logger *slog.Logger
}

// DemuxResult describes the extracted entry.
type DemuxResult struct {
	EntryName         string
	EntriesSkipped    int
	CompressedBytes   int64
	UncompressedBytes int64
}

type localHeader struct {
	flags  uint16
	method uint16
	crc32  uint32
	csize  uint64
	usize  uint64
	name   string
	zip64  bool
}

func (h localHeader) hasDataDescriptor() bool { return h.flags&flagDataDescriptor != 0 }

// Demux walks a zip stream front to back using local file headers, writes the
// decompressed bytes of the first entry whose name ends with the target suffix
// to dst, and returns as soon as that entry is drained. Other entries are
// skipped by length, or drained into io.Discard when their length is only
// known from a trailing data descriptor. Nothing after the target entry is
// read beyond one read buffer.
//
// Write errors from dst are returned unwrapped so callers can tell a stalled
// consumer apart from a corrupt archive.
func Demux(ctx context.Context, src io.Reader, dst io.Writer, opts DemuxOptions) (DemuxResult, error) {
	if ctx == nil {
		return DemuxResult{}, errors.New("Demux: ctx is nil")
	}
	if src == nil || dst == nil {
		return DemuxResult{}, errors.New("Demux: src and dst are required")
	}
	suffix := strings.ToLower(strings.TrimSpace(opts.TargetSuffix))
	if suffix == "" {
		suffix = DefaultTargetFile
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fail := func(step string, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err == nil {
			return fmt.Errorf("Demux: %s: %w", step, ErrArchiveCorrupt)
		}
		return fmt.Errorf("Demux: %s: %w: %w", step, ErrArchiveCorrupt, err)
	}

	br := bufio.NewReaderSize(ContextReader(ctx, src), demuxReadBuffer)
	var res DemuxResult
	for entry := 0; ; entry++ {
		sig, err := readUint32(br)
		if err != nil {
			if errors.Is(err, io.EOF) && entry > 0 {
				return res, fmt.Errorf("Demux: no entry matching %q: %w", suffix, ErrArchiveTargetNotFound)
			}
			return res, fail("read signature", err)
		}

		switch sig {
		case sigLocalFile:
		case sigCentralDir, sigEndOfCentral, sigEndOfCentral64:
			return res, fmt.Errorf("Demux: no entry matching %q: %w", suffix, ErrArchiveTargetNotFound)
		default:
			return res, fail(fmt.Sprintf("unexpected signature 0x%08x at entry %d", sig, entry), nil)
		}

		hdr, err := readLocalHeader(br)
		if err != nil {
			return res, fail("read local header", err)
		}

		isTarget := !strings.HasSuffix(hdr.name, "/") && strings.HasSuffix(strings.ToLower(hdr.name), suffix)
		if !isTarget {
			if err := skipEntry(br, hdr); err != nil {
				return res, fail(fmt.Sprintf("skip entry %q", hdr.name), err)
			}
			res.EntriesSkipped++
			logger.Debug("archive entry skipped", "entry", hdr.name)
			continue
		}

		logger.Debug("archive target found", "entry", hdr.name, "method", hdr.method)
		res.EntryName = hdr.name
		n, csize, err := extractEntry(br, hdr, dst)
		res.UncompressedBytes = n
		res.CompressedBytes = csize
		if err != nil {
			var we *dstWriteError
			if errors.As(err, &we) {
				return res, we.err
			}
			return res, fail(fmt.Sprintf("extract %q", hdr.name), err)
		}
		return res, nil
	}
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readLocalHeader(r io.Reader) (localHeader, error) {
	var b [26]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return localHeader{}, err
	}
	h := localHeader{
		flags:  binary.LittleEndian.Uint16(b[2:4]),
		method: binary.LittleEndian.Uint16(b[4:6]),
		crc32:  binary.LittleEndian.Uint32(b[10:14]),
		csize:  uint64(binary.LittleEndian.Uint32(b[14:18])),
		usize:  uint64(binary.LittleEndian.Uint32(b[18:22])),
	}
	nameLen := int(binary.LittleEndian.Uint16(b[22:24]))
	extraLen := int(binary.LittleEndian.Uint16(b[24:26]))

	rest := make([]byte, nameLen+extraLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		return localHeader{}, err
	}
	h.name = string(rest[:nameLen])
	parseZip64Extra(&h, rest[nameLen:])
	return h, nil
}

func parseZip64Extra(h *localHeader, extra []byte) {
	for len(extra) >= 4 {
		id := binary.LittleEndian.Uint16(extra[0:2])
		size := int(binary.LittleEndian.Uint16(extra[2:4]))
		extra = extra[4:]
		if size > len(extra) {
			return
		}
		field := extra[:size]
		extra = extra[size:]
		if id != zip64ExtraID {
			continue
		}
		h.zip64 = true
		if h.usize == maxUint32 && len(field) >= 8 {
			h.usize = binary.LittleEndian.Uint64(field[:8])
			field = field[8:]
		}
		if h.csize == maxUint32 && len(field) >= 8 {
			h.csize = binary.LittleEndian.Uint64(field[:8])
		}
	}
}

func skipEntry(br *bufio.Reader, h localHeader) error {
	if !h.hasDataDescriptor() {
		_, err := io.CopyN(io.Discard, br, int64(h.csize))
		return err
	}
	if h.flags&flagEncrypted == 0 && h.method == methodStore {
		return copyStoredEntry(br, h.zip64, &trackingWriter{w: io.Discard})
	}
	if h.method != methodDeflate || h.flags&flagEncrypted != 0 {
		return fmt.Errorf("cannot find end of entry (method=%d flags=%#x)", h.method, h.flags)
	}
	fr := flate.NewReader(br)
	if _, err := io.Copy(io.Discard, fr); err != nil {
		_ = fr.Close()
		return err
	}
	if err := fr.Close(); err != nil {
		return err
	}
	_, _, _, err := readDataDescriptor(br, h.zip64)
	return err
}

type dstWriteError struct{ err error }

func (e *dstWriteError) Error() string { return e.err.Error() }
func (e *dstWriteError) Unwrap() error { return e.err }

type trackingWriter struct {
	w   io.Writer
	crc uint32
	n   int64
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	t.crc = crc32.Update(t.crc, crc32.IEEETable, p[:n])
	t.n += int64(n)
	if err != nil {
		return n, &dstWriteError{err: err}
	}
	return n, nil
}

// extractEntry inflates the entry body into dst and verifies its checksum.
// It returns the decompressed and compressed byte counts.
func extractEntry(br *bufio.Reader, h localHeader, dst io.Writer) (int64, int64, error) {
	if h.flags&flagEncrypted != 0 {
		return 0, 0, errors.New("encrypted entries are not supported")
	}

	if h.method == methodStore && h.hasDataDescriptor() {
		tw := &trackingWriter{w: dst}
		if err := copyStoredEntry(br, h.zip64, tw); err != nil {
			return tw.n, 0, err
		}
		return tw.n, tw.n, nil
	}

	var (
		body    io.Reader = br
		limited *io.LimitedReader
	)
	if !h.hasDataDescriptor() {
		limited = &io.LimitedReader{R: br, N: int64(h.csize)}
		body = limited
	}

	var dec io.Reader
	switch h.method {
	case methodStore:
		dec = body
	case methodDeflate:
		fr := flate.NewReader(body)
		defer fr.Close()
		dec = fr
	default:
		return 0, 0, fmt.Errorf("unsupported compression method %d", h.method)
	}

	tw := &trackingWriter{w: dst}
	if _, err := io.Copy(tw, dec); err != nil {
		return tw.n, 0, err
	}

	wantCRC, wantSize, csize := h.crc32, h.usize, h.csize
	if limited != nil {
		if _, err := io.Copy(io.Discard, limited); err != nil {
			return tw.n, 0, err
		}
	} else {
		crc, c, u, err := readDataDescriptor(br, h.zip64)
		if err != nil {
			return tw.n, 0, fmt.Errorf("read data descriptor: %w", err)
		}
		wantCRC, wantSize, csize = crc, u, c
	}

	if tw.crc != wantCRC {
		return tw.n, int64(csize), fmt.Errorf("checksum mismatch: got %08x want %08x", tw.crc, wantCRC)
	}
	if uint64(tw.n) != wantSize {
		return tw.n, int64(csize), fmt.Errorf("size mismatch: got %d want %d", tw.n, wantSize)
	}
	return tw.n, int64(csize), nil
}

// copyStoredEntry copies a stored entry whose length is only known from the
// trailing data descriptor. Stored bytes carry no end marker, so the
// descriptor is found by its signature and accepted only when its checksum
// and sizes match everything copied before it.
func copyStoredEntry(br *bufio.Reader, zip64 bool, tw *trackingWriter) error {
	descLen := 16
	if zip64 {
		descLen = 24
	}
	var sig [4]byte
	binary.LittleEndian.PutUint32(sig[:], sigDataDescriptor)

	for {
		window, err := br.Peek(demuxReadBuffer)
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		i := bytes.Index(window, sig[:])
		if i < 0 {
			if err != nil {
				return io.ErrUnexpectedEOF
			}
			// Keep a possible partial signature at the end of the window.
			i = len(window) - len(sig) + 1
		}
		if i > 0 {
			if _, err := tw.Write(window[:i]); err != nil {
				return err
			}
			if _, err := br.Discard(i); err != nil {
				return err
			}
			continue
		}

		d, err := br.Peek(descLen)
		if len(d) < descLen {
			if err == nil || errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if descriptorMatches(d, zip64, tw) {
			_, err := br.Discard(descLen)
			return err
		}
		if _, err := tw.Write(d[:1]); err != nil {
			return err
		}
		if _, err := br.Discard(1); err != nil {
			return err
		}
	}
}

func descriptorMatches(d []byte, zip64 bool, tw *trackingWriter) bool {
	if binary.LittleEndian.Uint32(d[4:8]) != tw.crc {
		return false
	}
	n := uint64(tw.n)
	if zip64 {
		return binary.LittleEndian.Uint64(d[8:16]) == n && binary.LittleEndian.Uint64(d[16:24]) == n
	}
	return uint64(binary.LittleEndian.Uint32(d[8:12])) == n && uint64(binary.LittleEndian.Uint32(d[12:16])) == n
}

func readDataDescriptor(br *bufio.Reader, zip64 bool) (crc uint32, csize, usize uint64, err error) {
	first, err := readUint32(br)
	if err != nil {
		return 0, 0, 0, err
	}
	crc = first
	if first == sigDataDescriptor {
		if crc, err = readUint32(br); err != nil {
			return 0, 0, 0, err
		}
	}
	if zip64 {
		var b [16]byte
		if _, err := io.ReadFull(br, b[:]); err != nil {
			return 0, 0, 0, err
		}
		return crc, binary.LittleEndian.Uint64(b[0:8]), binary.LittleEndian.Uint64(b[8:16]), nil
	}
	var b [8]byte
	if _, err := io.ReadFull(br, b[:]); err != nil {
		return 0, 0, 0, err
	}
	return crc, uint64(binary.LittleEndian.Uint32(b[0:4])), uint64(binary.LittleEndian.Uint32(b[4:8])), nil
}
