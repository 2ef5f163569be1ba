package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"hash/crc32"
	"io"
	"testing"
)

type zipEntry struct {
	name   string
	data   []byte
	stored bool
}

func buildZip(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		var (
			w   io.Writer
			err error
		)
		if e.stored {
			w, err = zw.CreateRaw(&zip.FileHeader{
				Name:               e.name,
				Method:             zip.Store,
				CRC32:              crc32.ChecksumIEEE(e.data),
				CompressedSize64:   uint64(len(e.data)),
				UncompressedSize64: uint64(len(e.data)),
			})
		} else {
			w, err = zw.Create(e.name)
		}
		if err != nil {
			t.Fatalf("create %s: %v", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			t.Fatalf("write %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestDemux_ExtractsTargetAndSkipsOthers(t *testing.T) {
	t.Parallel()

	doc := []byte(`[{"title":"A","mapping":{}}]`)
	archive := buildZip(t,
		zipEntry{name: "chat.html", data: bytes.Repeat([]byte("<p>hi</p>"), 500)},
		zipEntry{name: "user.json", data: []byte(`{"id":"u"}`), stored: true},
		zipEntry{name: "export/Conversations.JSON", data: doc},
	)

	var out bytes.Buffer
	res, err := Demux(context.Background(), bytes.NewReader(archive), &out, DemuxOptions{})
	if err != nil {
		t.Fatalf("Demux: %v", err)
	}
	if out.String() != string(doc) {
		t.Fatalf("extracted=%q, want %q", out.String(), string(doc))
	}
	if res.EntryName != "export/Conversations.JSON" {
		t.Fatalf("EntryName=%q", res.EntryName)
	}
	if res.EntriesSkipped != 2 {
		t.Fatalf("EntriesSkipped=%d, want 2", res.EntriesSkipped)
	}
	if res.UncompressedBytes != int64(len(doc)) {
		t.Fatalf("UncompressedBytes=%d, want %d", res.UncompressedBytes, len(doc))
	}
}

func TestDemux_StoredTarget(t *testing.T) {
	t.Parallel()

	doc := []byte(`[]`)
	archive := buildZip(t, zipEntry{name: "conversations.json", data: doc, stored: true})

	var out bytes.Buffer
	if _, err := Demux(context.Background(), bytes.NewReader(archive), &out, DemuxOptions{}); err != nil {
		t.Fatalf("Demux: %v", err)
	}
	if out.String() != "[]" {
		t.Fatalf("extracted=%q", out.String())
	}
}

func TestDemux_StoredEntriesWithDataDescriptor(t *testing.T) {
	t.Parallel()

	// zip.Writer.CreateHeader streams stored entries and appends a data
	// descriptor, so their sizes are unknown when the local header is read.
	// The image also contains a descriptor signature that is not its end.
	image := append([]byte("\x89PNG"), []byte("PK\x07\x08 fake descriptor 0000000000000000")...)
	doc := append([]byte("["), bytes.Repeat([]byte(`{"title":"stored"},`), 3000)...)
	doc = append(doc, []byte(`{"title":"last"}]`)...)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range []zipEntry{{name: "image.png", data: image}, {name: "conversations.json", data: doc}, {name: "after.txt", data: []byte("x")}} {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Store})
		if err != nil {
			t.Fatalf("create %s: %v", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			t.Fatalf("write %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	var out bytes.Buffer
	res, err := Demux(context.Background(), bytes.NewReader(buf.Bytes()), &out, DemuxOptions{})
	if err != nil {
		t.Fatalf("Demux: %v", err)
	}
	if !bytes.Equal(out.Bytes(), doc) {
		t.Fatalf("extracted %d bytes, want %d", out.Len(), len(doc))
	}
	if res.EntriesSkipped != 1 || res.UncompressedBytes != int64(len(doc)) || res.CompressedBytes != int64(len(doc)) {
		t.Fatalf("res=%+v", res)
	}

	// Cut inside the target: no matching descriptor is ever found.
	cut := buf.Bytes()[:len(buf.Bytes())/2]
	if _, err := Demux(context.Background(), bytes.NewReader(cut), io.Discard, DemuxOptions{}); !errors.Is(err, ErrArchiveCorrupt) {
		t.Fatalf("truncated: err=%v, want ErrArchiveCorrupt", err)
	}
}

func TestDemux_TargetNotFound(t *testing.T) {
	t.Parallel()

	archive := buildZip(t, zipEntry{name: "chat.html", data: []byte("x")})
	_, err := Demux(context.Background(), bytes.NewReader(archive), io.Discard, DemuxOptions{})
	if !errors.Is(err, ErrArchiveTargetNotFound) {
		t.Fatalf("err=%v, want ErrArchiveTargetNotFound", err)
	}
}

func TestDemux_Corrupt(t *testing.T) {
	t.Parallel()

	_, err := Demux(context.Background(), bytes.NewReader([]byte("definitely not a zip file")), io.Discard, DemuxOptions{})
	if !errors.Is(err, ErrArchiveCorrupt) {
		t.Fatalf("garbage: err=%v, want ErrArchiveCorrupt", err)
	}

	doc := bytes.Repeat([]byte(`{"title":"truncate me"},`), 2000)
	archive := buildZip(t, zipEntry{name: "conversations.json", data: doc})
	_, err = Demux(context.Background(), bytes.NewReader(archive[:len(archive)/3]), io.Discard, DemuxOptions{})
	if !errors.Is(err, ErrArchiveCorrupt) {
		t.Fatalf("truncated: err=%v, want ErrArchiveCorrupt", err)
	}
}

func TestDemux_StopsReadingOnceTargetIsDrained(t *testing.T) {
	t.Parallel()

	doc := []byte(`[{"title":"first"}]`)
	filler := bytes.Repeat([]byte("z"), 4<<20)

	first := buildZip(t,
		zipEntry{name: "conversations.json", data: doc},
		zipEntry{name: "dalle/big.bin", data: filler, stored: true},
	)
	last := buildZip(t,
		zipEntry{name: "dalle/big.bin", data: filler, stored: true},
		zipEntry{name: "conversations.json", data: doc},
	)

	readFirst := NewCountingReader(bytes.NewReader(first), 0, nil)
	if _, err := Demux(context.Background(), readFirst, io.Discard, DemuxOptions{}); err != nil {
		t.Fatalf("Demux(first): %v", err)
	}
	readLast := NewCountingReader(bytes.NewReader(last), 0, nil)
	if _, err := Demux(context.Background(), readLast, io.Discard, DemuxOptions{}); err != nil {
		t.Fatalf("Demux(last): %v", err)
	}

	if readFirst.N() > int64(2*demuxReadBuffer) {
		t.Fatalf("bytes read with target first=%d, want <= %d", readFirst.N(), 2*demuxReadBuffer)
	}
	if readLast.N() < int64(len(filler)) {
		t.Fatalf("bytes read with target last=%d, want >= %d", readLast.N(), len(filler))
	}
}

type failingWriter struct{ err error }

func (f failingWriter) Write([]byte) (int, error) { return 0, f.err }

func TestDemux_ReturnsConsumerWriteErrorUnwrapped(t *testing.T) {
	t.Parallel()

	archive := buildZip(t, zipEntry{name: "conversations.json", data: []byte(`[]`)})
	_, err := Demux(context.Background(), bytes.NewReader(archive), failingWriter{err: ErrQueueClosed}, DemuxOptions{})
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("err=%v, want ErrQueueClosed", err)
	}
	if errors.Is(err, ErrArchiveCorrupt) {
		t.Fatalf("consumer error reported as corrupt archive: %v", err)
	}
}

func TestDemux_HonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	archive := buildZip(t, zipEntry{name: "conversations.json", data: []byte(`[]`)})
	_, err := Demux(ctx, bytes.NewReader(archive), io.Discard, DemuxOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}

func TestDetectFileType(t *testing.T) {
	t.Parallel()

	if ft, err := DetectFileType("Export.ZIP"); err != nil || ft != FileTypeZip {
		t.Fatalf("zip: ft=%v err=%v", ft, err)
	}
	if ft, err := DetectFileType("conversations.json"); err != nil || ft != FileTypeJSON {
		t.Fatalf("json: ft=%v err=%v", ft, err)
	}
	if _, err := DetectFileType("notes.txt"); !errors.Is(err, ErrUnsupportedFileType) {
		t.Fatalf("txt: err=%v, want ErrUnsupportedFileType", err)
	}
}
