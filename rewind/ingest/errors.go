package ingest

import "errors"

// Terminal ingestion failures. Callers match them with errors.Is; the wrapped
// message carries the step that failed.
var (
	// ErrArchiveTargetNotFound means the archive was read to its central
	// directory without any entry matching the target filename.
	ErrArchiveTargetNotFound = errors.New("archive target not found")

	// ErrArchiveCorrupt means the archive could not be walked or the target
	// entry could not be decompressed.
	ErrArchiveCorrupt = errors.New("archive corrupt")

	// ErrMalformedDocument means the conversations document is not a
	// well-formed top-level JSON array of objects.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrUnsupportedFileType means the upload is neither an archive nor a
	// plain JSON document.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrQueueClosed is returned to a producer after the consumer abandoned
	// the queue.
	ErrQueueClosed = errors.New("queue closed")
)
