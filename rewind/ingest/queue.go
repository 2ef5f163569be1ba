package ingest

import (
	"io"
	"sync"
)

// Default queue watermarks.
const (
	DefaultHighWaterBytes = 16 << 20
	DefaultLowWaterBytes  = 8 << 20
)

// Queue is a bounded byte queue between the byte-producing side of the
// pipeline (reading, unzipping) and the parsing side. Writers are paused once
// more than HighWater bytes are buffered and resumed when the reader drains
// the queue to LowWater or below. A single write may overshoot HighWater by
// at most its own length.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	chunks [][]byte
	head   []byte

	buffered    int
	maxBuffered int
	high        int
	low         int
	paused      bool

	closed     bool
	closeErr   error
	readClosed bool
}

// NewQueue returns a queue with the given watermarks. Non-positive values
// fall back to the defaults; low is clamped to high.
func NewQueue(high, low int) *Queue {
	if high <= 0 {
		high = DefaultHighWaterBytes
	}
	if low <= 0 {
		low = DefaultLowWaterBytes
	}
	if low > high {
		low = high
	}
	q := &Queue{high: high, low: low}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Write copies p into the queue, blocking while the queue is paused.
func (q *Queue) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.paused && !q.readClosed && !q.closed {
		q.cond.Wait()
	}
	if q.readClosed {
		return 0, ErrQueueClosed
	}
	if q.closed {
		return 0, io.ErrClosedPipe
	}

	q.chunks = append(q.chunks, append([]byte(nil), p...))
	q.buffered += len(p)
	if q.buffered > q.maxBuffered {
		q.maxBuffered = q.buffered
	}
	if q.buffered > q.high {
		q.paused = true
	}
	q.cond.Broadcast()
	return len(p), nil
}

// CloseWithError marks the end of input. Readers drain what is buffered and
// then observe err, or io.EOF when err is nil. Only the first close counts.
func (q *Queue) CloseWithError(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.closeErr = err
	q.cond.Broadcast()
}

// Close is CloseWithError(nil).
func (q *Queue) Close() error {
	q.CloseWithError(nil)
	return nil
}

// Read implements io.Reader, blocking until data is buffered or the queue is
// closed.
func (q *Queue) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.head) == 0 && len(q.chunks) == 0 {
		if q.readClosed {
			return 0, io.ErrClosedPipe
		}
		if q.closed {
			if q.closeErr != nil {
				return 0, q.closeErr
			}
			return 0, io.EOF
		}
		q.cond.Wait()
	}

	if len(q.head) == 0 {
		q.head = q.chunks[0]
		q.chunks[0] = nil
		q.chunks = q.chunks[1:]
	}
	n := copy(p, q.head)
	q.head = q.head[n:]
	q.buffered -= n

	if q.paused && q.buffered <= q.low {
		q.paused = false
		q.cond.Broadcast()
	}
	return n, nil
}

// CloseRead abandons the queue from the reading side: buffered bytes are
// dropped and blocked or future writers get ErrQueueClosed.
func (q *Queue) CloseRead() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.readClosed = true
	q.chunks = nil
	q.head = nil
	q.buffered = 0
	q.paused = false
	q.cond.Broadcast()
}

// Abort closes both sides with err.
func (q *Queue) Abort(err error) {
	q.CloseWithError(err)
	q.CloseRead()
}

// Buffered reports the number of bytes written but not yet read.
func (q *Queue) Buffered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buffered
}

// MaxBuffered reports the high-water mark actually reached.
func (q *Queue) MaxBuffered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxBuffered
}

// Paused reports whether writers are currently held back.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}
