package rewind

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/theimaginaryfoundation/chat-rewind/rewind/ingest"
	"github.com/theimaginaryfoundation/chat-rewind/rewind/privacy"
)

// Phase is the coarse stage reported to Progress callbacks.
type Phase string

const (
	PhaseReading   Phase = "reading"
	PhaseUnzipping Phase = "unzipping"
	PhaseParsing   Phase = "parsing"
	PhaseDone      Phase = "done"
)

// Progress is advisory; nothing depends on it for correctness.
type Progress struct {
	Phase                  Phase `json:"phase"`
	BytesRead              int64 `json:"bytes_read"`
	TotalBytes             int64 `json:"total_bytes"`
	ConversationsProcessed int   `json:"conversations_processed"`
}

// Source is one uploaded export.
type Source struct {
	// Name decides the container format by suffix (.zip or .json).
	Name string
	// Size is the total byte count when known, for progress only.
	Size int64
	Body io.Reader
}

const (
	defaultChunkBytes    = 64 << 10
	defaultYieldEvery    = 25
	progressBytesEvery   = 1 << 20
	defaultPipelineTopN  = 10
	decodeErrorLogBudget = 5
)

// Options configures a Pipeline. The zero value is usable.
type Options struct {
	TargetFile     string
	HighWaterBytes int
	LowWaterBytes  int
	ChunkBytes     int

	// YieldEvery is how many conversations the consumer classifies between
	// cooperative yields.
	YieldEvery int

	Location     *time.Location
	LookbackDays int
	Now          func() time.Time

	TopN             int
	MinPhraseCount   int
	MinNicknameCount int
	MaxVocabulary    int

	Anonymizer privacy.Anonymizer
	Logger     *slog.Logger
	Progress   func(Progress)
	Metrics    *Metrics
}

// Pipeline turns exports into summaries. It holds configuration only;
// every run gets its own queue and accumulator, so one Pipeline may serve
// concurrent uploads.
type Pipeline struct {
	opts Options
}

func New(opts Options) *Pipeline {
	if opts.TargetFile == "" {
		opts.TargetFile = ingest.DefaultTargetFile
	}
	if opts.ChunkBytes <= 0 {
		opts.ChunkBytes = defaultChunkBytes
	}
	if opts.YieldEvery <= 0 {
		opts.YieldEvery = defaultYieldEvery
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TopN <= 0 {
		opts.TopN = defaultPipelineTopN
	}
	if opts.Anonymizer == nil {
		opts.Anonymizer = privacy.Default
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{opts: opts}
}

// Job is the result future of one run.
type Job struct {
	RunID string

	cancel  context.CancelFunc
	done    chan struct{}
	summary RewindSummary
	err     error
}

// Done is closed once the run has finished.
func (j *Job) Done() <-chan struct{} { return j.done }

// Cancel stops the run. Wait then reports context.Canceled.
func (j *Job) Cancel() { j.cancel() }

// Wait blocks until the run finishes or ctx is done. It returns either a
// complete summary or an error, never a partial summary.
func (j *Job) Wait(ctx context.Context) (RewindSummary, error) {
	select {
	case <-j.done:
		if j.err != nil {
			return RewindSummary{}, j.err
		}
		return j.summary, nil
	case <-ctx.Done():
		return RewindSummary{}, ctx.Err()
	}
}

// Run is Start followed by Wait.
func (p *Pipeline) Run(ctx context.Context, src Source) (RewindSummary, error) {
	job, err := p.Start(ctx, src)
	if err != nil {
		return RewindSummary{}, err
	}
	return job.Wait(ctx)
}

// Start validates the source and launches the run in the background. An
// unsupported file type fails here, before any byte of Body is read.
func (p *Pipeline) Start(ctx context.Context, src Source) (*Job, error) {
	if ctx == nil {
		return nil, errors.New("Pipeline.Start: ctx is nil")
	}
	if src.Body == nil {
		return nil, errors.New("Pipeline.Start: source body is nil")
	}
	ft, err := ingest.DetectFileType(src.Name)
	if err != nil {
		return nil, fmt.Errorf("Pipeline.Start: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	job := &Job{RunID: uuid.NewString(), cancel: cancel, done: make(chan struct{})}
	r := &run{
		p:     p,
		job:   job,
		src:   src,
		ft:    ft,
		log:   p.opts.Logger.With("run_id", job.RunID),
		agg:   p.newAggregator(),
		queue: ingest.NewQueue(p.opts.HighWaterBytes, p.opts.LowWaterBytes),
		now:   p.opts.Now(),
		start: time.Now(),
	}
	go func() {
		defer close(job.done)
		defer cancel()
		job.summary, job.err = r.execute(runCtx)
	}()
	return job, nil
}

func (p *Pipeline) newAggregator() *Aggregator {
	return NewAggregator(AggregateOptions{
		TopN:             p.opts.TopN,
		MinPhraseCount:   p.opts.MinPhraseCount,
		MinNicknameCount: p.opts.MinNicknameCount,
		MaxVocabulary:    p.opts.MaxVocabulary,
		Location:         p.opts.Location,
	})
}

// run is the state of one upload. Nothing in it is shared across runs.
type run struct {
	p     *Pipeline
	job   *Job
	src   Source
	ft    ingest.FileType
	log   *slog.Logger
	agg   *Aggregator
	queue *ingest.Queue
	now   time.Time
	start time.Time

	progressMu sync.Mutex
	phase      Phase
	bytesRead  int64
	processed  int

	// Owned by the consumer goroutine.
	folded     int
	decodeErrs int
}

func (r *run) report(update func(*run)) {
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	update(r)
	if fn := r.p.opts.Progress; fn != nil {
		fn(Progress{
			Phase:                  r.phase,
			BytesRead:              r.bytesRead,
			TotalBytes:             r.src.Size,
			ConversationsProcessed: r.processed,
		})
	}
}

func (r *run) execute(ctx context.Context) (RewindSummary, error) {
	r.log.Info("rewind run started", "source", r.src.Name, "file_type", r.ft.String(), "size", r.src.Size)

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() {
		r.queue.Abort(gctx.Err())
	})
	defer stop()

	g.Go(func() error { return r.produce(gctx) })
	g.Go(func() error { return r.consume(gctx) })

	err := g.Wait()
	if cerr := ctx.Err(); cerr != nil {
		err = cerr
	}
	if m := r.p.opts.Metrics; m != nil {
		m.QueueHighWater.Set(float64(r.queue.MaxBuffered()))
		m.RunDuration.Observe(time.Since(r.start).Seconds())
	}
	if err != nil {
		r.observeRun(err)
		r.log.Warn("rewind run failed", "error", err, "conversations", r.agg.Conversations())
		return RewindSummary{}, err
	}

	s := r.agg.Summary()
	s.RunID = r.job.RunID
	s.GeneratedAt = r.now
	w := Synthesize(s, WrappedOptions{Now: r.now})
	s.Wrapped = &w

	r.observeRun(nil)
	r.report(func(r *run) { r.phase = PhaseDone })
	r.log.Info("rewind run finished",
		"conversations", s.TotalConversations,
		"messages", s.TotalUserMessages,
		"active_days", s.ActiveDays,
		"skipped", s.SkippedConversations,
		"elapsed", time.Since(r.start).Round(time.Millisecond).String())
	return s, nil
}

// produce feeds raw document bytes into the queue. For archives only the
// target entry is forwarded and reading stops once it is drained.
func (r *run) produce(ctx context.Context) error {
	phase := PhaseReading
	if r.ft == ingest.FileTypeZip {
		phase = PhaseUnzipping
	}
	r.report(func(r *run) { r.phase = phase })

	src := ingest.NewCountingReader(ingest.ContextReader(ctx, r.src.Body), progressBytesEvery, func(total int64) {
		r.report(func(r *run) { r.bytesRead = total })
	})

	var err error
	switch r.ft {
	case ingest.FileTypeZip:
		var res ingest.DemuxResult
		res, err = ingest.Demux(ctx, src, r.queue, ingest.DemuxOptions{TargetSuffix: r.p.opts.TargetFile, Logger: r.log})
		if err == nil {
			r.log.Debug("archive entry extracted", "entry", res.EntryName, "skipped_entries", res.EntriesSkipped,
				"compressed", res.CompressedBytes, "uncompressed", res.UncompressedBytes)
		}
	default:
		_, err = io.CopyBuffer(r.queue, src, make([]byte, r.p.opts.ChunkBytes))
	}
	counted := src.N()
	r.report(func(r *run) { r.bytesRead = counted })
	if m := r.p.opts.Metrics; m != nil {
		m.BytesRead.Add(float64(counted))
	}

	if errors.Is(err, ingest.ErrQueueClosed) {
		// The consumer stopped first; its error is the one that matters.
		return nil
	}
	r.queue.CloseWithError(err)
	if err != nil {
		return fmt.Errorf("read export: %w", err)
	}
	return nil
}

// consume parses the queued document and folds each conversation.
func (r *run) consume(ctx context.Context) error {
	defer r.queue.CloseRead()

	copts := ClassifyOptions{Anonymizer: r.p.opts.Anonymizer, Location: r.p.opts.Location}
	if days := r.p.opts.LookbackDays; days > 0 {
		copts.Cutoff = r.now.AddDate(0, 0, -days)
	}

	parser := ingest.NewArrayParser(func(raw json.RawMessage) error {
		return r.fold(ctx, raw, copts)
	}, ingest.ArrayParserOptions{
		OnProgress: func(n int) {
			r.report(func(r *run) {
				r.phase = PhaseParsing
				r.processed = n
			})
		},
	})

	if _, err := io.CopyBuffer(parser, r.queue, make([]byte, r.p.opts.ChunkBytes)); err != nil {
		return fmt.Errorf("parse export: %w", err)
	}
	if err := parser.Close(); err != nil {
		return fmt.Errorf("parse export: %w", err)
	}
	return nil
}

func (r *run) fold(ctx context.Context, raw json.RawMessage, copts ClassifyOptions) error {
	m := r.p.opts.Metrics
	conv, err := DecodeConversation(raw)
	switch {
	case err != nil:
		r.agg.Skip()
		r.decodeErrs++
		if r.decodeErrs <= decodeErrorLogBudget {
			r.log.Debug("skipping conversation", "index", r.folded, "error", err)
		}
		if m != nil {
			m.Conversations.WithLabelValues("skipped").Inc()
		}
	default:
		cs, contrib, ok := Classify(conv, copts)
		if ok {
			r.agg.Add(cs, contrib)
		}
		if m != nil {
			result := "empty"
			if ok {
				result = "classified"
			}
			m.Conversations.WithLabelValues(result).Inc()
		}
	}

	r.folded++
	if r.folded%r.p.opts.YieldEvery == 0 {
		runtime.Gosched()
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) observeRun(err error) {
	m := r.p.opts.Metrics
	if m == nil {
		return
	}
	if err == nil {
		m.Runs.WithLabelValues("ok", "").Inc()
		return
	}
	m.Runs.WithLabelValues("error", ErrorKind(err)).Inc()
}

// ErrorKind maps a pipeline error to a short, stable label.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ingest.ErrArchiveTargetNotFound):
		return "archive_target_not_found"
	case errors.Is(err, ingest.ErrArchiveCorrupt):
		return "archive_corrupt"
	case errors.Is(err, ingest.ErrMalformedDocument):
		return "malformed_document"
	case errors.Is(err, ingest.ErrUnsupportedFileType):
		return "unsupported_file_type"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
