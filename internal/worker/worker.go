// Package worker runs deferred indexing work in the background: chunk
// embedding first, file summarization second. Two priority queues feed a
// single goroutine; embedding jobs for small files run before large
// ones so quick wins land early, summaries drain strictly FIFO.
package worker

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
)

// DefaultEmbedBatch is how many embedding jobs are drained per loop turn.
const DefaultEmbedBatch = 20

// summaryPriority is the uniform priority for summary jobs, making the
// summary queue effectively FIFO via the seq tiebreaker.
const summaryPriority = 100

// Jobs is the work the worker knows how to execute. The ingest pipeline
// implements it.
type Jobs interface {
	// EmbedFile chunks and embeds one file into the indexes.
	EmbedFile(ctx context.Context, path string) error
	// SummarizeFile generates and stores the file summary.
	SummarizeFile(ctx context.Context, path string) error
}

// Stats reports queue depths for /stats.
type Stats struct {
	EmbedQueue   int  `json:"embed_queue"`
	SummaryQueue int  `json:"summary_queue"`
	Paused       bool `json:"paused"`
}

// Worker drains the embed and summary queues on one goroutine.
type Worker struct {
	jobs       Jobs
	logger     *slog.Logger
	embedBatch int

	mu            sync.Mutex
	cond          *sync.Cond
	embedQ        queue
	summaryQ      queue
	queued        map[string]bool // paths in the embed queue
	queuedSummary map[string]bool // paths in the summary queue
	seq           uint64
	paused        bool
	running       bool
	stopped       bool
	doneCh        chan struct{}
	cancelRun     context.CancelFunc
}

// New creates a worker; Start must be called before it does anything.
func New(jobs Jobs, embedBatch int, logger *slog.Logger) *Worker {
	if embedBatch <= 0 {
		embedBatch = DefaultEmbedBatch
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		jobs:          jobs,
		logger:        logger,
		embedBatch:    embedBatch,
		queued:        make(map[string]bool),
		queuedSummary: make(map[string]bool),
		doneCh:        make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// EnqueueEmbed queues a file for embedding. Priority is the chunk count;
// smaller files jump the line. Re-queuing a path already waiting is a
// no-op.
func (w *Worker) EnqueueEmbed(path string, chunkCount int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped || w.queued[path] {
		return
	}
	w.seq++
	heap.Push(&w.embedQ, &item{path: path, priority: chunkCount, seq: w.seq})
	w.queued[path] = true
	w.cond.Broadcast()
}

// EnqueueSummary queues a file for summarization, FIFO. Re-queuing a
// path already waiting is a no-op.
func (w *Worker) EnqueueSummary(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped || w.queuedSummary[path] {
		return
	}
	w.seq++
	heap.Push(&w.summaryQ, &item{path: path, priority: summaryPriority, seq: w.seq})
	w.queuedSummary[path] = true
	w.cond.Broadcast()
}

// Pause stops the worker after its current job. Queued work is retained.
func (w *Worker) Pause() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paused = true
}

// Resume continues draining the queues.
func (w *Worker) Resume() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paused = false
	w.cond.Broadcast()
}

// Stats returns queue depths.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		EmbedQueue:   w.embedQ.Len(),
		SummaryQueue: w.summaryQ.Len(),
		Paused:       w.paused,
	}
}

// Start launches the worker loop. Calling Start twice is a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running || w.stopped {
		w.mu.Unlock()
		return
	}
	w.running = true
	runCtx, cancel := context.WithCancel(ctx)
	w.cancelRun = cancel
	w.mu.Unlock()

	// Wake the cond loop when the context dies.
	go func() {
		<-runCtx.Done()
		w.mu.Lock()
		w.stopped = true
		w.cond.Broadcast()
		w.mu.Unlock()
	}()

	go w.run(runCtx)
}

// Stop halts the loop and waits for the in-flight job to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.stopped = true
		w.mu.Unlock()
		return
	}
	cancel := w.cancelRun
	w.mu.Unlock()

	cancel()
	<-w.doneCh
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		batch, summary, ok := w.next()
		if !ok {
			return
		}

		for _, it := range batch {
			if ctx.Err() != nil {
				return
			}
			if err := w.jobs.EmbedFile(ctx, it.path); err != nil {
				w.logger.Warn("embed job failed",
					slog.String("path", it.path), slog.String("error", err.Error()))
			}
		}

		if summary != nil {
			if ctx.Err() != nil {
				return
			}
			if err := w.jobs.SummarizeFile(ctx, summary.path); err != nil {
				w.logger.Warn("summary job failed",
					slog.String("path", summary.path), slog.String("error", err.Error()))
			}
		}
	}
}

// next blocks until work is available, then returns either an embed
// batch or one summary job. Embedding always wins over summaries. The
// second return is the summary job; ok=false means the worker stopped.
func (w *Worker) next() (batch []*item, summary *item, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for {
		if w.stopped {
			return nil, nil, false
		}
		if !w.paused {
			if w.embedQ.Len() > 0 {
				n := w.embedBatch
				if w.embedQ.Len() < n {
					n = w.embedQ.Len()
				}
				batch = make([]*item, 0, n)
				for i := 0; i < n; i++ {
					it := heap.Pop(&w.embedQ).(*item)
					delete(w.queued, it.path)
					batch = append(batch, it)
				}
				return batch, nil, true
			}
			if w.summaryQ.Len() > 0 {
				it := heap.Pop(&w.summaryQ).(*item)
				delete(w.queuedSummary, it.path)
				return nil, it, true
			}
		}
		w.cond.Wait()
	}
}
