package admission

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hpungsan/feedvault/internal/errors"
	"github.com/hpungsan/feedvault/internal/metrics"
)

// Processor handles one admitted item. An error wrapping ErrSkip reports
// that the item was a no-op rather than a failure.
type Processor[T any] func(ctx context.Context, item T) error

// ErrSkip marks a processed item that needed no work.
var ErrSkip = stderrors.New("admission: item skipped")

// Outcome describes what Submit did with an item.
type Outcome struct {
	// Admitted means the item was processed before Submit returned.
	Admitted bool `json:"admitted"`

	// Queued means the item is waiting for a drain pass.
	Queued bool `json:"queued"`

	// Dropped is how many older queued items were evicted to make room.
	Dropped int `json:"dropped,omitempty"`
}

// QueueConfig tunes a Queue. Zero values take defaults.
type QueueConfig struct {
	MaxLength     int
	DrainInterval time.Duration
	StaleAfter    time.Duration
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
	Now           func() time.Time
}

func (c *QueueConfig) defaults() {
	if c.MaxLength <= 0 {
		c.MaxLength = 50
	}
	if c.DrainInterval <= 0 {
		c.DrainInterval = 3 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

type entry[T any] struct {
	item       T
	enqueuedAt time.Time
}

// Queue is a bounded FIFO in front of a Limiter. When full, the oldest item
// is dropped. The drain goroutine starts on the first enqueue and exits when
// the queue empties.
type Queue[T any] struct {
	cfg     QueueConfig
	limiter *Limiter
	process Processor[T]
	logger  *slog.Logger

	mu      sync.Mutex
	items   []entry[T]
	running bool
	closed  bool

	// ctx is the processing context for queued items; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue creates a queue that hands admitted items to process.
func NewQueue[T any](limiter *Limiter, process Processor[T], cfg QueueConfig) *Queue[T] {
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue[T]{
		cfg:     cfg,
		limiter: limiter,
		process: process,
		logger:  cfg.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Submit processes item immediately if the queue is empty and the limiter
// admits it, returning the processing error. Otherwise item is queued.
func (q *Queue[T]) Submit(ctx context.Context, item T) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, errors.NewCancelled("submit")
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return Outcome{}, errors.NewQueueClosed()
	}

	if len(q.items) == 0 && q.limiter.Allow() {
		q.mu.Unlock()
		return Outcome{Admitted: true}, q.process(ctx, item)
	}

	dropped := 0
	if len(q.items) >= q.cfg.MaxLength {
		dropped = len(q.items) - q.cfg.MaxLength + 1
		var zero entry[T]
		for i := 0; i < dropped; i++ {
			q.items[i] = zero
		}
		q.items = q.items[dropped:]
	}
	q.items = append(q.items, entry[T]{item: item, enqueuedAt: q.cfg.Now()})
	depth := len(q.items)

	if !q.running {
		q.running = true
		q.wg.Add(1)
		go q.loop()
	}
	q.mu.Unlock()

	q.cfg.Metrics.SetQueueDepth(depth)
	if dropped > 0 {
		q.cfg.Metrics.Dropped("overflow", dropped)
		q.logger.Warn("admission: queue full, dropped oldest", "dropped", dropped, "max", q.cfg.MaxLength)
	}
	q.logger.Debug("admission: queued", "depth", depth)

	return Outcome{Queued: true, Dropped: dropped}, nil
}

// loop drains on every tick until the queue is empty or the queue is closed.
func (q *Queue[T]) loop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.Drain(q.ctx)

			q.mu.Lock()
			if len(q.items) == 0 || q.closed {
				q.running = false
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
		}
	}
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Processed int
	Stale     int
	Remaining int
}

// Drain runs one pass: stale items at the head are discarded, then items are
// processed oldest first while the limiter admits them. Processing errors are
// logged and do not stop the pass.
func (q *Queue[T]) Drain(ctx context.Context) DrainResult {
	var res DrainResult
	for ctx.Err() == nil {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			break
		}
		head := q.items[0]
		if q.cfg.Now().Sub(head.enqueuedAt) > q.cfg.StaleAfter {
			q.pop()
			q.mu.Unlock()
			res.Stale++
			continue
		}
		if !q.limiter.Allow() {
			q.mu.Unlock()
			break
		}
		q.pop()
		q.mu.Unlock()

		if err := q.process(ctx, head.item); err != nil && !stderrors.Is(err, ErrSkip) {
			q.logger.Warn("admission: queued item failed", "error", err)
		}
		res.Processed++
	}

	q.mu.Lock()
	res.Remaining = len(q.items)
	q.mu.Unlock()

	q.cfg.Metrics.SetQueueDepth(res.Remaining)
	q.cfg.Metrics.Dropped("stale", res.Stale)
	if res.Stale > 0 {
		q.logger.Info("admission: discarded stale items", "count", res.Stale)
	}
	return res
}

// pop removes the head. Caller holds mu.
func (q *Queue[T]) pop() {
	var zero entry[T]
	q.items[0] = zero
	q.items = q.items[1:]
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Status is the limiter view plus the queue depth.
type Status struct {
	LimiterStatus
	QueueLength int `json:"queueLength"`
}

// Status reports limiter occupancy and queue depth.
func (q *Queue[T]) Status() Status {
	return Status{LimiterStatus: q.limiter.Status(), QueueLength: q.Len()}
}

// Close rejects further submissions, stops the drain goroutine and waits for
// it to exit. Items still queued are discarded. Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	discarded := len(q.items)
	q.items = nil
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()

	if discarded > 0 {
		q.logger.Info("admission: closed with queued items", "discarded", discarded)
	}
}
