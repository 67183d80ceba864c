package metrics

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/bandit/internal/logging"
	"github.com/aretw0/bandit/pkg/domain"
	"github.com/aretw0/bandit/pkg/ports"
)

// ErrClosed is returned by Flush after a final flush.
var ErrClosed = errors.New("metrics batcher closed")

const (
	DefaultBatchSize    = 50
	DefaultWriteTimeout = 5 * time.Second
)

// Batcher queues events in memory and writes them in batches.
// A full batch triggers a background write; Flush writes synchronously.
type Batcher struct {
	writer   ports.EventWriter
	size     int
	maxQueue int
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	pending []domain.MetricEvent
	closed  bool
	dropped int

	writeMu sync.Mutex // keeps batches in order
	kick    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

// BatcherOption configures a Batcher.
type BatcherOption func(*Batcher)

// WithBatchSize sets how many events trigger a background write.
func WithBatchSize(n int) BatcherOption {
	return func(b *Batcher) {
		if n > 0 {
			b.size = n
		}
	}
}

// WithFlushInterval enables periodic background writes.
func WithFlushInterval(d time.Duration) BatcherOption {
	return func(b *Batcher) {
		b.interval = d
	}
}

// WithLogger sets the logger used for write failures and drops.
func WithLogger(logger *slog.Logger) BatcherOption {
	return func(b *Batcher) {
		b.logger = logger
	}
}

// WithClock overrides time.Now for event timestamps.
func WithClock(now func() time.Time) BatcherOption {
	return func(b *Batcher) {
		b.now = now
	}
}

// NewBatcher starts a Batcher writing to w.
// The queue is bounded at ten batches; beyond that the oldest events are dropped.
func NewBatcher(w ports.EventWriter, opts ...BatcherOption) *Batcher {
	b := &Batcher{
		writer: w,
		size:   DefaultBatchSize,
		logger: logging.NewNop(),
		now:    time.Now,
		kick:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.maxQueue = b.size * 10

	b.wg.Add(1)
	go b.loop()
	return b
}

// SinkEvent queues one event. It never blocks on the writer.
func (b *Batcher) SinkEvent(snap domain.Snapshot, name string) {
	ev := domain.NewMetricEvent(snap, name, b.now())

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Warn("metric dropped after final flush", "event", name, "site", ev.Site, "variant", ev.Variant)
		return
	}
	b.pending = append(b.pending, ev)
	b.trimLocked()
	full := len(b.pending) >= b.size
	b.mu.Unlock()

	if full {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of queued events.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Dropped returns how many events were discarded because the queue was full.
func (b *Batcher) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Flush writes every queued event. With final set the background loop stops
// and later events are dropped.
func (b *Batcher) Flush(ctx context.Context, final bool) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if final {
		b.closed = true
		close(b.done)
	}
	b.mu.Unlock()

	if final {
		b.wg.Wait()
	}
	return b.write(ctx)
}

func (b *Batcher) loop() {
	defer b.wg.Done()

	var tick <-chan time.Time
	if b.interval > 0 {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-b.done:
			return
		case <-b.kick:
		case <-tick:
		}

		ctx, cancel := context.WithTimeout(context.Background(), DefaultWriteTimeout)
		if err := b.write(ctx); err != nil {
			b.logger.Warn("background metrics write failed", "err", err)
		}
		cancel()
	}
}

// write takes the queue and hands it to the writer. On failure the batch is
// put back in front of anything queued meanwhile.
func (b *Batcher) write(ctx context.Context) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := b.writer.WriteEvents(ctx, batch); err != nil {
		b.mu.Lock()
		b.pending = append(batch, b.pending...)
		b.trimLocked()
		b.mu.Unlock()
		return err
	}
	return nil
}

func (b *Batcher) trimLocked() {
	if over := len(b.pending) - b.maxQueue; over > 0 {
		b.pending = b.pending[over:]
		b.dropped += over
		b.logger.Warn("metrics queue full, dropping oldest events", "dropped", over)
	}
}
