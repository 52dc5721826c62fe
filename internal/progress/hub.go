package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls buffering and batching for the Hub.
//   - BufferSize: size of the internal channel (default 4096).
//   - MaxBatchEvents: flush once this many events queue (default 1000).
//   - MaxBatchWait: flush after this duration even if the batch is small (default 500ms).
//   - SinkTimeout: per-sink timeout while flushing (default 10s).
//   - BaseContext: parent context passed to sink calls (defaults to context.Background()).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	SinkTimeout    time.Duration
	BaseContext    context.Context
	Logger         *zap.Logger
}

const (
	defaultBufferSize     = 4096
	defaultMaxBatchEvents = 1000
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	dropLogInterval       = 5 * time.Second
)

// Hub aggregates Event streams and fans them out to registered sinks. Page
// events batch up to amortize sink calls under crawl load; lifecycle events
// are low-volume and flush the pending batch immediately so run state
// transitions reach subscribers without batching delay. Emit never blocks:
// when the buffer is full the event is dropped and charged to its run.
type Hub struct {
	cfg    Config
	sinks  []Sink
	events chan Event
	stopCh chan struct{}
	doneCh chan struct{}
	logger *zap.Logger
	closed atomic.Bool

	dropMu      sync.Mutex
	dropsByRun  map[string]int64
	lastDropLog time.Time

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub initializes a Hub and starts the background batching goroutine using
// the supplied sinks. The returned Hub is immediately ready to accept events.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:    cfg,
		sinks:  append([]Sink(nil), sinks...),
		events: make(chan Event, cfg.BufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: logger,
	}
	go h.run()
	return h
}

// Emit enqueues an Event for batching. It never blocks; if the buffer is full
// the event is dropped, counted against its run, and a rate-limited warning
// is logged.
func (h *Hub) Emit(evt Event) {
	if h == nil {
		return
	}
	if h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
	default:
		h.recordDrop(evt.JobID)
	}
}

// Dropped returns how many events the given run has lost to backpressure.
func (h *Hub) Dropped(jobID string) int64 {
	if h == nil {
		return 0
	}
	h.dropMu.Lock()
	defer h.dropMu.Unlock()
	return h.dropsByRun[jobID]
}

func (h *Hub) recordDrop(jobID string) {
	h.dropMu.Lock()
	defer h.dropMu.Unlock()
	if h.dropsByRun == nil {
		h.dropsByRun = make(map[string]int64)
	}
	h.dropsByRun[jobID]++

	now := time.Now()
	if now.Sub(h.lastDropLog) < dropLogInterval {
		return
	}
	h.lastDropLog = now
	var total int64
	for _, n := range h.dropsByRun {
		total += n
	}
	h.logger.Warn("progress events dropped due to backpressure",
		zap.Int64("dropped_total", total),
		zap.Int("runs_affected", len(h.dropsByRun)),
	)
}

// Close drains remaining events, flushes sinks, and blocks until the background
// goroutine exits. It is safe to call multiple times; subsequent calls are
// ignored once shutdown begins.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	ticker := time.NewTicker(h.cfg.MaxBatchWait)
	defer ticker.Stop()

	batch := make([]Event, 0, h.cfg.MaxBatchEvents)
	for {
		select {
		case evt := <-h.events:
			batch = append(batch, evt)
			if evt.Stage.Lifecycle() || len(batch) >= h.cfg.MaxBatchEvents {
				h.flush(batch)
				batch = batch[:0]
				ticker.Reset(h.cfg.MaxBatchWait)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				h.flush(batch)
				batch = batch[:0]
			}
		case <-h.stopCh:
			h.drain(batch)
			return
		}
	}
}

// drain empties the buffer, flushes what remains and closes the sinks.
func (h *Hub) drain(batch []Event) {
	for {
		select {
		case evt := <-h.events:
			batch = append(batch, evt)
			if len(batch) >= h.cfg.MaxBatchEvents {
				h.flush(batch)
				batch = batch[:0]
			}
		default:
			h.flush(batch)
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) flush(batch []Event) {
	if len(batch) == 0 {
		return
	}
	out := append([]Event(nil), batch...)
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx := h.cfg.BaseContext
		cancel := func() {}
		if h.cfg.SinkTimeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, h.cfg.SinkTimeout)
		}
		if err := sink.Consume(ctx, out); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
