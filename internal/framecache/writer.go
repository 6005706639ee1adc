package framecache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"glassmon/internal/model"
)

const putTimeout = 2 * time.Second

// Writer moves frames from the relay into a Store without ever blocking
// the relay. Each device has a single pending slot; a newer frame replaces
// an unflushed older one.
type Writer struct {
	store  Store
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]model.FrameEnvelope
	wake    chan struct{}

	overwritten atomic.Uint64
}

func NewWriter(store Store, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		store:   store,
		logger:  logger,
		pending: make(map[string]model.FrameEnvelope),
		wake:    make(chan struct{}, 1),
	}
}

func (w *Writer) Publish(deviceID string, frame model.FrameEnvelope) {
	w.mu.Lock()
	if _, ok := w.pending[deviceID]; ok {
		w.overwritten.Add(1)
	}
	w.pending[deviceID] = frame
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Overwritten reports how many pending frames were replaced before they
// reached the store.
func (w *Writer) Overwritten() uint64 {
	return w.overwritten.Load()
}

// Run flushes pending frames until ctx is done, then performs a final
// flush.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.Flush(context.Background())
			return nil
		case <-w.wake:
			w.Flush(ctx)
		}
	}
}

func (w *Writer) Flush(ctx context.Context) {
	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string]model.FrameEnvelope, len(batch))
	w.mu.Unlock()

	for deviceID, frame := range batch {
		putCtx, cancel := context.WithTimeout(ctx, putTimeout)
		if err := w.store.Put(putCtx, deviceID, frame); err != nil {
			w.logger.Warn("frame cache put failed", "device_id", deviceID, "err", err)
		}
		cancel()
	}
}
