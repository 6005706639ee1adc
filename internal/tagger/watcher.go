package tagger

import (
	"context"
	"fmt"
	"time"

	"glassmon/internal/model"
	"glassmon/internal/store"
)

type watcher struct {
	store     store.DefectStore
	batchSize int
}

func (w watcher) poll(ctx context.Context) ([]model.Defect, error) {
	batch, err := w.store.ListUntagged(ctx, w.batchSize)
	if err != nil {
		return nil, fmt.Errorf("list untagged: %w", err)
	}
	return batch, nil
}

// every calls fn immediately and then on each tick until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
