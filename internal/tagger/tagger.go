// Package tagger assigns sequential tag numbers to newly detected defects
// in detection order, burns the number into each defect image and records
// both on the defect row.
package tagger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"glassmon/internal/annotate"
	"glassmon/internal/metrics"
	"glassmon/internal/storage"
	"glassmon/internal/store"
)

const (
	DefaultInterval    = 10 * time.Second
	defaultItemTimeout = time.Minute
)

type Options struct {
	Store store.DefectStore
	// Objects may be nil, in which case defects are tagged without an
	// annotated image.
	Objects   storage.ObjectStore
	Annotator annotate.Annotator
	Fetcher   *Fetcher
	Logger    *slog.Logger
	Metrics   *metrics.Metrics

	Interval    time.Duration
	BatchSize   int
	ItemTimeout time.Duration
}

type Tagger struct {
	watcher   watcher
	persister persister
	annotator annotate.Annotator
	fetcher   *Fetcher
	logger    *slog.Logger
	metrics   *metrics.Metrics

	interval    time.Duration
	itemTimeout time.Duration
	images      bool

	mu sync.Mutex
}

// Result summarizes one pass.
type Result struct {
	Scanned   int
	Tagged    int
	Annotated int
	// Failed counts rows whose update failed; they stay untagged and are
	// numbered again on a later pass.
	Failed  int
	LastTag int64
}

func New(opts Options) *Tagger {
	t := &Tagger{
		watcher:     watcher{store: opts.Store, batchSize: opts.BatchSize},
		persister:   persister{store: opts.Store, objects: opts.Objects},
		annotator:   opts.Annotator,
		fetcher:     opts.Fetcher,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		interval:    opts.Interval,
		itemTimeout: opts.ItemTimeout,
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.annotator == nil {
		t.annotator = annotate.Nop{}
	}
	if t.fetcher == nil {
		t.fetcher = NewFetcher(DefaultDownloadTimeout)
	}
	if t.interval <= 0 {
		t.interval = DefaultInterval
	}
	if t.itemTimeout <= 0 {
		t.itemTimeout = defaultItemTimeout
	}
	_, nop := t.annotator.(annotate.Nop)
	t.images = opts.Objects != nil && !nop
	if !t.images {
		t.logger.Info("tagged images disabled, defects will be tagged without annotation",
			"object_storage", opts.Objects != nil, "annotator", !nop)
	}
	return t
}

// Run performs a pass immediately and then every interval until ctx is
// cancelled. Pass failures are logged and retried on the next tick.
func (t *Tagger) Run(ctx context.Context) error {
	t.logger.Info("tagger started", "interval", t.interval.String())
	every(ctx, t.interval, func(ctx context.Context) {
		res, err := t.RunOnce(ctx)
		if err != nil {
			t.logger.Error("tagging pass failed", "err", err)
			return
		}
		if res.Scanned > 0 {
			t.logger.Info("tagging pass complete",
				"scanned", res.Scanned, "tagged", res.Tagged, "annotated", res.Annotated,
				"failed", res.Failed, "last_tag", res.LastTag)
		}
	})
	t.logger.Info("tagger stopped")
	return nil
}

// RunOnce tags every currently untagged defect. Passes never overlap within
// a process.
func (t *Tagger) RunOnce(ctx context.Context) (Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var res Result
	batch, err := t.watcher.poll(ctx)
	if err != nil {
		t.countRun("error")
		return res, err
	}
	res.Scanned = len(batch)
	if len(batch) == 0 {
		t.countRun("idle")
		return res, nil
	}

	maxTag, err := t.watcher.store.MaxTagNumber(ctx)
	if err != nil {
		t.countRun("error")
		return res, fmt.Errorf("max tag number: %w", err)
	}

	for _, a := range Assign(batch, maxTag) {
		if ctx.Err() != nil {
			break
		}
		annotated, err := t.process(ctx, a)
		if err != nil {
			res.Failed++
			t.countFailure("update")
			t.logger.Error("tag update failed",
				"defect_id", a.Defect.ID, "tag_number", a.Tag, "err", err)
			continue
		}
		res.Tagged++
		res.LastTag = a.Tag
		if annotated {
			res.Annotated++
		}
	}

	if res.Failed > 0 {
		t.countRun("partial")
	} else {
		t.countRun("ok")
	}
	return res, nil
}

// process runs one defect through the pipeline. Image failures are logged
// and the tag is committed without a tagged image; only the row update
// error is returned.
func (t *Tagger) process(parent context.Context, a Assignment) (bool, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), t.itemTimeout)
	defer cancel()

	var taggedURL *string
	if t.images && a.Defect.HasImage() {
		url, stage, err := t.render(ctx, a)
		switch {
		case err == nil:
			taggedURL = &url
		case errors.Is(err, annotate.ErrUnavailable):
			t.logger.Debug("annotation unavailable", "defect_id", a.Defect.ID, "tag_number", a.Tag)
		default:
			t.countFailure(stage)
			t.logger.Warn("tagged image failed, committing tag only",
				"defect_id", a.Defect.ID, "tag_number", a.Tag, "stage", stage, "err", err)
		}
	}

	if err := t.persister.commit(ctx, a, taggedURL); err != nil {
		return false, err
	}
	if t.metrics != nil {
		t.metrics.TagsAssigned.Inc()
		t.metrics.LastTagAssigned.Set(float64(a.Tag))
		if taggedURL != nil {
			t.metrics.ItemsAnnotated.Inc()
		}
	}
	t.logger.Info("defect tagged", "defect_id", a.Defect.ID, "tag_number", a.Tag, "annotated", taggedURL != nil)
	return taggedURL != nil, nil
}

// render downloads, annotates and uploads the defect image. It reports the
// stage that failed.
func (t *Tagger) render(ctx context.Context, a Assignment) (string, string, error) {
	src, err := t.fetcher.Fetch(ctx, *a.Defect.ImageURL)
	if err != nil {
		return "", "download", err
	}
	img, err := t.annotator.Annotate(src, a.Tag)
	if err != nil {
		return "", "annotate", fmt.Errorf("annotate: %w", err)
	}
	url, err := t.persister.upload(ctx, a, img)
	if err != nil {
		return "", "upload", err
	}
	return url, "", nil
}

func (t *Tagger) countRun(outcome string) {
	if t.metrics != nil {
		t.metrics.TaggerRuns.WithLabelValues(outcome).Inc()
	}
}

func (t *Tagger) countFailure(stage string) {
	if t.metrics != nil {
		t.metrics.ItemFailures.WithLabelValues(stage).Inc()
	}
}
