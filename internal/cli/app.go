package cli

import (
	"errors"
	"log/slog"

	"glassmon/internal/annotate"
	"glassmon/internal/config"
	"glassmon/internal/framecache"
	"glassmon/internal/metrics"
	"glassmon/internal/storage"
	"glassmon/internal/store"
	"glassmon/internal/tagger"
)

var errNoDatabase = errors.New("DATABASE_URL is not set")

// newFrameCache returns the Redis backed cache when REDIS_ADDR is set and
// the in-process one otherwise, plus a cleanup func.
func newFrameCache(cfg config.Config, logger *slog.Logger) (framecache.Store, func()) {
	if cfg.RedisAddr == "" {
		logger.Info("frame cache in memory", "ttl", cfg.FrameCacheTTL().String())
		return framecache.NewMemoryStore(cfg.FrameCacheTTL()), func() {}
	}
	rs := framecache.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.FrameCacheTTL())
	logger.Info("frame cache in redis", "addr", cfg.RedisAddr, "ttl", cfg.FrameCacheTTL().String())
	return rs, func() {
		if err := rs.Close(); err != nil {
			logger.Warn("close redis", "err", err)
		}
	}
}

// newTagger connects the defect store and, when configured, object storage.
// Missing object storage or annotation support degrades to tag-only.
func newTagger(cfg config.Config, logger *slog.Logger, m *metrics.Metrics) (*tagger.Tagger, func(), error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, errNoDatabase
	}
	st, err := store.NewGormStore(cfg.DatabaseURL, store.GormOptions{AutoMigrate: cfg.DatabaseAutoMigrate})
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := st.Close(); err != nil {
			logger.Warn("close database", "err", err)
		}
	}

	var objects storage.ObjectStore
	switch {
	case !cfg.StorageConfigured():
		logger.Info("object storage not configured, tagged images disabled")
	default:
		ms, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:      cfg.StorageEndpoint,
			AccessKey:     cfg.StorageAccessKey,
			SecretKey:     cfg.StorageSecretKey,
			Bucket:        cfg.StorageBucket,
			UseSSL:        cfg.StorageUseSSL,
			PublicBaseURL: cfg.StoragePublicBaseURL,
		})
		if err != nil {
			logger.Warn("object storage misconfigured, tagged images disabled", "err", err)
			break
		}
		objects = ms
	}

	ann, err := annotate.New(cfg.AnnotateEnabled)
	if err != nil {
		logger.Info("image annotation disabled", "reason", err.Error())
	}

	t := tagger.New(tagger.Options{
		Store:     st,
		Objects:   objects,
		Annotator: ann,
		Fetcher:   tagger.NewFetcher(cfg.DownloadTimeout()),
		Logger:    logger,
		Metrics:   m,
		Interval:  cfg.PollInterval(),
		BatchSize: cfg.TaggerBatchSize,
	})
	return t, cleanup, nil
}
