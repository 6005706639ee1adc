package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"glassmon/internal/framecache"
	"glassmon/internal/logging"
	"glassmon/internal/metrics"
	"glassmon/internal/registry"
	"glassmon/internal/relay"
	"glassmon/internal/server"
)

// ServeCmd runs the socket relay, the HTTP API and the tagging pipeline
// until interrupted.
func ServeCmd(load loadFunc) *cobra.Command {
	var noTagger bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server and the defect tagger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger := logging.Init(cfg.LogLevel)
			gin.SetMode(cfg.GinMode)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := metrics.New()
			frames, closeFrames := newFrameCache(cfg, logger)
			defer closeFrames()
			frameWriter := framecache.NewWriter(frames, logger)

			rl := relay.New(registry.New(logger), relay.Options{
				Logger:  logger,
				Metrics: m,
				Frames:  frameWriter,
			})
			router := server.NewRouter(server.Deps{
				Relay:   rl,
				Frames:  frames,
				Metrics: m,
				Logger:  logger,
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return server.Run(gctx, cfg, router) })
			g.Go(func() error { return frameWriter.Run(gctx) })

			switch {
			case noTagger || !cfg.TaggerEnabled:
				logger.Info("tagger disabled")
			default:
				t, cleanup, err := newTagger(cfg, logger, m)
				switch {
				case errors.Is(err, errNoDatabase):
					logger.Warn("tagger disabled", "reason", err.Error())
				case err != nil:
					logger.Error("tagger disabled, defect store unavailable", "err", err)
				default:
					defer cleanup()
					g.Go(func() error { return t.Run(gctx) })
				}
			}

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
	cmd.Flags().BoolVar(&noTagger, "no-tagger", false, "run the relay without the defect tagger")
	return cmd
}
