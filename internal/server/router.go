package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"glassmon/internal/framecache"
	"glassmon/internal/handler"
	"glassmon/internal/metrics"
	"glassmon/internal/middleware"
	"glassmon/internal/relay"
	"glassmon/internal/socketio"
)

type Deps struct {
	Relay   *relay.Relay
	Frames  framecache.Store
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// FrameLimiter guards the latest-frame endpoint; a default of 60
	// requests per minute per client is used when nil.
	FrameLimiter *middleware.RateLimiter
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	sio := socketio.NewServer(deps.Relay, socketio.Options{Logger: deps.Logger})
	r.GET("/socket.io", gin.WrapH(sio))
	r.GET("/socket.io/", gin.WrapH(sio))

	limiter := deps.FrameLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(60, time.Minute)
	}
	deviceHandler := &handler.DeviceHandler{Registry: deps.Relay.Registry(), Frames: deps.Frames, Logger: deps.Logger}
	v1 := r.Group("/v1")
	v1.GET("/devices", deviceHandler.List)
	v1.GET("/devices/:id/frame", middleware.RateLimitMiddleware(limiter), deviceHandler.LatestFrame)

	return r
}
