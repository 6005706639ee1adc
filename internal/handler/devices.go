package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"glassmon/internal/framecache"
	"glassmon/internal/model"
	"glassmon/internal/registry"
)

type DeviceHandler struct {
	Registry *registry.Registry
	// Frames may be nil when the latest-frame cache is disabled.
	Frames framecache.Store
	Logger *slog.Logger
}

func (h *DeviceHandler) List(c *gin.Context) {
	devices := h.Registry.List(model.RoleDevice)
	resp := make([]gin.H, 0, len(devices))
	for _, d := range devices {
		resp = append(resp, gin.H{
			"socketId": d.SocketID,
			"deviceId": d.DeviceID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"devices": resp})
}

func (h *DeviceHandler) LatestFrame(c *gin.Context) {
	if h.Frames == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Frame cache disabled"})
		return
	}

	deviceID := c.Param("id")
	frame, ok, err := h.Frames.Get(c.Request.Context(), deviceID)
	if err != nil {
		h.logger().Error("read cached frame", "device_id", deviceID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Frame cache unavailable"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No recent frame"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"frame": frame})
}

func (h *DeviceHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}
