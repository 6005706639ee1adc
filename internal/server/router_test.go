package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"glassmon/internal/framecache"
	"glassmon/internal/metrics"
	"glassmon/internal/middleware"
	"glassmon/internal/model"
	"glassmon/internal/registry"
	"glassmon/internal/relay"
)

// syncFrames writes published frames straight into the cache.
type syncFrames struct {
	store framecache.Store
}

func (s syncFrames) Publish(deviceID string, frame model.FrameEnvelope) {
	_ = s.store.Put(context.Background(), deviceID, frame)
}

type testEnv struct {
	router  *gin.Engine
	relay   *relay.Relay
	frames  *framecache.MemoryStore
	metrics *metrics.Metrics
	limiter *middleware.RateLimiter
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	frames := framecache.NewMemoryStore(time.Minute)
	m := metrics.New()
	rl := relay.New(registry.New(logger), relay.Options{Logger: logger, Metrics: m, Frames: syncFrames{store: frames}})
	limiter := middleware.NewRateLimiter(3, time.Minute)
	r := NewRouter(Deps{Relay: rl, Frames: frames, Metrics: m, Logger: logger, FrameLimiter: limiter})
	return testEnv{router: r, relay: rl, frames: frames, metrics: m, limiter: limiter}
}

func get(t *testing.T, r http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

type discardWriter struct{}

func (discardWriter) WriteEvent(string, json.RawMessage) error { return nil }
func (discardWriter) Close() error                            { return nil }

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := get(t, env.router, "/health")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("health = %d %s", w.Code, w.Body.String())
	}
}

func TestDevicesList(t *testing.T) {
	env := newTestEnv(t)
	env.relay.Connect("s-1", discardWriter{})
	env.relay.RegisterDevice("s-1", "cam-1")
	env.relay.Connect("s-2", discardWriter{})
	env.relay.Hello("s-2", model.RoleDashboard, "")

	w := get(t, env.router, "/v1/devices")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Devices []struct {
			SocketID string `json:"socketId"`
			DeviceID string `json:"deviceId"`
		} `json:"devices"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Devices) != 1 || body.Devices[0].DeviceID != "cam-1" || body.Devices[0].SocketID != "s-1" {
		t.Fatalf("unexpected devices %+v", body.Devices)
	}
}

func TestLatestFrame(t *testing.T) {
	env := newTestEnv(t)

	if w := get(t, env.router, "/v1/devices/cam-1/frame"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any frame, got %d", w.Code)
	}

	env.relay.Connect("s-1", discardWriter{})
	env.relay.RegisterDevice("s-1", "cam-1")
	env.relay.DeviceFrame("s-1", relay.FrameMessage{Image: "QUJD", Time: "2024-01-01T00:00:00.000Z"})

	w := get(t, env.router, "/v1/devices/cam-1/frame")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
	var body struct {
		Frame model.FrameEnvelope `json:"frame"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Frame.DataURL != "data:image/jpeg;base64,QUJD" || body.Frame.DeviceID != "cam-1" {
		t.Fatalf("unexpected frame %+v", body.Frame)
	}
}

func TestLatestFrameRateLimited(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		if w := get(t, env.router, "/v1/devices/x/frame"); w.Code != http.StatusNotFound {
			t.Fatalf("request %d: expected 404, got %d", i, w.Code)
		}
	}
	if w := get(t, env.router, "/v1/devices/x/frame"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w := get(t, env.router, "/v1/devices"); w.Code != http.StatusOK {
		t.Fatalf("device list should not be limited, got %d", w.Code)
	}
}

func TestLatestFrameWithoutCache(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRouter(Deps{Relay: relay.New(registry.New(logger), relay.Options{Logger: logger}), Logger: logger})
	if w := get(t, r, "/v1/devices/cam-1/frame"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if w := get(t, r, "/metrics"); w.Code != http.StatusNotFound {
		t.Fatalf("metrics should not be routed without a registry, got %d", w.Code)
	}
}

func TestNewRouterStartsNoGoroutines(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rl := relay.New(registry.New(logger), relay.Options{Logger: logger})

	before := runtime.NumGoroutine()
	for i := 0; i < 50; i++ {
		NewRouter(Deps{Relay: rl, Logger: logger})
	}
	if after := runtime.NumGoroutine(); after > before+5 {
		t.Fatalf("building routers grew goroutines from %d to %d", before, after)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.relay.Connect("s-1", discardWriter{})
	env.relay.RegisterDevice("s-1", "cam-1")

	w := get(t, env.router, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `glassmon_relay_connections{role="device"} 1`) {
		t.Fatalf("connection gauge missing from:\n%s", w.Body.String())
	}
}

func TestSocketIORejectsPolling(t *testing.T) {
	env := newTestEnv(t)
	w := get(t, env.router, "/socket.io/?EIO=4&transport=polling")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Transport unknown") {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}
