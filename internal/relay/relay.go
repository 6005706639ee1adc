// Package relay routes device frames and status to dashboards and
// dashboard control commands to devices, based on the role each connection
// declared when it registered.
package relay

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"glassmon/internal/metrics"
	"glassmon/internal/model"
	"glassmon/internal/registry"
)

const (
	defaultMime = "image/jpeg"
	isoMillis   = "2006-01-02T15:04:05.000Z"
)

// FramePublisher receives a copy of every relayed frame.
type FramePublisher interface {
	Publish(deviceID string, frame model.FrameEnvelope)
}

type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Frames  FramePublisher
	Now     func() time.Time
}

type Relay struct {
	reg     *registry.Registry
	logger  *slog.Logger
	metrics *metrics.Metrics
	frames  FramePublisher
	now     func() time.Time
}

func New(reg *registry.Registry, opts Options) *Relay {
	r := &Relay{
		reg:     reg,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		frames:  opts.Frames,
		now:     opts.Now,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

func (r *Relay) Registry() *registry.Registry {
	return r.reg
}

func (r *Relay) Connect(socketID string, w registry.Writer) {
	r.reg.Add(socketID, w)
	r.trackRole(model.RoleUnset, 1)
	r.logger.Debug("socket connected", "socket_id", socketID)
}

func (r *Relay) Disconnect(socketID string) {
	conn, ok := r.reg.Remove(socketID)
	if !ok {
		return
	}
	r.trackRole(conn.Role, -1)
	r.logger.Info("socket disconnected", "socket_id", socketID, "role", roleLabel(conn.Role), "device_id", conn.DeviceID)
	if conn.Role != model.RoleDevice {
		return
	}
	r.broadcastStatus(socketID, model.StatusEnvelope{Online: false, DeviceID: conn.DeviceID})
}

// HandleEvent decodes one inbound socket event and dispatches it to the
// canonical handler for its name.
func (r *Relay) HandleEvent(socketID string, event string, args []json.RawMessage) {
	ev, ok := lookupEvent(event)
	if !ok {
		r.logger.Debug("ignoring unknown event", "socket_id", socketID, "event", event)
		return
	}
	payload, err := decodeObject(args)
	if err != nil {
		r.logger.Warn("malformed payload", "socket_id", socketID, "event", event, "err", err)
		return
	}

	switch ev {
	case eventHello:
		role, ok := model.ParseRole(payload.str("role"))
		if !ok {
			r.logger.Warn("hello with unknown role", "socket_id", socketID, "role", payload.str("role"))
			return
		}
		r.Hello(socketID, role, payload.str("deviceId"))
	case eventRegister:
		r.RegisterDevice(socketID, payload.str("deviceId"))
	case eventStatus:
		r.DeviceStatus(socketID, payload.boolean("online"), payload.str("deviceId"))
	case eventFrame:
		r.DeviceFrame(socketID, FrameMessage{
			Image:    payload.str("image"),
			Mime:     payload.str("mime"),
			Time:     payload.str("time"),
			Defects:  payload.array("defects"),
			DeviceID: payload.str("deviceId"),
		})
	case eventControl:
		r.DashboardControl(socketID, event, payload)
	}
}

// Hello sets the connection's role. The first role sticks; a device may
// re-register to change its id.
func (r *Relay) Hello(socketID string, role model.Role, deviceID string) {
	var previous model.Role
	conn, ok := r.reg.Update(socketID, func(c *model.Connection) {
		previous = c.Role
		if c.Role != model.RoleUnset && c.Role != role {
			return
		}
		c.Role = role
		if role != model.RoleDevice {
			return
		}
		switch {
		case deviceID != "":
			c.DeviceID = deviceID
		case c.DeviceID == "":
			c.DeviceID = syntheticDeviceID(socketID)
		}
	})
	if !ok {
		return
	}
	if previous != model.RoleUnset && previous != role {
		r.logger.Warn("role change ignored", "socket_id", socketID, "role", roleLabel(previous), "requested", roleLabel(role))
		return
	}
	if previous == model.RoleUnset {
		r.trackRole(model.RoleUnset, -1)
		r.trackRole(conn.Role, 1)
	}
	r.logger.Info("client registered", "socket_id", socketID, "role", roleLabel(conn.Role), "device_id", conn.DeviceID)
}

func (r *Relay) RegisterDevice(socketID string, deviceID string) {
	r.Hello(socketID, model.RoleDevice, deviceID)
}

func (r *Relay) DeviceStatus(socketID string, online bool, deviceID string) {
	r.broadcastStatus(socketID, model.StatusEnvelope{
		Online:   online,
		DeviceID: r.resolveDeviceID(socketID, deviceID),
	})
}

// FrameMessage is an inbound frame after type coercion: fields whose JSON
// type did not match are left empty.
type FrameMessage struct {
	Image    string
	Mime     string
	Time     string
	Defects  json.RawMessage
	DeviceID string
}

func (r *Relay) DeviceFrame(socketID string, msg FrameMessage) {
	if msg.Image == "" {
		if r.metrics != nil {
			r.metrics.FramesDropped.Inc()
		}
		return
	}
	frame := r.BuildFrame(socketID, msg)
	payload, err := json.Marshal(frame)
	if err != nil {
		r.logger.Error("encode frame", "socket_id", socketID, "err", err)
		return
	}
	r.reg.Broadcast(model.RoleDashboard, socketID, EventStreamFrame, payload)
	if r.metrics != nil {
		r.metrics.FramesRelayed.Inc()
	}
	if r.frames != nil {
		r.frames.Publish(frame.DeviceID, frame)
	}
}

// BuildFrame fills the outbound envelope defaults for a frame message.
func (r *Relay) BuildFrame(socketID string, msg FrameMessage) model.FrameEnvelope {
	mime := msg.Mime
	if mime == "" {
		mime = defaultMime
	}
	ts := msg.Time
	if ts == "" {
		ts = r.now().UTC().Format(isoMillis)
	}
	defects := msg.Defects
	if len(defects) == 0 {
		defects = json.RawMessage(`[]`)
	}
	return model.FrameEnvelope{
		DataURL:  "data:" + mime + ";base64," + msg.Image,
		Time:     ts,
		Defects:  defects,
		DeviceID: r.resolveDeviceID(socketID, msg.DeviceID),
	}
}

// DashboardControl forwards a control verb to every device, or only to the
// device named by payload.deviceId. Each device receives the payload with
// its own deviceId merged in.
func (r *Relay) DashboardControl(socketID string, event string, payload map[string]json.RawMessage) {
	target := object(payload).str("deviceId")
	sent := 0
	for _, dev := range r.reg.List(model.RoleDevice) {
		if dev.SocketID == socketID {
			continue
		}
		if target != "" && dev.DeviceID != target {
			continue
		}
		out := make(map[string]json.RawMessage, len(payload)+1)
		for k, v := range payload {
			out[k] = v
		}
		id, _ := json.Marshal(dev.DeviceID)
		out["deviceId"] = id
		data, err := json.Marshal(out)
		if err != nil {
			r.logger.Error("encode control", "socket_id", socketID, "event", event, "err", err)
			return
		}
		if r.reg.Send(dev.SocketID, event, data) {
			sent++
		}
	}
	if r.metrics != nil {
		r.metrics.ControlsSent.WithLabelValues(event).Add(float64(sent))
	}
	r.logger.Info("control relayed", "socket_id", socketID, "event", event, "target", target, "delivered", sent)
}

func (r *Relay) broadcastStatus(socketID string, status model.StatusEnvelope) {
	payload, err := json.Marshal(status)
	if err != nil {
		r.logger.Error("encode status", "socket_id", socketID, "err", err)
		return
	}
	r.reg.Broadcast(model.RoleDashboard, socketID, EventDeviceStatus, payload)
	if r.metrics != nil {
		r.metrics.StatusRelayed.Inc()
	}
}

func (r *Relay) resolveDeviceID(socketID string, given string) string {
	if given != "" {
		return given
	}
	if conn, ok := r.reg.Get(socketID); ok && conn.DeviceID != "" {
		return conn.DeviceID
	}
	return model.UnknownDeviceID
}

func (r *Relay) trackRole(role model.Role, delta float64) {
	if r.metrics == nil {
		return
	}
	r.metrics.Connections.WithLabelValues(roleLabel(role)).Add(delta)
}

func roleLabel(role model.Role) string {
	if role == model.RoleUnset {
		return "unset"
	}
	return string(role)
}

func syntheticDeviceID(socketID string) string {
	id := strings.ReplaceAll(socketID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return "device-" + id
}
