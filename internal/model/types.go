package model

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleUnset     Role = ""
	RoleDevice    Role = "device"
	RoleDashboard Role = "dashboard"
)

func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleDevice:
		return RoleDevice, true
	case RoleDashboard:
		return RoleDashboard, true
	default:
		return RoleUnset, false
	}
}

// UnknownDeviceID is reported when neither the message nor the sender's
// registration carries a device id.
const UnknownDeviceID = "unknown"

type Connection struct {
	SocketID string
	Role     Role
	DeviceID string
}

type StatusEnvelope struct {
	Online   bool   `json:"online"`
	DeviceID string `json:"deviceId"`
}

type FrameEnvelope struct {
	DataURL  string          `json:"dataUrl"`
	Time     string          `json:"time"`
	Defects  json.RawMessage `json:"defects"`
	DeviceID string          `json:"deviceId"`
}

// Defect mirrors a row of the shared defects table. TagNumber and
// TaggedImageURL are nil until the tagger commits them.
type Defect struct {
	ID             string
	DetectedAt     time.Time
	ImageURL       *string
	TagNumber      *int64
	TaggedImageURL *string
}

func (d Defect) HasImage() bool {
	return d.ImageURL != nil && *d.ImageURL != ""
}

func (d Defect) Tagged() bool {
	return d.TagNumber != nil
}
