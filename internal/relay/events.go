package relay

import (
	"bytes"
	"encoding/json"
)

type canonicalEvent int

const (
	eventHello canonicalEvent = iota + 1
	eventRegister
	eventStatus
	eventFrame
	eventControl
)

// Outbound event names.
const (
	EventDeviceStatus = "device:status"
	EventStreamFrame  = "stream:frame"
)

// Dashboard control verbs. They are relayed to devices under the same name.
const (
	EventDashboardStart  = "dashboard:start"
	EventDashboardStop   = "dashboard:stop"
	EventDashboardPause  = "dashboard:pause"
	EventDashboardResume = "dashboard:resume"
)

// inboundEvents maps every external event name, including the legacy
// jetson:* names, onto one canonical behavior.
var inboundEvents = map[string]canonicalEvent{
	"client:hello":       eventHello,
	"device:register":    eventRegister,
	"jetson:register":    eventRegister,
	"device:status":      eventStatus,
	"jetson:status":      eventStatus,
	"device:frame":       eventFrame,
	"jetson:frame":       eventFrame,
	EventDashboardStart:  eventControl,
	EventDashboardStop:   eventControl,
	EventDashboardPause:  eventControl,
	EventDashboardResume: eventControl,
}

func lookupEvent(name string) (canonicalEvent, bool) {
	ev, ok := inboundEvents[name]
	return ev, ok
}

type object map[string]json.RawMessage

// decodeObject returns the first argument as a JSON object. Missing or
// non-object arguments yield a nil object, whose accessors report absence.
func decodeObject(args []json.RawMessage) (object, error) {
	if len(args) == 0 {
		return nil, nil
	}
	raw := bytes.TrimSpace(args[0])
	if len(raw) == 0 || raw[0] != '{' {
		return nil, nil
	}
	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func (o object) str(key string) string {
	raw, ok := o[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func (o object) boolean(key string) bool {
	raw, ok := o[key]
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false
	}
	return b
}

func (o object) array(key string) json.RawMessage {
	raw := bytes.TrimSpace(o[key])
	if len(raw) == 0 || raw[0] != '[' || !json.Valid(raw) {
		return nil
	}
	return raw
}
