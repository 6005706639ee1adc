package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Engine.IO v4 packet types, the first byte of every websocket frame.
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
)

type packetType byte

// Socket.IO v5 packet types, the first byte of an engine message payload.
const (
	packetConnect      packetType = '0'
	packetDisconnect   packetType = '1'
	packetEvent        packetType = '2'
	packetAck          packetType = '3'
	packetConnectError packetType = '4'
	packetBinaryEvent  packetType = '5'
)

const defaultNamespace = "/"

var (
	errEmptyPacket   = errors.New("empty packet")
	errNotEvent      = errors.New("not an event packet")
	errMissingEvent  = errors.New("missing event name")
	errInvalidEvent  = errors.New("invalid event name")
	errInvalidLayout = errors.New("invalid event payload")
)

// packet is one Socket.IO packet with its JSON body left undecoded.
type packet struct {
	Type      packetType
	Namespace string
	ID        *int
	Data      json.RawMessage
}

// decodePacket splits "<type>[/ns,][id][json]" into its parts.
func decodePacket(s string) (packet, error) {
	if s == "" {
		return packet{}, errEmptyPacket
	}
	p := packet{Type: packetType(s[0]), Namespace: defaultNamespace}
	rest := s[1:]

	if strings.HasPrefix(rest, "/") {
		if comma := strings.IndexByte(rest, ','); comma >= 0 {
			p.Namespace, rest = rest[:comma], rest[comma+1:]
		} else {
			p.Namespace, rest = rest, ""
		}
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		if id, err := strconv.Atoi(rest[:digits]); err == nil {
			p.ID = &id
			rest = rest[digits:]
		}
	}

	if rest != "" {
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// event returns the event name and arguments of an event packet.
func (p packet) event() (string, []json.RawMessage, error) {
	if p.Type != packetEvent {
		return "", nil, errNotEvent
	}
	if len(p.Data) == 0 || p.Data[0] != '[' {
		return "", nil, errInvalidLayout
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(p.Data, &arr); err != nil {
		return "", nil, fmt.Errorf("decode event: %w", err)
	}
	if len(arr) == 0 {
		return "", nil, errMissingEvent
	}
	var name string
	if err := json.Unmarshal(arr[0], &name); err != nil {
		return "", nil, errInvalidEvent
	}
	return name, arr[1:], nil
}

func (p packet) encode() string {
	var b strings.Builder
	b.WriteByte(byte(p.Type))
	if p.Namespace != "" && p.Namespace != defaultNamespace {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.ID != nil {
		b.WriteString(strconv.Itoa(*p.ID))
	}
	b.Write(p.Data)
	return b.String()
}

func eventPacket(namespace string, event string, args ...json.RawMessage) (packet, error) {
	name, err := json.Marshal(event)
	if err != nil {
		return packet{}, err
	}
	arr := make([]json.RawMessage, 0, 1+len(args))
	arr = append(arr, name)
	arr = append(arr, args...)
	data, err := json.Marshal(arr)
	if err != nil {
		return packet{}, err
	}
	return packet{Type: packetEvent, Namespace: namespace, Data: data}, nil
}

func ackPacket(namespace string, id int) packet {
	return packet{Type: packetAck, Namespace: namespace, ID: &id, Data: json.RawMessage(`[]`)}
}

func connectPacket(namespace string, sid string) packet {
	data, _ := json.Marshal(map[string]string{"sid": sid})
	return packet{Type: packetConnect, Namespace: namespace, Data: data}
}

func connectErrorPacket(namespace string, message string) packet {
	data, _ := json.Marshal(map[string]string{"message": message})
	return packet{Type: packetConnectError, Namespace: namespace, Data: data}
}
