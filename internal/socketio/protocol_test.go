package socketio

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeEventPacket(t *testing.T) {
	p, err := decodePacket(`212["device:frame",{"image":"QUJD"}]`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Type != packetEvent || p.Namespace != defaultNamespace || p.ID == nil || *p.ID != 12 {
		t.Fatalf("unexpected packet %+v", p)
	}
	event, args, err := p.event()
	if err != nil {
		t.Fatalf("event: %v", err)
	}
	if event != "device:frame" || len(args) != 1 || string(args[0]) != `{"image":"QUJD"}` {
		t.Fatalf("unexpected event %q %s", event, args)
	}

	p, err = decodePacket(`2/admin,["x"]`)
	if err != nil {
		t.Fatalf("decode namespaced: %v", err)
	}
	if p.Namespace != "/admin" || p.ID != nil {
		t.Fatalf("unexpected packet %+v", p)
	}
}

func TestDecodeConnectPacket(t *testing.T) {
	cases := []struct{ in, ns, data string }{
		{`0`, "/", ``},
		{`0{"token":1}`, "/", `{"token":1}`},
		{`0/chat,{"a":1}`, "/chat", `{"a":1}`},
		{`0/chat`, "/chat", ``},
	}
	for _, tc := range cases {
		p, err := decodePacket(tc.in)
		if err != nil {
			t.Fatalf("decode %q: %v", tc.in, err)
		}
		if p.Type != packetConnect || p.Namespace != tc.ns || string(p.Data) != tc.data {
			t.Fatalf("decode %q = %+v", tc.in, p)
		}
	}
	if _, err := decodePacket(""); !errors.Is(err, errEmptyPacket) {
		t.Fatalf("expected errEmptyPacket, got %v", err)
	}
}

func TestEventErrors(t *testing.T) {
	for _, in := range []string{`3["x"]`, `2{"x":1}`, `2`, `2[]`, `2[1]`, `2["x",`} {
		p, err := decodePacket(in)
		if err != nil {
			t.Fatalf("decode %q: %v", in, err)
		}
		if _, _, err := p.event(); err == nil {
			t.Fatalf("expected event error for %q", in)
		}
	}
}

func TestEncodePackets(t *testing.T) {
	p, err := eventPacket(defaultNamespace, "stream:frame", json.RawMessage(`{"deviceId":"a"}`))
	if err != nil {
		t.Fatalf("eventPacket: %v", err)
	}
	if got := p.encode(); got != `2["stream:frame",{"deviceId":"a"}]` {
		t.Fatalf("event packet = %q", got)
	}
	p, err = eventPacket("/ops", "x")
	if err != nil {
		t.Fatalf("eventPacket: %v", err)
	}
	if got := p.encode(); got != `2/ops,["x"]` {
		t.Fatalf("namespaced event packet = %q", got)
	}
	if got := ackPacket(defaultNamespace, 9).encode(); got != `39[]` {
		t.Fatalf("ack packet = %q", got)
	}
	if got := connectPacket(defaultNamespace, "sid-1").encode(); got != `0{"sid":"sid-1"}` {
		t.Fatalf("connect packet = %q", got)
	}
	if got := connectErrorPacket("/nope", "Invalid namespace").encode(); got != `4/nope,{"message":"Invalid namespace"}` {
		t.Fatalf("connect error packet = %q", got)
	}
}
