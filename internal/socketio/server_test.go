package socketio

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsPair returns the server side of a websocket connection and the client
// that dialed it.
func wsPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	accepted := make(chan *websocket.Conn, 1)
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		accepted <- ws
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	select {
	case ws := <-accepted:
		return ws, client
	case <-time.After(2 * time.Second):
		t.Fatalf("server never accepted")
	}
	return nil, nil
}

func TestConnWriteEventDoesNotBlockOnStalledPeer(t *testing.T) {
	ws, _ := wsPair(t)
	// No writeLoop: the peer is as stalled as it gets.
	c := newConn(ws, "sid-1", 2)
	defer c.close()

	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := c.WriteEvent("frame", []byte(`{}`)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := c.WriteEvent("frame", []byte(`{}`)); !errors.Is(err, errSlowConsumer) {
		t.Fatalf("expected errSlowConsumer, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("writes blocked for %v", elapsed)
	}

	c.close()
	if err := c.WriteEvent("frame", []byte(`{}`)); !errors.Is(err, errConnClosed) {
		t.Fatalf("expected errConnClosed, got %v", err)
	}
}

func TestConnWriteLoopPreservesOrder(t *testing.T) {
	ws, client := wsPair(t)
	c := newConn(ws, "sid-1", outboundQueue)
	defer c.close()
	go c.writeLoop()

	for _, ev := range []string{"one", "two", "three"} {
		if err := c.WriteEvent(ev, []byte(`{}`)); err != nil {
			t.Fatalf("write %s: %v", ev, err)
		}
	}
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, want := range []string{`42["one",{}]`, `42["two",{}]`, `42["three",{}]`} {
		_, data, err := client.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(data) != want {
			t.Fatalf("got %q, want %q", data, want)
		}
	}
}
