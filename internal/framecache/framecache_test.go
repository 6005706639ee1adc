package framecache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"glassmon/internal/model"
)

func testFrame(deviceID, t string) model.FrameEnvelope {
	return model.FrameEnvelope{
		DataURL:  "data:image/jpeg;base64,AAAA",
		Time:     t,
		Defects:  json.RawMessage(`[]`),
		DeviceID: deviceID,
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	ctx := context.Background()
	if err := s.Put(ctx, "cam-1", testFrame("cam-1", "t1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := s.Get(ctx, "cam-1")
	if err != nil || !ok || got.Time != "t1" {
		t.Fatalf("unexpected get: %+v ok=%v err=%v", got, ok, err)
	}

	clock = clock.Add(2 * time.Minute)
	if _, ok, _ := s.Get(ctx, "cam-1"); ok {
		t.Fatalf("expected frame expired")
	}
}

func TestRedisStore_PutGet(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreWithClient(client, 30*time.Second)
	defer s.Close()

	ctx := context.Background()
	if _, ok, err := s.Get(ctx, "cam-1"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := s.Put(ctx, "cam-1", testFrame("cam-1", "t1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := s.Get(ctx, "cam-1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.DeviceID != "cam-1" || string(got.Defects) != "[]" {
		t.Fatalf("unexpected frame: %+v", got)
	}

	mr.FastForward(31 * time.Second)
	if _, ok, _ := s.Get(ctx, "cam-1"); ok {
		t.Fatalf("expected key expired")
	}
}

func TestWriter_KeepsLatestPerDevice(t *testing.T) {
	store := NewMemoryStore(0)
	w := NewWriter(store, nil)

	w.Publish("cam-1", testFrame("cam-1", "t1"))
	w.Publish("cam-1", testFrame("cam-1", "t2"))
	w.Publish("cam-2", testFrame("cam-2", "t1"))
	if w.Overwritten() != 1 {
		t.Fatalf("expected 1 overwritten frame, got %d", w.Overwritten())
	}

	w.Flush(context.Background())

	got, ok, _ := store.Get(context.Background(), "cam-1")
	if !ok || got.Time != "t2" {
		t.Fatalf("expected latest frame t2, got %+v", got)
	}
	if _, ok, _ := store.Get(context.Background(), "cam-2"); !ok {
		t.Fatalf("expected cam-2 frame")
	}
}

func TestWriter_RunFlushesOnShutdown(t *testing.T) {
	store := NewMemoryStore(0)
	w := NewWriter(store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	w.Publish("cam-1", testFrame("cam-1", "t1"))
	cancel()
	<-done

	if _, ok, _ := store.Get(context.Background(), "cam-1"); !ok {
		t.Fatalf("expected frame flushed")
	}
}
