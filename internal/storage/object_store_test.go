package storage

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestJoinURL(t *testing.T) {
	got := JoinURL("https://cdn.example.com/defect-images/", "tagged/a b-tag7.jpg")
	want := "https://cdn.example.com/defect-images/tagged/a%20b-tag7.jpg"
	if got != want {
		t.Fatalf("JoinURL = %q, want %q", got, want)
	}
}

func TestMemoryStore_PutOverwrites(t *testing.T) {
	m := NewMemoryStore("https://cdn")
	ctx := context.Background()

	if err := m.Put(ctx, "tagged/x-tag1.jpg", strings.NewReader("one"), 3, "image/jpeg"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := m.Put(ctx, "tagged/x-tag1.jpg", strings.NewReader("two"), 3, "image/jpeg"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(m.Keys()) != 1 {
		t.Fatalf("expected one object, got %v", m.Keys())
	}
	data, ct, ok := m.Get("tagged/x-tag1.jpg")
	if !ok || string(data) != "two" || ct != "image/jpeg" {
		t.Fatalf("unexpected object: %q %q %v", data, ct, ok)
	}
	u, _ := m.URL(ctx, "tagged/x-tag1.jpg")
	if u != "https://cdn/tagged/x-tag1.jpg" {
		t.Fatalf("unexpected url %q", u)
	}
}

func TestMinioStore_UnreachableAtStartup(t *testing.T) {
	m, err := NewMinioStore(MinioConfig{
		Endpoint:  "127.0.0.1:1",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "defect-images",
	})
	if err != nil {
		t.Fatalf("NewMinioStore should not contact the server: %v", err)
	}

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		err := m.Put(ctx, "tagged/x-tag1.jpg", strings.NewReader("jpg"), 3, "image/jpeg")
		cancel()
		if err == nil || !strings.Contains(err.Error(), "check bucket") {
			t.Fatalf("put %d: expected bucket check error, got %v", i, err)
		}
		if m.ready {
			t.Fatalf("put %d: failed bucket check must be retried", i)
		}
	}
}
