package storage

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestDiskStoreRoundTrip(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	ctx := context.Background()
	key := AttachmentKey("rec1", "att1", "scan.pdf")

	if err := store.Put(ctx, key, strings.NewReader("blob"), 4, "application/pdf"); err != nil {
		t.Fatalf("put: %v", err)
	}
	r, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil || string(data) != "blob" {
		t.Fatalf("read back %q, %v", data, err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, key); err == nil {
		t.Fatal("expected error after delete")
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestDiskStoreRejectsTraversal(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("new disk store: %v", err)
	}
	if err := store.Put(context.Background(), "../escape", strings.NewReader("x"), 1, ""); err == nil {
		t.Fatal("expected error for traversal key")
	}
}
