package preview

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/persondetect/detect-console/internal/cache"
	"github.com/persondetect/detect-console/internal/utils"
)

var jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	provider := cache.NewMemoryProvider()
	store := NewStore(provider, 0, utils.DiscardLogger())

	info, err := store.Create(ctx, "/photos/street.jpg", jpegBytes)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !IsRef(info.Ref) || info.Name != "street.jpg" || info.Size != len(jpegBytes) {
		t.Fatalf("unexpected info: %+v", info)
	}
	if info.ContentType != "image/jpeg" {
		t.Fatalf("unexpected content type %q", info.ContentType)
	}

	data, err := store.Open(ctx, info.Ref)
	if err != nil || string(data) != string(jpegBytes) {
		t.Fatalf("open returned %q, %v", data, err)
	}
	if store.Count() != 1 || provider.Len() != 1 {
		t.Fatalf("expected one live preview")
	}

	if err := store.Release(ctx, info.Ref); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := store.Release(ctx, info.Ref); err != nil {
		t.Fatalf("second release should be a no-op: %v", err)
	}
	if store.Count() != 0 || provider.Len() != 0 {
		t.Fatalf("expected preview to be freed")
	}
	if _, err := store.Open(ctx, info.Ref); !errors.Is(err, ErrUnknownRef) {
		t.Fatalf("expected ErrUnknownRef, got %v", err)
	}
}

func TestStoreRefsAreUnique(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil, 0, utils.DiscardLogger())
	a, _ := store.Create(ctx, "a.jpg", jpegBytes)
	b, _ := store.Create(ctx, "a.jpg", jpegBytes)
	if a.Ref == b.Ref {
		t.Fatalf("expected distinct references, got %s twice", a.Ref)
	}
}

func TestStoreRejectsEmptyData(t *testing.T) {
	store := NewStore(nil, 0, utils.DiscardLogger())
	if _, err := store.Create(context.Background(), "a.jpg", nil); err == nil {
		t.Fatalf("expected error for empty data")
	}
}

func TestStoreCloseReleasesEverything(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil, 0, utils.DiscardLogger())
	for i := 0; i < 3; i++ {
		if _, err := store.Create(ctx, "a.jpg", jpegBytes); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if store.Count() != 0 {
		t.Fatalf("expected no live previews after close, got %d", store.Count())
	}
}

func TestStoreTTLExpiresBytes(t *testing.T) {
	ctx := context.Background()
	provider := cache.NewMemoryProvider()
	store := NewStore(provider, time.Nanosecond, utils.DiscardLogger())
	info, err := store.Create(ctx, "a.jpg", jpegBytes)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, err := store.Open(ctx, info.Ref); !errors.Is(err, ErrUnknownRef) {
		t.Fatalf("expected expired preview to be unknown, got %v", err)
	}
	if err := store.Release(ctx, info.Ref); err != nil {
		t.Fatalf("release after expiry: %v", err)
	}
}
