package services

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"go-pinmap/models"
)

func TestLocalCachePositionFreshness(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewLocalCache(newMemKV(), "c1")
	c.now = func() time.Time { return now }

	if _, ok := c.LastPosition(ctx); ok {
		t.Fatal("expected no position in an empty cache")
	}
	pos := models.LatLng{Lat: 51.5, Lng: -0.1}
	if err := c.SetLastPosition(ctx, pos); err != nil {
		t.Fatalf("SetLastPosition: %v", err)
	}

	now = now.Add(4*time.Minute + 59*time.Second)
	if got, ok := c.LastPosition(ctx); !ok || got != pos {
		t.Errorf("expected fresh position, got %v, %v", got, ok)
	}
	now = now.Add(time.Second)
	if _, ok := c.LastPosition(ctx); ok {
		t.Errorf("expected position to expire after five minutes")
	}
}

func TestLocalCacheNamespacesClients(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	a := NewLocalCache(kv, "a")
	b := NewLocalCache(kv, "b")

	a.SetPendingName(ctx, "Alice")
	if b.PendingName(ctx) != "" {
		t.Errorf("expected caches of different clients to be separate")
	}
	if a.PendingName(ctx) != "Alice" {
		t.Errorf("expected pending name, got %q", a.PendingName(ctx))
	}
	if _, ok := kv.data["client:a:pendingUserName"]; !ok {
		t.Errorf("expected namespaced key, got %v", kv.data)
	}
	a.ClearPendingName(ctx)
	if a.PendingName(ctx) != "" {
		t.Errorf("expected pending name cleared")
	}
}

func TestLocalCachePermission(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(newMemKV(), "c1")

	if c.Permission(ctx) != PermissionUnknown {
		t.Errorf("expected unknown permission by default")
	}
	c.SetPermission(ctx, PermissionDenied)
	if c.Permission(ctx) != PermissionDenied {
		t.Errorf("expected denied")
	}
	c.SetPermission(ctx, PermissionUnknown)
	if c.Permission(ctx) != PermissionUnknown {
		t.Errorf("expected flag removed")
	}

	raw, _ := json.Marshal(PermissionGranted)
	if string(raw) != `"granted"` {
		t.Errorf("expected permission to encode as string, got %s", raw)
	}
}

func TestPermissionFlagDecodes(t *testing.T) {
	var st AppState
	if err := json.Unmarshal([]byte(`{"location_permission":"denied"}`), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Permission != PermissionDenied {
		t.Errorf("expected denied, got %v", st.Permission)
	}

	var bad PermissionFlag
	if err := json.Unmarshal([]byte(`2`), &bad); err == nil {
		t.Errorf("expected error for a non-string flag")
	}
}

func TestLocalCacheToleratesStoreFailures(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	c := NewLocalCache(kv, "c1")
	c.SetPendingName(ctx, "Alice")

	kv.err = stderrors.New("redis down")
	if c.PendingName(ctx) != "" {
		t.Errorf("expected empty name when the store fails")
	}
	if c.Permission(ctx) != PermissionUnknown {
		t.Errorf("expected unknown permission when the store fails")
	}

	kv.err = nil
	kv.data["client:c1:lastPosition"] = "{not json"
	if _, ok := c.LastPosition(ctx); ok {
		t.Errorf("expected corrupt position to be ignored")
	}
}
