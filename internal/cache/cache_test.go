package cache

import (
	"testing"
	"time"
)

func TestGet_WithinTTL(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	c := New[string, int]()
	c.now = func() time.Time { return now }

	c.Set("k", 42, time.Second)

	// just inside the window
	now = base.Add(time.Second - time.Millisecond)
	if v, ok := c.Get("k"); !ok || v != 42 {
		t.Fatalf("want 42 at ttl-1ms, got %v ok=%v", v, ok)
	}

	// just past the window
	now = base.Add(time.Second + time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("entry still valid at ttl+1ms")
	}

	// exactly at the boundary counts as expired
	now = base.Add(time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("entry still valid at exactly ttl")
	}
}

func TestStale_SurvivesExpiry(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	c := New[string, []string]()
	c.now = func() time.Time { return now }

	c.Set("page:solana", []string{"a", "b"}, time.Minute)
	now = base.Add(time.Hour)

	if _, ok := c.Get("page:solana"); ok {
		t.Fatalf("expired entry returned by Get")
	}
	v, storedAt, ok := c.Stale("page:solana")
	if !ok || len(v) != 2 || !storedAt.Equal(base) {
		t.Fatalf("stale read failed: %v %v %v", v, storedAt, ok)
	}
}

func TestSet_OverwritesUnconditionally(t *testing.T) {
	c := New[string, int]()
	c.Set("k", 1, time.Minute)
	c.Set("k", 2, time.Minute)
	if v, ok := c.Get("k"); !ok || v != 2 {
		t.Fatalf("want 2, got %v ok=%v", v, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("want 1 entry, got %d", c.Len())
	}
}

func TestClear(t *testing.T) {
	c := New[string, int]()
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("want empty, got %d", c.Len())
	}
	if _, _, ok := c.Stale("a"); ok {
		t.Fatalf("stale read after Clear")
	}
}
