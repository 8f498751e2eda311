package cache

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

func TestLRUCache_GetSet(t *testing.T) {
	c := NewLRUCache[[]string](2, time.Minute)

	if _, ok := c.Get("2024-05"); ok {
		t.Fatal("empty cache should miss")
	}
	c.Set("2024-05", []string{"Gas"})
	got, ok := c.Get("2024-05")
	if !ok || len(got) != 1 || got[0] != "Gas" {
		t.Fatalf("Get() = %v, %v", got, ok)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Size != 1 {
		t.Fatalf("Stats() = %+v", stats)
	}
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // b is now least recently used
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should still be cached")
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCache_TTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](10, time.Minute).WithClock(clock.Now)

	c.Set("a", 1)
	c.Set("b", 2)
	clock.t = clock.t.Add(30 * time.Second)
	c.Set("c", 3)

	clock.t = clock.t.Add(45 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("a should have expired")
	}
	if removed := c.CleanExpired(); removed != 1 {
		t.Errorf("CleanExpired() = %d, want 1", removed)
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c should still be fresh")
	}
}

func TestLRUCache_PurgeAndDelete(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("a should be deleted")
	}

	c.Purge()
	if c.Size() != 0 {
		t.Errorf("Size() after Purge = %d", c.Size())
	}
	c.Set("d", 4)
	if v, ok := c.Get("d"); !ok || v != 4 {
		t.Error("cache should be usable after Purge")
	}
}

func TestJanitor(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	c := NewLRUCache[int](10, time.Second).WithClock(clock.Now)
	c.Set("a", 1)
	clock.t = clock.t.Add(2 * time.Second)

	j := NewJanitor(nil, c)
	if n := j.Sweep(); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx, 10*time.Millisecond) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}
