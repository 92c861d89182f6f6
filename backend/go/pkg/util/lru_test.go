package util

import (
	"testing"
	"time"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewWithConfig[string, int](CacheConfig{Capacity: 2})
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a")
	c.Put("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %v, %v", v, ok)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestLRUCacheSlidingTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	c, err := NewWithConfig[string, int](CacheConfig{Capacity: 4, TTL: time.Minute, Now: clock.Now})
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	c.Put("a", 1)
	clock.now = clock.now.Add(50 * time.Second)
	c.Put("a", 2)
	clock.now = clock.now.Add(50 * time.Second)

	if v, ok := c.Get("a"); !ok || v != 2 {
		t.Fatalf("Get(a) after refresh = %v, %v", v, ok)
	}
	clock.now = clock.now.Add(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to expire")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestLRUCacheUpdate(t *testing.T) {
	c, _ := NewWithConfig[string, []int](CacheConfig{Capacity: 4})
	for i := 0; i < 3; i++ {
		c.Update("k", func(cur []int, ok bool) ([]int, bool) {
			return append(cur, i), true
		})
	}
	got, _ := c.Get("k")
	if len(got) != 3 || got[2] != 2 {
		t.Errorf("Get(k) = %v", got)
	}
	c.Update("k", func(cur []int, ok bool) ([]int, bool) { return nil, false })
	if _, ok := c.Get("k"); ok {
		t.Error("expected k to be deleted by Update")
	}
}

func TestNewWithConfigRejectsZeroCapacity(t *testing.T) {
	if _, err := NewWithConfig[string, int](CacheConfig{}); err == nil {
		t.Fatal("expected error for zero capacity")
	}
}

func TestLRUCacheRangeSkipsExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	c, _ := NewWithConfig[string, int](CacheConfig{Capacity: 4, TTL: time.Minute, Now: clock.Now})
	c.Put("old", 1)
	clock.now = clock.now.Add(45 * time.Second)
	c.Put("new", 2)
	clock.now = clock.now.Add(30 * time.Second)

	var keys []string
	c.Range(func(k string, _ int) bool {
		keys = append(keys, k)
		return true
	})
	if len(keys) != 1 || keys[0] != "new" {
		t.Errorf("Range keys = %v, want [new]", keys)
	}
}
