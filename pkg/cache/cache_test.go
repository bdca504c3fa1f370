package cache

import (
	"bytes"
	"fmt"
	"testing"
	"time"
)

func TestGetPut(t *testing.T) {
	c := New(4, 0)
	if _, ok := c.Get("missing"); ok {
		t.Fatalf("unexpected hit for missing entry")
	}
	c.Put("a", []byte("payload-a"))
	got, ok := c.Get("a")
	if !ok || !bytes.Equal(got, []byte("payload-a")) {
		t.Fatalf("Get(a) = %q, %v", got, ok)
	}
	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Size != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2, 0)
	c.Put("a", []byte("a"))
	c.Put("b", []byte("b"))
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected hit for a")
	}
	c.Put("c", []byte("c")) // evicts b, the least recently used
	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("a should survive eviction")
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Fatalf("evictions = %d, want 1", got)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(8, 10*time.Millisecond)
	c.Put("a", []byte("a"))
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected hit before expiry")
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected miss after expiry")
	}
	if got := c.Stats().Expired; got != 1 {
		t.Fatalf("expired = %d, want 1", got)
	}
}

func TestCapacityBound(t *testing.T) {
	c := New(16, 0)
	for i := 0; i < 100; i++ {
		c.Put(fmt.Sprintf("name-%d", i), []byte("x"))
	}
	if c.Len() != 16 {
		t.Fatalf("len = %d, want 16", c.Len())
	}
}
