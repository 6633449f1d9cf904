package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("a = %v, %v; want 1, true", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("size = %d, want 2", c.Size())
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", "x")
	c.Set("b", "y")
	now = now.Add(30 * time.Second)
	c.Set("b", "z")

	now = now.Add(45 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("a should have expired")
	}
	if n := c.CleanExpired(); n != 0 {
		t.Errorf("cleaned %d, want 0 (a was removed on read)", n)
	}

	now = now.Add(time.Minute)
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("cleaned %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("size = %d, want 0", c.Size())
	}
}

func TestLRUCache_Stats(t *testing.T) {
	c := NewLRUCache[int](4, time.Minute)
	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("missing")
	c.Delete("a")

	st := c.Stats()
	if st.Hits != 2 || st.Misses != 1 || st.Size != 0 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestLoader_SingleLoadPerKey(t *testing.T) {
	c := NewLRUCache[int](4, time.Minute)
	l := NewLoader[int](c)

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := l.Get(context.Background(), "k", load)
			if err != nil {
				t.Errorf("get: %v", err)
			}
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, v := range results {
		if v != 42 {
			t.Errorf("result %d = %d", i, v)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("loader called %d times, want 1", calls.Load())
	}
	if v, ok := c.Get("k"); !ok || v != 42 {
		t.Error("loaded value should be cached")
	}
}

func TestLoader_ErrorsNotCached(t *testing.T) {
	c := NewLRUCache[int](4, time.Minute)
	l := NewLoader[int](c)
	boom := errors.New("boom")

	if _, err := l.Get(context.Background(), "k", func(context.Context) (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if c.Size() != 0 {
		t.Error("errors must not be cached")
	}

	v, err := l.Get(context.Background(), "k", func(context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("got %v, %v", v, err)
	}
	l.Forget("k")
	if c.Size() != 0 {
		t.Error("Forget should drop the key")
	}
}

type countingCleaner struct{ calls atomic.Int32 }

func (c *countingCleaner) CleanExpired() int {
	c.calls.Add(1)
	return 1
}

func TestManager(t *testing.T) {
	m := NewManager(nil)
	cl := &countingCleaner{}
	m.Register(cl)

	if n := m.CleanNow(); n != 1 {
		t.Errorf("CleanNow = %d, want 1", n)
	}

	m.StartCleanup(5 * time.Millisecond)
	deadline := time.Now().Add(time.Second)
	for cl.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()
	m.Stop()

	if cl.calls.Load() < 3 {
		t.Errorf("expected periodic cleanup, got %d calls", cl.calls.Load())
	}
}
