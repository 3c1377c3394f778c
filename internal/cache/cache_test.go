package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestUnknownSegmentIsAMiss(t *testing.T) {
	c := New(map[string]SegmentConfig{"api": {MaxSize: 2, DefaultTTL: time.Minute}})
	ctx := context.Background()

	c.Set(ctx, "nope", "k", []byte("v"), 0)
	if _, ok := c.Get(ctx, "nope", "k"); ok {
		t.Fatalf("unknown segment must never hit")
	}
	if _, ok := c.Stats("nope"); ok {
		t.Fatalf("unknown segment must not report stats")
	}
	c.Invalidate(ctx, "nope")
}

func TestGetOrLoadCachesResult(t *testing.T) {
	c := New(map[string]SegmentConfig{"scripts": {MaxSize: 4, DefaultTTL: time.Minute}})
	ctx := context.Background()

	calls := 0
	load := func(context.Context) ([]byte, error) {
		calls++
		return []byte("loaded"), nil
	}

	v, hit, err := c.GetOrLoad(ctx, "scripts", "list", 0, load)
	if err != nil || hit || string(v) != "loaded" {
		t.Fatalf("first call: v=%q hit=%v err=%v", v, hit, err)
	}
	v, hit, err = c.GetOrLoad(ctx, "scripts", "list", 0, load)
	if err != nil || !hit || string(v) != "loaded" {
		t.Fatalf("second call: v=%q hit=%v err=%v", v, hit, err)
	}
	if calls != 1 {
		t.Fatalf("expected one load, got %d", calls)
	}
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	c := New(map[string]SegmentConfig{"scripts": {MaxSize: 4, DefaultTTL: time.Minute}})
	ctx := context.Background()
	boom := errors.New("db down")

	_, _, err := c.GetOrLoad(ctx, "scripts", "list", 0, func(context.Context) ([]byte, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
	if c.Segment("scripts").Len() != 0 {
		t.Fatalf("failed load must not be cached")
	}
}

func TestGetOrLoadSharesConcurrentLoads(t *testing.T) {
	c := New(map[string]SegmentConfig{"stats": {MaxSize: 4, DefaultTTL: time.Minute}})
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	load := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []byte("stats"), nil
	}

	const callers = 10
	var wg sync.WaitGroup
	results := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := c.GetOrLoad(ctx, "stats", "general", 0, load)
			if err != nil {
				t.Errorf("GetOrLoad: %v", err)
				return
			}
			results <- string(v)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for v := range results {
		if v != "stats" {
			t.Fatalf("unexpected value %q", v)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected concurrent misses to share one load, got %d", n)
	}
}

func TestNamesSorted(t *testing.T) {
	c := New(map[string]SegmentConfig{
		"stats":   {MaxSize: 1},
		"api":     {MaxSize: 1},
		"scripts": {MaxSize: 1},
	})
	got := c.Names()
	want := []string{"api", "scripts", "stats"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", got, want)
		}
	}
}

func TestEvictionHookCalled(t *testing.T) {
	var evicted []string
	c := New(
		map[string]SegmentConfig{"api": {MaxSize: 1, DefaultTTL: time.Minute}},
		WithEvictionHook(func(segment, key string) { evicted = append(evicted, segment+"/"+key) }),
	)
	ctx := context.Background()

	c.Set(ctx, "api", "first", []byte("1"), 0)
	c.Set(ctx, "api", "second", []byte("2"), 0)

	if len(evicted) != 1 || evicted[0] != "api/first" {
		t.Fatalf("unexpected evictions: %v", evicted)
	}
}

func TestGetOrLoadDropsResultAfterInvalidate(t *testing.T) {
	c := New(map[string]SegmentConfig{"scripts": {MaxSize: 4, DefaultTTL: 10 * time.Minute}})
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan []byte, 1)
	go func() {
		v, _, err := c.GetOrLoad(ctx, "scripts", "list", 0, func(context.Context) ([]byte, error) {
			close(started)
			<-release
			return []byte("pre-write"), nil
		})
		if err != nil {
			t.Errorf("GetOrLoad: %v", err)
		}
		done <- v
	}()

	<-started
	c.Invalidate(ctx, "scripts")
	close(release)
	if v := <-done; string(v) != "pre-write" {
		t.Fatalf("in-flight caller should still get its value, got %q", v)
	}

	if _, ok := c.Get(ctx, "scripts", "list"); ok {
		t.Fatalf("load started before invalidate must not be stored")
	}
	v, hit, err := c.GetOrLoad(ctx, "scripts", "list", 0, func(context.Context) ([]byte, error) {
		return []byte("post-write"), nil
	})
	if err != nil || hit || string(v) != "post-write" {
		t.Fatalf("expected fresh load, got v=%q hit=%v err=%v", v, hit, err)
	}
}

func TestGetOrLoadAfterInvalidateDoesNotJoinStaleLoad(t *testing.T) {
	c := New(map[string]SegmentConfig{"scripts": {MaxSize: 4, DefaultTTL: time.Minute}})
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _, _ = c.GetOrLoad(ctx, "scripts", "list", 0, func(context.Context) ([]byte, error) {
			close(started)
			<-release
			return []byte("old"), nil
		})
	}()
	<-started
	c.Invalidate(ctx, "scripts")

	v, _, err := c.GetOrLoad(ctx, "scripts", "list", 0, func(context.Context) ([]byte, error) {
		return []byte("new"), nil
	})
	close(release)
	if err != nil || string(v) != "new" {
		t.Fatalf("expected a new load after invalidate, got %q err=%v", v, err)
	}
}

func TestGetOrLoadIgnoresCallerCancellation(t *testing.T) {
	c := New(map[string]SegmentConfig{"stats": {MaxSize: 4, DefaultTTL: time.Minute}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v, _, err := c.GetOrLoad(ctx, "stats", "general", 0, func(ctx context.Context) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return []byte("stats"), nil
	})
	if err != nil || string(v) != "stats" {
		t.Fatalf("shared load must not see the caller's cancellation: v=%q err=%v", v, err)
	}
	if _, ok := c.Get(context.Background(), "stats", "general"); !ok {
		t.Fatalf("expected loaded value to be cached")
	}
}
