package authz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stubSource struct {
	mu     sync.Mutex
	calls  atomic.Int64
	grants []Grant
	roles  []RoleName
	err    error
	gate   chan struct{}
}

func (s *stubSource) LoadPermissions(ctx context.Context, principalID int64) ([]Grant, []RoleName, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.grants, s.roles, nil
}

func (s *stubSource) set(grants []Grant, roles []RoleName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants = grants
	s.roles = roles
}

func TestCacheGetFillsOnceThenHits(t *testing.T) {
	src := &stubSource{roles: []RoleName{"teacher"}}
	cache := NewCache(src, time.Minute, 16)

	for i := 0; i < 3; i++ {
		set, err := cache.Get(context.Background(), 42)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !set.HasRole("teacher") {
			t.Fatalf("expected teacher role in set")
		}
	}
	if got := src.calls.Load(); got != 1 {
		t.Fatalf("expected 1 store read, got %d", got)
	}
	hits, misses, size := cache.Stats()
	if hits != 2 || misses != 1 || size != 1 {
		t.Fatalf("unexpected stats hits=%d misses=%d size=%d", hits, misses, size)
	}
}

func TestCacheInvalidateForcesFreshRead(t *testing.T) {
	src := &stubSource{roles: []RoleName{"teacher"}}
	cache := NewCache(src, time.Minute, 16)

	if _, err := cache.Get(context.Background(), 42); err != nil {
		t.Fatalf("get: %v", err)
	}

	// Revoke: the store now returns nothing for this principal.
	src.set(nil, nil)
	cache.Invalidate(42)

	set, err := cache.Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if set.HasRole("teacher") {
		t.Fatalf("stale role survived invalidation")
	}
	if got := src.calls.Load(); got != 2 {
		t.Fatalf("expected 2 store reads, got %d", got)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	src := &stubSource{roles: []RoleName{"teacher"}}
	cache := NewCache(src, 50*time.Millisecond, 16)

	if _, err := cache.Get(context.Background(), 42); err != nil {
		t.Fatalf("get: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if _, err := cache.Get(context.Background(), 42); err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Fatalf("expected expiry to trigger a second read, got %d", got)
	}
}

func TestCachePropagatesStoreErrors(t *testing.T) {
	src := &stubSource{err: errors.New("connection refused")}
	cache := NewCache(src, time.Minute, 16)

	if _, err := cache.Get(context.Background(), 42); err == nil {
		t.Fatalf("expected store error to propagate")
	}
	_, _, size := cache.Stats()
	if size != 0 {
		t.Fatalf("error result must not be cached, size=%d", size)
	}
}

func TestCacheCoalescesConcurrentFills(t *testing.T) {
	src := &stubSource{roles: []RoleName{"teacher"}, gate: make(chan struct{})}
	cache := NewCache(src, time.Minute, 16)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Get(context.Background(), 42); err != nil {
				t.Errorf("get: %v", err)
			}
		}()
	}
	// Give every goroutine time to join the in-flight fill.
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	if got := src.calls.Load(); got != 1 {
		t.Fatalf("expected coalesced single store read, got %d", got)
	}
}

func TestCacheDropsBookkeepingAfterFills(t *testing.T) {
	src := &stubSource{roles: []RoleName{"teacher"}}
	cache := NewCache(src, time.Minute, 16)

	for id := int64(1); id <= 100; id++ {
		if _, err := cache.Get(context.Background(), id); err != nil {
			t.Fatalf("get %d: %v", id, err)
		}
		cache.Invalidate(id)
	}

	cache.mu.Lock()
	gens, fills := len(cache.gens), len(cache.fills)
	cache.mu.Unlock()
	if gens != 0 || fills != 0 {
		t.Fatalf("expected per-principal bookkeeping released, got %d gens and %d fills", gens, fills)
	}
}
