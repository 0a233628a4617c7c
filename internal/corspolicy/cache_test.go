package corspolicy

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeRepo struct {
	mu      sync.Mutex
	origins []string
	calls   atomic.Int32
	delay   time.Duration
	failing bool
}

func (f *fakeRepo) ListActive(ctx context.Context) ([]string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, errFake
	}
	out := make([]string, len(f.origins))
	copy(out, f.origins)
	return out, nil
}

var errFake = &fakeErr{"fake repo failure"}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }

func TestCacheGetAllOriginsMergesStaticAndDB(t *testing.T) {
	repo := &fakeRepo{origins: []string{"https://app.example.com"}}
	cache := NewCache(repo, time.Minute, []string{"https://env.example.com"}, zerolog.Nop())

	all := cache.GetAllOrigins(context.Background())

	want := map[string]bool{
		"https://app.example.com": true,
		"https://env.example.com": true,
		"http://localhost":        true,
		"http://localhost:3000":   true,
		"http://frontend:3000":    true,
	}
	if len(all) != len(want) {
		t.Fatalf("got %d origins, want %d: %v", len(all), len(want), all)
	}
	for _, o := range all {
		if !want[o] {
			t.Fatalf("unexpected origin %q", o)
		}
	}
}

func TestCacheIsAllowed(t *testing.T) {
	repo := &fakeRepo{origins: []string{"https://app.example.com"}}
	cache := NewCache(repo, time.Minute, nil, zerolog.Nop())

	if !cache.IsAllowed(context.Background(), "https://app.example.com") {
		t.Fatal("expected origin to be allowed")
	}
	if cache.IsAllowed(context.Background(), "https://evil.example.com") {
		t.Fatal("expected unknown origin to be rejected")
	}
}

func TestCacheRefreshIsSingleFlight(t *testing.T) {
	repo := &fakeRepo{origins: []string{"https://app.example.com"}, delay: 50 * time.Millisecond}
	cache := NewCache(repo, time.Hour, nil, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.GetAllOrigins(context.Background())
		}()
	}
	wg.Wait()

	if got := repo.calls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 refresh call, got %d", got)
	}
}

func TestCacheInvalidateForcesRefresh(t *testing.T) {
	repo := &fakeRepo{origins: []string{"https://app.example.com"}}
	cache := NewCache(repo, time.Hour, nil, zerolog.Nop())

	cache.GetAllOrigins(context.Background())
	if got := repo.calls.Load(); got != 1 {
		t.Fatalf("expected 1 call after warm-up, got %d", got)
	}

	cache.Invalidate()
	cache.GetAllOrigins(context.Background())
	if got := repo.calls.Load(); got != 2 {
		t.Fatalf("expected 2 calls after invalidate, got %d", got)
	}
}

func TestCacheRefreshFailureRetainsPreviousValue(t *testing.T) {
	repo := &fakeRepo{origins: []string{"https://app.example.com"}}
	cache := NewCache(repo, time.Millisecond, nil, zerolog.Nop())

	cache.GetAllOrigins(context.Background())

	repo.mu.Lock()
	repo.failing = true
	repo.mu.Unlock()

	time.Sleep(5 * time.Millisecond)
	all := cache.GetAllOrigins(context.Background())

	found := false
	for _, o := range all {
		if o == "https://app.example.com" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected previous db origin to be retained after refresh failure")
	}
}
