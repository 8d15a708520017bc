package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/olbridge/olbridge/internal/models"
)

func entriesNamed(names ...string) []models.Entry {
	out := make([]models.Entry, len(names))
	for i, n := range names {
		out[i] = models.Entry{Name: n, Path: "/" + n}
	}
	return out
}

func fetchReturning(entries []models.Entry, calls *int32) FetchFunc {
	return func(ctx context.Context) ([]models.Entry, error) {
		atomic.AddInt32(calls, 1)
		return entries, nil
	}
}

func TestGetOrFetchCachesWithinTTL(t *testing.T) {
	c := New(5 * time.Minute)
	var calls int32
	fetch := fetchReturning(entriesNamed("a", "b"), &calls)

	got, hit, err := c.GetOrFetch(context.Background(), "id", "/dir", fetch)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if hit {
		t.Error("first call reported a cache hit")
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}

	_, hit, err = c.GetOrFetch(context.Background(), "id", "/dir", fetch)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !hit {
		t.Error("second call missed the cache")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("fetch ran %d times, want 1", n)
	}
}

func TestGetOrFetchExpiresAfterTTL(t *testing.T) {
	c := New(5 * time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	var calls int32
	fetch := fetchReturning(entriesNamed("a"), &calls)

	if _, _, err := c.GetOrFetch(context.Background(), "id", "/dir", fetch); err != nil {
		t.Fatal(err)
	}

	now = now.Add(5*time.Minute + time.Second)
	_, hit, err := c.GetOrFetch(context.Background(), "id", "/dir", fetch)
	if err != nil {
		t.Fatal(err)
	}
	if hit {
		t.Error("expired record served as a hit")
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("fetch ran %d times, want 2", n)
	}
}

func TestGetOrFetchCollapsesConcurrentMisses(t *testing.T) {
	c := New(time.Minute)
	var calls int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) ([]models.Entry, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return entriesNamed("a"), nil
	}

	const n = 8
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, _, err := c.GetOrFetch(context.Background(), "id", "/dir", fetch); err != nil {
				t.Errorf("fetch: %v", err)
			}
		}()
	}
	close(start)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fetch ran %d times for %d concurrent callers, want 1", got, n)
	}
}

func TestFailedFetchIsNotStored(t *testing.T) {
	c := New(time.Minute)
	boom := errors.New("boom")
	fail := func(ctx context.Context) ([]models.Entry, error) { return nil, boom }

	if _, _, err := c.GetOrFetch(context.Background(), "id", "/dir", fail); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if c.Len() != 0 {
		t.Errorf("failed fetch left %d records", c.Len())
	}

	var calls int32
	if _, hit, err := c.GetOrFetch(context.Background(), "id", "/dir", fetchReturning(entriesNamed("a"), &calls)); err != nil || hit {
		t.Errorf("retry after failure: hit=%v err=%v", hit, err)
	}
}

func TestInvalidateTree(t *testing.T) {
	c := New(time.Minute)
	var calls int32
	for _, p := range []string{"/a", "/a/b", "/a/b/c", "/ab", "/z"} {
		if _, _, err := c.GetOrFetch(context.Background(), "id", p, fetchReturning(entriesNamed("x"), &calls)); err != nil {
			t.Fatal(err)
		}
	}
	// Same paths for another identity must survive.
	if _, _, err := c.GetOrFetch(context.Background(), "other", "/a/b", fetchReturning(entriesNamed("x"), &calls)); err != nil {
		t.Fatal(err)
	}

	c.InvalidateTree("id", "/a")

	if c.Len() != 3 { // /ab, /z, and other's /a/b
		t.Errorf("after InvalidateTree: %d records, want 3", c.Len())
	}
	if _, hit, _ := c.GetOrFetch(context.Background(), "id", "/ab", fetchReturning(nil, &calls)); !hit {
		t.Error("/ab was invalidated but is not a descendant of /a")
	}
	if _, hit, _ := c.GetOrFetch(context.Background(), "other", "/a/b", fetchReturning(nil, &calls)); !hit {
		t.Error("other identity's record was invalidated")
	}
}

func TestRemoveByKey(t *testing.T) {
	c := New(time.Minute)
	var calls int32
	_, _, _ = c.GetOrFetch(context.Background(), "id", "/x", fetchReturning(entriesNamed("x"), &calls))

	c.Remove(KeyFor("id", "/x"))
	if c.Len() != 0 {
		t.Errorf("Remove left %d records", c.Len())
	}
}

func TestClearIdentity(t *testing.T) {
	c := New(time.Minute)
	var calls int32
	_, _, _ = c.GetOrFetch(context.Background(), "a", "/x", fetchReturning(entriesNamed("x"), &calls))
	_, _, _ = c.GetOrFetch(context.Background(), "b", "/x", fetchReturning(entriesNamed("x"), &calls))

	c.ClearIdentity("a")
	if c.Len() != 1 {
		t.Errorf("ClearIdentity left %d records, want 1", c.Len())
	}
}

func TestReturnedSliceIsACopy(t *testing.T) {
	c := New(time.Minute)
	var calls int32
	got, _, err := c.GetOrFetch(context.Background(), "id", "/dir", fetchReturning(entriesNamed("a", "b"), &calls))
	if err != nil {
		t.Fatal(err)
	}
	got[0].Name = "mutated"

	again, _, err := c.GetOrFetch(context.Background(), "id", "/dir", fetchReturning(nil, &calls))
	if err != nil {
		t.Fatal(err)
	}
	if again[0].Name != "a" {
		t.Errorf("cached entry was mutated through a returned slice")
	}
}
