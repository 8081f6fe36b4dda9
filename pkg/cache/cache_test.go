package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type testQuote struct {
	ID    int64   `json:"id"`
	Price float64 `json:"price"`
}

func newTestCache(t *testing.T, client *redis.Client, opts ...Option) *Cache[testQuote] {
	t.Helper()
	return New[testQuote](NewManager(client), NewLocker(client, 2*time.Second), "test", opts...)
}

func putEntry(t *testing.T, client *redis.Client, key CacheKey, v testQuote, expires time.Time) {
	t.Helper()
	entry, err := newEntry(v, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	entry.Expires = expires
	entry.CachedAt = expires.Add(-time.Minute)
	if err := NewManager(client).Set(context.Background(), key, entry); err != nil {
		t.Fatal(err)
	}
}

func TestCache_FreshHitSkipsFetch(t *testing.T) {
	client, _ := setupTestRedis(t)
	c := newTestCache(t, client)
	key := CacheKey{Namespace: "quote", ID: "1"}
	putEntry(t, client, key, testQuote{ID: 1, Price: 100}, time.Now().Add(time.Minute))

	got, info, err := c.ResolveWithInfo(context.Background(), key, TTLSpotPrice, false, func(context.Context) (testQuote, error) {
		t.Error("fetch called on fresh entry")
		return testQuote{}, nil
	})
	if err != nil {
		t.Fatalf("ResolveWithInfo() error = %v", err)
	}
	if got.Price != 100 {
		t.Errorf("Price = %v, want 100", got.Price)
	}
	if info.State != StateFresh {
		t.Errorf("State = %q, want %q", info.State, StateFresh)
	}
}

func TestCache_MissStoresValue(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := newTestCache(t, client)
	key := CacheKey{Namespace: "quote", ID: "1"}

	got, info, err := c.ResolveWithInfo(context.Background(), key, TTLSpotPrice, false, func(context.Context) (testQuote, error) {
		return testQuote{ID: 1, Price: 42}, nil
	})
	if err != nil {
		t.Fatalf("ResolveWithInfo() error = %v", err)
	}
	if got.Price != 42 || info.State != StateRefreshed {
		t.Errorf("got %+v %q, want price 42 refreshed", got, info.State)
	}
	if d := info.Expires.Sub(info.CachedAt); d != TTLSpotPrice {
		t.Errorf("Expires - CachedAt = %v, want %v", d, TTLSpotPrice)
	}
	if !mr.Exists(key.String()) {
		t.Error("value not written back to redis")
	}
	if mr.Exists(key.BusyKey()) {
		t.Error("busy marker left behind after success")
	}
}

func TestCache_ConcurrentCallersShareOneFetch(t *testing.T) {
	client, _ := setupTestRedis(t)
	c := newTestCache(t, client)
	key := CacheKey{Namespace: "quote", ID: "1"}

	var calls atomic.Int32
	fetch := func(context.Context) (testQuote, error) {
		calls.Add(1)
		time.Sleep(100 * time.Millisecond)
		return testQuote{ID: 1, Price: 7}, nil
	}

	const callers = 20
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Resolve(context.Background(), key, TTLSpotPrice, false, fetch)
			if err != nil {
				errs <- err
				return
			}
			if got.Price != 7 {
				errs <- errors.New("wrong value")
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("caller error: %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("fetch called %d times, want 1", n)
	}
}

func TestCache_CrossProcessCoalescing(t *testing.T) {
	client, _ := setupTestRedis(t)
	// Two caches with separate singleflight groups behave like two processes.
	a := newTestCache(t, client, WithPollInterval(10*time.Millisecond, 20*time.Millisecond))
	b := newTestCache(t, client, WithPollInterval(10*time.Millisecond, 20*time.Millisecond))
	key := CacheKey{Namespace: "quote", ID: "1"}

	var calls atomic.Int32
	fetch := func(context.Context) (testQuote, error) {
		calls.Add(1)
		time.Sleep(150 * time.Millisecond)
		return testQuote{ID: 1, Price: 9}, nil
	}

	var wg sync.WaitGroup
	results := make([]testQuote, 2)
	errs := make([]error, 2)
	for i, c := range []*Cache[testQuote]{a, b} {
		wg.Add(1)
		go func(i int, c *Cache[testQuote]) {
			defer wg.Done()
			results[i], errs[i] = c.Resolve(context.Background(), key, TTLSpotPrice, false, fetch)
		}(i, c)
	}
	wg.Wait()

	for i := range errs {
		if errs[i] != nil {
			t.Fatalf("caller %d error = %v", i, errs[i])
		}
		if results[i].Price != 9 {
			t.Errorf("caller %d price = %v, want 9", i, results[i].Price)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("fetch called %d times, want 1", n)
	}
}

func TestCache_StaleServedWhileBusy(t *testing.T) {
	client, _ := setupTestRedis(t)
	c := newTestCache(t, client)
	key := CacheKey{Namespace: "quote", ID: "1"}
	putEntry(t, client, key, testQuote{ID: 1, Price: 5}, time.Now().Add(-time.Second))

	// Another process is refreshing.
	if _, ok, err := c.locker.Acquire(context.Background(), key); !ok || err != nil {
		t.Fatalf("Acquire() = %v, %v", ok, err)
	}

	got, info, err := c.ResolveWithInfo(context.Background(), key, TTLSpotPrice, false, func(context.Context) (testQuote, error) {
		t.Error("fetch called while marker held")
		return testQuote{}, nil
	})
	if err != nil {
		t.Fatalf("ResolveWithInfo() error = %v", err)
	}
	if got.Price != 5 || info.State != StateStale {
		t.Errorf("got %+v %q, want stale price 5", got, info.State)
	}
}

func TestCache_FetchErrorReleasesMarker(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := newTestCache(t, client)
	key := CacheKey{Namespace: "quote", ID: "1"}
	upstreamErr := errors.New("upstream down")

	_, err := c.Resolve(context.Background(), key, TTLSpotPrice, false, func(context.Context) (testQuote, error) {
		return testQuote{}, upstreamErr
	})
	if !errors.Is(err, upstreamErr) {
		t.Errorf("Resolve() error = %v, want %v", err, upstreamErr)
	}
	if mr.Exists(key.BusyKey()) {
		t.Error("busy marker left behind after failure")
	}
	if mr.Exists(key.String()) {
		t.Error("failed fetch should not store an entry")
	}
}

func TestCache_PublishedBeforeAcquireSkipsFetch(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := newTestCache(t, client)
	key := CacheKey{Namespace: "quote", ID: "1"}

	// Another process publishes and releases its marker after our lookup.
	c.beforeAcquire = func() {
		putEntry(t, client, key, testQuote{ID: 1, Price: 77}, time.Now().Add(time.Minute))
	}

	got, info, err := c.ResolveWithInfo(context.Background(), key, TTLSpotPrice, false, func(context.Context) (testQuote, error) {
		t.Error("fetch called although a fresh entry was published")
		return testQuote{}, nil
	})
	if err != nil {
		t.Fatalf("ResolveWithInfo() error = %v", err)
	}
	if got.Price != 77 || info.State != StateFresh {
		t.Errorf("got %+v %q, want fresh price 77", got, info.State)
	}
	if mr.Exists(key.BusyKey()) {
		t.Error("busy marker left behind")
	}
}

func TestCache_ForceIgnoresEntryPublishedBeforeAcquire(t *testing.T) {
	client, _ := setupTestRedis(t)
	c := newTestCache(t, client)
	key := CacheKey{Namespace: "quote", ID: "1"}

	c.beforeAcquire = func() {
		putEntry(t, client, key, testQuote{ID: 1, Price: 77}, time.Now().Add(time.Minute))
	}

	got, err := c.Resolve(context.Background(), key, TTLSpotPrice, true, func(context.Context) (testQuote, error) {
		return testQuote{ID: 1, Price: 78}, nil
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Price != 78 {
		t.Errorf("Price = %v, want forced fetch result 78", got.Price)
	}
}

func TestCache_StaleOnFetchFailure(t *testing.T) {
	client, _ := setupTestRedis(t)
	c := newTestCache(t, client)
	key := CacheKey{Namespace: "quote", ID: "1"}
	putEntry(t, client, key, testQuote{ID: 1, Price: 3}, time.Now().Add(-time.Second))

	got, info, err := c.ResolveWithInfo(context.Background(), key, TTLSpotPrice, false, func(context.Context) (testQuote, error) {
		return testQuote{}, errors.New("upstream down")
	})
	if err != nil {
		t.Fatalf("ResolveWithInfo() error = %v", err)
	}
	if got.Price != 3 || info.State != StateStale {
		t.Errorf("got %+v %q, want stale price 3", got, info.State)
	}
}

func TestCache_ForceRefresh(t *testing.T) {
	client, _ := setupTestRedis(t)
	c := newTestCache(t, client)
	key := CacheKey{Namespace: "quote", ID: "1"}
	putEntry(t, client, key, testQuote{ID: 1, Price: 1}, time.Now().Add(time.Minute))

	got, info, err := c.ResolveWithInfo(context.Background(), key, TTLSpotPrice, true, func(context.Context) (testQuote, error) {
		return testQuote{ID: 1, Price: 2}, nil
	})
	if err != nil {
		t.Fatalf("ResolveWithInfo() error = %v", err)
	}
	if got.Price != 2 || info.State != StateRefreshed {
		t.Errorf("got %+v %q, want refreshed price 2", got, info.State)
	}

	// The forced value is now the cached one.
	got, err = c.Resolve(context.Background(), key, TTLSpotPrice, false, func(context.Context) (testQuote, error) {
		t.Error("fetch called after forced refresh")
		return testQuote{}, nil
	})
	if err != nil || got.Price != 2 {
		t.Errorf("Resolve() = %+v, %v; want price 2", got, err)
	}
}

func TestCache_BusyTimeoutWithoutStale(t *testing.T) {
	client, _ := setupTestRedis(t)
	c := newTestCache(t, client,
		WithPollInterval(5*time.Millisecond, 10*time.Millisecond),
		WithBusyWait(60*time.Millisecond),
	)
	key := CacheKey{Namespace: "quote", ID: "1"}

	if _, ok, _ := c.locker.Acquire(context.Background(), key); !ok {
		t.Fatal("Acquire() failed")
	}

	_, err := c.Resolve(context.Background(), key, TTLSpotPrice, false, func(context.Context) (testQuote, error) {
		t.Error("fetch called while marker held")
		return testQuote{}, nil
	})
	if !errors.Is(err, ErrBusyTimeout) {
		t.Errorf("Resolve() error = %v, want ErrBusyTimeout", err)
	}
}

func TestCache_FetchDeadlineBoundedByMarker(t *testing.T) {
	client, _ := setupTestRedis(t)
	c := newTestCache(t, client)
	key := CacheKey{Namespace: "quote", ID: "1"}

	_, err := c.Resolve(context.Background(), key, TTLSpotPrice, false, func(ctx context.Context) (testQuote, error) {
		deadline, ok := ctx.Deadline()
		if !ok {
			t.Error("fetch context has no deadline")
		} else if time.Until(deadline) > c.locker.TTL() {
			t.Errorf("fetch deadline %v exceeds marker TTL %v", time.Until(deadline), c.locker.TTL())
		}
		return testQuote{ID: 1}, nil
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
}

func TestCache_CallerCancelDoesNotFailOthers(t *testing.T) {
	client, _ := setupTestRedis(t)
	c := newTestCache(t, client)
	key := CacheKey{Namespace: "quote", ID: "1"}

	started := make(chan struct{})
	fetch := func(ctx context.Context) (testQuote, error) {
		close(started)
		select {
		case <-time.After(100 * time.Millisecond):
			return testQuote{ID: 1, Price: 11}, nil
		case <-ctx.Done():
			return testQuote{}, ctx.Err()
		}
	}

	ctx1, cancel1 := context.WithCancel(context.Background())
	done1 := make(chan error, 1)
	go func() {
		_, err := c.Resolve(ctx1, key, TTLSpotPrice, false, fetch)
		done1 <- err
	}()

	<-started
	done2 := make(chan error, 1)
	var got testQuote
	go func() {
		var err error
		got, err = c.Resolve(context.Background(), key, TTLSpotPrice, false, fetch)
		done2 <- err
	}()

	cancel1()
	if err := <-done1; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller error = %v, want context.Canceled", err)
	}
	if err := <-done2; err != nil {
		t.Fatalf("second caller error = %v", err)
	}
	if got.Price != 11 {
		t.Errorf("second caller price = %v, want 11", got.Price)
	}
}

func TestCache_Invalidate(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := newTestCache(t, client)
	key := CacheKey{Namespace: "quote", ID: "1"}
	putEntry(t, client, key, testQuote{ID: 1}, time.Now().Add(time.Minute))

	if err := c.Invalidate(context.Background(), key); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if mr.Exists(key.String()) {
		t.Error("entry still present after Invalidate")
	}
}
