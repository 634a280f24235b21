package cache

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newTestCache(size int, ttl time.Duration) (*LRUCache[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](size, ttl)
	c.now = clock.Now
	return c, clock
}

func TestLRUCache_GetSet(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", "1")
	c.Set("a", "2")
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "2", v)
	assert.Equal(t, 1, c.Size())
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3")

	_, ok := c.Get("b")
	assert.False(t, ok, "b was least recently used")
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Size())
	assert.Equal(t, Stats{Hits: 2, Misses: 1, Evictions: 1}, c.Stats())
}

func TestLRUCache_MinimumSize(t *testing.T) {
	c, _ := newTestCache(0, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	assert.Equal(t, 1, c.Size())
	_, ok := c.Get("b")
	assert.True(t, ok)
}

func TestLRUCache_TTL(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	clock.Advance(30 * time.Second)
	c.Set("c", "3")
	clock.Advance(31 * time.Second)

	_, ok := c.Get("a")
	assert.False(t, ok)

	assert.Equal(t, 1, c.CleanExpired())
	assert.Equal(t, 1, c.Size())
	assert.Equal(t, int64(2), c.Stats().Expired)
}

func TestLRUCache_DeleteFunc(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	c.Set("u:1:summary", "x")
	c.Set("u:1:breakdown", "y")
	c.Set("u:12:summary", "z")

	removed := c.DeleteFunc(func(k string) bool { return strings.HasPrefix(k, "u:1:") })

	assert.Equal(t, 2, removed)
	_, ok := c.Get("u:12:summary")
	assert.True(t, ok)

	c.Delete("u:12:summary")
	assert.Zero(t, c.Size())
}

func TestLRUCache_Concurrent(t *testing.T) {
	c := NewLRUCache[int](50, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := string(rune('a' + (i+j)%26))
				c.Set(key, j)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Size(), 26)
}

func TestManager(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	m := NewManager(nil)
	m.Register(c)

	c.Set("a", "1")
	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, m.CleanAll())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, time.Millisecond) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
