package dedup

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fbposts/pkg/post"
)

func record(id string) post.Record {
	return post.Record{PostID: id, URL: "https://www.facebook.com/acme/posts/" + id}
}

func TestDeduplicatorFirstOccurrenceWins(t *testing.T) {
	ctx := context.Background()
	d := New(nil)

	var accepted []string
	for _, id := range []string{"1", "2", "12345", "3", "12345", "1"} {
		ok, err := d.Accept(ctx, record(id))
		require.NoError(t, err)
		if ok {
			accepted = append(accepted, id)
		}
	}

	assert.Equal(t, []string{"1", "2", "12345", "3"}, accepted)
	assert.Equal(t, Stats{Accepted: 4, Suppressed: 2}, d.Stats())
}

func TestDeduplicatorRejectsEmptyID(t *testing.T) {
	_, err := New(nil).Accept(context.Background(), record(""))
	assert.ErrorIs(t, err, post.ErrInvalidRecord)
}

func TestMemoryIndexConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	d := New(idx)

	const workers, ids = 8, 200
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  = make(map[string]int)
		total int
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < ids; i++ {
				id := fmt.Sprintf("p%d", i)
				ok, err := d.Accept(ctx, record(id))
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					wins[id]++
					total++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, ids, total)
	for id, n := range wins {
		assert.Equal(t, 1, n, id)
	}
	n, err := idx.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids, n)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return s, client
}

func TestRedisIndex(t *testing.T) {
	ctx := context.Background()
	s, client := newRedis(t)

	idx := NewRedisIndex(client, "test:seen", "run-1", time.Hour)
	d := New(idx)

	ok, err := d.Accept(ctx, record("12345"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Accept(ctx, record("12345"))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, s.Exists("test:seen:run-1:12345"))
	assert.Equal(t, time.Hour, s.TTL("test:seen:run-1:12345"))

	found, err := idx.Contains(ctx, "12345")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestRedisIndexRunsAreIsolated(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)

	first := NewRedisIndex(client, "", "run-1", time.Hour)
	second := NewRedisIndex(client, "", "run-2", time.Hour)

	added, err := first.Add(ctx, "1")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = second.Add(ctx, "1")
	require.NoError(t, err)
	assert.True(t, added)

	for i := 2; i <= 5; i++ {
		_, err := first.Add(ctx, fmt.Sprint(i))
		require.NoError(t, err)
	}

	n, err := first.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = New(second).Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRedisIndexExpires(t *testing.T) {
	ctx := context.Background()
	s, client := newRedis(t)
	idx := NewRedisIndex(client, "", "run-1", time.Minute)

	_, err := idx.Add(ctx, "1")
	require.NoError(t, err)

	s.FastForward(2 * time.Minute)

	added, err := idx.Add(ctx, "1")
	require.NoError(t, err)
	assert.True(t, added)
}

func TestRedisIndexSurfacesErrors(t *testing.T) {
	s, client := newRedis(t)
	s.Close()

	_, err := New(NewRedisIndex(client, "", "run-1", time.Minute)).Accept(context.Background(), record("1"))
	assert.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	_, err := NewRedisClient(RedisConfig{})
	assert.ErrorIs(t, err, ErrEmptyAddress)

	s := miniredis.RunT(t)
	client, err := NewRedisClient(RedisConfig{Addr: s.Addr()})
	require.NoError(t, err)
	client.Close()
}
