package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/matchsync/internal/kvstore"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, kv kvstore.Store) (*Store, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := New(kv, Options{}, nil)
	s.now = c.now
	return s, c
}

func TestStore_AddOnce(t *testing.T) {
	s, _ := newTestStore(t, kvstore.NewMemory())

	assert.False(t, s.Has("m1|p1"))
	assert.True(t, s.Add("m1|p1"))
	assert.False(t, s.Add("m1|p1"))
	assert.True(t, s.Has("m1|p1"))
	assert.Equal(t, 1, s.Len())
}

func TestStore_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()

	s, _ := newTestStore(t, kv)
	require.NoError(t, s.Load(ctx))
	s.Add(Key("m1", "p1"))
	require.NoError(t, s.Flush(ctx))

	restarted, _ := newTestStore(t, kv)
	require.NoError(t, restarted.Load(ctx))
	assert.True(t, restarted.Has("m1|p1"))
	assert.False(t, restarted.Add("m1|p1"))
}

func TestStore_PersistedFormat(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	s, c := newTestStore(t, kv)

	s.Add("m1|p1")
	require.NoError(t, s.Flush(ctx))

	raw, ok, err := kv.Get(ctx, DefaultStorageKey)
	require.NoError(t, err)
	require.True(t, ok)

	var entries []Entry
	require.NoError(t, json.Unmarshal([]byte(raw), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "m1|p1", entries[0].Key)
	assert.Equal(t, c.now().UnixMilli(), entries[0].InsertedAt)
}

func TestStore_ExpiresAfterRetention(t *testing.T) {
	s, c := newTestStore(t, kvstore.NewMemory())

	s.Add("old")
	c.advance(DefaultRetention - time.Minute)
	assert.True(t, s.Has("old"))

	c.advance(time.Minute)
	assert.False(t, s.Has("old"))
	assert.True(t, s.Add("old"), "expired key can be added again")
}

func TestStore_PrunesOnLoad(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	s, c := newTestStore(t, kv)

	expired := c.now().Add(-8 * 24 * time.Hour).UnixMilli()
	fresh := c.now().Add(-time.Hour).UnixMilli()
	doc, _ := json.Marshal([]Entry{{Key: "stale", InsertedAt: expired}, {Key: "fresh", InsertedAt: fresh}})
	require.NoError(t, kv.Set(ctx, DefaultStorageKey, string(doc)))

	require.NoError(t, s.Load(ctx))
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Has("fresh"))

	// Prune is written back.
	raw, _, _ := kv.Get(ctx, DefaultStorageKey)
	var entries []Entry
	require.NoError(t, json.Unmarshal([]byte(raw), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "fresh", entries[0].Key)
}

func TestStore_PrunesOnFlush(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	s, c := newTestStore(t, kv)

	s.Add("a")
	c.advance(8 * 24 * time.Hour)
	s.Add("b")
	require.NoError(t, s.Flush(ctx))

	assert.Equal(t, 1, s.Len())
	raw, _, _ := kv.Get(ctx, DefaultStorageKey)
	assert.NotContains(t, raw, `"a"`)
	assert.Contains(t, raw, `"b"`)
}

func TestStore_CorruptDocument(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	require.NoError(t, kv.Set(ctx, DefaultStorageKey, "{not json"))

	s, _ := newTestStore(t, kv)
	require.NoError(t, s.Load(ctx))
	assert.Equal(t, 0, s.Len())
}

type failingKV struct{ kvstore.Store }

func (failingKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk gone")
}

func (failingKV) Set(context.Context, string, string) error { return errors.New("disk gone") }

func TestStore_BackendErrors(t *testing.T) {
	s, _ := newTestStore(t, failingKV{})

	assert.ErrorContains(t, s.Load(context.Background()), "disk gone")

	// Memory state is unaffected by a failed flush.
	s.Add("k")
	assert.ErrorContains(t, s.Flush(context.Background()), "read dedupe set")
	assert.True(t, s.Has("k"))
}

type readOnlyKV struct{ kvstore.Store }

func (readOnlyKV) Set(context.Context, string, string) error { return errors.New("read only") }

func TestStore_FlushWriteError(t *testing.T) {
	s, _ := newTestStore(t, readOnlyKV{kvstore.NewMemory()})

	s.Add("k")
	assert.ErrorContains(t, s.Flush(context.Background()), "persist dedupe set")
	assert.True(t, s.Has("k"))
}

func TestStore_SharedBackendKeepsEveryWritersKeys(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()

	a, _ := newTestStore(t, kv)
	b, _ := newTestStore(t, kv)
	require.NoError(t, a.Load(ctx))
	require.NoError(t, b.Load(ctx))

	a.Add("m1|p1")
	require.NoError(t, a.Flush(ctx))
	b.Add("m1|p2")
	require.NoError(t, b.Flush(ctx))

	assert.True(t, b.Has("m1|p1"), "flush picks up keys from the other writer")

	restarted, _ := newTestStore(t, kv)
	require.NoError(t, restarted.Load(ctx))
	assert.True(t, restarted.Has("m1|p1"))
	assert.True(t, restarted.Has("m1|p2"))
	assert.Equal(t, 2, restarted.Len())
}

func TestStore_FlushMergeKeepsEarliestAndPrunes(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	doc, err := json.Marshal([]Entry{
		{Key: "old", InsertedAt: base.Add(-8 * 24 * time.Hour).UnixMilli()},
		{Key: "shared", InsertedAt: base.Add(-time.Hour).UnixMilli()},
	})
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, DefaultStorageKey, string(doc)))

	s, _ := newTestStore(t, kv)
	s.Add("shared")
	require.NoError(t, s.Flush(ctx))

	var stored []Entry
	raw, _, _ := kv.Get(ctx, DefaultStorageKey)
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	require.Len(t, stored, 1)
	assert.Equal(t, "shared", stored[0].Key)
	assert.Equal(t, base.Add(-time.Hour).UnixMilli(), stored[0].InsertedAt)
}

func TestStore_ConcurrentFlushKeepsAllKeys(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	s, _ := newTestStore(t, kv)

	var wg sync.WaitGroup
	for _, k := range []string{"a", "b", "c", "d", "e", "f"} {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			s.Add(k)
			_ = s.Flush(ctx)
		}(k)
	}
	wg.Wait()

	restarted, _ := newTestStore(t, kv)
	require.NoError(t, restarted.Load(ctx))
	assert.Equal(t, 6, restarted.Len())
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	s, _ := newTestStore(t, kv)

	s.Add("k")
	require.NoError(t, s.Clear(ctx))
	assert.False(t, s.Has("k"))

	raw, _, _ := kv.Get(ctx, DefaultStorageKey)
	assert.Equal(t, "[]", raw)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "m1|p1", Key("m1", "p1"))
	assert.Equal(t, "m1|p1|hit", Key("m1", "p1", "hit"))
}
