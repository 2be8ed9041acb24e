package checkpoint

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRun() Run {
	return Run{
		ID:        NewID(),
		Agent:     "xiaohongshu",
		Next:      "generate_article",
		Executed:  []string{"generate_topic"},
		State:     json.RawMessage(`{"topics":["周末去哪儿"]}`),
		CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	run := sampleRun()

	_, err := store.Get(ctx, run.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, run))
	got, err := store.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Agent, got.Agent)
	assert.Equal(t, run.Next, got.Next)
	assert.Equal(t, run.Executed, got.Executed)
	assert.JSONEq(t, string(run.State), string(got.State))
	assert.True(t, run.CreatedAt.Equal(got.CreatedAt))

	require.NoError(t, store.Delete(ctx, run.ID))
	_, err = store.Get(ctx, run.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	exerciseStore(t, store)
	assert.Zero(t, store.Len())
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client, time.Hour)
	defer store.Close()

	exerciseStore(t, store)
}

func TestRedisStore_Expires(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisStoreFromURL("redis://"+mr.Addr()+"/0", time.Minute)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	run := sampleRun()
	require.NoError(t, store.Put(ctx, run))
	assert.Equal(t, time.Minute, mr.TTL(keyPrefix+run.ID))

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, run.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewRedisStoreFromURL_BadURL(t *testing.T) {
	_, err := NewRedisStoreFromURL("://nope", time.Minute)
	assert.Error(t, err)
}

func TestNewIDIsUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID()
		assert.Len(t, id, 26)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
