package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Items []string `json:"items"`
}

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewWithClient(client, "test"), mr
}

func TestStoreRoundTripsJSONUnderPrefix(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetJSON(ctx, "cart:abc", payload{Items: []string{"p1"}}, time.Hour))
	assert.True(t, mr.Exists("test:cart:abc"))
	assert.Equal(t, time.Hour, mr.TTL("test:cart:abc"))

	var got payload
	found, err := store.GetJSON(ctx, "cart:abc", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"p1"}, got.Items)
}

func TestStoreMissReturnsFalse(t *testing.T) {
	store, _ := newTestStore(t)
	var got payload
	found, err := store.GetJSON(context.Background(), "nope", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStoreExpiresKeys(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetJSON(ctx, "k", payload{}, time.Minute))

	mr.FastForward(2 * time.Minute)

	found, err := store.GetJSON(ctx, "k", &payload{})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStoreDeleteAndCorruptValue(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("test:bad", "{not json"))
	_, err := store.GetJSON(ctx, "bad", &payload{})
	assert.Error(t, err)

	require.NoError(t, store.Delete(ctx, "bad", "absent"))
	assert.False(t, mr.Exists("test:bad"))
	require.NoError(t, store.Delete(ctx))
}

func TestStorePing(t *testing.T) {
	store, mr := newTestStore(t)
	require.NoError(t, store.Ping(context.Background()))
	mr.Close()
	assert.Error(t, store.Ping(context.Background()))
}
