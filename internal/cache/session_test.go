package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moff.io/wallet-shell/internal/walletconnect"
)

func newStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSessionStore(client), mr
}

func TestSessionStore(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	s, err := store.Load(ctx, "default")
	require.NoError(t, err)
	assert.Nil(t, s)

	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, store.Save(ctx, "default", &walletconnect.Session{
		ClientID:  "client",
		PeerID:    "peer",
		Key:       "00ff",
		Address:   "erd1qyu5wthldzr8wx5c9ucg8kjagg0jfs53s8nr3zpz3hypefsdd8ssycr6th",
		ExpiresAt: expires,
	}, time.Hour))
	assert.True(t, mr.Exists("wallet_shell:session:default"))
	assert.Equal(t, time.Hour, mr.TTL("wallet_shell:session:default"))

	s, err = store.Load(ctx, "default")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "peer", s.PeerID)
	assert.True(t, expires.Equal(s.ExpiresAt))

	require.NoError(t, store.Delete(ctx, "default"))
	s, err = store.Load(ctx, "default")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSessionStoreExpires(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "short", &walletconnect.Session{Address: "a"}, time.Minute))
	mr.FastForward(2 * time.Minute)
	s, err := store.Load(ctx, "short")
	require.NoError(t, err)
	assert.Nil(t, s)
}
