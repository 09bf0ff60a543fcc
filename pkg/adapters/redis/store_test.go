package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/parley/pkg/adapters/redis"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	store := redis.NewFromClient(client)
	ports.RunSessionStoreContract(t, store)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)

	// Create store with 1s TTL
	store := redis.NewFromClient(client, redis.WithTTL(1*time.Second))
	ctx := context.Background()
	session := domain.NewSession("greeting", 1, "ttl", time.Now())

	require.NoError(t, store.Save(ctx, session, 0))

	sessions, err := store.List(ctx)
	assert.NoError(t, err)
	assert.Contains(t, sessions, session.Key)

	// Fast Forward time in miniredis (for Key Expiration)
	mr.FastForward(2 * time.Second)

	_, err = store.Load(ctx, session.Key)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	// The index is pruned against time.Now(), so wait past the TTL.
	time.Sleep(1200 * time.Millisecond)

	sessions, err = store.List(ctx)
	assert.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	wake := time.Now().Add(time.Minute)
	session := domain.NewSession("greeting", 1, "u1", time.Now())
	session.Status = domain.StatusSleeping
	session.CurrentNodeID = "wait"
	session.WakeAt = &wake
	require.NoError(t, store.Save(ctx, session, 0))

	assert.True(t, mr.Exists("custom:app:greeting:u1"), "Expected key with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:index"), "Expected index with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:wake"), "Expected wake index with custom prefix to exist")

	list, err := store.List(ctx)
	assert.NoError(t, err)
	assert.Contains(t, list, session.Key)
}

func TestRedisStore_WakeIndexFollowsStatus(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()

	wake := time.Now()
	session := domain.NewSession("greeting", 1, "u1", time.Now())
	session.Status = domain.StatusSleeping
	session.CurrentNodeID = "wait"
	session.WakeAt = &wake
	require.NoError(t, store.Save(ctx, session, 0))

	members, err := mr.ZMembers("parley:session:wake")
	require.NoError(t, err)
	assert.Equal(t, []string{session.Key}, members)

	session.Status = domain.StatusEnded
	session.WakeAt = nil
	require.NoError(t, store.Save(ctx, session, session.Version))

	members, _ = mr.ZMembers("parley:session:wake")
	assert.Empty(t, members)
	members, err = mr.ZMembers("parley:session:terminal")
	require.NoError(t, err)
	assert.Equal(t, []string{session.Key}, members)
}
