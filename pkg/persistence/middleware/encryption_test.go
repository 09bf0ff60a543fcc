package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/persistence/middleware"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func encrypted(t *testing.T, next ports.SessionStore, cfg middleware.EncryptionConfig) ports.SessionStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return mw(next)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, encrypted(t, memory.NewStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})

	s := domain.NewSession("onboarding", 1, "5511999", time.Now())
	s.Variables["cpf"] = "123.456.789-00"
	require.NoError(t, secure.Save(ctx, s, 0))
	assert.Equal(t, int64(1), s.Version)
	assert.Equal(t, "123.456.789-00", s.Variables["cpf"], "caller's session is untouched")

	raw, err := underlying.Load(ctx, s.Key)
	require.NoError(t, err)
	assert.NotContains(t, raw.Variables, "cpf")
	assert.Contains(t, raw.Variables, middleware.EnvelopeKey)
	assert.Equal(t, s.Status, raw.Status, "status stays readable for indexing")

	loaded, err := secure.Load(ctx, s.Key)
	require.NoError(t, err)
	assert.Equal(t, "123.456.789-00", loaded.Variables["cpf"])
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)

	oldStore := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: oldKey})
	s := domain.NewSession("f", 1, "u", time.Now())
	s.Variables["data"] = "old"
	require.NoError(t, oldStore.Save(ctx, s, 0))

	newStore := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}})
	loaded, err := newStore.Load(ctx, s.Key)
	require.NoError(t, err, "fallback key decrypts")
	assert.Equal(t, "old", loaded.Variables["data"])

	loaded.Variables["data"] = "new"
	require.NoError(t, newStore.Save(ctx, loaded, loaded.Version))

	_, err = oldStore.Load(ctx, s.Key)
	assert.Error(t, err, "old key alone cannot read data sealed with the new key")
}

func TestEncryptionMiddleware_PlainSessionRejected(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	require.NoError(t, underlying.Save(ctx, domain.NewSession("f", 1, "u", time.Now()), 0))

	secure := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	_, err := secure.Load(ctx, domain.SessionKey("f", "u"))
	assert.ErrorIs(t, err, middleware.ErrMissingEnvelope)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.Error(t, err)
}
