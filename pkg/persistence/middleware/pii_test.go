package middleware_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware([]string{"password", "^cpf$"})
	require.NoError(t, err)
	store := mw(underlying)

	s := domain.NewSession("f", 1, "u", time.Now())
	s.Variables["nome"] = "Maria"
	s.Variables["user_password"] = "secret123"
	s.Variables["cpf"] = "123.456.789-00"
	s.Variables["cpf_ok"] = "sim"

	require.NoError(t, store.Save(ctx, s, 0))
	assert.Equal(t, "secret123", s.Variables["user_password"], "in-memory session is not modified")
	assert.Equal(t, int64(1), s.Version)

	stored, err := underlying.Load(ctx, s.Key)
	require.NoError(t, err)
	assert.Equal(t, "Maria", stored.Variables["nome"])
	assert.Equal(t, middleware.Mask, stored.Variables["user_password"])
	assert.Equal(t, middleware.Mask, stored.Variables["cpf"])
	assert.Equal(t, "sim", stored.Variables["cpf_ok"])
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	_, err := middleware.NewPIIMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestChain_OrderAndVersion(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	pii, err := middleware.NewPIIMiddleware([]string{"senha"})
	require.NoError(t, err)
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)

	store := middleware.Chain(underlying, pii, enc)

	s := domain.NewSession("f", 1, "u", time.Now())
	s.Variables["senha"] = "1234"
	s.Variables["nome"] = "Maria"
	require.NoError(t, store.Save(ctx, s, 0))
	require.NoError(t, store.Save(ctx, s, 1))
	assert.Equal(t, int64(2), s.Version)

	loaded, err := store.Load(ctx, s.Key)
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, loaded.Variables["senha"])
	assert.Equal(t, "Maria", loaded.Variables["nome"])
}
