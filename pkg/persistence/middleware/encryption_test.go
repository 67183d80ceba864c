package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/bandit/pkg/adapters/memory"
	"github.com/aretw0/bandit/pkg/persistence/middleware"
	"github.com/aretw0/bandit/pkg/ports"
	"github.com/aretw0/bandit/pkg/session"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func encrypted(t *testing.T, next ports.SessionStore, active []byte, fallback ...[]byte) ports.SessionStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback})
	require.NoError(t, err)
	return mw(next)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, encrypted(t, memory.NewStore(), generateKey(t)))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	store := encrypted(t, underlying, generateKey(t))

	require.NoError(t, store.Set(ctx, "s1", "hero", "B"))

	raw, err := underlying.Get(ctx, "s1", "hero")
	require.NoError(t, err)
	assert.NotEqual(t, "B", raw, "the backend must not see the plaintext")

	got, err := store.Get(ctx, "s1", "hero")
	require.NoError(t, err)
	assert.Equal(t, "B", got)
}

func TestEncryptionMiddleware_BoundToSlot(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	store := encrypted(t, underlying, generateKey(t))

	require.NoError(t, store.Set(ctx, "s1", "hero", "B"))
	raw, err := underlying.Get(ctx, "s1", "hero")
	require.NoError(t, err)

	// Replaying the ciphertext under another session fails.
	require.NoError(t, underlying.Set(ctx, "s2", "hero", raw))
	_, err = store.Get(ctx, "s2", "hero")
	assert.ErrorIs(t, err, middleware.ErrDecrypt)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)

	require.NoError(t, encrypted(t, underlying, oldKey).Set(ctx, "s1", "hero", "A"))

	rotated := encrypted(t, underlying, newKey, oldKey)
	got, err := rotated.Get(ctx, "s1", "hero")
	require.NoError(t, err)
	assert.Equal(t, "A", got)

	_, err = encrypted(t, underlying, newKey).Get(ctx, "s1", "hero")
	assert.ErrorIs(t, err, middleware.ErrDecrypt)
}

func TestEncryptionMiddleware_DumpAndManager(t *testing.T) {
	ctx := context.Background()
	store := encrypted(t, memory.NewStore(), generateKey(t))

	_, ok := store.(ports.SessionDumper)
	require.True(t, ok, "dumping is kept when the backend supports it")

	mgr := session.NewManager(store)
	require.NoError(t, mgr.Session("s1").PersistVariant(ctx, "hero", "B"))

	assignments, exposed, err := mgr.Assignments(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"hero": "B"}, assignments)
	assert.Equal(t, []string{"hero"}, exposed)
}

func TestNewEncryptionMiddleware_BadKeys(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	assert.Error(t, err)

	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	key := generateKey(t)
	got, err := middleware.ParseKey(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = middleware.ParseKey("!!!")
	assert.Error(t, err)
	_, err = middleware.ParseKey(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestChain(t *testing.T) {
	var order []string
	tag := func(name string) middleware.Middleware {
		return func(next ports.SessionStore) ports.SessionStore {
			order = append(order, name)
			return next
		}
	}
	middleware.Chain(memory.NewStore(), tag("outer"), tag("inner"))
	assert.Equal(t, []string{"inner", "outer"}, order)
}
