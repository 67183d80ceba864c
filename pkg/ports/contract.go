package ports

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/bandit/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore
// implementation adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Set and Get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, sessionID, "exp-1", "B"))

		got, err := store.Get(ctx, sessionID, "exp-1")
		require.NoError(t, err)
		assert.Equal(t, "B", got)
	})

	t.Run("Last Write Wins", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, sessionID, "exp-2", "A"))
		require.NoError(t, store.Set(ctx, sessionID, "exp-2", "C"))

		got, err := store.Get(ctx, sessionID, "exp-2")
		require.NoError(t, err)
		assert.Equal(t, "C", got)
	})

	t.Run("Get Missing Key", func(t *testing.T) {
		_, err := store.Get(ctx, sessionID, "never-set")
		assert.ErrorIs(t, err, domain.ErrKeyNotFound)

		_, err = store.Get(ctx, "unknown-"+sessionID, "exp-1")
		assert.ErrorIs(t, err, domain.ErrKeyNotFound)
	})

	t.Run("Sessions Are Isolated", func(t *testing.T) {
		other := sessionID + "-other"
		require.NoError(t, store.Set(ctx, other, "exp-1", "A"))
		defer func() { _ = store.Clear(ctx, other) }()

		got, err := store.Get(ctx, sessionID, "exp-1")
		require.NoError(t, err)
		assert.Equal(t, "B", got)
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		require.NoError(t, store.Set(ctx, id1, "exp", "A"))
		require.NoError(t, store.Set(ctx, id2, "exp", "B"))
		defer func() {
			_ = store.Clear(ctx, id1)
			_ = store.Clear(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx, sessionID))

		_, err := store.Get(ctx, sessionID, "exp-1")
		assert.ErrorIs(t, err, domain.ErrKeyNotFound, "Get after Clear should return ErrKeyNotFound")

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.NotContains(t, sessions, sessionID)

		assert.NoError(t, store.Clear(ctx, sessionID), "clearing twice is not an error")
	})

	t.Run("Concurrent Writers", func(t *testing.T) {
		id := sessionID + "-concurrent"
		defer func() { _ = store.Clear(ctx, id) }()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, store.Set(ctx, id, "exp", "A"))
			}()
		}
		wg.Wait()

		got, err := store.Get(ctx, id, "exp")
		require.NoError(t, err)
		assert.Equal(t, "A", got)
	})
}
