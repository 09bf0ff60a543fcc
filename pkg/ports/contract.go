package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore implementation
// adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seq := 0
	newSession := func(status domain.Status) *domain.Session {
		seq++
		s := domain.NewSession("contract", 1, fmt.Sprintf("user-%d-%d", time.Now().UnixNano(), seq), base)
		s.Status = status
		s.CurrentNodeID = "ask"
		if status == domain.StatusWaitingForInput {
			s.ExpectedInput = &domain.ExpectedInput{Kind: domain.InputFreeText, NodeID: "ask", VariableName: "nome"}
		}
		return s
	}

	t.Run("Save and Load", func(t *testing.T) {
		s := newSession(domain.StatusWaitingForInput)
		s.Variables["nome"] = "Maria"
		s.History = []string{"hello", "ask"}

		require.NoError(t, store.Save(ctx, s, 0), "Save should not return error")
		assert.Equal(t, int64(1), s.Version, "Save should bump the caller's version")

		loaded, err := store.Load(ctx, s.Key)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, s.Key, loaded.Key)
		assert.Equal(t, s.FlowID, loaded.FlowID)
		assert.Equal(t, s.FlowVersion, loaded.FlowVersion)
		assert.Equal(t, s.UserID, loaded.UserID)
		assert.Equal(t, "ask", loaded.CurrentNodeID)
		assert.Equal(t, domain.StatusWaitingForInput, loaded.Status)
		assert.Equal(t, "Maria", loaded.Variables["nome"])
		assert.Equal(t, []string{"hello", "ask"}, loaded.History)
		assert.Equal(t, s.ExpectedInput, loaded.ExpectedInput)
		assert.Equal(t, int64(1), loaded.Version)
		assert.WithinDuration(t, base, loaded.LastActivityAt, time.Millisecond)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "contract:nobody")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Optimistic Versioning", func(t *testing.T) {
		s := newSession(domain.StatusWaitingForInput)
		require.NoError(t, store.Save(ctx, s, 0))

		dup := s.Clone()
		err := store.Save(ctx, dup, 0)
		assert.ErrorIs(t, err, domain.ErrConflict, "create-only save over an existing session")

		first, err := store.Load(ctx, s.Key)
		require.NoError(t, err)
		second, err := store.Load(ctx, s.Key)
		require.NoError(t, err)

		first.Variables["winner"] = "first"
		require.NoError(t, store.Save(ctx, first, first.Version))
		assert.Equal(t, int64(2), first.Version)

		second.Variables["winner"] = "second"
		err = store.Save(ctx, second, second.Version)
		assert.ErrorIs(t, err, domain.ErrConflict, "stale writer must lose")

		loaded, err := store.Load(ctx, s.Key)
		require.NoError(t, err)
		assert.Equal(t, "first", loaded.Variables["winner"])
		assert.Equal(t, int64(2), loaded.Version)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newSession(domain.StatusEnded)
		require.NoError(t, store.Save(ctx, s, 0))

		require.NoError(t, store.Delete(ctx, s.Key), "Delete should not return error")
		_, err := store.Load(ctx, s.Key)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")

		assert.NoError(t, store.Delete(ctx, s.Key), "Delete is idempotent")

		require.NoError(t, store.Save(ctx, s.Clone(), 0), "a deleted key can be created again")
		require.NoError(t, store.Delete(ctx, s.Key))
	})

	t.Run("List", func(t *testing.T) {
		s1 := newSession(domain.StatusWaitingForInput)
		s2 := newSession(domain.StatusEnded)
		require.NoError(t, store.Save(ctx, s1, 0))
		require.NoError(t, store.Save(ctx, s2, 0))
		defer func() {
			_ = store.Delete(ctx, s1.Key)
			_ = store.Delete(ctx, s2.Key)
		}()

		keys, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, keys, s1.Key)
		assert.Contains(t, keys, s2.Key)
	})

	t.Run("ListDue", func(t *testing.T) {
		sleeping := func(wake time.Time) *domain.Session {
			s := newSession(domain.StatusSleeping)
			s.CurrentNodeID = "wait"
			s.WakeAt = &wake
			return s
		}
		early := sleeping(base.Add(-2 * time.Minute))
		due := sleeping(base.Add(-time.Minute))
		exact := sleeping(base)
		future := sleeping(base.Add(time.Hour))
		waiting := newSession(domain.StatusWaitingForInput)
		for _, s := range []*domain.Session{due, early, exact, future, waiting} {
			require.NoError(t, store.Save(ctx, s, 0))
		}

		keys, err := store.ListDue(ctx, base, 0)
		require.NoError(t, err)
		assert.Contains(t, keys, early.Key)
		assert.Contains(t, keys, due.Key)
		assert.Contains(t, keys, exact.Key, "wake time equal to now is due")
		assert.NotContains(t, keys, future.Key)
		assert.NotContains(t, keys, waiting.Key)
		assert.Less(t, indexOf(keys, early.Key), indexOf(keys, due.Key), "earliest first")

		limited, err := store.ListDue(ctx, base, 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)

		// Waking the session must drop it from the due set.
		woken, err := store.Load(ctx, due.Key)
		require.NoError(t, err)
		woken.Status = domain.StatusHandedOff
		woken.WakeAt = nil
		require.NoError(t, store.Save(ctx, woken, woken.Version))

		keys, err = store.ListDue(ctx, base, 0)
		require.NoError(t, err)
		assert.NotContains(t, keys, due.Key)

		require.NoError(t, store.Delete(ctx, early.Key))
		keys, err = store.ListDue(ctx, base, 0)
		require.NoError(t, err)
		assert.NotContains(t, keys, early.Key, "deleted sessions are not due")

		for _, s := range []*domain.Session{due, exact, future, waiting} {
			_ = store.Delete(ctx, s.Key)
		}
	})

	t.Run("PurgeTerminal", func(t *testing.T) {
		cutoff := base.Add(24 * time.Hour)
		oldEnded := newSession(domain.StatusEnded)
		oldErrored := newSession(domain.StatusErrored)
		recentEnded := newSession(domain.StatusEnded)
		recentEnded.LastActivityAt = cutoff.Add(time.Hour)
		oldWaiting := newSession(domain.StatusWaitingForInput)
		for _, s := range []*domain.Session{oldEnded, oldErrored, recentEnded, oldWaiting} {
			require.NoError(t, store.Save(ctx, s, 0))
		}

		n, err := store.PurgeTerminal(ctx, cutoff)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 2)

		for _, gone := range []string{oldEnded.Key, oldErrored.Key} {
			_, err := store.Load(ctx, gone)
			assert.ErrorIs(t, err, domain.ErrSessionNotFound, gone)
		}
		for _, kept := range []string{recentEnded.Key, oldWaiting.Key} {
			_, err := store.Load(ctx, kept)
			assert.NoError(t, err, kept)
			_ = store.Delete(ctx, kept)
		}
	})
}

func indexOf(keys []string, key string) int {
	for i, k := range keys {
		if k == key {
			return i
		}
	}
	return -1
}
