package flagstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// runStoreSuite exercises the FlagStore contract against a live implementation.
// Keys are prefixed with the test name so runs against shared backends do not collide.
func runStoreSuite(t *testing.T, s FlagStore) {
	ctx := context.Background()
	key := func(k string) string { return t.Name() + ":" + k }

	t.Run("create then exists", func(t *testing.T) {
		k := key("a")
		t.Cleanup(func() { _ = s.Delete(ctx, k) })

		held, err := s.Exists(ctx, k)
		require.NoError(t, err)
		require.False(t, held)

		f, err := s.Create(ctx, k)
		require.NoError(t, err)
		require.Equal(t, k, f.Key)
		require.NotEmpty(t, f.Owner)

		held, err = s.Exists(ctx, k)
		require.NoError(t, err)
		require.True(t, held)

		got, ok, err := s.Lookup(ctx, k)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, f.Owner, got.Owner)
	})

	t.Run("second create conflicts", func(t *testing.T) {
		k := key("b")
		t.Cleanup(func() { _ = s.Delete(ctx, k) })

		_, err := s.Create(ctx, k)
		require.NoError(t, err)

		_, err = s.Create(ctx, k)
		require.ErrorIs(t, err, ErrLockConflict)
	})

	t.Run("concurrent creates have one winner", func(t *testing.T) {
		k := key("c")
		t.Cleanup(func() { _ = s.Delete(ctx, k) })

		const n = 16
		var wins, conflicts atomic.Int32
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				_, err := s.Create(ctx, k)
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, ErrLockConflict):
					conflicts.Add(1)
				default:
					t.Errorf("unexpected create error: %v", err)
				}
			}()
		}
		wg.Wait()
		require.EqualValues(t, 1, wins.Load())
		require.EqualValues(t, n-1, conflicts.Load())
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		k := key("d")
		require.NoError(t, s.Delete(ctx, k))

		_, err := s.Create(ctx, k)
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, k))
		require.NoError(t, s.Delete(ctx, k))

		held, err := s.Exists(ctx, k)
		require.NoError(t, err)
		require.False(t, held)
	})

	t.Run("release only removes own flag", func(t *testing.T) {
		k := key("e")
		t.Cleanup(func() { _ = s.Delete(ctx, k) })

		f, err := s.Create(ctx, k)
		require.NoError(t, err)

		require.NoError(t, s.Release(ctx, Flag{Key: k, Owner: "someone-else", CreatedAt: f.CreatedAt}))
		held, err := s.Exists(ctx, k)
		require.NoError(t, err)
		require.True(t, held)

		require.NoError(t, s.Release(ctx, f))
		held, err = s.Exists(ctx, k)
		require.NoError(t, err)
		require.False(t, held)

		require.NoError(t, s.Release(ctx, f))
	})

	t.Run("clear stale respects age", func(t *testing.T) {
		k := key("f")
		t.Cleanup(func() { _ = s.Delete(ctx, k) })

		cleared, err := s.ClearStale(ctx, k, time.Millisecond)
		require.NoError(t, err)
		require.False(t, cleared)

		_, err = s.Create(ctx, k)
		require.NoError(t, err)

		cleared, err = s.ClearStale(ctx, k, time.Hour)
		require.NoError(t, err)
		require.False(t, cleared)

		time.Sleep(20 * time.Millisecond)
		cleared, err = s.ClearStale(ctx, k, 5*time.Millisecond)
		require.NoError(t, err)
		require.True(t, cleared)

		held, err := s.Exists(ctx, k)
		require.NoError(t, err)
		require.False(t, held)
	})
}
