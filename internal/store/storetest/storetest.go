// Package storetest is a conformance suite run against every store.Store
// backend so they behave identically for the credential store.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/velux-go/internal/store"
)

// Factory returns a fresh, empty store. Cleanup is the factory's job
// (t.Cleanup).
type Factory func(t *testing.T) store.Store

// Run executes the full conformance suite.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("PutGet", func(t *testing.T) { testPutGet(t, newStore(t)) })
	t.Run("PutReplaces", func(t *testing.T) { testPutReplaces(t, newStore(t)) })
	t.Run("PutMissingKey", func(t *testing.T) { testPutMissingKey(t, newStore(t)) })
	t.Run("UpdateMustExist", func(t *testing.T) { testUpdateMustExist(t, newStore(t)) })
	t.Run("UpdateAlwaysCreates", func(t *testing.T) { testUpdateAlwaysCreates(t, newStore(t)) })
	t.Run("UpdateMerges", func(t *testing.T) { testUpdateMerges(t, newStore(t)) })
	t.Run("Query", func(t *testing.T) { testQuery(t, newStore(t)) })
	t.Run("QueryFollowsUpdates", func(t *testing.T) { testQueryFollowsUpdates(t, newStore(t)) })
	t.Run("QueryUnknownIndex", func(t *testing.T) { testQueryUnknownIndex(t, newStore(t)) })
	t.Run("ConcurrentUpdates", func(t *testing.T) { testConcurrentUpdates(t, newStore(t)) })
}

func testGetMissing(t *testing.T, s store.Store) {
	_, err := s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testPutGet(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, store.Item{"id": "settings", "base_url": "https://x"}))

	got, err := s.Get(ctx, "settings")
	require.NoError(t, err)
	assert.Equal(t, store.Item{"id": "settings", "base_url": "https://x"}, got)

	// Mutating the returned item must not leak into the store.
	got["base_url"] = "mutated"

	again, err := s.Get(ctx, "settings")
	require.NoError(t, err)
	assert.Equal(t, "https://x", again["base_url"])
}

func testPutReplaces(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, store.Item{"id": "k", "a": "1", "b": "2"}))
	require.NoError(t, s.Put(ctx, store.Item{"id": "k", "a": "3"}))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, store.Item{"id": "k", "a": "3"}, got)
}

func testPutMissingKey(t *testing.T, s store.Store) {
	err := s.Put(context.Background(), store.Item{"a": "1"})
	require.ErrorIs(t, err, store.ErrMissingKey)
}

func testUpdateMustExist(t *testing.T, s store.Store) {
	ctx := context.Background()

	err := s.Update(ctx, "config-alice", map[string]string{"AccessToken": "a"}, store.MustExist)
	require.ErrorIs(t, err, store.ErrConditionFailed)

	_, err = s.Get(ctx, "config-alice")
	require.ErrorIs(t, err, store.ErrNotFound, "failed conditional update must not create the item")
}

func testUpdateAlwaysCreates(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, "k", map[string]string{"a": "1"}, store.Always))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, store.Item{"id": "k", "a": "1"}, got)
}

func testUpdateMerges(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, store.Item{"id": "config-alice", "username": "alice", "AccessToken": "old"}))
	require.NoError(t, s.Update(ctx, "config-alice",
		map[string]string{"AccessToken": "new", "RefreshToken": "r"}, store.MustExist))

	got, err := s.Get(ctx, "config-alice")
	require.NoError(t, err)
	assert.Equal(t, store.Item{
		"id":           "config-alice",
		"username":     "alice",
		"AccessToken":  "new",
		"RefreshToken": "r",
	}, got)
}

func testQuery(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, store.Item{"id": "config-bob", "userId": "amzn-2"}))
	require.NoError(t, s.Put(ctx, store.Item{"id": "config-alice", "userId": "amzn-1"}))
	require.NoError(t, s.Put(ctx, store.Item{"id": "config-zed", "userId": "amzn-1"}))
	require.NoError(t, s.Put(ctx, store.Item{"id": "settings"}))

	key, err := s.Query(ctx, store.UserIDIndex, store.UserIDAttribute, "amzn-1")
	require.NoError(t, err)
	assert.Equal(t, "config-alice", key, "first match in key order")

	key, err = s.Query(ctx, store.UserIDIndex, store.UserIDAttribute, "amzn-2")
	require.NoError(t, err)
	assert.Equal(t, "config-bob", key)

	_, err = s.Query(ctx, store.UserIDIndex, store.UserIDAttribute, "amzn-3")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Query(ctx, store.UserIDIndex, store.UserIDAttribute, "")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testQueryFollowsUpdates(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, store.Item{"id": "config-alice", "userId": "amzn-1"}))
	require.NoError(t, s.Update(ctx, "config-alice", map[string]string{"userId": "amzn-9"}, store.MustExist))

	_, err := s.Query(ctx, store.UserIDIndex, store.UserIDAttribute, "amzn-1")
	require.ErrorIs(t, err, store.ErrNotFound, "stale index entry must be gone")

	key, err := s.Query(ctx, store.UserIDIndex, store.UserIDAttribute, "amzn-9")
	require.NoError(t, err)
	assert.Equal(t, "config-alice", key)

	require.NoError(t, s.Put(ctx, store.Item{"id": "config-alice"}))

	_, err = s.Query(ctx, store.UserIDIndex, store.UserIDAttribute, "amzn-9")
	require.ErrorIs(t, err, store.ErrNotFound, "put without the attribute drops the index entry")

	require.NoError(t, s.Put(ctx, store.Item{"id": "config-bob", "userId": "amzn-5"}))
	require.NoError(t, s.Update(ctx, "config-bob", map[string]string{"userId": ""}, store.MustExist))

	_, err = s.Query(ctx, store.UserIDIndex, store.UserIDAttribute, "amzn-5")
	require.ErrorIs(t, err, store.ErrNotFound, "an emptied attribute drops the index entry")
}

func testQueryUnknownIndex(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Query(ctx, "email-index", "email", "a@b")
	require.ErrorIs(t, err, store.ErrUnknownIndex)

	_, err = s.Query(ctx, store.UserIDIndex, "email", "a@b")
	require.ErrorIs(t, err, store.ErrUnknownIndex)
}

func testConcurrentUpdates(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, store.Item{"id": "k"}))

	var wg sync.WaitGroup

	fields := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, f := range fields {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.NoError(t, s.Update(ctx, "k", map[string]string{f: "1"}, store.MustExist))
		}()
	}

	wg.Wait()

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)

	for _, f := range fields {
		assert.Equal(t, "1", got[f], "field %s lost in concurrent update", f)
	}
}
