package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expensetrack/expense-api/internal/models"
)

func TestMemoryStorePutGetDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	s := &models.Session{Token: "t1", UserID: "u1", LastActivity: time.Now(), IPAddress: "127.0.0.1", UserAgent: "go-test"}
	require.NoError(t, store.Put(ctx, s))

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	removed, err := store.Delete(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, removed)
	_, err = store.Get(ctx, "t1")
	assert.ErrorIs(t, err, ErrNotFound)

	// deleting an absent token is fine, but must not report a removal
	removed, err = store.Delete(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestMemoryStoreTouch(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	old := time.Now().Add(-time.Hour)
	require.NoError(t, store.Put(ctx, &models.Session{Token: "t1", UserID: "u1", LastActivity: old}))

	now := time.Now()
	require.NoError(t, store.Touch(ctx, "t1", now))

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, got.LastActivity.After(old))

	assert.ErrorIs(t, store.Touch(ctx, "missing", now), ErrNotFound)
}

func TestMemoryStoreUserScoping(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &models.Session{Token: "a1", UserID: "alice"}))
	require.NoError(t, store.Put(ctx, &models.Session{Token: "a2", UserID: "alice"}))
	require.NoError(t, store.Put(ctx, &models.Session{Token: "b1", UserID: "bob"}))

	aliceSessions, err := store.ListByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, aliceSessions, 2)

	removed, err := store.DeleteByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	// bob's session is untouched
	_, err = store.Get(ctx, "b1")
	require.NoError(t, err)

	aliceSessions, err = store.ListByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, aliceSessions)
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, &models.Session{Token: "t1", UserID: "u1", LastActivity: time.Now()}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.Touch(ctx, "t1", time.Now())
		}()
		go func() {
			defer wg.Done()
			_, _ = store.Get(ctx, "t1")
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
}
