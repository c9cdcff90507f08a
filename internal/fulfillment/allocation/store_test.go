package allocation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bakeflow/bakeflow-backend/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewStore(rdb, 10*time.Minute), mr
}

func TestStore_SaveAndGet(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	s := newTestSession(70)
	require.NoError(t, store.Save(ctx, s))

	loaded, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.DemandLineID, loaded.DemandLineID)
	assert.Equal(t, s.Strategy, loaded.Strategy)
	require.Len(t, loaded.Candidates, 2)
	assert.True(t, loaded.Candidates[0].Quantity.Equal(decimal.NewFromInt(50)))
	assert.True(t, loaded.SnapshotAt.Equal(s.SnapshotAt))
}

func TestStore_GetUnknownIsNotFound(t *testing.T) {
	store, _ := setupStore(t)

	_, err := store.Get(context.Background(), "no-such-session")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestStore_ExpiredSessionIsNotFound(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	s := newTestSession(70)
	require.NoError(t, store.Save(ctx, s))

	mr.FastForward(11 * time.Minute)

	_, err := store.Get(ctx, s.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestStore_Delete(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	s := newTestSession(70)
	require.NoError(t, store.Save(ctx, s))
	require.NoError(t, store.Delete(ctx, s.ID))

	_, err := store.Get(ctx, s.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	// cancelling twice is fine
	assert.NoError(t, store.Delete(ctx, s.ID))
}
