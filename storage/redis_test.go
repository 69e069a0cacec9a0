package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chemgate/chemgate/types"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)

	store, err := NewRedisStore(RedisOptions{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRedisStoreSaveGet(t *testing.T) {
	ctx := context.Background()
	store := newTestRedisStore(t)

	run := sampleRun(42, types.RunRunning)
	run.StepResults = []types.ToolResult{
		{Status: types.ResultOK, Payload: map[string]interface{}{"smiles": "CCO"}},
	}
	run.CurrentStepIndex = 1
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, run.State, got.State)
	assert.Equal(t, run.CurrentStepIndex, got.CurrentStepIndex)
	require.Len(t, got.StepResults, 1)
	assert.Equal(t, "CCO", got.StepResults[0].Payload["smiles"])

	_, err = store.GetRun(ctx, 7)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRedisStoreClearTerminal(t *testing.T) {
	ctx := context.Background()
	store := newTestRedisStore(t)

	require.NoError(t, store.SaveRun(ctx, sampleRun(1, types.RunCompleted)))
	require.NoError(t, store.SaveRun(ctx, sampleRun(2, types.RunRunning)))
	require.NoError(t, store.SaveRun(ctx, sampleRun(3, types.RunFailed)))

	require.NoError(t, store.ClearTerminal(ctx))

	_, err := store.GetRun(ctx, 1)
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = store.GetRun(ctx, 3)
	assert.ErrorIs(t, err, ErrRunNotFound)

	got, err := store.GetRun(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, types.RunRunning, got.State)
}

func TestRedisStoreConnectFailure(t *testing.T) {
	_, err := NewRedisStore(RedisOptions{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
