package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chemgate/chemgate/types"
)

func sampleRun(id uint64, state string) types.WorkflowRun {
	return types.WorkflowRun{
		ID:    id,
		State: state,
		Definition: types.WorkflowDefinition{
			Name: "generate-then-dock",
			Steps: []types.StepSpec{
				{ToolName: "molecular_generator", Operation: "generate_molecules"},
			},
		},
	}
}

func TestMemoryStoreSaveGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	run := sampleRun(1, types.RunPending)
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.GetRun(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, run, got)

	// Save overwrites.
	run.State = types.RunRunning
	require.NoError(t, store.SaveRun(ctx, run))
	got, err = store.GetRun(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.RunRunning, got.State)

	_, err = store.GetRun(ctx, 99)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestMemoryStoreClearTerminal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.SaveRun(ctx, sampleRun(1, types.RunCompleted)))
	require.NoError(t, store.SaveRun(ctx, sampleRun(2, types.RunFailed)))
	require.NoError(t, store.SaveRun(ctx, sampleRun(3, types.RunAborted)))
	require.NoError(t, store.SaveRun(ctx, sampleRun(4, types.RunRunning)))

	require.NoError(t, store.ClearTerminal(ctx))

	for _, id := range []uint64{1, 2, 3} {
		_, err := store.GetRun(ctx, id)
		assert.ErrorIs(t, err, ErrRunNotFound)
	}
	_, err := store.GetRun(ctx, 4)
	assert.NoError(t, err)
}

func TestMemoryStoreContextCancelled(t *testing.T) {
	store := NewMemoryStore()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.SaveRun(ctx, sampleRun(1, types.RunPending)), context.Canceled)
	_, err := store.GetRun(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
