package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMolecularGeneratorDeterminism(t *testing.T) {
	ctx := context.Background()

	call := func(seed int64) map[string]interface{} {
		g := NewMolecularGenerator(NewSource(seed), 0)
		payload, err := g.Call(ctx, "generate_molecules", map[string]interface{}{
			"mw":            400.0,
			"num_molecules": 3,
		})
		require.NoError(t, err)
		return payload
	}

	first := call(7)
	second := call(7)
	assert.Equal(t, first, second, "same seed must yield the same payload")

	smiles, ok := first["smiles"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, smiles)
	assert.Len(t, first["molecules"], 3)
}

func TestDockingPayload(t *testing.T) {
	d := NewDocking(NewSource(1), 0)

	payload, err := d.Call(context.Background(), "glide_docking", map[string]interface{}{
		"ligand": "CCO",
	})
	require.NoError(t, err)

	score, ok := payload["docking_score"].(float64)
	require.True(t, ok)
	assert.Less(t, score, 0.0)
	assert.NotEmpty(t, payload["poses"])
}

func TestUnknownOperation(t *testing.T) {
	g := NewMolecularGenerator(NewSource(1), 0)
	_, err := g.Call(context.Background(), "fold_protein", nil)
	assert.Error(t, err)
}

func TestCallObservesCancellation(t *testing.T) {
	g := NewMolecularGenerator(NewSource(1), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Call(ctx, "generate_molecules", map[string]interface{}{"mw": 300.0})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFuncTool(t *testing.T) {
	tool := NewFuncTool("demo")
	tool.AddOperation("echo", Operation{
		Schema: Schema{"msg": {Type: TypeString, Required: true}},
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"msg": args["msg"]}, nil
		},
	})

	assert.Equal(t, "demo", tool.Name())
	assert.Equal(t, []string{"echo"}, tool.Operations())

	_, ok := tool.Schema("echo")
	assert.True(t, ok)
	_, ok = tool.Schema("missing")
	assert.False(t, ok)

	payload, err := tool.Call(context.Background(), "echo", map[string]interface{}{"msg": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", payload["msg"])

	_, err = tool.Call(context.Background(), "missing", nil)
	assert.Error(t, err)
}
