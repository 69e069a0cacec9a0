package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaValidate(t *testing.T) {
	schema := Schema{
		"ligand":    {Type: TypeString, Required: true},
		"num_poses": {Type: TypeInteger},
		"precision": {Type: TypeString},
		"cutoff":    {Type: TypeNumber},
		"strict":    {Type: TypeBoolean},
	}

	t.Run("ValidArguments", func(t *testing.T) {
		offending := schema.Validate(map[string]interface{}{
			"ligand":    "CCO",
			"num_poses": 5,
			"cutoff":    1.5,
			"strict":    true,
		})
		assert.Empty(t, offending)
	})

	t.Run("MissingRequired", func(t *testing.T) {
		offending := schema.Validate(map[string]interface{}{"num_poses": 5})
		assert.Equal(t, []string{"ligand"}, offending)
	})

	t.Run("WrongTypes", func(t *testing.T) {
		offending := schema.Validate(map[string]interface{}{
			"ligand":    42,
			"num_poses": "five",
			"strict":    "yes",
		})
		assert.Equal(t, []string{"ligand", "num_poses", "strict"}, offending)
	})

	t.Run("JSONNumbersForIntegers", func(t *testing.T) {
		// json.Unmarshal yields float64; whole values pass as integers.
		offending := schema.Validate(map[string]interface{}{
			"ligand":    "CCO",
			"num_poses": float64(5),
		})
		assert.Empty(t, offending)

		offending = schema.Validate(map[string]interface{}{
			"ligand":    "CCO",
			"num_poses": 5.5,
		})
		assert.Equal(t, []string{"num_poses"}, offending)
	})

	t.Run("UndeclaredKeysPass", func(t *testing.T) {
		offending := schema.Validate(map[string]interface{}{
			"ligand": "CCO",
			"extra":  "anything",
		})
		assert.Empty(t, offending)
	})

	t.Run("OptionalAbsent", func(t *testing.T) {
		offending := schema.Validate(map[string]interface{}{"ligand": "CCO"})
		assert.Empty(t, offending)
	})
}
