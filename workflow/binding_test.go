package workflow

import (
	"testing"

	"github.com/chemgate/chemgate/types"
)

func TestParseRef(t *testing.T) {
	idx, path, ok, err := parseRef("$step0.smiles")
	if err != nil || !ok || idx != 0 || len(path) != 1 || path[0] != "smiles" {
		t.Errorf("parseRef($step0.smiles) = %d %v %v %v", idx, path, ok, err)
	}

	idx, path, ok, err = parseRef("$step2.binding_affinity.ki_nm")
	if err != nil || !ok || idx != 2 || len(path) != 2 {
		t.Errorf("parseRef deep path = %d %v %v %v", idx, path, ok, err)
	}

	// Non-references pass through untouched.
	for _, v := range []interface{}{"CCO", 400.0, true, nil, "step0.smiles"} {
		if _, _, ok, err := parseRef(v); ok || err != nil {
			t.Errorf("parseRef(%v) should not be a reference", v)
		}
	}

	// Malformed references are errors, not literals.
	for _, v := range []string{"$step0", "$stepX.smiles", "$step-1.smiles"} {
		if _, _, _, err := parseRef(v); err == nil {
			t.Errorf("parseRef(%q) should fail", v)
		}
	}
}

func TestResolveBindings(t *testing.T) {
	results := []types.ToolResult{
		{Status: types.ResultOK, Payload: map[string]interface{}{
			"smiles": "CCO",
			"binding_affinity": map[string]interface{}{
				"ki_nm": 12.5,
			},
		}},
		{Status: types.ResultSkipped},
		{Status: types.ResultError, Error: types.NewError(types.CodeTimeout, "timed out")},
	}

	args, err := resolveBindings(map[string]interface{}{
		"ligand": "$step0.smiles",
		"ki":     "$step0.binding_affinity.ki_nm",
		"mw":     400.0,
	}, results)
	if err != nil {
		t.Fatalf("resolveBindings failed: %v", err)
	}
	if args["ligand"] != "CCO" || args["ki"] != 12.5 || args["mw"] != 400.0 {
		t.Errorf("unexpected args: %v", args)
	}

	cases := map[string]string{
		"future step":     "$step5.smiles",
		"skipped step":    "$step1.anything",
		"failed step":     "$step2.anything",
		"missing field":   "$step0.logp",
		"non-object path": "$step0.smiles.deeper",
	}
	for name, ref := range cases {
		_, err := resolveBindings(map[string]interface{}{"x": ref}, results)
		if err == nil || err.Code != types.CodeBinding {
			t.Errorf("%s: expected a binding error, got %v", name, err)
		}
	}
}

func TestConditionEnv(t *testing.T) {
	env := conditionEnv([]types.ToolResult{
		{Status: types.ResultOK, Payload: map[string]interface{}{"smiles": "CCO"}},
		{Status: types.ResultError, Error: types.NewError(types.CodeTimeout, "timed out")},
	})

	steps, ok := env["steps"].([]interface{})
	if !ok || len(steps) != 2 {
		t.Fatalf("unexpected env: %v", env)
	}

	first := steps[0].(map[string]interface{})
	if first["status"] != types.ResultOK {
		t.Errorf("unexpected first step: %v", first)
	}

	second := steps[1].(map[string]interface{})
	errEntry, ok := second["error"].(map[string]interface{})
	if !ok || errEntry["code"] != types.CodeTimeout {
		t.Errorf("unexpected error entry: %v", second)
	}
	if second["payload"] == nil {
		t.Error("payload must never be nil in the environment")
	}
}
