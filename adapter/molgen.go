package adapter

import (
	"context"
	"time"

	"github.com/chemgate/chemgate/types"
)

// SMILES templates the synthetic generator draws from.
var smilesTemplates = []string{
	"CCc1ccc(cc1)C(=O)Nc2ccc(cc2)S(=O)(=O)N",
	"COc1ccc(cc1)C(=O)Nc2cccc(c2)C(F)(F)F",
	"Cc1ccc(cc1)S(=O)(=O)Nc2ccc(cc2)C(=O)O",
	"CCN(CC)C(=O)c1ccc(cc1)Oc2ccccc2",
	"Nc1ccc(cc1)S(=O)(=O)Nc2ccc(cc2)C(=O)N",
}

// MolecularGenerator is the reference generative-chemistry adapter. All
// numeric output is synthetic, drawn from the injected Source.
type MolecularGenerator struct {
	src     *Source
	latency time.Duration
}

// NewMolecularGenerator creates the adapter. latency is added to every call
// to simulate model inference time; zero disables it.
func NewMolecularGenerator(src *Source, latency time.Duration) *MolecularGenerator {
	return &MolecularGenerator{src: src, latency: latency}
}

func (g *MolecularGenerator) Name() string { return "molecular_generator" }

func (g *MolecularGenerator) Operations() []string {
	return []string{"generate_molecules", "optimize_molecule", "find_similar_molecules"}
}

func (g *MolecularGenerator) Schema(operation string) (Schema, bool) {
	switch operation {
	case "generate_molecules":
		return Schema{
			"mw":            {Type: TypeNumber, Required: true},
			"logp":          {Type: TypeNumber},
			"num_molecules": {Type: TypeInteger},
		}, true
	case "optimize_molecule":
		return Schema{
			"input_smiles":   {Type: TypeString, Required: true},
			"max_iterations": {Type: TypeInteger},
		}, true
	case "find_similar_molecules":
		return Schema{
			"query_smiles":         {Type: TypeString, Required: true},
			"similarity_threshold": {Type: TypeNumber},
			"max_results":          {Type: TypeInteger},
		}, true
	}
	return nil, false
}

func (g *MolecularGenerator) Call(ctx context.Context, operation string, args map[string]interface{}) (map[string]interface{}, error) {
	if err := Sleep(ctx, g.latency); err != nil {
		return nil, err
	}

	switch operation {
	case "generate_molecules":
		return g.generate(args), nil
	case "optimize_molecule":
		return g.optimize(args), nil
	case "find_similar_molecules":
		return g.findSimilar(args), nil
	}
	return nil, types.NewError(types.CodePermanent, "molecular_generator has no operation %q", operation)
}

func (g *MolecularGenerator) generate(args map[string]interface{}) map[string]interface{} {
	mw := asFloat(args["mw"])
	count := asInt(args["num_molecules"], 10)

	molecules := make([]interface{}, 0, count)
	for i := 0; i < count; i++ {
		molecules = append(molecules, map[string]interface{}{
			"smiles": g.src.Pick(smilesTemplates),
			"properties": map[string]interface{}{
				// Synthetic properties scatter around the requested target.
				"molecular_weight": g.src.Float64(mw*0.8, mw*1.2),
				"logp":             g.src.Float64(-1, 5),
			},
			"generation_score": g.src.Float64(0.6, 0.95),
		})
	}

	best := molecules[0].(map[string]interface{})
	return map[string]interface{}{
		"smiles":        best["smiles"],
		"molecules":     molecules,
		"model_version": "MolGen-v2.1",
	}
}

func (g *MolecularGenerator) optimize(args map[string]interface{}) map[string]interface{} {
	input, _ := args["input_smiles"].(string)
	iterations := asInt(args["max_iterations"], 10)
	if iterations > 5 {
		iterations = 5
	}

	modifications := []string{"F", "Cl", "CH3", "OH", "NH2"}
	optimized := make([]interface{}, 0, iterations)
	best := 0.0
	for i := 0; i < iterations; i++ {
		score := g.src.Float64(0.1, 0.8)
		if score > best {
			best = score
		}
		optimized = append(optimized, map[string]interface{}{
			"smiles":            input + g.src.Pick(modifications),
			"improvement_score": score,
		})
	}

	return map[string]interface{}{
		"optimized_molecules": optimized,
		"best_improvement":    best,
	}
}

func (g *MolecularGenerator) findSimilar(args map[string]interface{}) map[string]interface{} {
	threshold := asFloat(args["similarity_threshold"])
	if threshold == 0 {
		threshold = 0.8
	}
	max := asInt(args["max_results"], 50)

	count := g.src.Intn(10, 30)
	if count > max {
		count = max
	}
	similar := make([]interface{}, 0, count)
	for i := 0; i < count; i++ {
		similar = append(similar, map[string]interface{}{
			"smiles":           g.src.Pick(smilesTemplates),
			"similarity_score": g.src.Float64(threshold, 1.0),
			"database_id":      "CHEMBL_" + itoa(g.src.Intn(100000, 999999)),
		})
	}

	return map[string]interface{}{"similar_molecules": similar}
}
