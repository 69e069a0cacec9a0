package main

import (
	"context"
	"strconv"
	"time"

	"github.com/chemgate/chemgate/adapter"
	"github.com/chemgate/chemgate/registry"
	"github.com/chemgate/chemgate/types"
)

// registerTools stands up the seven chemistry adapters behind the registry.
// molecular_generator and docking are the full reference adapters; the rest
// are assembled from operations with synthetic payloads mirroring the
// backends they stand in for.
func registerTools(ctx context.Context, reg *registry.Registry, src *adapter.Source, latency time.Duration) error {
	register := func(tool adapter.Tool, capabilities ...string) error {
		return reg.Register(ctx, types.ToolDescriptor{
			Name:         tool.Name(),
			Capabilities: capabilities,
		}, tool)
	}

	if err := register(adapter.NewMolecularGenerator(src, latency), "generation", "optimization", "similarity"); err != nil {
		return err
	}
	if err := register(adapter.NewDocking(src, latency), "docking", "ligand-preparation"); err != nil {
		return err
	}
	if err := register(admetPredictor(src, latency), "admet", "druglikeness"); err != nil {
		return err
	}
	if err := register(mdSimulator(src, latency), "md-simulation"); err != nil {
		return err
	}
	if err := register(torsionScanner(src, latency), "torsion-scan"); err != nil {
		return err
	}
	if err := register(substructureSearcher(src, latency), "substructure-search"); err != nil {
		return err
	}
	return register(synthesisAssessor(src, latency), "synthesis-assessment")
}

func admetPredictor(src *adapter.Source, latency time.Duration) adapter.Tool {
	t := adapter.NewFuncTool("admet_predictor")
	t.AddOperation("predict_admet", adapter.Operation{
		Schema: adapter.Schema{
			"smiles": {Type: adapter.TypeString, Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			if err := adapter.Sleep(ctx, latency); err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"absorption": map[string]interface{}{
					"human_intestinal_absorption": src.Float64(0.3, 0.99),
					"bioavailability_score":       src.Float64(0.1, 0.85),
				},
				"distribution": map[string]interface{}{
					"blood_brain_barrier": src.Float64(0, 1),
				},
				"metabolism": map[string]interface{}{
					"half_life_minutes": src.Float64(20, 600),
				},
				"admet_score": src.Float64(0.2, 0.9),
			}, nil
		},
	})
	t.AddOperation("assess_druglikeness", adapter.Operation{
		Schema: adapter.Schema{
			"smiles": {Type: adapter.TypeString, Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			if err := adapter.Sleep(ctx, latency); err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"lipinski_violations":  src.Intn(0, 2),
				"overall_druglikeness": src.Float64(0.3, 0.95),
			}, nil
		},
	})
	return t
}

func mdSimulator(src *adapter.Source, latency time.Duration) adapter.Tool {
	t := adapter.NewFuncTool("md_simulator")
	t.AddOperation("run_md_simulation", adapter.Operation{
		Schema: adapter.Schema{
			"complex_pdb":        {Type: adapter.TypeString, Required: true},
			"simulation_time_ns": {Type: adapter.TypeNumber},
			"force_field":        {Type: adapter.TypeString},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			if err := adapter.Sleep(ctx, latency); err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"protein_rmsd_avg":     src.Float64(0.8, 3.2),
				"ligand_rmsd_avg":      src.Float64(0.5, 4.0),
				"hydrogen_bonds":       src.Intn(1, 8),
				"convergence_achieved": true,
				"binding_free_energy":  src.Float64(-15.0, -5.0),
			}, nil
		},
	})
	return t
}

func torsionScanner(src *adapter.Source, latency time.Duration) adapter.Tool {
	t := adapter.NewFuncTool("torsion_scanner")
	t.AddOperation("scan_torsion", adapter.Operation{
		Schema: adapter.Schema{
			"smiles":          {Type: adapter.TypeString, Required: true},
			"angle_increment": {Type: adapter.TypeInteger},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			if err := adapter.Sleep(ctx, latency); err != nil {
				return nil, err
			}
			increment := 30
			profile := make([]interface{}, 0, 360/increment)
			for angle := 0; angle < 360; angle += increment {
				profile = append(profile, map[string]interface{}{
					"angle":  angle,
					"energy": src.Float64(0, 8.5),
				})
			}
			return map[string]interface{}{
				"energy_profile": profile,
				"barrier_height": src.Float64(1.0, 8.5),
			}, nil
		},
	})
	return t
}

func substructureSearcher(src *adapter.Source, latency time.Duration) adapter.Tool {
	t := adapter.NewFuncTool("substructure_searcher")
	t.AddOperation("search_substructure", adapter.Operation{
		Schema: adapter.Schema{
			"query_smarts": {Type: adapter.TypeString, Required: true},
			"database":     {Type: adapter.TypeString},
			"max_results":  {Type: adapter.TypeInteger},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			if err := adapter.Sleep(ctx, latency); err != nil {
				return nil, err
			}
			count := src.Intn(5, 40)
			matches := make([]interface{}, 0, count)
			for i := 0; i < count; i++ {
				matches = append(matches, map[string]interface{}{
					"compound_id":      "ZINC" + strconv.Itoa(src.Intn(10000000, 99999999)),
					"match_count":      src.Intn(1, 3),
					"molecular_weight": src.Float64(150, 550),
				})
			}
			return map[string]interface{}{"matches": matches, "count": count}, nil
		},
	})
	return t
}

func synthesisAssessor(src *adapter.Source, latency time.Duration) adapter.Tool {
	t := adapter.NewFuncTool("synthesis_assessor")
	t.AddOperation("assess_synthesis", adapter.Operation{
		Schema: adapter.Schema{
			"smiles": {Type: adapter.TypeString, Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			if err := adapter.Sleep(ctx, latency); err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"sa_score":        src.Float64(1.0, 10.0),
				"estimated_steps": src.Intn(3, 12),
				"feasibility":     src.Pick([]string{"easy", "moderate", "challenging"}),
			}, nil
		},
	})
	return t
}
