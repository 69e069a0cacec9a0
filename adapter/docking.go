package adapter

import (
	"context"
	"math"
	"time"

	"github.com/chemgate/chemgate/types"
)

// Docking is the reference structure-based adapter: Glide-style docking and
// ligand preparation with synthetic scores.
type Docking struct {
	src     *Source
	latency time.Duration
}

// NewDocking creates the adapter. latency simulates grid and pose search
// time; zero disables it.
func NewDocking(src *Source, latency time.Duration) *Docking {
	return &Docking{src: src, latency: latency}
}

func (d *Docking) Name() string { return "docking" }

func (d *Docking) Operations() []string {
	return []string{"glide_docking", "ligprep"}
}

func (d *Docking) Schema(operation string) (Schema, bool) {
	switch operation {
	case "glide_docking":
		return Schema{
			"ligand":    {Type: TypeString, Required: true},
			"receptor":  {Type: TypeString},
			"precision": {Type: TypeString},
			"num_poses": {Type: TypeInteger},
		}, true
	case "ligprep":
		return Schema{
			"input_smiles": {Type: TypeString, Required: true},
			"ph":           {Type: TypeNumber},
		}, true
	}
	return nil, false
}

func (d *Docking) Call(ctx context.Context, operation string, args map[string]interface{}) (map[string]interface{}, error) {
	if err := Sleep(ctx, d.latency); err != nil {
		return nil, err
	}

	switch operation {
	case "glide_docking":
		return d.dock(args), nil
	case "ligprep":
		return d.ligprep(args), nil
	}
	return nil, types.NewError(types.CodePermanent, "docking has no operation %q", operation)
}

func (d *Docking) dock(args map[string]interface{}) map[string]interface{} {
	numPoses := asInt(args["num_poses"], 5)

	poses := make([]interface{}, 0, numPoses)
	best := 0.0
	for i := 0; i < numPoses; i++ {
		score := d.src.Float64(-12.0, -4.0)
		if score < best {
			best = score
		}
		poses = append(poses, map[string]interface{}{
			"pose_id":       i + 1,
			"docking_score": score,
		})
	}

	// Rough Ki estimate from the best score, same shape as the backend's.
	kiNM := math.Exp(-best*0.5) * 1000
	confidence := "low"
	if best < -8 {
		confidence = "medium"
	}

	return map[string]interface{}{
		"docking_score": best,
		"poses":         poses,
		"binding_affinity": map[string]interface{}{
			"ki_nm":      kiNM,
			"confidence": confidence,
		},
	}
}

func (d *Docking) ligprep(args map[string]interface{}) map[string]interface{} {
	input, _ := args["input_smiles"].(string)
	count := d.src.Intn(1, 4)

	states := []string{"", ".[H+]", ".[Na+]", ".[Cl-]"}
	structures := make([]interface{}, 0, count)
	for i := 0; i < count; i++ {
		structures = append(structures, map[string]interface{}{
			"smiles":       input + d.src.Pick(states),
			"state_energy": d.src.Float64(0, 3.5),
		})
	}

	return map[string]interface{}{
		"prepared_structures": structures,
		"num_structures":      count,
	}
}
