package phenome

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"

	"agon/internal/model"
)

// NetSpec is the reference payload encoding: a single dense layer with a tanh
// nonlinearity. Weights are row-major, one row per output.
type NetSpec struct {
	Inputs  int       `json:"inputs"`
	Outputs int       `json:"outputs"`
	Weights []float64 `json:"weights"`
	Biases  []float64 `json:"biases"`
}

// EncodeNetSpec serializes a NetSpec into a genome payload.
func EncodeNetSpec(spec NetSpec) ([]byte, error) {
	if spec.Inputs <= 0 || spec.Outputs <= 0 {
		return nil, fmt.Errorf("net spec dimensions must be > 0: inputs=%d outputs=%d", spec.Inputs, spec.Outputs)
	}
	if len(spec.Weights) != spec.Inputs*spec.Outputs {
		return nil, fmt.Errorf("net spec weight count mismatch: got=%d want=%d", len(spec.Weights), spec.Inputs*spec.Outputs)
	}
	if len(spec.Biases) != spec.Outputs {
		return nil, fmt.Errorf("net spec bias count mismatch: got=%d want=%d", len(spec.Biases), spec.Outputs)
	}
	return json.Marshal(spec)
}

// VectorArtifact is the reference artifact: a feed-forward net decoded from a
// genome payload. It satisfies Artifact and is used by the demo task and the
// scheduler tests.
type VectorArtifact struct {
	id       string
	genomeID string
	spec     NetSpec
	inputs   []float64
	outputs  []float64
}

// VectorDecoder decodes NetSpec payloads. Malformed or empty payloads yield a
// non-viable result (nil artifact, nil error).
type VectorDecoder struct{}

func (VectorDecoder) Decode(ctx context.Context, genome model.Genome) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(genome.Payload) == 0 {
		return nil, nil
	}
	var spec NetSpec
	if err := json.Unmarshal(genome.Payload, &spec); err != nil {
		return nil, nil
	}
	if spec.Inputs <= 0 || spec.Outputs <= 0 {
		return nil, nil
	}
	if len(spec.Weights) != spec.Inputs*spec.Outputs || len(spec.Biases) != spec.Outputs {
		return nil, nil
	}
	return &VectorArtifact{
		id:       uuid.NewString(),
		genomeID: genome.ID,
		spec:     spec,
		inputs:   make([]float64, spec.Inputs),
		outputs:  make([]float64, spec.Outputs),
	}, nil
}

func (a *VectorArtifact) ID() string {
	return a.id
}

func (a *VectorArtifact) GenomeID() string {
	return a.genomeID
}

// Spec returns a copy of the decoded layer, used by engines that breed from
// an existing payload.
func (a *VectorArtifact) Spec() NetSpec {
	spec := a.spec
	spec.Weights = append([]float64(nil), a.spec.Weights...)
	spec.Biases = append([]float64(nil), a.spec.Biases...)
	return spec
}

func (a *VectorArtifact) SetInputs(in []float64) error {
	if len(in) != len(a.inputs) {
		return fmt.Errorf("input size mismatch: got=%d want=%d", len(in), len(a.inputs))
	}
	copy(a.inputs, in)
	return nil
}

func (a *VectorArtifact) Outputs() []float64 {
	out := make([]float64, len(a.outputs))
	copy(out, a.outputs)
	return out
}

func (a *VectorArtifact) Activate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for j := 0; j < a.spec.Outputs; j++ {
		sum := a.spec.Biases[j]
		row := j * a.spec.Inputs
		for i := 0; i < a.spec.Inputs; i++ {
			sum += a.spec.Weights[row+i] * a.inputs[i]
		}
		a.outputs[j] = math.Tanh(sum)
	}
	return nil
}
