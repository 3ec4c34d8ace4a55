package phenome

import (
	"context"

	"agon/internal/model"
)

// Artifact is an executable control unit decoded from exactly one genome. Its
// identity is a stable string assigned at decode time; callers must never rely
// on pointer equality.
type Artifact interface {
	ID() string
	GenomeID() string
	SetInputs(in []float64) error
	Outputs() []float64
	Activate(ctx context.Context) error
}

// Decoder turns a genome into an executable artifact. A nil artifact with a
// nil error signals a non-viable genome; that is a scored outcome for the
// caller, not a failure.
type Decoder interface {
	Decode(ctx context.Context, genome model.Genome) (Artifact, error)
}

// DecoderFunc adapts a plain function to the Decoder interface.
type DecoderFunc func(ctx context.Context, genome model.Genome) (Artifact, error)

func (f DecoderFunc) Decode(ctx context.Context, genome model.Genome) (Artifact, error) {
	return f(ctx, genome)
}
