// Package oracle defines the Semantic Oracle Interface (spec.md §4.E):
// the pluggable, possibly non-deterministic external collaborator the
// loss engine consults for restructure/reconstitute/distance. A
// conforming implementation may be backed by an embedding model, an NLI
// model, an LLM, or any ensemble of these — the core never depends on a
// concrete model.
package oracle

import (
	"context"

	"github.com/duotrack/substrate/internal/types"
)

// Oracle is the Semantic Oracle Interface.
type Oracle interface {
	// Restructure decomposes text into a ModularForm.
	Restructure(ctx context.Context, text string) (types.ModularForm, error)

	// Reconstitute renders a ModularForm back to text.
	Reconstitute(ctx context.Context, form types.ModularForm) (string, error)

	// Distance returns a symmetric distance in [0, 1] between two texts,
	// up to the oracle's error floor.
	Distance(ctx context.Context, a, b string) (float64, error)
}

// Sample is one member's opinion within an ensemble evaluation, used to
// report both the mean and the standard deviation as confidence per
// spec.md §4.E's determinism policy.
type Sample struct {
	Value  float64
	Member string
}
