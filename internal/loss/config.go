package loss

import "time"

// Config holds the Galois Loss Engine's tunable constants. Defaults
// match spec.md §4.F verbatim; every field is overridable so
// internal/config can bind them to DTS_ environment variables.
type Config struct {
	// PrimaryWeight (α) and DualWeight (β) weight the primary and dual
	// loss terms in the total loss. Defaults 0.6 / 0.4.
	PrimaryWeight float64
	DualWeight    float64

	// DeterministicThreshold and ProbabilisticThreshold are the
	// classification boundaries: L < DeterministicThreshold →
	// DETERMINISTIC; DeterministicThreshold ≤ L < ProbabilisticThreshold
	// → PROBABILISTIC; L ≥ ProbabilisticThreshold → CHAOTIC.
	DeterministicThreshold  float64
	ProbabilisticThreshold  float64

	// FixedPointTolerance (τ) and FixedPointMaxSteps (K) bound the
	// fixed-point iteration used to detect axiom candidates.
	FixedPointTolerance float64
	FixedPointMaxSteps  int

	// ContradictionMargin (μ) is how much the combined loss must exceed
	// the sum of individual losses before a contradiction edge fires.
	ContradictionMargin float64

	// EthicalFloor is the minimum acceptable score for the declared
	// ethical dimension of a principle-score vector.
	EthicalFloor float64

	// OracleTimeout bounds a single oracle call; exceeding it degrades
	// the record to layer=unknown with a timeout tag.
	OracleTimeout time.Duration

	// DualLossWeights are the module-count-ratio, interface-overlap, and
	// composition-tree-similarity weights for the structural distance
	// d* used by the dual loss. Default 0.4, 0.3, 0.3.
	DualLossWeights [3]float64
}

// DefaultConfig returns spec.md §4.F's default tunables.
func DefaultConfig() Config {
	return Config{
		PrimaryWeight:          0.6,
		DualWeight:             0.4,
		DeterministicThreshold: 0.15,
		ProbabilisticThreshold: 0.45,
		FixedPointTolerance:    1e-3,
		FixedPointMaxSteps:     7,
		ContradictionMargin:    0.1,
		EthicalFloor:           0.6,
		OracleTimeout:          30 * time.Second,
		DualLossWeights:        [3]float64{0.4, 0.3, 0.3},
	}
}
