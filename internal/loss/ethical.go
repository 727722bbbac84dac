package loss

import "github.com/duotrack/substrate/internal/types"

// PrincipleScores is the principle-score vector the oracle produces
// against a fixed, named principle set. Scores are in [0, 1].
type PrincipleScores map[string]float64

// EthicalDimension names the declared principle subject to the floor.
const EthicalDimension = "ethical"

// CheckEthicalFloor reports whether scores' ethical dimension is below
// the configured floor (default 0.6). Writing is never blocked by this
// check; callers tag the record and emit a violation edge if it fails.
func (e *Engine) CheckEthicalFloor(scores PrincipleScores) bool {
	score, ok := scores[EthicalDimension]
	if !ok {
		return false
	}
	return score < e.cfg.EthicalFloor
}

// ViolationEdge builds the violation edge emitted when a record fails
// the ethical floor, sourced from the record itself and targeting the
// fixed ethical-floor sentinel id.
func ViolationEdge(recordID types.ID) types.Edge {
	return types.Edge{
		SourceID: recordID,
		TargetID: types.EthicalFloorSentinelID,
		Kind:     types.EdgeViolation,
	}
}
