package loss

import (
	"context"

	"github.com/duotrack/substrate/internal/types"
)

// DetectContradiction computes L(newText ⊕ oldText) against
// L(newText) + L(oldText); a super-additive result (the sum exceeded by
// more than ContradictionMargin) is evidence of logical tension between
// the two records. It does not block the write — callers emit a
// contradicts edge and proceed regardless of the result.
func (e *Engine) DetectContradiction(ctx context.Context, newID, oldID types.ID, newText, oldText string) (*types.Edge, error) {
	lossNew, err := e.TotalLoss(ctx, newText)
	if err != nil {
		return nil, err
	}
	lossOld, err := e.TotalLoss(ctx, oldText)
	if err != nil {
		return nil, err
	}
	lossCombined, err := e.TotalLoss(ctx, newText+oldText)
	if err != nil {
		return nil, err
	}

	margin := lossCombined - (lossNew + lossOld)
	if margin <= e.cfg.ContradictionMargin {
		return nil, nil
	}

	return &types.Edge{
		SourceID: newID,
		TargetID: oldID,
		Kind:     types.EdgeContradicts,
		Metadata: types.Metadata{"margin": margin},
	}, nil
}
