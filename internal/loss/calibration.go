package loss

import (
	"context"
	"sort"

	"github.com/duotrack/substrate/internal/types"
)

// Calibrate fits layer bands against a reference corpus so each layer
// captures approximately its target fraction of stable records, per
// spec.md §4.F's "Layer assignment". targetFractions must be given in
// L1..L7 order and sum to (approximately) 1; the returned bands are
// ascending MaxLoss cutoffs usable directly with New.
//
// This is an explicit, operator-triggered step (exposed as `dtsctl
// calibrate`), not something the engine runs automatically on every
// write — recalibrating mid-stream would retroactively change the
// meaning of previously assigned layers.
func (e *Engine) Calibrate(ctx context.Context, corpus []string, targetFractions []float64) ([]Band, error) {
	if len(targetFractions) == 0 {
		targetFractions = even7()
	}
	losses := make([]float64, 0, len(corpus))
	for _, text := range corpus {
		l, err := e.TotalLoss(ctx, text)
		if err != nil {
			return nil, err
		}
		losses = append(losses, l)
	}
	sort.Float64s(losses)

	layers := []string{"L1", "L2", "L3", "L4", "L5", "L6", "L7"}
	bands := make([]Band, 0, len(layers))
	cumulative := 0.0
	for i, layer := range layers {
		if i >= len(targetFractions) {
			break
		}
		cumulative += targetFractions[i]
		idx := int(cumulative * float64(len(losses)))
		if idx >= len(losses) {
			idx = len(losses) - 1
		}
		bound := 1.0
		if len(losses) > 0 && idx >= 0 {
			bound = losses[idx]
		}
		bands = append(bands, Band{Layer: types.Layer(layer), MaxLoss: bound})
	}
	if len(bands) > 0 {
		bands[len(bands)-1].MaxLoss = 1.0 // last band always closes at 1.0
	}
	return bands, nil
}

func even7() []float64 {
	f := 1.0 / 7
	return []float64{f, f, f, f, f, f, f}
}
