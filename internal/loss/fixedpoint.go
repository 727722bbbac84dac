package loss

import "context"

// isAxiomCandidate runs the fixed-point iteration P, R(C(R(P))),
// R(C(R(C(R(P)))))… comparing successive total losses, terminating when
// they differ by less than FixedPointTolerance (an axiom candidate) or
// after FixedPointMaxSteps (not a candidate). Records tagged as axiom
// candidates are frozen against restructure on subsequent writes by the
// coordinator, not by this function.
func (e *Engine) isAxiomCandidate(ctx context.Context, text string) (bool, error) {
	prevLoss, err := e.TotalLoss(ctx, text)
	if err != nil {
		return false, err
	}

	current := text
	for step := 0; step < e.cfg.FixedPointMaxSteps; step++ {
		form, err := e.or.Restructure(ctx, current)
		if err != nil {
			return false, err
		}
		reconstituted, err := e.or.Reconstitute(ctx, form)
		if err != nil {
			return false, err
		}
		nextLoss, err := e.TotalLoss(ctx, reconstituted)
		if err != nil {
			return false, err
		}
		if diff := nextLoss - prevLoss; diff < e.cfg.FixedPointTolerance && diff > -e.cfg.FixedPointTolerance {
			return true, nil
		}
		prevLoss = nextLoss
		current = reconstituted
	}
	return false, nil
}
