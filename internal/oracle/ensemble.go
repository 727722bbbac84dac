package oracle

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/duotrack/substrate/internal/types"
)

// Member is one metric contributing to an ensemble Oracle, with a
// declared weight. Weights need not sum to 1; Ensemble normalizes them.
type Member struct {
	Name   string
	Weight float64
	Oracle Oracle
}

// Ensemble combines several concrete metrics into a single Oracle,
// producing both a scalar result and (for Distance) a per-metric
// breakdown. It bounds oracle concurrency with a semaphore, grounded on
// the "bounded oracle concurrency" requirement of spec.md §5, and fans
// out member calls with errgroup rather than a raw WaitGroup so the
// first member error cancels the rest.
type Ensemble struct {
	members      []Member
	maxInflight  *semaphore.Weighted
	sampleRounds int // N in spec.md §4.E's "sampling N=5" determinism policy
}

// NewEnsemble builds an Ensemble from members. maxConcurrency bounds how
// many member calls run at once (default 8 per spec.md §5); sampleRounds
// is how many times Distance re-samples a non-deterministic member
// before reporting mean and standard deviation (default 5).
func NewEnsemble(members []Member, maxConcurrency, sampleRounds int) *Ensemble {
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	if sampleRounds <= 0 {
		sampleRounds = 5
	}
	return &Ensemble{
		members:      members,
		maxInflight:  semaphore.NewWeighted(int64(maxConcurrency)),
		sampleRounds: sampleRounds,
	}
}

// DistanceResult is the breakdown Distance produces: a weighted mean and
// the per-member samples that fed it, plus the sampling standard
// deviation reported as confidence per spec.md §4.E.
type DistanceResult struct {
	Mean    float64
	StdDev  float64
	Samples []Sample
}

// Distance runs every ensemble member sampleRounds times (for
// non-deterministic members this surfaces sampling variance; for
// deterministic ones the repeated samples simply agree), averages each
// member's samples, then combines member means by declared weight.
func (e *Ensemble) Distance(ctx context.Context, a, b string) (DistanceResult, error) {
	if len(e.members) == 0 {
		return DistanceResult{}, fmt.Errorf("oracle.Ensemble: no members configured")
	}

	totalWeight := 0.0
	for _, m := range e.members {
		totalWeight += m.Weight
	}
	if totalWeight == 0 {
		return DistanceResult{}, fmt.Errorf("oracle.Ensemble: member weights sum to zero")
	}

	g, gctx := errgroup.WithContext(ctx)
	samples := make([]Sample, len(e.members))
	for i, m := range e.members {
		i, m := i, m
		g.Go(func() error {
			if err := e.maxInflight.Acquire(gctx, 1); err != nil {
				return err
			}
			defer e.maxInflight.Release(1)

			values := make([]float64, 0, e.sampleRounds)
			for r := 0; r < e.sampleRounds; r++ {
				v, err := m.Oracle.Distance(gctx, a, b)
				if err != nil {
					return fmt.Errorf("member %q: %w", m.Name, err)
				}
				values = append(values, v)
			}
			samples[i] = Sample{Value: mean(values), Member: m.Name}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return DistanceResult{}, err
	}

	weighted := 0.0
	for i, m := range e.members {
		weighted += samples[i].Value * (m.Weight / totalWeight)
	}

	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	return DistanceResult{Mean: weighted, StdDev: stdDev(values), Samples: samples}, nil
}

// Restructure and Reconstitute delegate to the first configured member;
// structural decomposition, unlike distance, is not meaningfully
// ensembled across heterogeneous metrics.
func (e *Ensemble) Restructure(ctx context.Context, text string) (types.ModularForm, error) {
	if len(e.members) == 0 {
		return types.ModularForm{}, fmt.Errorf("oracle.Ensemble: no members configured")
	}
	return e.members[0].Oracle.Restructure(ctx, text)
}

func (e *Ensemble) Reconstitute(ctx context.Context, form types.ModularForm) (string, error) {
	if len(e.members) == 0 {
		return "", fmt.Errorf("oracle.Ensemble: no members configured")
	}
	return e.members[0].Oracle.Reconstitute(ctx, form)
}

// AsOracle adapts e to the plain Oracle interface, collapsing Distance's
// breakdown to its weighted Mean since Oracle.Distance only has room for
// one float. The returned value also implements DistanceBreakdown, so a
// caller that holds it as a plain Oracle can still type-assert its way
// back to the full DistanceResult (Mean and StdDev) rather than losing
// the sampling-agreement signal spec.md §4.E names as confidence's
// source; loss.Engine does exactly that.
func (e *Ensemble) AsOracle() Oracle {
	return ensembleOracle{e}
}

type ensembleOracle struct {
	e *Ensemble
}

func (o ensembleOracle) Restructure(ctx context.Context, text string) (types.ModularForm, error) {
	return o.e.Restructure(ctx, text)
}

func (o ensembleOracle) Reconstitute(ctx context.Context, form types.ModularForm) (string, error) {
	return o.e.Reconstitute(ctx, form)
}

// DistanceBreakdown exposes the full sampling breakdown behind a
// Distance call (mean plus standard deviation across members) to a
// caller willing to type-assert for it, rather than the single float
// the plain Oracle interface allows.
func (o ensembleOracle) DistanceBreakdown(ctx context.Context, a, b string) (DistanceResult, error) {
	return o.e.Distance(ctx, a, b)
}

func (o ensembleOracle) Distance(ctx context.Context, a, b string) (float64, error) {
	result, err := o.e.Distance(ctx, a, b)
	if err != nil {
		return 0, err
	}
	return result.Mean, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sumSq := 0.0
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}
