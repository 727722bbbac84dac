// Package loss implements the Galois Loss Engine (spec.md §4.F): primary
// and dual loss, total loss, classification into epistemic layers,
// fixed-point axiom-candidate detection, super-additive contradiction
// detection, and the ethical floor.
//
// Metric instrumentation is grounded on the teacher's dolt storage
// backend (internal/storage/dolt/store.go): a package-level histogram
// registered against the global delegating OTel provider at init time,
// so it forwards automatically once telemetry.Init runs.
package loss

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/duotrack/substrate/internal/oracle"
	"github.com/duotrack/substrate/internal/types"
)

var lossMetrics struct {
	value metric.Float64Histogram
}

func init() {
	m := otel.Meter("github.com/duotrack/substrate/loss")
	lossMetrics.value, _ = m.Float64Histogram("dts.loss.value",
		metric.WithDescription("Total loss values computed by the Galois Loss Engine"),
		metric.WithUnit("1"),
	)
}

// Band is one entry of a corpus-calibrated layer banding: a layer is
// assigned when its cumulative loss bound is the first to admit a
// record's loss value.
type Band struct {
	Layer   types.Layer
	MaxLoss float64 // inclusive upper bound; bands must be given in ascending MaxLoss order
}

// defaultBands is an even split across L1..L7 used until Calibrate has
// been run against a reference corpus (spec.md §4.F, "Layer assignment").
func defaultBands() []Band {
	return []Band{
		{Layer: "L1", MaxLoss: 1.0 / 7},
		{Layer: "L2", MaxLoss: 2.0 / 7},
		{Layer: "L3", MaxLoss: 3.0 / 7},
		{Layer: "L4", MaxLoss: 4.0 / 7},
		{Layer: "L5", MaxLoss: 5.0 / 7},
		{Layer: "L6", MaxLoss: 6.0 / 7},
		{Layer: "L7", MaxLoss: 1.0},
	}
}

// Engine computes coherence metrics and classifies records using a
// Semantic Oracle and a calibrated set of layer bands.
type Engine struct {
	cfg    Config
	or     oracle.Oracle
	bands  []Band
}

// New constructs an Engine. bands may be nil to use defaultBands.
func New(cfg Config, or oracle.Oracle, bands []Band) *Engine {
	if bands == nil {
		bands = defaultBands()
	}
	return &Engine{cfg: cfg, or: or, bands: bands}
}

// PrimaryLoss computes L(P) = d(P, reconstitute(restructure(P))).
func (e *Engine) PrimaryLoss(ctx context.Context, text string) (float64, error) {
	form, err := e.or.Restructure(ctx, text)
	if err != nil {
		return 0, err
	}
	reconstituted, err := e.or.Reconstitute(ctx, form)
	if err != nil {
		return 0, err
	}
	return e.or.Distance(ctx, text, reconstituted)
}

// DualLoss computes L*(M) = d*(M, restructure(reconstitute(M))), where
// d* combines module-count ratio, interface overlap, and
// composition-tree similarity with the configured weights (default
// 0.4, 0.3, 0.3).
func (e *Engine) DualLoss(ctx context.Context, form types.ModularForm) (float64, error) {
	text, err := e.or.Reconstitute(ctx, form)
	if err != nil {
		return 0, err
	}
	reRestructured, err := e.or.Restructure(ctx, text)
	if err != nil {
		return 0, err
	}
	return e.structuralDistance(form, reRestructured), nil
}

// structuralDistance is d*: 1 minus a weighted similarity across three
// structural measures, so that 0 means structurally identical and 1
// means maximally divergent.
func (e *Engine) structuralDistance(a, b types.ModularForm) float64 {
	w := e.cfg.DualLossWeights
	countRatio := moduleCountSimilarity(a.ModuleCount, b.ModuleCount)
	overlap := interfaceOverlap(a.Interfaces, b.Interfaces)
	treeSim := compositionTreeSimilarity(a.CompositionTree, b.CompositionTree)
	similarity := w[0]*countRatio + w[1]*overlap + w[2]*treeSim
	return 1 - similarity
}

func moduleCountSimilarity(a, b int) float64 {
	if a == 0 && b == 0 {
		return 1
	}
	hi, lo := float64(a), float64(b)
	if lo > hi {
		hi, lo = lo, hi
	}
	if hi == 0 {
		return 1
	}
	return lo / hi
}

func interfaceOverlap(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	setB := make(map[string]bool, len(b))
	for _, s := range b {
		setB[s] = true
	}
	shared := 0
	for _, s := range a {
		if setB[s] {
			shared++
		}
	}
	union := len(setB)
	for _, s := range a {
		if !setB[s] {
			union++
		}
	}
	if union == 0 {
		return 1
	}
	return float64(shared) / float64(union)
}

func compositionTreeSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	lcsLen := longestCommonSubsequence(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	return float64(lcsLen) / float64(maxLen)
}

func longestCommonSubsequence(a, b string) int {
	dp := make([][]int, len(a)+1)
	for i := range dp {
		dp[i] = make([]int, len(b)+1)
	}
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else if dp[i-1][j] >= dp[i][j-1] {
				dp[i][j] = dp[i-1][j]
			} else {
				dp[i][j] = dp[i][j-1]
			}
		}
	}
	return dp[len(a)][len(b)]
}

// TotalLoss computes L_total = α·L(P) + β·L*(restructure(P)).
func (e *Engine) TotalLoss(ctx context.Context, text string) (float64, error) {
	primary, err := e.PrimaryLoss(ctx, text)
	if err != nil {
		return 0, err
	}
	form, err := e.or.Restructure(ctx, text)
	if err != nil {
		return 0, err
	}
	dual, err := e.DualLoss(ctx, form)
	if err != nil {
		return 0, err
	}
	total := e.cfg.PrimaryWeight*primary + e.cfg.DualWeight*dual
	lossMetrics.value.Record(ctx, total)
	return total, nil
}

// ComplexityFor derives the tri-valued complexity tag from a loss value.
func (e *Engine) ComplexityFor(lossValue float64) types.Complexity {
	switch {
	case lossValue < e.cfg.DeterministicThreshold:
		return types.Deterministic
	case lossValue < e.cfg.ProbabilisticThreshold:
		return types.Probabilistic
	default:
		return types.Chaotic
	}
}

// LayerFor assigns a layer by the first band (in ascending MaxLoss
// order) whose bound admits lossValue.
func (e *Engine) LayerFor(lossValue float64) types.Layer {
	bands := append([]Band(nil), e.bands...)
	sort.Slice(bands, func(i, j int) bool { return bands[i].MaxLoss < bands[j].MaxLoss })
	for _, b := range bands {
		if lossValue <= b.MaxLoss {
			return b.Layer
		}
	}
	if len(bands) > 0 {
		return bands[len(bands)-1].Layer
	}
	return types.LayerUnknown
}

// ensembleAgreement is implemented by oracle.Ensemble's AsOracle()
// result (ensembleOracle) to expose the full sampling breakdown behind
// a Distance call. Classify type-asserts the configured oracle against
// it to source confidence from ensemble agreement (spec.md §3,
// §4.E's "sampling N=5 and reporting both the mean and the standard
// deviation as confidence") rather than deriving confidence from loss.
type ensembleAgreement interface {
	DistanceBreakdown(ctx context.Context, a, b string) (oracle.DistanceResult, error)
}

// confidenceFor sources confidence from oracle-ensemble sampling
// agreement against the same text/reconstituted pair PrimaryLoss
// compares, when the configured oracle exposes it: a low standard
// deviation across members means the ensemble agreed, so confidence is
// high. Falls back to 1-total for a plain, non-ensembled oracle with no
// agreement signal to report.
func (e *Engine) confidenceFor(ctx context.Context, text string, total float64) float64 {
	agreement, ok := e.or.(ensembleAgreement)
	if !ok {
		return 1 - total
	}
	form, err := e.or.Restructure(ctx, text)
	if err != nil {
		return 1 - total
	}
	reconstituted, err := e.or.Reconstitute(ctx, form)
	if err != nil {
		return 1 - total
	}
	result, err := agreement.DistanceBreakdown(ctx, text, reconstituted)
	if err != nil {
		return 1 - total
	}
	return 1 - result.StdDev
}

// Classify computes the total loss for text, runs the fixed-point
// iteration to detect an axiom candidate, and returns a full
// Classification. If the oracle is unavailable or ctx is cancelled
// mid-call, Classify returns the "fails gracefully" classification
// (layer=unknown, loss=nil, confidence=0, complexity=probabilistic) per
// spec.md §4.F rather than an error, so the coordinator can always
// persist the record.
func (e *Engine) Classify(ctx context.Context, text string) types.Classification {
	timeoutCtx, cancel := context.WithTimeout(ctx, e.cfg.OracleTimeout)
	defer cancel()

	total, err := e.TotalLoss(timeoutCtx, text)
	if err != nil {
		if timeoutCtx.Err() != nil && ctx.Err() == nil {
			return types.Classification{Layer: types.LayerUnknown, Complexity: types.Probabilistic, Timeout: true}
		}
		return types.Classification{Layer: types.LayerUnknown, Complexity: types.Probabilistic}
	}

	axiom, fpErr := e.isAxiomCandidate(timeoutCtx, text)
	if fpErr != nil {
		axiom = false
	}

	lossCopy := total
	return types.Classification{
		Layer:          e.LayerFor(total),
		Loss:           &lossCopy,
		Confidence:     e.confidenceFor(timeoutCtx, text, total),
		Complexity:     e.ComplexityFor(total),
		AxiomCandidate: axiom,
	}
}
