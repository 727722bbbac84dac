package oracle

import (
	"context"
	"strings"

	"github.com/duotrack/substrate/internal/types"
)

// Mock is a deterministic, dependency-free Oracle for tests: it
// restructures text into one module per sentence and measures distance
// as a normalized token-overlap difference. It is not a serious
// semantic metric; it exists solely so the loss engine and coordinator
// can be exercised without a live model.
type Mock struct{}

// Restructure implements Oracle.
func (Mock) Restructure(_ context.Context, text string) (types.ModularForm, error) {
	sentences := splitSentences(text)
	interfaces := make([]string, 0, len(sentences))
	for i := range sentences {
		interfaces = append(interfaces, sentenceInterface(i))
	}
	return types.ModularForm{
		Text:            text,
		ModuleCount:     len(sentences),
		Interfaces:      interfaces,
		CompositionTree: strings.Join(interfaces, ">"),
	}, nil
}

// Reconstitute implements Oracle. It is a right inverse of Restructure
// for text with ". " as the sole sentence separator; Mock does not
// pretend to reconstruct general prose.
func (Mock) Reconstitute(_ context.Context, form types.ModularForm) (string, error) {
	return form.Text, nil
}

// Distance implements Oracle as 1 minus the Jaccard similarity of the
// two texts' lowercased word sets.
func (Mock) Distance(_ context.Context, a, b string) (float64, error) {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0, nil
	}
	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0, nil
	}
	return 1 - float64(intersection)/float64(union), nil
}

func splitSentences(text string) []string {
	raw := strings.Split(text, ". ")
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func sentenceInterface(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return string(letters[i%len(letters)])
}

func wordSet(text string) map[string]bool {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

var _ Oracle = Mock{}
