package oracle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/duotrack/substrate/internal/types"
)

// AnthropicJudge is an optional, off-by-default Oracle ensemble member
// that asks an Anthropic model to judge semantic distance and propose a
// module decomposition. It is grounded on the teacher's haikuClient
// (internal/compact/haiku.go): same retry-with-backoff loop, same
// classification of retryable errors (timeouts and 429/5xx), same
// lazily-initialized OTel instrument set.
type AnthropicJudge struct {
	client         anthropic.Client
	model          anthropic.Model
	maxRetries     int
	initialBackoff time.Duration
}

// NewAnthropicJudge constructs a judge from an explicit API key, falling
// back to ANTHROPIC_API_KEY if apiKey is empty. Returns
// types.ErrOracleUnavailable if no key is available — callers that want
// the Anthropic member to be genuinely optional should treat that as
// "skip this member" rather than a fatal error.
func NewAnthropicJudge(apiKey, model string) (*AnthropicJudge, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, types.Wrap("oracle.NewAnthropicJudge", types.ErrOracleUnavailable, nil)
	}
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	judgeMetricsOnce.Do(initJudgeMetrics)
	return &AnthropicJudge{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          anthropic.Model(model),
		maxRetries:     3,
		initialBackoff: time.Second,
	}, nil
}

var judgeMetricsOnce sync.Once

var judgeMetrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
}

func initJudgeMetrics() {
	m := otel.Meter("github.com/duotrack/substrate/oracle")
	judgeMetrics.inputTokens, _ = m.Int64Counter("dts.oracle.anthropic.input_tokens",
		metric.WithDescription("Anthropic API input tokens consumed by the judgment oracle"),
		metric.WithUnit("{token}"),
	)
	judgeMetrics.outputTokens, _ = m.Int64Counter("dts.oracle.anthropic.output_tokens",
		metric.WithDescription("Anthropic API output tokens generated by the judgment oracle"),
		metric.WithUnit("{token}"),
	)
	judgeMetrics.duration, _ = m.Float64Histogram("dts.oracle.anthropic.request_duration_ms",
		metric.WithDescription("Anthropic API request duration for judgment oracle calls"),
		metric.WithUnit("ms"),
	)
}

var tracer = otel.Tracer("github.com/duotrack/substrate/oracle")

// Distance implements Oracle by asking the model to score semantic
// distance in [0, 1] between a and b.
func (j *AnthropicJudge) Distance(ctx context.Context, a, b string) (float64, error) {
	prompt := fmt.Sprintf(
		"Rate the semantic distance between these two passages on a scale from 0.0 (identical meaning) to 1.0 (unrelated). Respond with only the number.\n\nPassage A:\n%s\n\nPassage B:\n%s",
		a, b,
	)
	text, err := j.call(ctx, "distance", prompt)
	if err != nil {
		return 0, err
	}
	v, parseErr := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if parseErr != nil {
		return 0, fmt.Errorf("oracle.AnthropicJudge: unparseable distance response %q: %w", text, parseErr)
	}
	return clamp01(v), nil
}

// Restructure implements Oracle by asking the model to name the
// passage's constituent modules (one per line).
func (j *AnthropicJudge) Restructure(ctx context.Context, text string) (types.ModularForm, error) {
	prompt := fmt.Sprintf(
		"List the distinct conceptual modules in this text, one per line, as short interface names (e.g. 'defines X', 'asserts Y'):\n\n%s",
		text,
	)
	resp, err := j.call(ctx, "restructure", prompt)
	if err != nil {
		return types.ModularForm{}, err
	}
	lines := nonEmptyLines(resp)
	return types.ModularForm{
		Text:            text,
		ModuleCount:     len(lines),
		Interfaces:      lines,
		CompositionTree: strings.Join(lines, ">"),
	}, nil
}

// Reconstitute implements Oracle by asking the model to render prose
// from the given module interfaces.
func (j *AnthropicJudge) Reconstitute(ctx context.Context, form types.ModularForm) (string, error) {
	prompt := fmt.Sprintf("Write a short passage that expresses exactly these points, in order:\n%s",
		strings.Join(form.Interfaces, "\n"))
	return j.call(ctx, "reconstitute", prompt)
}

func (j *AnthropicJudge) call(ctx context.Context, op, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "oracle.anthropic."+op)
	defer span.End()
	span.SetAttributes(attribute.String("dts.oracle.model", string(j.model)))

	params := anthropic.MessageNewParams{
		Model:     j.model,
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= j.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := j.initialBackoff * (1 << uint(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		t0 := time.Now()
		message, err := j.client.Messages.New(ctx, params)
		ms := float64(time.Since(t0).Milliseconds())

		if err == nil {
			judgeMetrics.inputTokens.Add(ctx, message.Usage.InputTokens)
			judgeMetrics.outputTokens.Add(ctx, message.Usage.OutputTokens)
			judgeMetrics.duration.Record(ctx, ms)

			if len(message.Content) == 0 {
				return "", fmt.Errorf("oracle.AnthropicJudge: empty response")
			}
			block := message.Content[0]
			if block.Type != "text" {
				return "", fmt.Errorf("oracle.AnthropicJudge: unexpected block type %q", block.Type)
			}
			return block.Text, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryableJudgeError(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("oracle.AnthropicJudge: non-retryable: %w", err)
		}
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return "", fmt.Errorf("oracle.AnthropicJudge: failed after %d attempts: %w", j.maxRetries+1, lastErr)
}

func isRetryableJudgeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

var _ Oracle = (*AnthropicJudge)(nil)
