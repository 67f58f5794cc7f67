package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiart/internal/domain"
	"aiart/internal/infra"
	"aiart/internal/providers/prompt"
)

// scriptedGenerator fails with the queued errors, then succeeds.
type scriptedGenerator struct {
	errs    []error
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, composed string) (*domain.GeneratedImage, error) {
	g.prompts = append(g.prompts, composed)
	if n := len(g.prompts); n <= len(g.errs) {
		return nil, g.errs[n-1]
	}
	return &domain.GeneratedImage{Data: []byte("img"), MIMEType: domain.DefaultImageMIME, SourceModelID: "imagegeneration@006"}, nil
}

func noData(n int) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = &domain.NoImageDataError{Keys: []string{"raiFilteredReason"}}
	}
	return errs
}

type recordingReworder struct {
	inputs []string
}

func (r *recordingReworder) Reword(_ context.Context, failed string) string {
	r.inputs = append(r.inputs, failed)
	return fmt.Sprintf("reworded %d", len(r.inputs))
}

type countingEnricher struct {
	topic string
	calls int
}

func (e *countingEnricher) EnrichTopic(context.Context, string, string) string {
	e.calls++
	return e.topic
}

func newTestController(gen *scriptedGenerator, rw prompt.Reworder, en prompt.TopicEnricher, maxAttempts int) *Controller {
	return NewController(ControllerOptions{
		Sanitizer:   NewWordSanitizer(),
		Enricher:    en,
		Reworder:    rw,
		Generator:   gen,
		MaxAttempts: maxAttempts,
		Logger:      zerolog.Nop(),
	})
}

func TestControllerScenarioA(t *testing.T) {
	gen := &scriptedGenerator{}
	rw := &recordingReworder{}
	en := &countingEnricher{topic: "coral reef bleaching"}

	res, err := newTestController(gen, rw, en, 3).GenerateWithRetry(context.Background(), "a cat", "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Contains(t, res.FinalPrompt, "a cat")
	assert.Contains(t, res.FinalPrompt, "coral reef bleaching")
	assert.Contains(t, res.FinalPrompt, DefaultContext)
	assert.Equal(t, []string{res.FinalPrompt}, gen.prompts)
	assert.Empty(t, rw.inputs)
}

func TestControllerScenarioB(t *testing.T) {
	gen := &scriptedGenerator{errs: noData(2)}
	rw := &recordingReworder{}
	en := &countingEnricher{topic: "solar farms"}

	res, err := newTestController(gen, rw, en, 3).GenerateWithRetry(context.Background(), "a cat", "")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	require.Len(t, rw.inputs, 2)
	// Each reword receives the composed prompt that failed.
	assert.Equal(t, gen.prompts[0], rw.inputs[0])
	assert.Equal(t, gen.prompts[1], rw.inputs[1])
	assert.Contains(t, gen.prompts[1], "1. reworded 1")
	assert.Contains(t, res.FinalPrompt, "1. reworded 2")
	assert.Equal(t, 3, en.calls)
}

func TestControllerScenarioC(t *testing.T) {
	gen := &scriptedGenerator{errs: noData(3)}
	rw := &recordingReworder{}

	_, err := newTestController(gen, rw, &countingEnricher{topic: "t"}, 3).GenerateWithRetry(context.Background(), "a cat", "")
	var exhausted *domain.GenerationExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Len(t, gen.prompts, 3)
	assert.Len(t, rw.inputs, 2)

	var last *domain.NoImageDataError
	assert.ErrorAs(t, err, &last)
}

func TestControllerAttemptBound(t *testing.T) {
	for maxAttempts := 1; maxAttempts <= 4; maxAttempts++ {
		for k := 0; k <= maxAttempts+1; k++ {
			t.Run(fmt.Sprintf("max=%d/k=%d", maxAttempts, k), func(t *testing.T) {
				gen := &scriptedGenerator{errs: noData(k)}
				res, err := newTestController(gen, &recordingReworder{}, &countingEnricher{topic: "t"}, maxAttempts).
					GenerateWithRetry(context.Background(), "p", "")
				if k < maxAttempts {
					require.NoError(t, err)
					assert.Equal(t, k+1, res.Attempts)
					return
				}
				var exhausted *domain.GenerationExhaustedError
				require.ErrorAs(t, err, &exhausted)
				assert.Equal(t, maxAttempts, exhausted.Attempts)
				assert.Len(t, gen.prompts, maxAttempts)
			})
		}
	}
}

func TestControllerDoesNotRetryOtherErrors(t *testing.T) {
	cases := map[string]error{
		"auth":      &domain.AuthError{},
		"transport": &domain.TransportError{Op: "imagen predict", Err: errors.New("reset")},
		"decode":    errors.New("decode imagen payload: illegal base64"),
	}
	for name, want := range cases {
		t.Run(name, func(t *testing.T) {
			gen := &scriptedGenerator{errs: []error{want}}
			rw := &recordingReworder{}
			_, err := newTestController(gen, rw, &countingEnricher{topic: "t"}, 3).GenerateWithRetry(context.Background(), "p", "")
			assert.ErrorIs(t, err, want)
			assert.Len(t, gen.prompts, 1)
			assert.Empty(t, rw.inputs)
		})
	}
}

func TestControllerUsesFailedRewordMarkerAsPrompt(t *testing.T) {
	gen := &scriptedGenerator{errs: noData(1)}
	rw := prompt.NewGeminiReworder(failingText{}, zerolog.Nop())

	res, err := newTestController(gen, rw, &countingEnricher{topic: "t"}, 3).GenerateWithRetry(context.Background(), "p", "")
	require.NoError(t, err)
	assert.Contains(t, res.FinalPrompt, "1. "+prompt.FailedRewordMarker)
}

type failingText struct{}

func (failingText) GenerateText(context.Context, string) (string, error) {
	return "", prompt.ErrEmptyCandidate
}

func TestControllerStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &scriptedGenerator{errs: noData(3)}
	rw := reworderFunc(func(context.Context, string) string {
		cancel()
		return "again"
	})

	_, err := newTestController(gen, rw, &countingEnricher{topic: "t"}, 3).GenerateWithRetry(ctx, "p", "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, gen.prompts, 1)
}

type reworderFunc func(ctx context.Context, failed string) string

func (f reworderFunc) Reword(ctx context.Context, failed string) string { return f(ctx, failed) }

func TestControllerRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := infra.NewPrometheusObserver("test", reg)
	require.NoError(t, err)

	c := NewController(ControllerOptions{
		Enricher:  &countingEnricher{topic: "t"},
		Reworder:  &recordingReworder{},
		Generator: &scriptedGenerator{errs: noData(2)},
		Observer:  obs,
		Logger:    zerolog.Nop(),
	})
	_, err = c.GenerateWithRetry(context.Background(), "p", "")
	require.NoError(t, err)

	expected := `
# HELP test_prompt_rewords_total Reword requests issued after an empty image response.
# TYPE test_prompt_rewords_total counter
test_prompt_rewords_total 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_prompt_rewords_total"))
}
