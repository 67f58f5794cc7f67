package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiart/internal/infra"
	"aiart/internal/providers/prompt"
)

func TestBuildControllerWithLocalStrategies(t *testing.T) {
	cfg := &infra.Config{
		Sanitizer:     "words",
		TopicEnricher: "static",
		ImageProvider: "stub",
		MaxAttempts:   2,
		AccessToken:   "local",
	}
	c := buildController(cfg, zerolog.Nop(), infra.NopObserver{})

	res, err := c.GenerateWithRetry(context.Background(), "a cat with a gun", "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Contains(t, res.FinalPrompt, "a cat with a bubble wand")
	assert.Contains(t, res.FinalPrompt, prompt.FallbackTopic)
	assert.Equal(t, "stub", res.Image.SourceModelID)
}

func TestBuildControllerCountsTopicFallbacks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	reg := prometheus.NewRegistry()
	observer, err := infra.NewPrometheusObserver("test", reg)
	require.NoError(t, err)

	cfg := &infra.Config{
		Sanitizer:     "words",
		TopicEnricher: "gemini",
		ImageProvider: "stub",
		MaxAttempts:   1,
		GeminiAPIKey:  "key",
		GeminiBaseURL: srv.URL,
	}
	c := buildController(cfg, zerolog.Nop(), observer)

	res, err := c.GenerateWithRetry(context.Background(), "a lighthouse", "")
	require.NoError(t, err)
	assert.Contains(t, res.FinalPrompt, prompt.FallbackTopic)

	expected := `
# HELP test_topic_fallbacks_total Topic lookups answered with the fallback topic, by reason.
# TYPE test_topic_fallbacks_total counter
test_topic_fallbacks_total{reason="http_status"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_topic_fallbacks_total"))
}
