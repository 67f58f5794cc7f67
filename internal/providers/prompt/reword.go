package prompt

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// FailedRewordMarker is returned when a prompt could not be reworded. The
// caller sends it on as the next prompt.
const FailedRewordMarker = "Failed to reword"

// Reworder rewrites a prompt that produced no image. It never fails.
type Reworder interface {
	Reword(ctx context.Context, failedPrompt string) string
}

// GeminiReworder rewrites prompts with a language model.
type GeminiReworder struct {
	gen    TextGenerator
	logger zerolog.Logger
}

func NewGeminiReworder(gen TextGenerator, logger zerolog.Logger) *GeminiReworder {
	return &GeminiReworder{gen: gen, logger: logger.With().Str("component", "reworder").Logger()}
}

func (r *GeminiReworder) Reword(ctx context.Context, failedPrompt string) string {
	text, err := r.gen.GenerateText(ctx, rewordInstruction(failedPrompt))
	if err != nil {
		r.logger.Warn().Err(err).Str("reason", fallbackReason(err)).Msg("reword failed")
		return FailedRewordMarker
	}
	r.logger.Debug().Str("prompt", text).Msg("prompt reworded")
	return text
}

func rewordInstruction(failedPrompt string) string {
	lines := []string{
		"Reword the following image generation prompt so that it produces a printable, creative image in Vertex AI.",
		"- Only return one rewritten prompt.",
		"- No explanation, no options.",
		"- Under 50 words.",
		"- Avoid banned or overly complex terms.",
		"- Must meet all of these:",
		"  - Eliminate background",
		"  - Eliminate gray",
		"  - Only black and white (no grayscale)",
		"  - High contrast",
		"Original Prompt:",
		strings.TrimSpace(failedPrompt),
	}
	return strings.Join(lines, "\n")
}

var _ Reworder = (*GeminiReworder)(nil)
