package prompt

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const (
	// FallbackTopic is used whenever the language model cannot supply a topic.
	FallbackTopic = "climate change impact"

	maxTopicInputRunes = 500
	maxTopicRunes      = 50
)

// TopicEnricher derives a short real-world topic phrase for a prompt. It
// never fails; implementations degrade to a fixed phrase.
type TopicEnricher interface {
	EnrichTopic(ctx context.Context, prompt, lastSearch string) string
}

// StaticEnricher returns a fixed topic without any network call.
type StaticEnricher struct {
	Topic string
}

func (s StaticEnricher) EnrichTopic(context.Context, string, string) string {
	if strings.TrimSpace(s.Topic) == "" {
		return FallbackTopic
	}
	return s.Topic
}

type EnricherOptions struct {
	Logger     zerolog.Logger
	OnFallback func(reason string, err error)
	Now        func() time.Time
}

// GeminiEnricher asks a language model for a current, verifiable phenomenon
// related to the user's input.
type GeminiEnricher struct {
	gen        TextGenerator
	logger     zerolog.Logger
	onFallback func(reason string, err error)
	now        func() time.Time
}

func NewGeminiEnricher(gen TextGenerator, opts EnricherOptions) *GeminiEnricher {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &GeminiEnricher{
		gen:        gen,
		logger:     opts.Logger.With().Str("component", "topic_enricher").Logger(),
		onFallback: opts.OnFallback,
		now:        now,
	}
}

func (e *GeminiEnricher) EnrichTopic(ctx context.Context, prompt, lastSearch string) string {
	text, err := e.gen.GenerateText(ctx, e.instruction(prompt, lastSearch))
	if err != nil {
		return e.fallback(fallbackReason(err), err)
	}
	if utf8.RuneCountInString(text) > maxTopicRunes {
		return e.fallback("too_long", nil)
	}
	e.logger.Debug().Str("topic", text).Msg("topic selected")
	return text
}

func (e *GeminiEnricher) fallback(reason string, err error) string {
	e.logger.Warn().Err(err).Str("reason", reason).Msg("using fallback topic")
	if e.onFallback != nil {
		e.onFallback(reason, err)
	}
	return FallbackTopic
}

func (e *GeminiEnricher) instruction(prompt, lastSearch string) string {
	combined := truncateRunes(strings.TrimSpace(prompt+" "+lastSearch), maxTopicInputRunes)
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Given the following creative input: %q, ", combined)
	fmt.Fprintf(sb, "identify a real, widely-known global issue, environmental trend, or technological breakthrough occurring in %d. ", e.now().Year())
	sb.WriteString("Your answer must be an actual, verifiable phenomenon and concise (3-5 words). ")
	sb.WriteString(`Avoid fictional or speculative ideas like "AI-brewed tea" or vague concepts like "innovation". `)
	sb.WriteString("Just return the phrase with no explanation.")
	return sb.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

var (
	_ TopicEnricher = StaticEnricher{}
	_ TopicEnricher = (*GeminiEnricher)(nil)
)
