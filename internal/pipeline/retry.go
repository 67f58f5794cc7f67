package pipeline

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"aiart/internal/domain"
	"aiart/internal/infra"
	"aiart/internal/providers/image"
	"aiart/internal/providers/prompt"
)

// DefaultMaxAttempts bounds the number of image model calls per request.
const DefaultMaxAttempts = 3

// Result is a successful generation.
type Result struct {
	Image       *domain.GeneratedImage
	FinalPrompt string
	Attempts    int
}

type ControllerOptions struct {
	Sanitizer   Sanitizer
	Enricher    prompt.TopicEnricher
	Reworder    prompt.Reworder
	Generator   image.Generator
	MaxAttempts int
	Observer    infra.PipelineObserver
	Logger      zerolog.Logger
}

// Controller runs the sanitize, enrich, compose and generate steps, rewording
// the prompt when the image model returns no data.
type Controller struct {
	sanitizer   Sanitizer
	enricher    prompt.TopicEnricher
	reworder    prompt.Reworder
	generator   image.Generator
	maxAttempts int
	observer    infra.PipelineObserver
	logger      zerolog.Logger
}

func NewController(opts ControllerOptions) *Controller {
	c := &Controller{
		sanitizer:   opts.Sanitizer,
		enricher:    opts.Enricher,
		reworder:    opts.Reworder,
		generator:   opts.Generator,
		maxAttempts: opts.MaxAttempts,
		observer:    opts.Observer,
		logger:      opts.Logger.With().Str("component", "retry_controller").Logger(),
	}
	if c.sanitizer == nil {
		c.sanitizer = PassthroughSanitizer{}
	}
	if c.enricher == nil {
		c.enricher = prompt.StaticEnricher{}
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.observer == nil {
		c.observer = infra.NopObserver{}
	}
	return c
}

func (c *Controller) GenerateWithRetry(ctx context.Context, basePrompt, lastSearch string) (*Result, error) {
	current := basePrompt
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			c.observer.RecordGeneration("canceled", attempt)
			return nil, err
		}

		enriched := domain.EnrichedContext{
			SanitizedPrompt:  c.sanitizer.Sanitize(current),
			SanitizedContext: c.sanitizer.Sanitize(lastSearch),
		}
		enriched.Topic = c.enricher.EnrichTopic(ctx, enriched.SanitizedPrompt, enriched.SanitizedContext)
		composed := ComposePrompt(enriched.SanitizedPrompt, enriched.SanitizedContext, enriched.Topic)

		c.logger.Info().
			Int("attempt", attempt+1).
			Str("topic", enriched.Topic).
			Str("prompt", composed).
			Msg("generating image")

		img, err := c.generator.Generate(ctx, composed)
		if err == nil {
			c.observer.RecordAttempt("success")
			c.observer.RecordGeneration("success", attempt+1)
			return &Result{Image: img, FinalPrompt: composed, Attempts: attempt + 1}, nil
		}

		var noData *domain.NoImageDataError
		if !errors.As(err, &noData) {
			c.observer.RecordAttempt("error")
			c.observer.RecordGeneration("error", attempt+1)
			return nil, err
		}
		c.observer.RecordAttempt("no_image_data")
		c.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("image model returned no data")
		lastErr = err

		if attempt < c.maxAttempts-1 {
			if c.reworder == nil {
				continue
			}
			c.observer.RecordReword()
			current = c.reworder.Reword(ctx, composed)
		}
	}

	c.observer.RecordGeneration("exhausted", c.maxAttempts)
	return nil, &domain.GenerationExhaustedError{Attempts: c.maxAttempts, Last: lastErr}
}
