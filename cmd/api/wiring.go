package main

import (
	"net/http"

	"github.com/rs/zerolog"

	"aiart/internal/infra"
	"aiart/internal/pipeline"
	"aiart/internal/providers/identity"
	"aiart/internal/providers/image"
	"aiart/internal/providers/prompt"
)

// buildController selects the pipeline strategies named in cfg.
func buildController(cfg *infra.Config, logger zerolog.Logger, observer infra.PipelineObserver) *pipeline.Controller {
	var tokens identity.TokenProvider = identity.NewGoogleTokenProvider(identity.CloudPlatformScope)
	if cfg.AccessToken != "" {
		tokens = identity.StaticTokenProvider(cfg.AccessToken)
	}

	gemini := prompt.NewGeminiClient(prompt.GeminiOptions{
		APIKey:     cfg.GeminiAPIKey,
		Model:      cfg.GeminiModel,
		BaseURL:    cfg.GeminiBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.GeminiTimeout},
		Tokens:     tokens,
		Observer:   observer,
	})

	var enricher prompt.TopicEnricher = prompt.StaticEnricher{}
	if cfg.TopicEnricher == "gemini" {
		enricher = prompt.NewGeminiEnricher(gemini, prompt.EnricherOptions{
			Logger:     logger,
			OnFallback: func(reason string, _ error) { observer.RecordTopicFallback(reason) },
		})
	}

	var generator image.Generator = image.StubGenerator{}
	if cfg.ImageProvider == "imagen" {
		generator = image.NewImagenClient(image.ImagenOptions{
			Endpoint:   cfg.ImagenEndpoint(),
			Model:      cfg.ImagenModel,
			HTTPClient: &http.Client{Timeout: cfg.ImagenTimeout},
			Tokens:     tokens,
			Observer:   observer,
		})
	}

	return pipeline.NewController(pipeline.ControllerOptions{
		Sanitizer:   pipeline.NewSanitizer(cfg.Sanitizer),
		Enricher:    enricher,
		Reworder:    prompt.NewGeminiReworder(gemini, logger),
		Generator:   generator,
		MaxAttempts: cfg.MaxAttempts,
		Observer:    observer,
		Logger:      logger,
	})
}
