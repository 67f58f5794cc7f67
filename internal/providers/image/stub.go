package image

import (
	"context"
	"encoding/base64"

	"aiart/internal/domain"
)

// onePixelPNG is a valid 1x1 transparent PNG.
const onePixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

// StubGenerator returns a fixed image without calling any API. It is used
// for local development.
type StubGenerator struct{}

func (StubGenerator) Generate(ctx context.Context, prompt string) (*domain.GeneratedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(onePixelPNG)
	if err != nil {
		return nil, err
	}
	return &domain.GeneratedImage{Data: data, MIMEType: domain.DefaultImageMIME, SourceModelID: "stub"}, nil
}

var _ Generator = StubGenerator{}
