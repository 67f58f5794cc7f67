package domain

import "time"

// DefaultImageMIME is the content type produced by the image model.
const DefaultImageMIME = "image/png"

// GenerationRequest is the input of one generate call.
type GenerationRequest struct {
	Prompt     string
	LastSearch string
	OwnerID    *int64
	ParentID   *int64
}

// EnrichedContext holds the values interpolated into the composed prompt.
type EnrichedContext struct {
	SanitizedPrompt  string
	SanitizedContext string
	Topic            string
}

// GeneratedImage is an image returned by the image model, before storage.
type GeneratedImage struct {
	Data          []byte
	MIMEType      string
	SourceModelID string
}

// ImageRecord is the persisted row describing one generated image.
type ImageRecord struct {
	ID          int64     `json:"id"`
	Prompt      string    `json:"prompt"`
	StoragePath string    `json:"storage_path"`
	ModelID     string    `json:"model"`
	OwnerID     *int64    `json:"created_by"`
	ParentID    *int64    `json:"parent_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewImageRecord carries the fields needed to insert an ImageRecord.
type NewImageRecord struct {
	Prompt      string
	StoragePath string
	ModelID     string
	OwnerID     *int64
	ParentID    *int64
}
