package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"aiart/internal/domain"
	"aiart/internal/infra"
	"aiart/internal/providers/identity"
)

const (
	imagenDefaultTimeout = 60 * time.Second
	imagenAPIName        = "imagen"
)

// Generator turns a composed prompt into image bytes. A response without
// image data is reported as *domain.NoImageDataError.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*domain.GeneratedImage, error)
}

type ImagenOptions struct {
	// Endpoint is the full predict URL.
	Endpoint   string
	Model      string
	HTTPClient *http.Client
	Tokens     identity.TokenProvider
	Observer   infra.PipelineObserver
}

// ImagenClient calls the Vertex AI Imagen predict endpoint.
type ImagenClient struct {
	endpoint string
	model    string
	client   *http.Client
	tokens   identity.TokenProvider
	observer infra.PipelineObserver
}

type imagenRequest struct {
	Instances  []imagenInstance `json:"instances"`
	Parameters imagenParameters `json:"parameters"`
}

type imagenInstance struct {
	Prompt string `json:"prompt"`
}

type imagenParameters struct {
	SampleCount       int    `json:"sampleCount"`
	AspectRatio       string `json:"aspectRatio"`
	SafetyFilterLevel string `json:"safetyFilterLevel"`
	PersonGeneration  string `json:"personGeneration"`
}

type imagenResponse struct {
	Predictions []map[string]json.RawMessage `json:"predictions"`
}

func NewImagenClient(opts ImagenOptions) *ImagenClient {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: imagenDefaultTimeout}
	}
	var observer infra.PipelineObserver = infra.NopObserver{}
	if opts.Observer != nil {
		observer = opts.Observer
	}
	return &ImagenClient{
		endpoint: opts.Endpoint,
		model:    opts.Model,
		client:   client,
		tokens:   opts.Tokens,
		observer: observer,
	}
}

func (c *ImagenClient) Generate(ctx context.Context, prompt string) (*domain.GeneratedImage, error) {
	if c.tokens == nil {
		return nil, &domain.AuthError{}
	}
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(imagenRequest{
		Instances: []imagenInstance{{Prompt: prompt}},
		Parameters: imagenParameters{
			SampleCount:       1,
			AspectRatio:       "1:1",
			SafetyFilterLevel: "block_few",
			PersonGeneration:  "allow_adult",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal imagen request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create imagen request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.observer.RecordExternalCall(imagenAPIName, time.Since(start), err)
		return nil, &domain.TransportError{Op: "imagen predict", Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observer.RecordExternalCall(imagenAPIName, time.Since(start), err)
		return nil, &domain.TransportError{Op: "imagen predict", Err: err}
	}

	// A non-2xx answer is treated like an empty one so the caller may reword.
	var out imagenResponse
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		noData := &domain.NoImageDataError{StatusCode: resp.StatusCode, Keys: predictionKeys(out)}
		c.observer.RecordExternalCall(imagenAPIName, time.Since(start), noData)
		return nil, noData
	}
	c.observer.RecordExternalCall(imagenAPIName, time.Since(start), nil)

	encoded, mime := extractPayload(out)
	if encoded == "" {
		return nil, &domain.NoImageDataError{StatusCode: resp.StatusCode, Keys: predictionKeys(out)}
	}
	data, err := decodePayload(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode imagen payload: %w", err)
	}
	if mime == "" {
		mime = domain.DefaultImageMIME
	}
	return &domain.GeneratedImage{Data: data, MIMEType: mime, SourceModelID: c.model}, nil
}

// decodePayload accepts standard base64 with or without padding.
func decodePayload(encoded string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(encoded), "="))
}

// extractPayload looks for base64 image data on the first prediction, in the
// order the known response shapes are tried.
func extractPayload(resp imagenResponse) (encoded, mime string) {
	if len(resp.Predictions) == 0 {
		return "", ""
	}
	pred := resp.Predictions[0]
	mime = stringField(pred["mimeType"])

	if s := stringField(pred["bytesBase64Encoded"]); s != "" {
		return s, mime
	}
	for _, key := range []string{"image", "generatedImage"} {
		if s, m := nestedPayload(pred[key]); s != "" {
			return s, firstNonEmpty(mime, m)
		}
	}
	var images []json.RawMessage
	if err := json.Unmarshal(pred["images"], &images); err == nil && len(images) > 0 {
		if s, m := nestedPayload(images[0]); s != "" {
			return s, firstNonEmpty(mime, m)
		}
	}
	if s := stringField(pred["imageBytes"]); s != "" {
		return s, mime
	}
	return "", ""
}

func nestedPayload(raw json.RawMessage) (string, string) {
	if len(raw) == 0 {
		return "", ""
	}
	var obj struct {
		Bytes    string `json:"bytesBase64Encoded"`
		MIMEType string `json:"mimeType"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", ""
	}
	return strings.TrimSpace(obj.Bytes), obj.MIMEType
}

func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func predictionKeys(resp imagenResponse) []string {
	if len(resp.Predictions) == 0 {
		return nil
	}
	keys := lo.Keys(resp.Predictions[0])
	sort.Strings(keys)
	return keys
}

var _ Generator = (*ImagenClient)(nil)
