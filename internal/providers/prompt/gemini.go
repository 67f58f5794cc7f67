package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"aiart/internal/domain"
	"aiart/internal/infra"
	"aiart/internal/providers/identity"
)

const (
	geminiDefaultTimeout = 15 * time.Second
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel   = "gemini-2.0-flash-001"
	geminiAPIName        = "gemini"
)

var (
	// ErrMissingCredential is returned when neither an API key nor a bearer
	// token is available.
	ErrMissingCredential = errors.New("gemini: no credential configured")
	// ErrEmptyCandidate is returned when the response carries no text.
	ErrEmptyCandidate = errors.New("gemini: empty candidate text")
)

// StatusError reports a non-2xx answer from the language API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("gemini status %d", e.Code)
	}
	return fmt.Sprintf("gemini status %d: %s", e.Code, e.Body)
}

// TextGenerator sends a single instruction to a language model and returns
// the first candidate's text.
type TextGenerator interface {
	GenerateText(ctx context.Context, instruction string) (string, error)
}

type GeminiOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	// Tokens supplies a bearer token when no API key is configured.
	Tokens   identity.TokenProvider
	Observer infra.PipelineObserver
}

// GeminiClient calls the generateContent endpoint of the Gemini API.
type GeminiClient struct {
	apiKey   string
	model    string
	baseURL  string
	client   *http.Client
	tokens   identity.TokenProvider
	observer infra.PipelineObserver
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func NewGeminiClient(opts GeminiOptions) *GeminiClient {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = geminiDefaultModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: geminiDefaultTimeout}
	}
	var observer infra.PipelineObserver = infra.NopObserver{}
	if opts.Observer != nil {
		observer = opts.Observer
	}
	return &GeminiClient{
		apiKey:   strings.TrimSpace(opts.APIKey),
		model:    model,
		baseURL:  baseURL,
		client:   client,
		tokens:   opts.Tokens,
		observer: observer,
	}
}

func (g *GeminiClient) GenerateText(ctx context.Context, instruction string) (string, error) {
	bearer := ""
	if g.apiKey == "" {
		if g.tokens == nil {
			return "", ErrMissingCredential
		}
		tok, err := g.tokens.AccessToken(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrMissingCredential, err)
		}
		bearer = tok
	}

	payload := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: instruction}}}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal gemini request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.observer.RecordExternalCall(geminiAPIName, time.Since(start), err)
		return "", &domain.TransportError{Op: "gemini generateContent", Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		statusErr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		g.observer.RecordExternalCall(geminiAPIName, time.Since(start), statusErr)
		return "", statusErr
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		g.observer.RecordExternalCall(geminiAPIName, time.Since(start), err)
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	g.observer.RecordExternalCall(geminiAPIName, time.Since(start), nil)

	text := firstCandidateText(out)
	if text == "" {
		return "", ErrEmptyCandidate
	}
	return text, nil
}

func (g *GeminiClient) endpoint() string {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
	if g.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(g.apiKey)
	}
	return endpoint
}

// firstCandidateText returns candidates[0].content.parts[0].text, trimmed.
func firstCandidateText(resp geminiResponse) string {
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	return strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text)
}

// fallbackReason classifies a GenerateText error for logging.
func fallbackReason(err error) string {
	var statusErr *StatusError
	var transportErr *domain.TransportError
	switch {
	case errors.Is(err, ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, ErrEmptyCandidate):
		return "empty_candidate"
	case errors.As(err, &statusErr):
		return "http_status"
	case errors.As(err, &transportErr):
		return "http_request"
	default:
		return "invalid_response"
	}
}

var _ TextGenerator = (*GeminiClient)(nil)
