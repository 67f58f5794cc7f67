// Package identity supplies access tokens for Google Cloud APIs.
package identity

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"aiart/internal/domain"
)

// CloudPlatformScope is the OAuth scope required by Vertex AI.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// TokenProvider returns a bearer token for outgoing API calls. Failures are
// reported as *domain.AuthError.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// GoogleTokenProvider resolves application-default credentials once and
// reuses the resulting token source, which refreshes tokens as they expire.
type GoogleTokenProvider struct {
	scopes []string

	mu     sync.Mutex
	source oauth2.TokenSource
}

// NewGoogleTokenProvider creates a provider for the given scopes, defaulting
// to the cloud-platform scope.
func NewGoogleTokenProvider(scopes ...string) *GoogleTokenProvider {
	if len(scopes) == 0 {
		scopes = []string{CloudPlatformScope}
	}
	return &GoogleTokenProvider{scopes: scopes}
}

func (p *GoogleTokenProvider) AccessToken(ctx context.Context) (string, error) {
	src, err := p.tokenSource(ctx)
	if err != nil {
		return "", &domain.AuthError{Err: err}
	}
	tok, err := src.Token()
	if err != nil {
		return "", &domain.AuthError{Err: err}
	}
	if tok == nil || strings.TrimSpace(tok.AccessToken) == "" {
		return "", &domain.AuthError{Err: errors.New("empty access token")}
	}
	return tok.AccessToken, nil
}

func (p *GoogleTokenProvider) tokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.source != nil {
		return p.source, nil
	}
	// The source outlives this request, so it must not inherit its cancellation.
	creds, err := google.FindDefaultCredentials(context.WithoutCancel(ctx), p.scopes...)
	if err != nil {
		return nil, err
	}
	p.source = oauth2.ReuseTokenSource(nil, creds.TokenSource)
	return p.source, nil
}

// StaticTokenProvider returns a fixed token. An empty token is an AuthError.
type StaticTokenProvider string

func (s StaticTokenProvider) AccessToken(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", &domain.AuthError{}
	}
	return string(s), nil
}

var (
	_ TokenProvider = (*GoogleTokenProvider)(nil)
	_ TokenProvider = StaticTokenProvider("")
)
