package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const (
	OwnerHeader = "X-Owner-Token"
	OwnerCookie = "owner_token"
)

var (
	ErrInvalidToken = errors.New("invalid owner token")
	ErrTokenExpired = errors.New("owner token expired")
)

// OwnerClaims identifies the user a request acts for. The token is issued by
// the session service that owns user accounts. Exp is unix seconds; zero
// means the token does not expire.
type OwnerClaims struct {
	Sub int64
	Exp int64
}

type ownerKey struct{}

// SignOwnerToken returns an HS256 JWT carrying the owner id as subject.
func SignOwnerToken(secret string, claims OwnerClaims) (string, error) {
	if secret == "" {
		return "", errors.New("owner secret not configured")
	}
	registered := jwt.RegisteredClaims{Subject: strconv.FormatInt(claims.Sub, 10)}
	if claims.Exp != 0 {
		registered.ExpiresAt = jwt.NewNumericDate(time.Unix(claims.Exp, 0))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, registered).SignedString([]byte(secret))
}

func VerifyOwnerToken(secret, token string, now time.Time) (*OwnerClaims, error) {
	var registered jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &registered, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenExpired
	}
	if err != nil {
		return nil, ErrInvalidToken
	}
	sub, err := strconv.ParseInt(registered.Subject, 10, 64)
	if err != nil || sub <= 0 {
		return nil, ErrInvalidToken
	}
	claims := &OwnerClaims{Sub: sub}
	if registered.ExpiresAt != nil {
		claims.Exp = registered.ExpiresAt.Unix()
	}
	return claims, nil
}

// Owner attaches the owner id from a signed token to the request context.
// Requests without a valid token continue anonymously.
func Owner(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ownerToken(r)
			if secret == "" || token == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := VerifyOwnerToken(secret, token, time.Now())
			if err != nil {
				zerolog.Ctx(r.Context()).Debug().Err(err).Msg("ignoring owner token")
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithOwnerID(r.Context(), claims.Sub)))
		})
	}
}

func ownerToken(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(OwnerHeader)); v != "" {
		return v
	}
	if c, err := r.Cookie(OwnerCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

// OwnerIDFromContext returns the owner id, or nil for anonymous requests.
func OwnerIDFromContext(ctx context.Context) *int64 {
	if v, ok := ctx.Value(ownerKey{}).(int64); ok {
		return &v
	}
	return nil
}

func ContextWithOwnerID(ctx context.Context, id int64) context.Context {
	if id <= 0 {
		return ctx
	}
	return context.WithValue(ctx, ownerKey{}, id)
}
