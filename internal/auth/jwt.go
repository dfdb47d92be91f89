// Package auth provides JWT bearer-token authentication middleware with
// metrics. Tokens carry the caller ID in "sub" and role names in "roles".
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/fruitsalade/mediavault/internal/logging"
	"github.com/fruitsalade/mediavault/internal/media"
	"github.com/fruitsalade/mediavault/internal/metrics"
)

type contextKey string

const principalContextKey contextKey = "principal"

// DefaultTTL is the lifetime of issued tokens.
const DefaultTTL = 30 * 24 * time.Hour

// ErrNoSecret is returned when the signing secret is empty.
var ErrNoSecret = errors.New("jwt secret is not configured")

// Claims holds JWT token claims.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Auth handles JWT authentication.
type Auth struct {
	secret []byte
	issuer string
}

// New creates a new Auth handler.
func New(jwtSecret, issuer string) (*Auth, error) {
	if jwtSecret == "" {
		return nil, ErrNoSecret
	}
	return &Auth{secret: []byte(jwtSecret), issuer: issuer}, nil
}

// IssueToken signs a token for subject with the given roles.
func (a *Auth) IssueToken(subject string, roles []string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    a.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenStr, claims.ExpiresAt.Time, nil
}

// ValidateToken parses and verifies tokenStr.
func (a *Auth) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

// Principal converts claims into the caller identity used by the media
// service.
func (c *Claims) Principal() *media.Principal {
	return &media.Principal{ID: c.Subject, Roles: append([]string(nil), c.Roles...)}
}

// Middleware returns HTTP middleware that validates JWT tokens.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractToken(r)
		if tokenStr == "" {
			metrics.RecordAuthAttempt(false)
			sendAuthError(w, http.StatusUnauthorized, "missing authentication token")
			return
		}

		claims, err := a.ValidateToken(tokenStr)
		if err != nil {
			metrics.RecordAuthAttempt(false)
			logging.WithContext(r.Context()).Debug("token rejected", zap.Error(err))
			sendAuthError(w, http.StatusUnauthorized, "invalid token: "+err.Error())
			return
		}
		metrics.RecordAuthAttempt(true)

		ctx := logging.With(r.Context(), zap.String("sub", claims.Subject))
		next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, claims.Principal())))
	})
}

// WithPrincipal injects a principal into a context.
func WithPrincipal(ctx context.Context, p *media.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// GetPrincipal extracts the principal from the request context, or nil.
func GetPrincipal(ctx context.Context) *media.Principal {
	p, _ := ctx.Value(principalContextKey).(*media.Principal)
	return p
}

func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func sendAuthError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": message,
		"code":    code,
	})
}
