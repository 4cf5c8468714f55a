// Package auth checks presented API keys against the configured allow-list.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"payment-simulator/internal/apperr"
	"payment-simulator/internal/logger"
	"payment-simulator/internal/requestctx"
)

const (
	HeaderAPIKey = "x-api-key"
	QueryAPIKey  = "apiKey"

	AnonymousID = "anonymous"
)

// Authenticator validates keys against an allow-list fixed at construction.
type Authenticator struct {
	keys     [][]byte
	required bool
	log      *logger.Logger
}

func NewAuthenticator(keys []string, required bool, log *logger.Logger) *Authenticator {
	a := &Authenticator{required: required, log: log}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k != "" {
			a.keys = append(a.keys, []byte(k))
		}
	}
	return a
}

// Required reports whether requests without a key are rejected.
func (a *Authenticator) Required() bool {
	return a.required
}

// Authenticate resolves the presented key into an identity. Every outcome is
// recorded as a security event with only a truncated view of the key.
func (a *Authenticator) Authenticate(ctx context.Context, presented string) (requestctx.Identity, error) {
	presented = strings.TrimSpace(presented)

	if presented == "" {
		if !a.required {
			a.log.LogSecurity(ctx, "AUTH_ANONYMOUS", "request accepted without API key")
			return requestctx.Identity{ID: AnonymousID}, nil
		}
		a.log.LogSecurityWarning(ctx, "AUTH_MISSING_KEY", "API key missing")
		return requestctx.Identity{}, apperr.New(apperr.KindUnauthenticated, "API key required")
	}

	if !a.allowed(presented) {
		a.log.LogSecurityWarning(ctx, "AUTH_INVALID_KEY", "API key rejected",
			zap.String("keyPrefix", logger.MaskSecret(presented)))
		return requestctx.Identity{}, apperr.New(apperr.KindUnauthorized, "Invalid API key")
	}

	id := IdentityFor(presented)
	a.log.LogSecurity(ctx, "AUTH_SUCCESS", "API key accepted",
		zap.String("apiKeyId", id.ID),
		zap.String("keyPrefix", id.TruncatedKey))
	return id, nil
}

// Recognize reports the identity of an allow-listed key without recording a
// security event. It lets admission control key callers before Authenticate
// runs.
func (a *Authenticator) Recognize(presented string) (requestctx.Identity, bool) {
	presented = strings.TrimSpace(presented)
	if a == nil || presented == "" || !a.allowed(presented) {
		return requestctx.Identity{}, false
	}
	return IdentityFor(presented), true
}

// KeyFromRequest returns the presented key: the x-api-key header, then the
// apiKey query parameter.
func KeyFromRequest(r *http.Request) string {
	if key := r.Header.Get(HeaderAPIKey); key != "" {
		return key
	}
	return r.URL.Query().Get(QueryAPIKey)
}

// allowed compares against every configured key so timing does not reveal
// which entry matched.
func (a *Authenticator) allowed(presented string) bool {
	p := []byte(presented)
	match := 0
	for _, k := range a.keys {
		match |= subtle.ConstantTimeCompare(p, k)
	}
	return match == 1
}

// IdentityFor derives the logging identity of a key: its first eight
// characters, or a short digest for keys too short to truncate safely.
func IdentityFor(key string) requestctx.Identity {
	if len(key) > 8 {
		return requestctx.Identity{ID: key[:8], TruncatedKey: logger.MaskSecret(key)}
	}
	sum := sha256.Sum256([]byte(key))
	return requestctx.Identity{ID: "k" + hex.EncodeToString(sum[:4]), TruncatedKey: logger.MaskSecret(key)}
}
