package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mssola/useragent"

	"custodia/internal/audit"
)

type sessionKey struct{}
type mfaKey struct{}

// SessionClaims are the claims custodia issues in session tokens.
type SessionClaims struct {
	SessionID string `json:"session_id"`
	MFA       bool   `json:"mfa"`
	jwt.RegisteredClaims
}

// Session validates the bearer token and places the session ID and MFA
// status in the request context. Requests without a token pass through
// unauthenticated; handlers that require a session reject them.
func Session(signingKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			tokenStr := strings.TrimPrefix(auth, "Bearer ")
			claims := &SessionClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return signingKey, nil
			})
			if err != nil || !token.Valid {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"invalid_token","error_description":"session token is invalid or expired"}`))
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey{}, claims.SessionID)
			ctx = context.WithValue(ctx, mfaKey{}, claims.MFA)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSessionID retrieves the authenticated session ID from the context.
func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionKey{}).(string); ok {
		return id
	}
	return ""
}

// GetMFAVerified reports whether the session token carried a verified MFA claim.
func GetMFAVerified(ctx context.Context) bool {
	if mfa, ok := ctx.Value(mfaKey{}).(bool); ok {
		return mfa
	}
	return false
}

// Client condenses the User-Agent header into a short browser/OS label and
// stamps it onto the context so downstream audit entries carry it.
func Client(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		label := condenseUserAgent(r.UserAgent())
		next.ServeHTTP(w, r.WithContext(audit.WithClient(r.Context(), label)))
	})
}

func condenseUserAgent(raw string) string {
	if raw == "" {
		return "unknown"
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		return "bot"
	}
	name, version := ua.Browser()
	if name == "" {
		return "unknown"
	}
	if idx := strings.Index(version, "."); idx > 0 {
		version = version[:idx]
	}
	label := name
	if version != "" {
		label += "/" + version
	}
	if os := ua.OSInfo().Name; os != "" {
		label += " (" + os + ")"
	}
	return label
}
