package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"go.uber.org/zap"

	"finitefield.org/manual/internal/platform/httpx"
	"finitefield.org/manual/internal/platform/requestctx"
)

const (
	roleClaim     = "role"
	rolesClaim    = "roles"
	localeClaim   = "locale"
	emailClaim    = "email"
	verifyTimeout = 5 * time.Second
)

var (
	// ErrTokenExpired signals an expired bearer token.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals a malformed or unverifiable bearer token.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// TokenVerifier verifies a bearer token and returns its claims.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator turns a TokenVerifier into HTTP middleware.
type Authenticator struct {
	verifier TokenVerifier
	timeout  time.Duration
}

// Option customises an Authenticator.
type Option func(*Authenticator)

// WithVerificationTimeout bounds each verification call.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{verifier: verifier, timeout: verifyTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireRoles verifies the Authorization bearer token and requires one of allowedRoles.
// With no roles listed, any authenticated identity with at least one role passes.
func (a *Authenticator) RequireRoles(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		if role = normaliseRole(role); role != "" {
			allowed[role] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authorization header missing or invalid", http.StatusUnauthorized))
				return
			}
			if a == nil || a.verifier == nil {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authorization service unavailable", http.StatusUnauthorized))
				return
			}

			verifyCtx, cancel := context.WithTimeout(ctx, a.timeout)
			token, err := a.verifier.VerifyIDToken(verifyCtx, raw)
			cancel()
			if err != nil {
				requestctx.Logger(ctx).Debug("token rejected", zap.Error(err))
				httpx.WriteError(ctx, w, verificationError(err))
				return
			}

			identity := &Identity{
				UID:    token.UID,
				Email:  stringClaim(token.Claims, emailClaim),
				Locale: stringClaim(token.Claims, localeClaim),
				Roles:  rolesFromClaims(token.Claims),
				token:  token,
			}
			if len(identity.Roles) == 0 {
				httpx.WriteError(ctx, w, httpx.NewError("missing_role", "no roles associated with identity", http.StatusForbidden))
				return
			}
			if len(allowed) > 0 && !hasAllowedRole(identity.Roles, allowed) {
				httpx.WriteError(ctx, w, httpx.NewError("insufficient_role", "identity does not have required role", http.StatusForbidden))
				return
			}

			ctx = requestctx.WithLogger(ctx, requestctx.Logger(ctx).With(zap.String("user_id", identity.UID)))
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

func verificationError(err error) httpx.Error {
	switch {
	case errors.Is(err, ErrTokenExpired), firebaseauth.IsIDTokenExpired(err):
		return httpx.NewError("token_expired", "bearer token expired", http.StatusUnauthorized)
	default:
		return httpx.NewError("invalid_token", "bearer token invalid", http.StatusUnauthorized)
	}
}

func hasAllowedRole(roles []string, allowed map[string]struct{}) bool {
	for _, role := range roles {
		if _, ok := allowed[role]; ok {
			return true
		}
	}
	return false
}

// rolesFromClaims accepts "role" as a string and "roles" as a string list or a
// map of role to bool, as set by Firebase custom claims.
func rolesFromClaims(claims map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(role string) {
		role = normaliseRole(role)
		if role == "" {
			return
		}
		if _, ok := seen[role]; ok {
			return
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}

	for _, key := range []string{roleClaim, rolesClaim} {
		switch v := claims[key].(type) {
		case string:
			add(v)
		case []string:
			for _, role := range v {
				add(role)
			}
		case []any:
			for _, item := range v {
				if role, ok := item.(string); ok {
					add(role)
				}
			}
		case map[string]any:
			for role, enabled := range v {
				if on, ok := enabled.(bool); ok && on {
					add(role)
				}
			}
		}
	}
	return out
}

func stringClaim(claims map[string]any, key string) string {
	if v, ok := claims[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
