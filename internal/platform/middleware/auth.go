package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	derrors "threadhub/pkg/domain-errors"
)

// IdentityResolver turns a bearer credential into a verified owner id.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (uuid.UUID, error)
	ResolveOptional(ctx context.Context, token string) (uuid.UUID, bool)
}

type contextKeyOwnerID struct{}

// ContextKeyOwnerID is exported for tests that build contexts directly.
var ContextKeyOwnerID = contextKeyOwnerID{}

// GetOwnerID retrieves the authenticated owner id from the context.
func GetOwnerID(ctx context.Context) (uuid.UUID, bool) {
	ownerID, ok := ctx.Value(ContextKeyOwnerID).(uuid.UUID)
	return ownerID, ok
}

// WithOwnerID injects an owner id into the context.
func WithOwnerID(ctx context.Context, ownerID uuid.UUID) context.Context {
	return context.WithValue(ctx, ContextKeyOwnerID, ownerID)
}

func bearerToken(r *http.Request) (string, bool) {
	const bearerPrefix = "Bearer "
	return strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
}

// RequireAuth resolves the bearer credential before the handler runs and
// rejects the request with 401 when resolution fails. InvalidCredential stays
// distinguishable in the error code for diagnostics, but shares the status.
func RequireAuth(resolver IdentityResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := bearerToken(r)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", GetRequestID(ctx),
				)
				writeAuthError(w, derrors.CodeUnauthenticated)
				return
			}

			ownerID, err := resolver.Resolve(ctx, token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeAuthError(w, derrors.CodeOf(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOwnerID(ctx, ownerID)))
		})
	}
}

// OptionalAuth resolves the credential when one is presented and otherwise
// leaves the request anonymous. A malformed credential is treated the same as
// no credential; the error never propagates.
func OptionalAuth(resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if token, ok := bearerToken(r); ok {
				if ownerID, resolved := resolver.ResolveOptional(ctx, token); resolved {
					ctx = WithOwnerID(ctx, ownerID)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, code derrors.Code) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + string(code) + `"}`))
}
