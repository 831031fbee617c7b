package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"slotgate/internal/call"
)

// CallerValidator turns a bearer token into a caller identity.
type CallerValidator interface {
	ValidateToken(tokenString string) (call.Address, error)
}

type contextKeyCaller struct{}

// GetCaller retrieves the authenticated caller identity from the context.
// The zero address means no caller was established.
func GetCaller(ctx context.Context) call.Address {
	caller, ok := ctx.Value(contextKeyCaller{}).(call.Address)
	if !ok {
		return call.Address{}
	}
	return caller
}

// WithCaller returns a context carrying the caller identity; used by tests
// that bypass the HTTP stack.
func WithCaller(ctx context.Context, caller call.Address) context.Context {
	return context.WithValue(ctx, contextKeyCaller{}, caller)
}

// RequireCaller rejects requests without a valid bearer token and stores the
// asserted caller identity in the request context.
func RequireCaller(validator CallerValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok || token == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			caller, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "caller token rejected",
					slog.String("error", err.Error()))
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}
