package testutil

import (
	"context"
	"net/http"

	"slotgate/internal/call"
	"slotgate/internal/platform/middleware"
)

// WithCaller attaches a caller identity to the request context.
// This simulates what the auth middleware does for authenticated requests.
// Malformed addresses are silently ignored.
func WithCaller(req *http.Request, caller string) *http.Request {
	if addr, err := call.ParseAddress(caller); err == nil {
		return req.WithContext(middleware.WithCaller(req.Context(), addr))
	}
	return req
}

// WithCallerAddress attaches an already-parsed caller identity.
func WithCallerAddress(req *http.Request, caller call.Address) *http.Request {
	return req.WithContext(middleware.WithCaller(req.Context(), caller))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
