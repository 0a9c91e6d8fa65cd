package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"gitlab.com/kalkoapp/api/kalko-edge-service/pkg/contextkeys"
)

// XRequestIDHeader carries the request correlation ID in both directions.
const XRequestIDHeader = "X-Request-ID"

// RequestIDMiddleware attaches a correlation ID to every request. A caller's
// own X-Request-ID is honored so an ID can follow a request across services;
// otherwise a fresh UUID is minted. The ID is placed in the context for log
// enrichment and echoed in the response header.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(XRequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(XRequestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), contextkeys.RequestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
