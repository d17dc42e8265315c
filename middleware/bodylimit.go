package middleware

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/HRV220/plate-detect/dto"
)

// BodyLimit rejects oversized requests up front via Content-Length and caps
// the body reader for the rest.
func BodyLimit(maxBytes int64, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				traceID := GetTraceID(r.Context())
				logger.Warn("Request body too large",
					zap.String("trace_id", traceID),
					zap.Int64("content_length", r.ContentLength),
					zap.Int64("limit", maxBytes),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				json.NewEncoder(w).Encode(dto.ErrorResponse{
					Error:   "Request body exceeds size limit",
					TraceID: traceID,
				})
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
