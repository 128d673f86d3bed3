// Package server provides the HTTP surface that wires all services together.
package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	reqctx "github.com/nivesh/finassist/internal/pkg/context"
	apperrors "github.com/nivesh/finassist/internal/pkg/errors"
	"github.com/nivesh/finassist/internal/pkg/logger"
)

const maxBodyBytes = 1 << 20

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads the request body into v, rejecting oversized and
// malformed payloads.
func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apperrors.InvalidRequestError("failed to read request body")
	}
	if len(body) == 0 {
		return apperrors.InvalidRequestError("request body is empty")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperrors.InvalidRequestError("invalid JSON body")
	}
	return nil
}

// GenerateRequestID generates a short unique request ID.
func GenerateRequestID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// statusWriter captures the response status for request logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs one line per request with the request ID.
func loggingMiddleware(next http.Handler, log *logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := GenerateRequestID()
		w.Header().Set("X-Request-ID", requestID)
		r = r.WithContext(reqctx.WithRequestID(r.Context(), requestID))

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		log.Debug("HTTP request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}
