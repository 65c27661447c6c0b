// Package httpapi exposes the query engine over stdlib net/http, using the
// Go 1.22+ ServeMux method+pattern routing the teacher's pkg/handlers
// package is built on.
package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ErrorResponse writes a JSON error body and logs any encoding failure.
func ErrorResponse(w http.ResponseWriter, logger *zap.Logger, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message}); err != nil {
		logger.Error("failed to write error response", zap.Error(err))
	}
}

// WriteJSON writes a 200 JSON body and logs any encoding failure.
func WriteJSON(w http.ResponseWriter, logger *zap.Logger, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}
