package server

import (
	"encoding/json"
	"net/http"

	scrapeerrors "smokhtari/torobworker/pkg/errors"
)

// SuccessResponse wraps successful API responses
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse carries the failure category and its localized message.
// Raw internal errors never leave the process.
type ErrorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeSuccess writes a successful JSON response
func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, SuccessResponse{Data: data})
}

// writeError maps a pipeline error onto an HTTP status and envelope
func writeError(w http.ResponseWriter, err error) {
	se := scrapeerrors.AsScrapeError(err)
	writeJSON(w, categoryToStatus(se.Category), ErrorResponse{
		Error:    se.Message,
		Category: string(se.Category),
	})
}

// categoryToStatus maps failure categories to HTTP status codes. Upstream
// trouble surfaces as a bad gateway rather than being passed through.
func categoryToStatus(c scrapeerrors.Category) int {
	switch c {
	case scrapeerrors.CategoryInvalidInput:
		return http.StatusBadRequest
	case scrapeerrors.CategoryNotFound:
		return http.StatusNotFound
	case scrapeerrors.CategoryRateLimited, scrapeerrors.CategoryThrottled:
		return http.StatusTooManyRequests
	case scrapeerrors.CategoryDisabled:
		return http.StatusServiceUnavailable
	case scrapeerrors.CategoryTimeout:
		return http.StatusGatewayTimeout
	case scrapeerrors.CategoryNetwork,
		scrapeerrors.CategoryForbidden,
		scrapeerrors.CategoryServer,
		scrapeerrors.CategoryTLS,
		scrapeerrors.CategoryParse,
		scrapeerrors.CategoryEmptyResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
