package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"bargetrader/internal/domain"
)

// WriteJSON writes data as a JSON body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type errorResponse struct {
	Status string      `json:"status"`
	Kind   domain.Kind `json:"kind"`
	Errors []string    `json:"errors"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindStaleQuote, domain.KindRoundClosed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err in the error envelope. Errors that are not domain
// errors are logged and reported as internal errors without their text.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		logger.Error("unhandled error", "error", err)
		WriteJSON(w, http.StatusInternalServerError, errorResponse{
			Status: "error",
			Kind:   "internal_error",
			Errors: []string{"internal error"},
		})
		return
	}
	msgs := de.Messages
	if len(msgs) == 0 {
		msgs = []string{string(de.Kind)}
	}
	WriteJSON(w, StatusFor(de.Kind), errorResponse{
		Status: "error",
		Kind:   de.Kind,
		Errors: msgs,
	})
}
