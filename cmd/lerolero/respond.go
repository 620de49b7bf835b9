package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/CTAG07/lerolero/pkg/ngram"
)

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Default().Error("Failed to encode JSON response", slog.Any("error", err))
		}
	}
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// statusFor maps model and generation errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, ngram.ErrSeedNotFound):
		return http.StatusNotFound
	case errors.Is(err, ngram.ErrInvalidOrder), errors.Is(err, ngram.ErrContextSizeMismatch):
		return http.StatusBadRequest
	case errors.Is(err, ngram.ErrEmptyModel):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondWithModelError writes err with the status statusFor picks. Server
// errors are logged and their detail is kept from the client.
func respondWithModelError(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.Error(msg, slog.Any("error", err))
		respondWithError(w, code, msg)
		return
	}
	if errors.Is(err, sql.ErrNoRows) {
		respondWithError(w, code, "Model not found")
		return
	}
	respondWithError(w, code, err.Error())
}
