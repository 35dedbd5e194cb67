// Package handlers provides HTTP handlers for the AgriGuru API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/shivas758/agriguru/internal/domain"
	"github.com/shivas758/agriguru/internal/observability"
)

// StatusClientClosedRequest is sent when the caller abandoned the request.
const StatusClientClosedRequest = 499

// ErrorResponseDTO is the body of every failed request.
type ErrorResponseDTO struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, ErrorResponseDTO{Error: message, Details: details})
}

// writeCancelled is the single acknowledgement for an abandoned request.
func writeCancelled(w http.ResponseWriter) {
	writeJSON(w, StatusClientClosedRequest, map[string]string{"status": "cancelled"})
}

// writeDomainError maps an error to a status by its kind.
func writeDomainError(w http.ResponseWriter, logger *observability.Logger, err error) {
	if errors.Is(err, domain.ErrCancelled) {
		writeCancelled(w)
		return
	}

	kind := domain.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindNotFound, domain.KindDataAbsent:
		status = http.StatusNotFound
	case domain.KindSourceUnavailable:
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("kind", string(kind)).Msg("request failed")
	}

	msg := err.Error()
	var de *domain.Error
	if errors.As(err, &de) {
		msg = de.Message
	}
	writeJSON(w, status, ErrorResponseDTO{Error: msg, Kind: string(kind)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return domain.ValidationError("decode", "invalid request body", err)
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, domain.ValidationError("query", key+" must be a non-negative integer", err)
	}
	return n, nil
}

func queryFloat(r *http.Request, key string) (*float64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, domain.ValidationError("query", key+" must be a number", err)
	}
	return &f, nil
}
