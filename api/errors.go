package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/roarinpenguin/roarinca/ca"
	"github.com/roarinpenguin/roarinca/storage"
)

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.Any("error", err))
	}
}

// writeError writes a JSON error body with the given status code.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeInternalError logs the underlying error and returns an opaque 500.
// Internal details never reach the client.
func (a *API) writeInternalError(w http.ResponseWriter, err error) {
	a.logger.Error("internal error", slog.Any("error", err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// mapError translates domain errors into HTTP responses. Unrecognized
// errors fall through to an opaque 500.
func (a *API) mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ca.ErrInvalidProfile):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ca.ErrMissingCommonName):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ca.ErrGenerationFailed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ca.ErrInvalidCertificate):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ca.ErrExportPasswordRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ca.ErrCANotInitialized):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ca.ErrAlreadyInitialized):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ca.ErrAlreadySigned):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ca.ErrKeyUnavailable):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ca.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrCASFailed):
		writeError(w, http.StatusConflict, "conflicting concurrent update")
	default:
		a.writeInternalError(w, err)
	}
}
