package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// Request body limits. Auth bodies carry a passphrase, small bodies carry
// short JSON documents, PEM bodies carry certificate material which can
// include a chain.
const (
	maxAuthBodySize  = 4 * 1024
	maxSmallBodySize = 16 * 1024
	maxPEMBodySize   = 512 * 1024
)

// decodeJSON reads and decodes a JSON request body into T. On failure it
// writes the error response itself and returns ok=false; handlers should
// simply return.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, maxSize int64) (T, bool) {
	var v T

	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body is required")
		default:
			writeError(w, http.StatusBadRequest, "invalid JSON body")
		}
		return v, false
	}
	if dec.More() {
		writeError(w, http.StatusBadRequest, "request body must contain a single JSON object")
		return v, false
	}
	return v, true
}
