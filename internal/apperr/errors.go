// Package apperr defines the error taxonomy shared across the ingestion and
// chat pipeline. Callers classify failures with errors.Is and map them to
// transport-level responses.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound indicates a referenced file, folder, chunk set, or blob does
	// not exist. Never retried internally.
	ErrNotFound = errors.New("not found")

	// ErrInvalid indicates input that cannot be processed, such as an empty
	// source with nothing to ingest.
	ErrInvalid = errors.New("invalid input")

	// ErrForbidden indicates an ownership mismatch on ingestion or deletion.
	// Never retried.
	ErrForbidden = errors.New("forbidden")

	// ErrProvider indicates an embedding or language-model call failed or
	// returned an unparseable/empty result.
	ErrProvider = errors.New("provider error")

	// ErrCountMismatch indicates the embedding count does not equal the chunk
	// count. Fatal internal-consistency error; never truncated or padded over.
	ErrCountMismatch = errors.New("embedding/chunk count mismatch")

	// ErrIndex indicates a vector index upsert/query/delete failure. Propagated
	// as-is; retry policy belongs to the caller.
	ErrIndex = errors.New("vector index error")
)

// Status maps a pipeline error to an HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, ErrCountMismatch), errors.Is(err, ErrIndex):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
