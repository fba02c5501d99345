package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/erazemk/oprema/internal/apperr"
	"github.com/erazemk/oprema/internal/transfer"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict, apperr.KindInvalidState:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// serviceError writes err as a JSON error. Store failures are logged and
// reported generically.
func serviceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindStore {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		jsonError(w, http.StatusInternalServerError, "temporary failure, please try again")
		return
	}
	jsonResponse(w, statusFor(kind), map[string]string{"error": err.Error(), "error_kind": string(kind)})
}

// transferResult writes the typed result of a transfer operation.
func transferResult(w http.ResponseWriter, r *http.Request, okStatus int, transferID string, err error) {
	res := transfer.ResultOf(transferID, err)
	if err != nil {
		if res.ErrorKind == apperr.KindStore {
			slog.Error("transfer operation failed", "method", r.Method, "path", r.URL.Path, "error", err)
		}
		jsonResponse(w, statusFor(res.ErrorKind), res)
		return
	}
	jsonResponse(w, okStatus, res)
}
