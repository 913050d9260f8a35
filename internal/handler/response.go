package handler

// Every error response has the same shape:
//
//	{"error": "not_found", "message": "portfolio not found with id abc123"}
//
// plus "field" for validation errors and "code" for conflicts that carry a
// machine-readable reason.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/devstats/internal/apperror"
)

// maxBodyBytes bounds JSON request bodies. PR summaries carry diffs, which
// are cut to a few KB later but may arrive larger.
const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorKinds maps each sentinel to its status and "error" value. Order
// matters only in that the first match wins.
var errorKinds = []struct {
	sentinel error
	status   int
	kind     string
}{
	{apperror.ErrValidation, http.StatusBadRequest, "validation_error"},
	{apperror.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{apperror.ErrPaymentRequired, http.StatusPaymentRequired, "payment_required"},
	{apperror.ErrForbidden, http.StatusForbidden, "forbidden"},
	{apperror.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperror.ErrConflict, http.StatusConflict, "conflict"},
	{apperror.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{apperror.ErrUpstream, http.StatusBadGateway, "upstream_error"},
}

// writeError maps a domain error to its HTTP status. Errors that are not
// an *apperror.AppError are logged and answered with a generic 500; their
// text may contain SQL or file paths.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		for _, k := range errorKinds {
			if errors.Is(err, k.sentinel) {
				if k.status == http.StatusBadGateway {
					slog.Warn("upstream failure", slog.String("error", errors.Unwrap(appErr).Error()))
				}
				writeJSON(w, k.status, ErrorResponse{
					Error:   k.kind,
					Message: appErr.Message,
					Field:   appErr.Field,
					Code:    appErr.Code,
				})
				return
			}
		}
	}

	slog.Error("internal error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// WriteError is writeError for middleware that answers before any handler
// runs, so every error body has the same shape.
func WriteError(w http.ResponseWriter, err error) {
	writeError(w, err)
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched
// so endpoints with all-optional fields accept a bare POST.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperror.ValidationFailed("body", "request body too large")
		}
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
	return nil
}
