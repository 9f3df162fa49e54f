package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with its technical detail and request id, then
// returned to the client as the coded user message from core.MapError.

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/foodops/internal/core"
	"github.com/JonMunkholm/foodops/internal/tabular"
)

var (
	errRateLimited    = errors.New("rate limit exceeded")
	errNoFile         = errors.New("no file provided")
	errInvalidRequest = errors.New("invalid request")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	// Details carries structured context such as unresolved codes or field errors.
	Details any `json:"details,omitempty"`
}

// respondError logs err and writes its user message with statusCode.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	respondErrorDetails(w, r, err, statusCode, nil)
}

func respondErrorDetails(w http.ResponseWriter, r *http.Request, err error, statusCode int, details any) {
	userMsg := core.MapError(err)

	level := slog.LevelWarn
	if statusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	writeJSON(w, statusCode, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
		Details: details,
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, core.ErrSessionNotFound),
		errors.Is(err, core.ErrDatasetNotFound),
		errors.Is(err, core.ErrUnknownKind),
		errors.Is(err, core.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidTransition),
		errors.Is(err, core.ErrSessionClosed),
		errors.Is(err, core.ErrUnresolvedEntities),
		errors.Is(err, core.ErrNothingToCommit):
		return http.StatusConflict
	case errors.Is(err, tabular.ErrFileTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrMappingIncomplete),
		errors.Is(err, core.ErrUnknownField),
		errors.Is(err, core.ErrColumnOutOfRange),
		errors.Is(err, core.ErrUnknownEntity),
		errors.Is(err, core.ErrNotUnmatched),
		errors.Is(err, tabular.ErrEmptyFile),
		errors.Is(err, tabular.ErrMalformedFile):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errInvalidRequest), errors.Is(err, errNoFile),
		errors.Is(err, core.ErrUnknownExportFormat):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTooManyUploads):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// fail responds with the status statusFor picks. Unresolved entities carry
// their codes as details so clients can prompt for resolutions.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var unresolved *core.UnresolvedError
	if errors.As(err, &unresolved) {
		respondErrorDetails(w, r, err, statusFor(err), map[string][]string{"codes": unresolved.Codes})
		return
	}
	var invalid *requestError
	if errors.As(err, &invalid) {
		respondErrorDetails(w, r, err, http.StatusBadRequest, invalid.Fields)
		return
	}
	respondError(w, r, err, statusFor(err))
}
