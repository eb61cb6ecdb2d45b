package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/xraph/intake"
	"github.com/xraph/intake/patient"
	"github.com/xraph/intake/upload"
)

// AppError is an error with a status code and a message that is safe to
// show to clients.
type AppError struct {
	Status  int
	Message string
}

// NewAppError creates an AppError.
func NewAppError(status int, message string) *AppError {
	return &AppError{Status: status, Message: message}
}

func (e *AppError) Error() string { return e.Message }

// envelope is the body of every JSON response.
type envelope struct {
	Status  string               `json:"status"`
	Data    any                  `json:"data,omitempty"`
	Message string               `json:"message,omitempty"`
	Errors  []patient.FieldError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Status: "success", Data: data})
}

// writeError maps err onto a status code and an error envelope. Errors
// that are not recognised are logged and reported as 500.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		appErr *AppError
		valErr *patient.ValidationError
	)
	switch {
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusBadRequest, envelope{Status: "error", Errors: valErr.Fields})
		return
	case errors.As(err, &appErr):
	case errors.Is(err, intake.ErrDuplicateEmail):
		appErr = NewAppError(http.StatusBadRequest, "Email already registered")
	case errors.Is(err, intake.ErrPatientNotFound):
		appErr = NewAppError(http.StatusNotFound, "Patient not found")
	case errors.Is(err, intake.ErrJobNotFound):
		appErr = NewAppError(http.StatusNotFound, "Job not found")
	case errors.Is(err, upload.ErrNotJPEG):
		appErr = NewAppError(http.StatusBadRequest, "Only JPG images are allowed")
	case errors.Is(err, upload.ErrTooLarge):
		appErr = NewAppError(http.StatusBadRequest, "File too large")
	default:
		a.logger.ErrorContext(r.Context(), "unhandled error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		appErr = NewAppError(http.StatusInternalServerError, "Internal server error")
	}
	writeJSON(w, appErr.Status, envelope{Status: "error", Message: appErr.Message})
}
