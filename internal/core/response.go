package core

import (
	"encoding/json"
	"errors"
	"net/http"

	"eventpipe/internal/types"
)

// APIErrorResponse is the envelope for every error the ops endpoints return.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the client-visible part of an error.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// JSON writes data with the given status. A marshal failure is logged and
// answered through Error as a 500.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		if _, isEnvelope := data.(APIErrorResponse); isEnvelope {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		types.LoggerFrom(r.Context(), types.NopLogger{}).Error("failed to marshal response", "error", err)
		Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal response", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error renders err. An AppError keeps its code, message and details and
// maps to its HTTP status; anything else is an opaque 500.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	detail := ErrorDetail{
		Code:      string(types.ErrCodeInternalUnexpected),
		Message:   "an unexpected error occurred",
		RequestID: types.GetRequestID(r.Context()),
	}
	status := http.StatusInternalServerError

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		detail.Code = string(appErr.Code)
		detail.Message = appErr.Message
		detail.Details = appErr.Details
		status = appErr.HTTPStatus()
	}
	JSON(w, r, status, APIErrorResponse{Error: detail})
}
