package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/z0w13/dmserv/internal/errors"
	"go.uber.org/zap"
)

// ErrorCode represents application-specific error codes.
type ErrorCode string

const (
	ErrorCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrorCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrorCodeTaskBusy       ErrorCode = "TASK_BUSY"
)

// ErrorResponse represents the standard error response format.
type ErrorResponse struct {
	Status    string    `json:"status"`
	ErrorCode ErrorCode `json:"error_code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
}

// ErrorHandler writes error envelopes for the admin API.
type ErrorHandler struct {
	logger *zap.Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleError maps err through the reconciliation taxonomy and writes it.
// Messages of unclassified errors are logged but not exposed.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := requestID(r)
	kind := apperrors.KindOf(err)

	message := "internal error"
	var rerr *apperrors.ReconcileError
	if errors.As(err, &rerr) && kind != apperrors.KindInternal {
		message = rerr.Error()
	} else {
		h.logger.Error("Unhandled error",
			zap.String("request_id", reqID),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}

	h.WriteErrorResponse(w, apperrors.HTTPStatus(err), ErrorCode(kind), message, reqID)
}

// WriteErrorResponse writes a formatted error response to the HTTP response writer.
func (h *ErrorHandler) WriteErrorResponse(w http.ResponseWriter, statusCode int, errorCode ErrorCode, message string, requestID string) {
	h.logger.Warn("HTTP error response",
		zap.Int("status_code", statusCode),
		zap.String("error_code", string(errorCode)),
		zap.String("message", message),
		zap.String("request_id", requestID),
	)

	resp := ErrorResponse{
		Status:    "error",
		ErrorCode: errorCode,
		Message:   message,
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteValidationError writes a validation error response.
func (h *ErrorHandler) WriteValidationError(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusBadRequest, ErrorCodeInvalidRequest, message, requestID)
}
