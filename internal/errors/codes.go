// Package errors defines the reconciliation error taxonomy and its mapping to
// HTTP status codes and user-facing messages.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a reconciliation failure
type Kind string

const (
	// Pass-level kinds stop the pass for one tenant
	KindConfigMissing    Kind = "CONFIG_MISSING"
	KindFetch            Kind = "FETCH_FAILED"
	KindPositionOverflow Kind = "POSITION_OVERFLOW"
	KindLockHeld         Kind = "PASS_IN_PROGRESS"

	// Operation-level kind, aggregated into the apply report
	KindApply Kind = "APPLY_FAILED"

	KindInternal Kind = "INTERNAL"
)

// FetchDetail distinguishes transport failures from malformed payloads
type FetchDetail string

const (
	FetchHTTP  FetchDetail = "http"
	FetchParse FetchDetail = "parse"
)

// ReconcileError is a structured error carrying its Kind
type ReconcileError struct {
	Kind       Kind
	Op         string
	GuildID    string
	Message    string
	Detail     FetchDetail
	StatusCode int
	Cause      error
}

// Error implements the error interface
func (e *ReconcileError) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *ReconcileError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error kind to an HTTP status code
func (e *ReconcileError) HTTPStatus() int {
	switch e.Kind {
	case KindConfigMissing:
		return http.StatusPreconditionFailed
	case KindLockHeld:
		return http.StatusConflict
	case KindFetch:
		return http.StatusBadGateway
	case KindPositionOverflow:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// KindOf returns the Kind of err, or KindInternal when err is not a ReconcileError
func KindOf(err error) Kind {
	var rerr *ReconcileError
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given Kind
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// HTTPStatus maps any error to an HTTP status code
func HTTPStatus(err error) int {
	var rerr *ReconcileError
	if errors.As(err, &rerr) {
		return rerr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// ConfigMissing reports that a guild has not been set up for an operation
func ConfigMissing(guildID, message string) *ReconcileError {
	return &ReconcileError{
		Kind:    KindConfigMissing,
		GuildID: guildID,
		Message: message,
	}
}

// FetchFailed reports a transport or non-2xx failure talking to a remote API
func FetchFailed(op string, statusCode int, cause error) *ReconcileError {
	return &ReconcileError{
		Kind:       KindFetch,
		Op:         op,
		Message:    "request failed",
		Detail:     FetchHTTP,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// ParseFailed reports a malformed payload from a remote API
func ParseFailed(op string, cause error) *ReconcileError {
	return &ReconcileError{
		Kind:    KindFetch,
		Op:      op,
		Message: "malformed response",
		Detail:  FetchParse,
		Cause:   cause,
	}
}

// ApplyFailed reports a failed create/delete/update against the resource API
func ApplyFailed(guildID, op string, cause error) *ReconcileError {
	return &ReconcileError{
		Kind:    KindApply,
		Op:      op,
		GuildID: guildID,
		Message: "operation failed",
		Cause:   cause,
	}
}

// PositionOverflow reports a desired set too large for the position range
func PositionOverflow(size, max int) *ReconcileError {
	return &ReconcileError{
		Kind:    KindPositionOverflow,
		Message: fmt.Sprintf("%d entities exceed the maximum position %d", size, max),
	}
}

// LockHeld reports that another pass for the same guild is in progress
func LockHeld(guildID, task string) *ReconcileError {
	return &ReconcileError{
		Kind:    KindLockHeld,
		Op:      task,
		GuildID: guildID,
		Message: "a pass for this guild is already running",
	}
}

// WithGuild returns err annotated with a guild id when it is a ReconcileError
func WithGuild(err error, guildID string) error {
	var rerr *ReconcileError
	if errors.As(err, &rerr) && rerr.GuildID == "" {
		copied := *rerr
		copied.GuildID = guildID
		return &copied
	}
	return err
}
