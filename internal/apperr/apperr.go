// Package apperr carries an HTTP status alongside a caller-safe
// message so handlers can map service failures without inspecting
// store internals.
package apperr

import (
	"errors"
	"net/http"
)

type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

func Wrap(status int, message string, err error) *Error {
	return &Error{Status: status, Message: message, Err: err}
}

func BadRequest(message string) *Error      { return New(http.StatusBadRequest, message) }
func Unauthorized(message string) *Error    { return New(http.StatusUnauthorized, message) }
func Forbidden(message string) *Error       { return New(http.StatusForbidden, message) }
func NotFound(message string) *Error        { return New(http.StatusNotFound, message) }
func Conflict(message string) *Error        { return New(http.StatusConflict, message) }
func TooManyRequests(message string) *Error { return New(http.StatusTooManyRequests, message) }

func Internal(err error) *Error {
	return Wrap(http.StatusInternalServerError, "Something went wrong", err)
}

// StatusOf returns the HTTP status for err, defaulting to 500 for
// anything that is not an *Error.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the caller-safe message for err. Unexpected errors
// deliberately collapse to a generic message so store and signing
// internals never reach a response body.
func MessageOf(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return "Something went wrong"
}
