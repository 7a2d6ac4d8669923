package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"fbposts/pkg/post"
)

// ErrBodyTooLarge is returned when a response exceeds the configured body
// limit. Retrying cannot help, so it is classed as a malformed request.
var ErrBodyTooLarge = errors.New("body too large")

// Class is the transport-level classification of a failed attempt.
type Class int

const (
	ClassUnknown Class = iota
	ClassTimeout
	ClassRateLimited
	ClassConnectionReset
	ClassBlocked
	ClassServerError
	ClassNotFound
	ClassMalformedRequest
	ClassDeactivated
)

func (c Class) String() string {
	switch c {
	case ClassTimeout:
		return "timeout"
	case ClassRateLimited:
		return "rate_limited"
	case ClassConnectionReset:
		return "connection_reset"
	case ClassBlocked:
		return "blocked"
	case ClassServerError:
		return "server_error"
	case ClassNotFound:
		return "not_found"
	case ClassMalformedRequest:
		return "malformed_request"
	case ClassDeactivated:
		return "deactivated"
	default:
		return "unknown"
	}
}

// Transient reports whether another attempt may succeed. Unknown failures
// count as transient.
func (c Class) Transient() bool {
	switch c {
	case ClassNotFound, ClassMalformedRequest, ClassDeactivated:
		return false
	default:
		return true
	}
}

type TransportError struct {
	Class      Class
	StatusCode int
	URL        string
	Err        error
}

func (e *TransportError) Error() string {
	msg := e.Class.String()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.URL != "" {
		msg = fmt.Sprintf("%s from %s", msg, e.URL)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Kind() post.Kind {
	return post.KindTransport
}

// NewError builds a TransportError of the given class.
func NewError(class Class, err error) *TransportError {
	return &TransportError{Class: class, Err: err}
}

var errBlockedRedirect = errors.New("redirected to login or checkpoint")

// ClassOf returns the class carried by err, classifying raw network errors
// when no TransportError is present.
func ClassOf(err error) Class {
	if err == nil {
		return ClassUnknown
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Class
	}

	switch {
	case errors.Is(err, errBlockedRedirect):
		return ClassBlocked
	case errors.Is(err, context.DeadlineExceeded), IsTimeout(err):
		return ClassTimeout
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, io.ErrUnexpectedEOF), IsConnectionError(err):
		return ClassConnectionReset
	}
	return ClassUnknown
}

// ClassForStatus maps an HTTP status to a class; ok is false for success.
func ClassForStatus(status int) (Class, bool) {
	switch {
	case status >= 200 && status < 300:
		return ClassUnknown, false
	case status == http.StatusTooManyRequests:
		return ClassRateLimited, true
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ClassBlocked, true
	case status == http.StatusNotFound:
		return ClassNotFound, true
	case status == http.StatusGone:
		return ClassDeactivated, true
	case status == http.StatusBadRequest, status == http.StatusMethodNotAllowed,
		status == http.StatusUnprocessableEntity, status == http.StatusRequestURITooLong:
		return ClassMalformedRequest, true
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return ClassTimeout, true
	case status >= 500:
		return ClassServerError, true
	default:
		return ClassUnknown, true
	}
}

// IsTimeout reports whether err is a network timeout.
func IsTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// IsConnectionError reports whether err looks like a refused, reset or
// unroutable connection.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no route to host") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "connection reset")
}
