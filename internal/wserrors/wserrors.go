// Package wserrors defines the typed error kinds exchanged across the
// wire protocol and surfaced over HTTP during the session/auth gate.
package wserrors

import (
	"fmt"
	"net/http"
)

// Kind is a machine-readable error classification. Unlike a Go error
// type hierarchy, Kind is a flat enum so dispatchers and tests can
// switch on it directly.
type Kind string

const (
	KindProtocolError       Kind = "PROTOCOL_ERROR"
	KindNoRouteMatched      Kind = "NO_ROUTE_MATCHED"
	KindHandlerError        Kind = "HANDLER_ERROR"
	KindSendFailure         Kind = "SEND_FAILURE"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindMiddlewareMisuse    Kind = "MIDDLEWARE_MISUSE"
	KindClientTimeout       Kind = "CLIENT_TIMEOUT"
	KindClientProtocolError Kind = "CLIENT_PROTOCOL_ERROR"
)

// WSError is a standardized error carrying both a wire-facing message
// and (when relevant) an HTTP status code.
type WSError struct {
	Kind       Kind
	Message    string
	Details    string
	StatusCode int
}

func (e *WSError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ToFrameError renders the error the way it appears in a frame's
// data.error field.
func (e *WSError) ToFrameError() string {
	return e.Message
}

func statusForKind(k Kind) int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNoRouteMatched, KindHandlerError, KindProtocolError, KindClientProtocolError:
		return http.StatusBadRequest
	case KindMiddlewareMisuse, KindSendFailure:
		return http.StatusInternalServerError
	case KindClientTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, message string) *WSError {
	return &WSError{Kind: kind, Message: message, StatusCode: statusForKind(kind)}
}

func Wrap(kind Kind, message string, err error) *WSError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &WSError{Kind: kind, Message: message, Details: details, StatusCode: statusForKind(kind)}
}

func ProtocolError(message string) *WSError {
	return New(KindProtocolError, message)
}

func NoRouteMatched(method, url string) *WSError {
	return New(KindNoRouteMatched, fmt.Sprintf("No route matched for: %s %s", method, url))
}

func HandlerError(err error) *WSError {
	msg := "handler error"
	if err != nil {
		msg = err.Error()
	}
	return New(KindHandlerError, msg)
}

func SendFailure(err error) *WSError {
	return Wrap(KindSendFailure, "send failed", err)
}

func Unauthorized(message string) *WSError {
	if message == "" {
		message = "Unauthorized"
	}
	return New(KindUnauthorized, message)
}

func MiddlewareMisuse(middlewareName string) *WSError {
	return New(KindMiddlewareMisuse, fmt.Sprintf("middleware %q called next more than once", middlewareName))
}

func ClientTimeout() *WSError {
	return New(KindClientTimeout, "request timed out")
}

func ClientProtocolError(message string) *WSError {
	return New(KindClientProtocolError, message)
}
