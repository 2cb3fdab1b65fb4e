package http

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed bridge request.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindHost       ErrorKind = "host"
	KindDecode     ErrorKind = "decode"
	KindNotFound   ErrorKind = "not_found"
	KindTooLarge   ErrorKind = "too_large"
	KindConflict   ErrorKind = "conflict"
)

// Envelope is the response body of every bridge route except /health and
// preflight requests.
type Envelope struct {
	Status    string `json:"status"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	RawResult string `json:"rawResult,omitempty"`
}

func successEnvelope(data any) Envelope {
	return Envelope{Status: "success", Data: data}
}

// BridgeError is a request failure that maps onto an HTTP status and an error
// envelope.
type BridgeError struct {
	Kind      ErrorKind
	Message   string
	RawResult string
	Err       error
}

func (e *BridgeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BridgeError) Unwrap() error { return e.Err }

// Status returns the HTTP status for the error kind.
func (e *BridgeError) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (e *BridgeError) envelope() Envelope {
	return Envelope{Status: "error", Message: e.Message, RawResult: e.RawResult}
}

func validationError(format string, args ...any) *BridgeError {
	return &BridgeError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func hostError(message string, err error) *BridgeError {
	return &BridgeError{Kind: KindHost, Message: message, Err: err}
}

func decodeError(raw string, err error) *BridgeError {
	return &BridgeError{Kind: KindDecode, Message: "Failed to decode host result: " + err.Error(), RawResult: raw, Err: err}
}
