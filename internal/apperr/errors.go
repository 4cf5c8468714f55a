// Package apperr defines the failure taxonomy shared by every layer of the
// simulator and the heuristics that classify raw failures into it.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindUnauthenticated        Kind = "Unauthenticated"
	KindUnauthorized           Kind = "Unauthorized"
	KindRateLimitExceeded      Kind = "RateLimitExceeded"
	KindInvalidRequestShape    Kind = "InvalidRequestShape"
	KindInvalidTokenFormat     Kind = "InvalidTokenFormat"
	KindInvalidCardNumber      Kind = "InvalidCardNumber"
	KindMissingField           Kind = "MissingField"
	KindFormNotFound           Kind = "FormNotFound"
	KindWidgetFrameNotFound    Kind = "WidgetFrameNotFound"
	KindTimeout                Kind = "TimeoutError"
	KindProcessorAPI           Kind = "ProcessorApiError"
	KindBrowserAutomation      Kind = "BrowserAutomationError"
	KindGeneralProcessing      Kind = "GeneralProcessingError"
	KindRealTransactionsOff    Kind = "RealTransactionsDisabled"
	KindModeAlreadyDetermined  Kind = "ModeAlreadyDetermined"
	KindProcessorNotConfigured Kind = "ProcessorNotConfigured"
)

// Error is the structured failure carried across layers. Message is safe to
// return to callers; Detail and Cause stay in logs.
type Error struct {
	Kind            Kind
	Message         string
	Detail          string
	Fields          []string
	RealTransaction bool
	Cause           error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Kind so callers can write errors.Is(err, apperr.FormNotFound).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Kind-only sentinels for errors.Is.
var (
	Unauthenticated     = &Error{Kind: KindUnauthenticated}
	Unauthorized        = &Error{Kind: KindUnauthorized}
	RateLimitExceeded   = &Error{Kind: KindRateLimitExceeded}
	InvalidRequestShape = &Error{Kind: KindInvalidRequestShape}
	InvalidTokenFormat  = &Error{Kind: KindInvalidTokenFormat}
	InvalidCardNumber   = &Error{Kind: KindInvalidCardNumber}
	MissingField        = &Error{Kind: KindMissingField}
	FormNotFound        = &Error{Kind: KindFormNotFound}
	WidgetFrameNotFound = &Error{Kind: KindWidgetFrameNotFound}
	Timeout             = &Error{Kind: KindTimeout}
	ProcessorAPI        = &Error{Kind: KindProcessorAPI}
	BrowserAutomation   = &Error{Kind: KindBrowserAutomation}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// HTTPStatus maps a Kind onto the response status used by the HTTP layer.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthenticated, KindUnauthorized:
		return http.StatusUnauthorized
	case KindRateLimitExceeded:
		return http.StatusTooManyRequests
	case KindInvalidRequestShape, KindInvalidTokenFormat, KindInvalidCardNumber, KindMissingField:
		return http.StatusBadRequest
	case KindRealTransactionsOff:
		return http.StatusForbidden
	case KindProcessorNotConfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
