package apperr

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v82"
)

// ClassType is the coarse family reported to callers and logs.
type ClassType string

const (
	TypeStripe     ClassType = "stripe_error"
	TypeTimeout    ClassType = "timeout_error"
	TypeIframe     ClassType = "iframe_error"
	TypeBrowser    ClassType = "browser_error"
	TypeValidation ClassType = "validation_error"
	TypeAuth       ClassType = "auth_error"
	TypeRateLimit  ClassType = "rate_limit_error"
	TypeForbidden  ClassType = "forbidden_error"
	TypeGeneral    ClassType = "general_error"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Classification is a best-effort reading of a failure. It drives log
// categorisation and retry hints only; nothing depends on it for correctness.
type Classification struct {
	Type      ClassType `json:"type"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Severity  Severity  `json:"severity"`
}

// declineMessages maps processor decline reasons to caller-facing text.
var declineMessages = map[string]string{
	"card_declined":           "Your card was declined.",
	"generic_decline":         "Your card was declined.",
	"insufficient_funds":      "Your card has insufficient funds.",
	"lost_card":               "Your card was declined.",
	"stolen_card":             "Your card was declined.",
	"expired_card":            "Your card has expired.",
	"incorrect_cvc":           "Your card's security code is incorrect.",
	"invalid_cvc":             "Your card's security code is invalid.",
	"incorrect_number":        "Your card number is incorrect.",
	"invalid_number":          "Your card number is invalid.",
	"invalid_expiry_month":    "Your card's expiration month is invalid.",
	"invalid_expiry_year":     "Your card's expiration year is invalid.",
	"processing_error":        "An error occurred while processing your card. Try again in a little bit.",
	"authentication_required": "Your card requires authentication.",
	"do_not_honor":            "Your card was declined.",
	"fraudulent":              "Your card was declined.",
}

// DeclineMessage returns the caller-facing text for a decline code, falling
// back to the generic decline message.
func DeclineMessage(code string) string {
	if msg, ok := declineMessages[code]; ok {
		return msg
	}
	return declineMessages["card_declined"]
}

type rule struct {
	name  string
	match func(err error, lower string) bool
	apply func(err error) Classification
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{
		name: "typed",
		match: func(err error, _ string) bool {
			var e *Error
			return errors.As(err, &e)
		},
		apply: classifyTyped,
	},
	{
		name: "processor",
		match: func(err error, _ string) bool {
			var se *stripe.Error
			return errors.As(err, &se)
		},
		apply: classifyStripe,
	},
	{
		name: "deadline",
		match: func(err error, _ string) bool {
			return errors.Is(err, context.DeadlineExceeded)
		},
		apply: timedOut,
	},
	{
		name: "processor-message",
		match: func(_ error, lower string) bool {
			return containsAny(lower, "stripe", "declined")
		},
		apply: func(err error) Classification {
			return Classification{Type: TypeStripe, Kind: KindProcessorAPI, Message: err.Error(), Severity: SeverityMedium}
		},
	},
	{
		name: "timeout-message",
		match: func(_ error, lower string) bool {
			return containsAny(lower, "timeout", "timed out", "deadline exceeded")
		},
		apply: timedOut,
	},
	{
		name: "frame",
		match: func(_ error, lower string) bool {
			return containsAny(lower, "iframe", "frame not found")
		},
		apply: func(err error) Classification {
			return Classification{Type: TypeIframe, Kind: KindWidgetFrameNotFound, Message: "Payment widget frame not available", Retryable: true, Severity: SeverityMedium}
		},
	},
	{
		name: "browser",
		match: func(_ error, lower string) bool {
			return containsAny(lower, "browser", "chromedp", "cdp", "target closed", "page crashed", "navigation", "websocket")
		},
		apply: func(err error) Classification {
			return Classification{Type: TypeBrowser, Kind: KindBrowserAutomation, Message: "Browser automation failed", Severity: SeverityHigh}
		},
	},
}

// Classify maps any failure onto the taxonomy. Typed errors are trusted;
// everything else is matched by message heuristics and is best effort.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}
	lower := strings.ToLower(err.Error())
	for _, r := range rules {
		if r.match(err, lower) {
			return r.apply(err)
		}
	}
	return Classification{Type: TypeGeneral, Kind: KindGeneralProcessing, Message: "Payment processing failed", Severity: SeverityHigh}
}

func timedOut(error) Classification {
	return Classification{Type: TypeTimeout, Kind: KindTimeout, Message: "Operation timed out", Retryable: true, Severity: SeverityMedium}
}

func classifyTyped(err error) Classification {
	var e *Error
	errors.As(err, &e)

	c := Classification{Kind: e.Kind, Message: e.Message, Severity: SeverityLow}
	switch e.Kind {
	case KindUnauthenticated, KindUnauthorized:
		c.Type = TypeAuth
		c.Severity = SeverityMedium
	case KindRateLimitExceeded:
		c.Type = TypeRateLimit
		c.Retryable = true
	case KindInvalidRequestShape, KindInvalidTokenFormat, KindInvalidCardNumber, KindMissingField, KindModeAlreadyDetermined:
		c.Type = TypeValidation
	case KindRealTransactionsOff:
		c.Type = TypeForbidden
	case KindTimeout:
		c.Type = TypeTimeout
		c.Retryable = true
		c.Severity = SeverityMedium
	case KindWidgetFrameNotFound:
		c.Type = TypeIframe
		c.Retryable = true
		c.Severity = SeverityMedium
	case KindFormNotFound, KindBrowserAutomation:
		c.Type = TypeBrowser
		c.Severity = SeverityHigh
	case KindProcessorAPI:
		c.Type = TypeStripe
		c.Severity = SeverityMedium
		var se *stripe.Error
		if errors.As(e.Cause, &se) {
			c.Message = classifyStripe(se).Message
		}
	case KindProcessorNotConfigured:
		c.Type = TypeGeneral
		c.Severity = SeverityCritical
	default:
		c.Type = TypeGeneral
		c.Severity = SeverityHigh
	}
	return c
}

func classifyStripe(err error) Classification {
	var se *stripe.Error
	errors.As(err, &se)

	c := Classification{Type: TypeStripe, Kind: KindProcessorAPI, Message: se.Msg, Severity: SeverityMedium}
	switch {
	case se.DeclineCode != "":
		c.Message = DeclineMessage(string(se.DeclineCode))
	case se.Code != "":
		if msg, ok := declineMessages[string(se.Code)]; ok {
			c.Message = msg
		}
	}
	if c.Message == "" {
		c.Message = "Payment processor rejected the request"
	}
	if se.Type == stripe.ErrorTypeAPI {
		c.Severity = SeverityHigh
	}
	return c
}
