package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Mode is the execution strategy of a payment request. It is decided once at
// validation and never changes for the request.
type Mode string

const (
	ModeToken      Mode = "token"
	ModeDirect     Mode = "direct"
	ModeRealToken  Mode = "real_token"
	ModeRealDirect Mode = "real_direct"
)

type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// BrowserEnv is the client environment the automated browser impersonates.
type BrowserEnv struct {
	UserAgent string    `json:"userAgent"`
	Viewport  *Viewport `json:"viewport"`
}

// FlexString accepts a JSON string or number. Expiry fields arrive as both.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// Int64 returns the numeric value, or 0 when it does not parse.
func (f FlexString) Int64() int64 {
	v, err := strconv.ParseInt(string(f), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// CardInfo is raw card data. It is never persisted and never logged except
// as last four digits and presence flags.
type CardInfo struct {
	Name       string     `json:"name"`
	Number     string     `json:"number"`
	ExpMonth   FlexString `json:"expMonth"`
	ExpYear    FlexString `json:"expYear"`
	CVV        string     `json:"cvv"`
	PostalCode string     `json:"postalCode,omitempty"`
}

// Digits returns the card number without spaces or dashes.
func (c *CardInfo) Digits() string {
	return strings.NewReplacer(" ", "", "-", "").Replace(c.Number)
}

// ExpiryMMYY renders the expiry the way card widgets expect it typed.
func (c *CardInfo) ExpiryMMYY() string {
	month := string(c.ExpMonth)
	if len(month) == 1 {
		month = "0" + month
	}
	year := string(c.ExpYear)
	if len(year) > 2 {
		year = year[len(year)-2:]
	}
	return month + year
}

type PaymentInfo struct {
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Description string           `json:"description,omitempty"`
}

// PaymentRequest is the wire body shared by the payment routes. Exactly one
// of StripeToken and CardInfo must be set.
type PaymentRequest struct {
	StripeToken    string       `json:"stripeToken,omitempty"`
	CardInfo       *CardInfo    `json:"cardInfo,omitempty"`
	CardholderName string       `json:"cardholderName,omitempty"`
	BrowserEnv     *BrowserEnv  `json:"browserEnv,omitempty"`
	PaymentInfo    *PaymentInfo `json:"paymentInfo,omitempty"`
}

// PaymentSuccess never carries a full card number, CVV or token.
type PaymentSuccess struct {
	PaymentIntentID string    `json:"paymentIntentId,omitempty"`
	PaymentMethodID string    `json:"paymentMethodId,omitempty"`
	Mode            Mode      `json:"mode"`
	Status          string    `json:"status,omitempty"`
	Amount          int64     `json:"amount,omitempty"`
	Currency        string    `json:"currency,omitempty"`
	Last4           string    `json:"last4,omitempty"`
	Brand           string    `json:"brand,omitempty"`
	CardholderName  string    `json:"cardholderName,omitempty"`
	RealTransaction bool      `json:"real_transaction"`
	Timestamp       time.Time `json:"timestamp"`
	RequestID       string    `json:"requestId"`
}

// PaymentFailure is the sanitized failure body returned to callers.
type PaymentFailure struct {
	Error           string    `json:"error"`
	Type            string    `json:"type"`
	Retryable       *bool     `json:"retryable,omitempty"`
	Declined        bool      `json:"declined,omitempty"`
	Code            string    `json:"code,omitempty"`
	DeclineCode     string    `json:"declineCode,omitempty"`
	Details         []string  `json:"details,omitempty"`
	RealTransaction bool      `json:"real_transaction,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	RequestID       string    `json:"requestId"`
}

// PaymentResult is either a success or a terminal, success-shaped failure
// such as a declined card.
type PaymentResult struct {
	Success *PaymentSuccess
	Failure *PaymentFailure
}

// SuccessEnvelope is the 200 body for a successful payment.
type SuccessEnvelope struct {
	Success   *PaymentSuccess `json:"success"`
	RequestID string          `json:"requestId"`
}

// ValidatedPayment is a PaymentRequest after validation: exactly one of
// Token and Card is set and Mode says which.
type ValidatedPayment struct {
	Mode           Mode
	Token          *TokenRef
	Card           *CardInfo
	CardholderName string
	Env            BrowserEnv
	Payment        PaymentInfo
}

// PaymentEvent is published once per finished payment request. It carries
// no card data.
type PaymentEvent struct {
	Type            string    `json:"type"`
	RequestID       string    `json:"requestId"`
	Mode            Mode      `json:"mode"`
	Outcome         string    `json:"outcome"`
	PaymentIntentID string    `json:"paymentIntentId,omitempty"`
	Amount          int64     `json:"amount,omitempty"`
	Currency        string    `json:"currency,omitempty"`
	ErrorType       string    `json:"errorType,omitempty"`
	RealTransaction bool      `json:"real_transaction"`
	Timestamp       time.Time `json:"timestamp"`
}

// RateLimitFailure is the 429 body. RetryAfter is in seconds.
type RateLimitFailure struct {
	PaymentFailure
	RetryAfter int64 `json:"retryAfter"`
}
