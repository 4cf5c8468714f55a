package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type TokenKind string

const (
	TokenProcessor     TokenKind = "processor_token"
	TokenPaymentMethod TokenKind = "payment_method"
	TokenEmbeddedCard  TokenKind = "embedded_card"
	TokenTest          TokenKind = "test_token"
)

const (
	processorTokenPrefix = "tok_"
	paymentMethodPrefix  = "pm_"

	// Sentinel ids carried in a JSON token envelope.
	SentinelEmbeddedCard  = "embedded_card"
	SentinelPaymentMethod = "payment_method"
)

var (
	ErrEmptyToken           = errors.New("token is empty")
	ErrUnrecognizedToken    = errors.New("unrecognized token format")
	ErrMissingEmbeddedCard  = errors.New("embedded card token carries no card data")
	ErrMissingPaymentMethod = errors.New("payment method token carries no paymentMethodId")
)

// TokenRef is a parsed client token. Raw is kept only to hand to the checkout
// page and must never be logged.
type TokenRef struct {
	Kind TokenKind
	ID   string
	Card *CardInfo
	Raw  string
}

type tokenEnvelope struct {
	ID              string    `json:"id"`
	Card            *CardInfo `json:"card,omitempty"`
	PaymentMethodID string    `json:"paymentMethodId,omitempty"`
	HasCardData     bool      `json:"hasCardData,omitempty"`
	IsTestToken     bool      `json:"isTestToken,omitempty"`
}

// ParseToken accepts a raw processor token, a raw payment method id, or a
// JSON envelope whose id is one of those, a sentinel, or flagged as test or
// embedded card data. Parse failures wrap the decoder error.
func ParseToken(raw string) (TokenRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return TokenRef{}, ErrEmptyToken
	}

	if kind, ok := prefixKind(raw); ok {
		return TokenRef{Kind: kind, ID: raw, Raw: raw}, nil
	}

	var env tokenEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return TokenRef{}, fmt.Errorf("%w: %v", ErrUnrecognizedToken, err)
	}
	env.ID = strings.TrimSpace(env.ID)
	ref := TokenRef{ID: env.ID, Raw: raw}

	switch {
	case env.ID == SentinelPaymentMethod:
		pm := strings.TrimSpace(env.PaymentMethodID)
		if pm == "" {
			return TokenRef{}, ErrMissingPaymentMethod
		}
		ref.Kind, ref.ID = TokenPaymentMethod, pm
	case env.ID == SentinelEmbeddedCard || env.HasCardData:
		ref.Kind, ref.Card = TokenEmbeddedCard, env.Card
	case env.IsTestToken && env.ID != "":
		ref.Kind = TokenTest
	default:
		kind, ok := prefixKind(env.ID)
		if !ok {
			return TokenRef{}, fmt.Errorf("%w: id %q", ErrUnrecognizedToken, truncateID(env.ID))
		}
		ref.Kind = kind
	}
	return ref, nil
}

func prefixKind(id string) (TokenKind, bool) {
	switch {
	case strings.HasPrefix(id, processorTokenPrefix) && len(id) > len(processorTokenPrefix):
		return TokenProcessor, true
	case strings.HasPrefix(id, paymentMethodPrefix) && len(id) > len(paymentMethodPrefix):
		return TokenPaymentMethod, true
	default:
		return "", false
	}
}

func truncateID(id string) string {
	if len(id) <= 6 {
		return id
	}
	return id[:6] + "..."
}
