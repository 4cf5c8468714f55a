package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTokenAccepted(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		kind   TokenKind
		wantID string
	}{
		{"raw processor token", "tok_visa", TokenProcessor, "tok_visa"},
		{"raw payment method", "pm_card_visa", TokenPaymentMethod, "pm_card_visa"},
		{"envelope payment method", `{"id":"pm_test_123"}`, TokenPaymentMethod, "pm_test_123"},
		{"envelope processor token", `{"id":"tok_123","card":{"last4":"4242"}}`, TokenProcessor, "tok_123"},
		{"payment method sentinel", `{"id":"payment_method","paymentMethodId":"pm_abc"}`, TokenPaymentMethod, "pm_abc"},
		{"embedded card sentinel", `{"id":"embedded_card","card":{"number":"4242424242424242"}}`, TokenEmbeddedCard, "embedded_card"},
		{"card data flag", `{"id":"anything","hasCardData":true}`, TokenEmbeddedCard, "anything"},
		{"test token flag", `{"id":"test_tok_1","isTestToken":true}`, TokenTest, "test_tok_1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := ParseToken(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ref.Kind)
			assert.Equal(t, tt.wantID, ref.ID)
		})
	}
}

func TestParseTokenRejected(t *testing.T) {
	for _, raw := range []string{
		"",
		"   ",
		"tok_",
		"sk_live_abc",
		"not json",
		`{"id":"cus_123"}`,
		`{"id":""}`,
		`{"id":"payment_method"}`,
		`[1,2,3]`,
	} {
		_, err := ParseToken(raw)
		assert.Error(t, err, "raw %q", raw)
	}

	_, err := ParseToken("{broken")
	assert.ErrorIs(t, err, ErrUnrecognizedToken)
	assert.Contains(t, err.Error(), "invalid character")
}

func TestEmbeddedCardCarriesData(t *testing.T) {
	ref, err := ParseToken(`{"id":"embedded_card","card":{"name":"Jane","number":"4242424242424242","expMonth":12,"expYear":"2030","cvv":"123"}}`)
	require.NoError(t, err)
	require.NotNil(t, ref.Card)
	assert.Equal(t, "12", ref.Card.ExpMonth.String())
	assert.Equal(t, int64(2030), ref.Card.ExpYear.Int64())
	assert.Equal(t, "1230", ref.Card.ExpiryMMYY())
}

func TestFlexString(t *testing.T) {
	var c CardInfo
	require.NoError(t, json.Unmarshal([]byte(`{"expMonth":"3","expYear":2031}`), &c))
	assert.Equal(t, "0331", c.ExpiryMMYY())

	assert.Error(t, json.Unmarshal([]byte(`{"expMonth":{}}`), &c))
}
