package services

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-simulator/internal/apperr"
	"payment-simulator/internal/models"
)

func testEnv() *models.BrowserEnv {
	return &models.BrowserEnv{UserAgent: "UA", Viewport: &models.Viewport{Width: 1280, Height: 800}}
}

func testCard() *models.CardInfo {
	return &models.CardInfo{Name: "Jane Doe", Number: "4242424242424242", ExpMonth: "12", ExpYear: "2030", CVV: "123"}
}

var browserReqs = Requirements{Browser: true}

func TestValidateShapeExclusivity(t *testing.T) {
	v := NewValidator()

	_, err := v.Validate(&models.PaymentRequest{StripeToken: "tok_visa", CardInfo: testCard(), BrowserEnv: testEnv()}, browserReqs)
	assert.ErrorIs(t, err, apperr.InvalidRequestShape)

	_, err = v.Validate(&models.PaymentRequest{BrowserEnv: testEnv()}, browserReqs)
	assert.ErrorIs(t, err, apperr.InvalidRequestShape)

	_, err = v.Validate(&models.PaymentRequest{StripeToken: "   ", BrowserEnv: testEnv()}, browserReqs)
	assert.ErrorIs(t, err, apperr.InvalidRequestShape)

	_, err = v.Validate(nil, browserReqs)
	assert.ErrorIs(t, err, apperr.InvalidRequestShape)
}

func TestValidateBrowserEnv(t *testing.T) {
	v := NewValidator()

	for _, env := range []*models.BrowserEnv{
		nil,
		{Viewport: &models.Viewport{Width: 1, Height: 1}},
		{UserAgent: "UA"},
		{UserAgent: "UA", Viewport: &models.Viewport{}},
	} {
		_, err := v.Validate(&models.PaymentRequest{CardInfo: testCard(), BrowserEnv: env}, browserReqs)
		assert.ErrorIs(t, err, apperr.InvalidRequestShape)
	}

	got, err := v.Validate(&models.PaymentRequest{CardInfo: testCard()}, Requirements{})
	require.NoError(t, err)
	assert.Equal(t, models.ModeDirect, got.Mode)
}

func TestValidateCardNumberLength(t *testing.T) {
	v := NewValidator()

	for n := 1; n <= 25; n++ {
		card := testCard()
		card.Number = strings.Repeat("4", n)
		got, err := v.Validate(&models.PaymentRequest{CardInfo: card, BrowserEnv: testEnv()}, browserReqs)
		if n >= 13 && n <= 19 {
			require.NoError(t, err, "length %d", n)
			assert.Equal(t, models.ModeDirect, got.Mode)
			continue
		}
		assert.ErrorIs(t, err, apperr.InvalidCardNumber, "length %d", n)
	}

	card := testCard()
	card.Number = "4242 4242 4242 4242"
	_, err := v.Validate(&models.PaymentRequest{CardInfo: card, BrowserEnv: testEnv()}, browserReqs)
	assert.NoError(t, err)

	card.Number = "4242abcd42424242"
	_, err = v.Validate(&models.PaymentRequest{CardInfo: card, BrowserEnv: testEnv()}, browserReqs)
	assert.ErrorIs(t, err, apperr.InvalidCardNumber)
}

func TestValidateListsEveryMissingField(t *testing.T) {
	v := NewValidator()

	_, err := v.Validate(&models.PaymentRequest{CardInfo: &models.CardInfo{Number: "4242424242424242"}, BrowserEnv: testEnv()}, browserReqs)
	require.ErrorIs(t, err, apperr.MissingField)

	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, []string{"name", "expMonth", "expYear", "cvv"}, e.Fields)
	assert.Contains(t, e.Message, "name, expMonth, expYear, cvv")
}

func TestValidateTokens(t *testing.T) {
	v := NewValidator()

	for _, tok := range []string{"tok_visa", "pm_card_visa", `{"id":"pm_test_123"}`, `{"id":"embedded_card"}`, `{"id":"x","isTestToken":true}`} {
		got, err := v.Validate(&models.PaymentRequest{StripeToken: tok, BrowserEnv: testEnv()}, browserReqs)
		require.NoError(t, err, tok)
		assert.Equal(t, models.ModeToken, got.Mode)
		require.NotNil(t, got.Token)
		assert.Nil(t, got.Card)
	}

	_, err := v.Validate(&models.PaymentRequest{StripeToken: "{oops", BrowserEnv: testEnv()}, browserReqs)
	require.ErrorIs(t, err, apperr.InvalidTokenFormat)
	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.NotEmpty(t, e.Detail)

	_, err = v.Validate(&models.PaymentRequest{StripeToken: "card_123", BrowserEnv: testEnv()}, browserReqs)
	assert.ErrorIs(t, err, apperr.InvalidTokenFormat)
}

func TestValidateCardOnlyAndAmount(t *testing.T) {
	v := NewValidator()
	reqs := Requirements{Browser: true, CardOnly: true, Amount: true}

	_, err := v.Validate(&models.PaymentRequest{StripeToken: "tok_visa", BrowserEnv: testEnv()}, reqs)
	assert.ErrorIs(t, err, apperr.InvalidRequestShape)

	_, err = v.Validate(&models.PaymentRequest{CardInfo: testCard(), BrowserEnv: testEnv()}, reqs)
	assert.ErrorIs(t, err, apperr.MissingField)

	zero := decimal.Zero
	_, err = v.Validate(&models.PaymentRequest{CardInfo: testCard(), BrowserEnv: testEnv(), PaymentInfo: &models.PaymentInfo{Amount: &zero}}, reqs)
	assert.ErrorIs(t, err, apperr.InvalidRequestShape)

	amount := decimal.RequireFromString("12.34")
	got, err := v.Validate(&models.PaymentRequest{CardInfo: testCard(), BrowserEnv: testEnv(), PaymentInfo: &models.PaymentInfo{Amount: &amount}}, reqs)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", got.CardholderName)
	assert.True(t, got.Payment.Amount.Equal(amount))
}

func TestValidateAmountBoundsInMinorUnits(t *testing.T) {
	v := NewValidator()
	reqs := Requirements{Browser: true, CardOnly: true, Amount: true}

	tests := []struct {
		amount string
		ok     bool
	}{
		{"0.001", false},
		{"0.004", false},
		{"0.005", true},
		{"0.01", true},
		{"999999.99", true},
		{"1000000.00", false},
		{"92233720368547758.08", false},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			amount := decimal.RequireFromString(tt.amount)
			got, err := v.Validate(&models.PaymentRequest{CardInfo: testCard(), BrowserEnv: testEnv(), PaymentInfo: &models.PaymentInfo{Amount: &amount}}, reqs)
			if !tt.ok {
				assert.ErrorIs(t, err, apperr.InvalidRequestShape)
				return
			}
			require.NoError(t, err)
			cents := MinorUnits(got.Payment)
			assert.GreaterOrEqual(t, cents, int64(1))
			assert.LessOrEqual(t, cents, int64(MaxAmountCents))
		})
	}
}
