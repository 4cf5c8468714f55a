package services

import (
	"strings"

	"github.com/shopspring/decimal"

	"payment-simulator/internal/apperr"
	"payment-simulator/internal/models"
)

const (
	minCardDigits = 13
	maxCardDigits = 19
)

// Requirements describes what a route demands beyond the base shape.
type Requirements struct {
	// Browser requires a browserEnv with a user agent and viewport.
	Browser bool
	// CardOnly rejects token payloads.
	CardOnly bool
	// Amount requires paymentInfo.amount to be present and positive.
	Amount bool
}

// Validator classifies a payment request into exactly one mode.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate decodes the request into a tagged ValidatedPayment. Token and card
// payloads are mutually exclusive; anything else is rejected.
func (v *Validator) Validate(req *models.PaymentRequest, reqs Requirements) (*models.ValidatedPayment, error) {
	if req == nil {
		return nil, apperr.New(apperr.KindInvalidRequestShape, "Request body is required")
	}

	hasToken := strings.TrimSpace(req.StripeToken) != ""
	hasCard := req.CardInfo != nil

	switch {
	case hasToken && hasCard:
		return nil, apperr.New(apperr.KindInvalidRequestShape, "Provide either stripeToken or cardInfo, not both")
	case !hasToken && !hasCard:
		if reqs.CardOnly {
			return nil, apperr.New(apperr.KindInvalidRequestShape, "cardInfo is required")
		}
		return nil, apperr.New(apperr.KindInvalidRequestShape, "Either stripeToken or cardInfo is required")
	case hasToken && reqs.CardOnly:
		return nil, apperr.New(apperr.KindInvalidRequestShape, "This endpoint accepts cardInfo only")
	}

	out := &models.ValidatedPayment{CardholderName: strings.TrimSpace(req.CardholderName)}

	if reqs.Browser {
		env, err := validateBrowserEnv(req.BrowserEnv)
		if err != nil {
			return nil, err
		}
		out.Env = env
	} else if req.BrowserEnv != nil {
		out.Env = *req.BrowserEnv
	}

	if req.PaymentInfo != nil {
		out.Payment = *req.PaymentInfo
	}
	if err := validateAmount(out.Payment, reqs.Amount); err != nil {
		return nil, err
	}

	if hasToken {
		ref, err := models.ParseToken(req.StripeToken)
		if err != nil {
			e := apperr.Wrap(apperr.KindInvalidTokenFormat, "Invalid token format", err)
			e.Detail = err.Error()
			return nil, e
		}
		out.Mode = models.ModeToken
		out.Token = &ref
		return out, nil
	}

	if err := ValidateCard(req.CardInfo); err != nil {
		return nil, err
	}
	out.Mode = models.ModeDirect
	out.Card = req.CardInfo
	if out.CardholderName == "" {
		out.CardholderName = strings.TrimSpace(req.CardInfo.Name)
	}
	return out, nil
}

func validateBrowserEnv(env *models.BrowserEnv) (models.BrowserEnv, error) {
	if env == nil {
		return models.BrowserEnv{}, apperr.New(apperr.KindInvalidRequestShape, "browserEnv is required")
	}
	if strings.TrimSpace(env.UserAgent) == "" {
		return models.BrowserEnv{}, apperr.New(apperr.KindInvalidRequestShape, "browserEnv.userAgent is required")
	}
	if env.Viewport == nil {
		return models.BrowserEnv{}, apperr.New(apperr.KindInvalidRequestShape, "browserEnv.viewport is required")
	}
	if env.Viewport.Width <= 0 || env.Viewport.Height <= 0 {
		return models.BrowserEnv{}, apperr.New(apperr.KindInvalidRequestShape, "browserEnv.viewport width and height must be positive")
	}
	return *env, nil
}

func validateAmount(p models.PaymentInfo, required bool) error {
	if p.Amount == nil {
		if required {
			e := apperr.New(apperr.KindMissingField, "paymentInfo.amount is required")
			e.Fields = []string{"amount"}
			return e
		}
		return nil
	}
	if !p.Amount.IsPositive() {
		return apperr.New(apperr.KindInvalidRequestShape, "paymentInfo.amount must be positive")
	}
	// Checked in minor units so sub-cent amounts cannot round to zero and
	// large ones cannot overflow int64.
	cents := minorUnitsOf(*p.Amount)
	if cents.LessThan(decimal.NewFromInt(1)) {
		return apperr.New(apperr.KindInvalidRequestShape, "paymentInfo.amount must be at least 0.01")
	}
	if cents.GreaterThan(maxCents) {
		return apperr.Newf(apperr.KindInvalidRequestShape, "paymentInfo.amount must not exceed %s", maxCents.Shift(-2).StringFixed(2))
	}
	return nil
}

// ValidateCard checks that every required card field is present, listing all
// missing fields at once, then checks the number length.
func ValidateCard(card *models.CardInfo) error {
	var missing []string
	if strings.TrimSpace(card.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(card.Number) == "" {
		missing = append(missing, "number")
	}
	if card.ExpMonth == "" {
		missing = append(missing, "expMonth")
	}
	if card.ExpYear == "" {
		missing = append(missing, "expYear")
	}
	if strings.TrimSpace(card.CVV) == "" {
		missing = append(missing, "cvv")
	}
	if len(missing) > 0 {
		e := apperr.New(apperr.KindMissingField, "Missing required card fields: "+strings.Join(missing, ", "))
		e.Fields = missing
		return e
	}

	digits := card.Digits()
	for _, r := range digits {
		if r < '0' || r > '9' {
			return apperr.New(apperr.KindInvalidCardNumber, "Invalid card number: digits only")
		}
	}
	if n := len(digits); n < minCardDigits || n > maxCardDigits {
		return apperr.Newf(apperr.KindInvalidCardNumber, "Invalid card number length: expected %d-%d digits, got %d", minCardDigits, maxCardDigits, n)
	}
	return nil
}
