package services

import (
	"context"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"

	"payment-simulator/internal/apperr"
	"payment-simulator/internal/logger"
	"payment-simulator/internal/models"
	"payment-simulator/internal/requestctx"
)

// ProcessorAPI is the part of the Stripe client the adapter calls.
type ProcessorAPI interface {
	NewPaymentMethod(ctx context.Context, params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error)
	NewPaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeAPI struct {
	sc *client.API
}

// NewStripeAPI returns a ProcessorAPI backed by the Stripe client.
func NewStripeAPI(secretKey string) ProcessorAPI {
	return &stripeAPI{sc: client.New(secretKey, nil)}
}

func (a *stripeAPI) NewPaymentMethod(ctx context.Context, params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error) {
	params.Context = ctx
	return a.sc.PaymentMethods.New(params)
}

func (a *stripeAPI) NewPaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	params.Context = ctx
	return a.sc.PaymentIntents.New(params)
}

// StripeService sends real transactions straight to the processor without a
// browser. Processor errors are final and never retried here.
type StripeService struct {
	api      ProcessorAPI
	currency string
	log      *logger.Logger
	clock    clockz.Clock
}

func NewStripeService(api ProcessorAPI, currency string, log *logger.Logger) *StripeService {
	if currency == "" {
		currency = "usd"
	}
	return &StripeService{api: api, currency: currency, log: log, clock: clockz.RealClock}
}

func (s *StripeService) Configured() bool {
	return s != nil && s.api != nil
}

// ChargeCard tokenizes raw card data into a payment method and confirms a
// payment intent against it.
func (s *StripeService) ChargeCard(ctx context.Context, card *models.CardInfo, info models.PaymentInfo) (*models.PaymentResult, error) {
	return s.chargeCard(ctx, models.ModeRealDirect, card, info)
}

// ChargeToken resolves a client token and charges it. The token is parsed
// again here so nothing unrecognized reaches the processor.
func (s *StripeService) ChargeToken(ctx context.Context, rawToken, cardholderName string, info models.PaymentInfo) (*models.PaymentResult, error) {
	if !s.Configured() {
		return nil, apperr.New(apperr.KindProcessorNotConfigured, "Payment processor is not configured")
	}

	ref, err := models.ParseToken(rawToken)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidTokenFormat, "Invalid token format", err)
	}
	s.log.LogPayment(ctx, "REAL_TOKEN", "processing token payment",
		zap.String("tokenKind", string(ref.Kind)),
		zap.String("token", ref.Raw))

	switch ref.Kind {
	case models.TokenPaymentMethod:
		return s.confirmIntent(ctx, models.ModeRealToken, ref.ID, nil, cardholderName, info)

	case models.TokenProcessor, models.TokenTest:
		pm, err := s.api.NewPaymentMethod(ctx, &stripe.PaymentMethodParams{
			Type:           stripe.String(string(stripe.PaymentMethodTypeCard)),
			Card:           &stripe.PaymentMethodCardParams{Token: stripe.String(ref.ID)},
			BillingDetails: billingDetails(cardholderName, ""),
		})
		if err != nil {
			return nil, s.processorError(ctx, "create payment method from token", err)
		}
		return s.confirmIntent(ctx, models.ModeRealToken, pm.ID, pm, cardholderName, info)

	case models.TokenEmbeddedCard:
		if ref.Card == nil {
			return nil, apperr.Wrap(apperr.KindInvalidTokenFormat, "Invalid token format", models.ErrMissingEmbeddedCard)
		}
		if err := ValidateCard(ref.Card); err != nil {
			return nil, err
		}
		return s.chargeCard(ctx, models.ModeRealToken, ref.Card, info)

	default:
		return nil, apperr.New(apperr.KindInvalidTokenFormat, "Invalid token format")
	}
}

func (s *StripeService) chargeCard(ctx context.Context, mode models.Mode, card *models.CardInfo, info models.PaymentInfo) (*models.PaymentResult, error) {
	if !s.Configured() {
		return nil, apperr.New(apperr.KindProcessorNotConfigured, "Payment processor is not configured")
	}
	if card == nil {
		return nil, apperr.New(apperr.KindMissingField, "cardInfo is required")
	}

	s.log.LogPayment(ctx, "REAL_CARD", "creating payment method from card",
		zap.String("last4", logger.Last4(card.Number)))

	pm, err := s.api.NewPaymentMethod(ctx, &stripe.PaymentMethodParams{
		Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
		Card: &stripe.PaymentMethodCardParams{
			Number:   stripe.String(card.Digits()),
			ExpMonth: stripe.Int64(card.ExpMonth.Int64()),
			ExpYear:  stripe.Int64(card.ExpYear.Int64()),
			CVC:      stripe.String(card.CVV),
		},
		BillingDetails: billingDetails(card.Name, card.PostalCode),
	})
	if err != nil {
		return nil, s.processorError(ctx, "create payment method", err)
	}
	s.log.LogPayment(ctx, "REAL_CARD", "payment method created", zap.String("paymentMethodId", pm.ID))

	return s.confirmIntent(ctx, mode, pm.ID, pm, card.Name, info)
}

func (s *StripeService) confirmIntent(ctx context.Context, mode models.Mode, paymentMethodID string, pm *stripe.PaymentMethod, cardholderName string, info models.PaymentInfo) (*models.PaymentResult, error) {
	amount := MinorUnits(info)
	requestID := requestctx.RequestID(ctx)

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amount),
		Currency:           stripe.String(s.currency),
		PaymentMethod:      stripe.String(paymentMethodID),
		Description:        stripe.String(Description(info)),
		Confirm:            stripe.Bool(true),
		PaymentMethodTypes: []*string{stripe.String(string(stripe.PaymentMethodTypeCard))},
	}
	if requestID != "" {
		params.AddMetadata("request_id", requestID)
	}

	s.log.LogPayment(ctx, "REAL_INTENT", "creating payment intent",
		zap.Int64("amount", amount),
		zap.String("currency", s.currency))

	pi, err := s.api.NewPaymentIntent(ctx, params)
	if err != nil {
		return nil, s.processorError(ctx, "create payment intent", err)
	}
	s.log.LogPayment(ctx, "REAL_INTENT", "payment intent confirmed",
		zap.String("paymentIntentId", pi.ID),
		zap.String("status", string(pi.Status)))

	success := &models.PaymentSuccess{
		PaymentIntentID: pi.ID,
		PaymentMethodID: paymentMethodID,
		Mode:            mode,
		Status:          string(pi.Status),
		Amount:          pi.Amount,
		Currency:        string(pi.Currency),
		CardholderName:  cardholderName,
		RealTransaction: true,
		Timestamp:       s.clock.Now().UTC(),
		RequestID:       requestID,
	}
	if success.Amount == 0 {
		success.Amount = amount
	}
	if success.Currency == "" {
		success.Currency = s.currency
	}
	if pm != nil && pm.Card != nil {
		success.Last4 = pm.Card.Last4
		success.Brand = string(pm.Card.Brand)
	}
	return &models.PaymentResult{Success: success}, nil
}

func (s *StripeService) processorError(ctx context.Context, op string, err error) error {
	c := apperr.Classify(err)
	s.log.LogError(ctx, "processor call failed: "+op, err,
		zap.String("errorType", string(c.Type)),
		zap.Bool("realTransaction", true))

	e := apperr.Wrap(apperr.KindProcessorAPI, c.Message, err)
	e.RealTransaction = true
	return e
}

func billingDetails(name, postalCode string) *stripe.PaymentMethodBillingDetailsParams {
	if name == "" && postalCode == "" {
		return nil
	}
	d := &stripe.PaymentMethodBillingDetailsParams{}
	if name != "" {
		d.Name = stripe.String(name)
	}
	if postalCode != "" {
		d.Address = &stripe.AddressParams{PostalCode: stripe.String(postalCode)}
	}
	return d
}
