package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"

	"payment-simulator/internal/apperr"
	"payment-simulator/internal/browser"
	"payment-simulator/internal/logger"
	"payment-simulator/internal/metrics"
	"payment-simulator/internal/models"
	"payment-simulator/internal/requestctx"
	"payment-simulator/internal/retry"
)

// PageContract names the selectors and page actions of the checkout page.
type PageContract struct {
	CheckoutURL         string
	FormSelector        string
	NameSelector        string
	AmountSelector      string
	DescriptionSelector string

	CardNumberSelector string
	ExpirySelector     string
	CVCSelector        string
	PostalSelector     string

	SubmitAction          string
	SubmitWithTokenAction string
}

func DefaultPageContract(checkoutURL string) PageContract {
	return PageContract{
		CheckoutURL:           checkoutURL,
		FormSelector:          "#payment-form",
		NameSelector:          "#card-name",
		AmountSelector:        "#amount",
		DescriptionSelector:   "#description",
		CardNumberSelector:    `input[name="cardnumber"]`,
		ExpirySelector:        `input[name="exp-date"]`,
		CVCSelector:           `input[name="cvc"]`,
		PostalSelector:        `input[name="postal"]`,
		SubmitAction:          "window.triggerStripePayment",
		SubmitWithTokenAction: "window.triggerStripePaymentWithToken",
	}
}

type OrchestratorConfig struct {
	Page              PageContract
	Currency          string
	NavigationTimeout time.Duration
	FormTimeout       time.Duration
	SubmitTimeout     time.Duration
	SubmitAttempts    int
	FillAttempts      int
	BaseDelay         time.Duration
	Clock             clockz.Clock
}

// Orchestrator drives a browser session through the checkout page in token
// or direct mode.
type Orchestrator struct {
	cfg     OrchestratorConfig
	frames  browser.FrameLocator
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewOrchestrator(cfg OrchestratorConfig, frames browser.FrameLocator, log *logger.Logger, m *metrics.Metrics) *Orchestrator {
	if cfg.SubmitAttempts < 1 {
		cfg.SubmitAttempts = 3
	}
	if cfg.FillAttempts < 1 {
		cfg.FillAttempts = 2
	}
	if cfg.Clock == nil {
		cfg.Clock = clockz.RealClock
	}
	return &Orchestrator{cfg: cfg, frames: frames, log: log, metrics: m}
}

// RunTokenMode submits an already tokenized card through the page's token
// action. No frame interaction is needed.
func (o *Orchestrator) RunTokenMode(ctx context.Context, s browser.Session, token *models.TokenRef, cardholderName string, info models.PaymentInfo) (*models.PaymentResult, error) {
	if token == nil {
		return nil, apperr.New(apperr.KindInvalidTokenFormat, "Token is required")
	}
	o.log.LogPayment(ctx, "TOKEN_MODE", "starting token mode",
		zap.String("tokenKind", string(token.Kind)),
		zap.String("token", token.Raw))

	if err := o.preparePage(ctx, s, cardholderName, info); err != nil {
		return nil, err
	}

	expr := fmt.Sprintf("%s(%s, %s)", o.cfg.Page.SubmitWithTokenAction, jsString(token.Raw), jsString(cardholderName))
	outcome, err := o.submit(ctx, s, expr)
	if err != nil {
		return nil, err
	}
	return o.result(ctx, models.ModeToken, outcome, cardholderName, "", info), nil
}

// RunDirectMode types the card into the widget frame and submits it.
func (o *Orchestrator) RunDirectMode(ctx context.Context, s browser.Session, card *models.CardInfo, info models.PaymentInfo) (*models.PaymentResult, error) {
	if card == nil {
		return nil, apperr.New(apperr.KindMissingField, "cardInfo is required")
	}
	last4 := logger.Last4(card.Number)
	o.log.LogPayment(ctx, "DIRECT_MODE", "starting direct mode",
		zap.String("last4", last4),
		zap.Bool("hasPostalCode", card.PostalCode != ""))

	if err := o.preparePage(ctx, s, card.Name, info); err != nil {
		return nil, err
	}

	frame, err := o.frames.LocateEmbeddedCardFrame(ctx, s)
	if err != nil {
		return nil, err
	}
	o.log.LogPayment(ctx, "FRAME_FOUND", "card widget frame located")

	err = retry.Do(ctx, o.withRetryLog(ctx, o.policy("card_fields", o.cfg.FillAttempts)), func(ctx context.Context, _ int) error {
		return o.fillCard(ctx, s, frame, card)
	})
	if err != nil {
		return nil, o.stepError("Failed to fill card fields", err)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"amount":      MinorUnits(info),
		"description": Description(info),
	})
	outcome, err := o.submit(ctx, s, fmt.Sprintf("%s(%s)", o.cfg.Page.SubmitAction, payload))
	if err != nil {
		return nil, err
	}
	return o.result(ctx, models.ModeDirect, outcome, card.Name, last4, info), nil
}

func (o *Orchestrator) policy(step string, attempts int) retry.Policy {
	return retry.Policy{
		Name:        step,
		MaxAttempts: attempts,
		BaseDelay:   o.cfg.BaseDelay,
		Clock:       o.cfg.Clock,
	}
}

// withRetryLog adds the per-request retry hook to p.
func (o *Orchestrator) withRetryLog(ctx context.Context, p retry.Policy) retry.Policy {
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		o.metrics.StepRetried(p.Name)
		o.log.LogPayment(ctx, "RETRY", "retrying "+p.Name,
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", p.MaxAttempts),
			zap.Int64("delayMs", delay.Milliseconds()),
			zap.Error(err))
	}
	return p
}

func (o *Orchestrator) preparePage(ctx context.Context, s browser.Session, cardholderName string, info models.PaymentInfo) error {
	page := o.cfg.Page

	navCtx, cancel := withOptionalTimeout(ctx, o.cfg.NavigationTimeout)
	err := s.Navigate(navCtx, page.CheckoutURL)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperr.Wrap(apperr.KindTimeout, "Checkout page load timed out", err)
		}
		return apperr.Wrap(apperr.KindBrowserAutomation, "Failed to load checkout page", err)
	}

	formCtx, cancel := withOptionalTimeout(ctx, o.cfg.FormTimeout)
	err = s.WaitForSelector(formCtx, page.FormSelector)
	cancel()
	if err != nil {
		return apperr.Wrap(apperr.KindFormNotFound, "Payment form not found on checkout page", err)
	}
	o.log.LogPayment(ctx, "PAGE_READY", "checkout form present")

	err = retry.Do(ctx, o.withRetryLog(ctx, o.policy("page_fields", o.cfg.FillAttempts)), func(ctx context.Context, _ int) error {
		if info.Amount != nil {
			if err := o.setIfPresent(ctx, s, page.AmountSelector, info.Amount.StringFixed(2)); err != nil {
				return err
			}
		}
		if info.Description != "" {
			if err := o.setIfPresent(ctx, s, page.DescriptionSelector, info.Description); err != nil {
				return err
			}
		}
		if cardholderName != "" {
			return o.setIfPresent(ctx, s, page.NameSelector, cardholderName)
		}
		return nil
	})
	if err != nil {
		return o.stepError("Failed to fill payment form", err)
	}
	return nil
}

func (o *Orchestrator) setIfPresent(ctx context.Context, s browser.Session, selector, value string) error {
	ok, err := s.Exists(ctx, selector)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return s.SetValue(ctx, selector, value)
}

func (o *Orchestrator) fillCard(ctx context.Context, s browser.Session, frame browser.Frame, card *models.CardInfo) error {
	page := o.cfg.Page
	if err := s.TypeInFrame(ctx, frame, page.CardNumberSelector, card.Digits()); err != nil {
		return fmt.Errorf("card number: %w", err)
	}
	if err := s.TypeInFrame(ctx, frame, page.ExpirySelector, card.ExpiryMMYY()); err != nil {
		return fmt.Errorf("expiry: %w", err)
	}
	if err := s.TypeInFrame(ctx, frame, page.CVCSelector, card.CVV); err != nil {
		return fmt.Errorf("cvc: %w", err)
	}
	if card.PostalCode != "" {
		if err := s.TypeInFrame(ctx, frame, page.PostalSelector, card.PostalCode); err != nil {
			return fmt.Errorf("postal code: %w", err)
		}
	}
	return nil
}

// submit invokes a page action with retry. Any outcome the page returns,
// including a decline, is final; only failures to obtain one are retried.
func (o *Orchestrator) submit(ctx context.Context, s browser.Session, expr string) (*models.WidgetOutcome, error) {
	policy := o.withRetryLog(ctx, o.policy("submit", o.cfg.SubmitAttempts))

	outcome, err := retry.DoValue(ctx, policy, func(ctx context.Context, attempt int) (*models.WidgetOutcome, error) {
		attemptCtx, cancel := withOptionalTimeout(ctx, o.cfg.SubmitTimeout)
		defer cancel()

		var out models.WidgetOutcome
		if err := s.Evaluate(attemptCtx, expr, &out); err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, apperr.Wrap(apperr.KindTimeout, "Payment submission timed out", err)
			}
			return nil, err
		}
		if out.Success == nil && out.Error == "" {
			return nil, errors.New("checkout page returned no result")
		}
		return &out, nil
	})
	if err != nil {
		return nil, o.stepError("Payment submission failed", err)
	}
	return outcome, nil
}

func (o *Orchestrator) result(ctx context.Context, mode models.Mode, outcome *models.WidgetOutcome, cardholderName, last4 string, info models.PaymentInfo) *models.PaymentResult {
	now := o.cfg.Clock.Now().UTC()
	requestID := requestctx.RequestID(ctx)

	if outcome.Success == nil {
		o.log.LogPayment(ctx, "DECLINED", "checkout page reported a failure",
			zap.Bool("declined", outcome.Declined),
			zap.String("code", outcome.Code),
			zap.String("declineCode", outcome.DeclineCode))
		msg := outcome.Error
		if outcome.DeclineCode != "" {
			msg = apperr.DeclineMessage(outcome.DeclineCode)
		}
		return &models.PaymentResult{Failure: &models.PaymentFailure{
			Error:       logger.ScrubString(msg),
			Type:        string(apperr.TypeStripe),
			Declined:    outcome.Declined || outcome.DeclineCode != "",
			Code:        outcome.Code,
			DeclineCode: outcome.DeclineCode,
			Timestamp:   now,
			RequestID:   requestID,
		}}
	}

	w := outcome.Success
	success := &models.PaymentSuccess{
		PaymentIntentID: w.PaymentIntentID,
		PaymentMethodID: w.PaymentMethodID,
		Mode:            mode,
		Status:          w.Status,
		Amount:          w.Amount,
		Currency:        w.Currency,
		Last4:           w.Last4,
		Brand:           w.Brand,
		CardholderName:  cardholderName,
		Timestamp:       now,
		RequestID:       requestID,
	}
	if success.Amount == 0 {
		success.Amount = MinorUnits(info)
	}
	if success.Currency == "" {
		success.Currency = o.cfg.Currency
	}
	if success.Last4 == "" {
		success.Last4 = last4
	}
	o.log.LogPayment(ctx, "SUCCESS", "payment simulation completed",
		zap.String("mode", string(mode)),
		zap.String("paymentIntentId", success.PaymentIntentID),
		zap.String("status", success.Status))
	return &models.PaymentResult{Success: success}
}

// stepError keeps typed errors and files everything else under browser
// automation.
func (o *Orchestrator) stepError(msg string, err error) error {
	if _, ok := apperr.KindOf(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindTimeout, msg, err)
	}
	return apperr.Wrap(apperr.KindBrowserAutomation, msg, err)
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
