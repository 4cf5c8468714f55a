package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"payment-simulator/internal/apperr"
	"payment-simulator/internal/browser"
	"payment-simulator/internal/logger"
	"payment-simulator/internal/metrics"
	"payment-simulator/internal/models"
	"payment-simulator/internal/requestctx"
)

// EventPublisher receives one event per finished payment request.
type EventPublisher interface {
	PublishPaymentEvent(event *models.PaymentEvent) error
}

// PaymentService routes a validated request to the browser-mediated or the
// server-direct execution path.
type PaymentService struct {
	sessions     *browser.Manager
	orchestrator *Orchestrator
	processor    *StripeService
	events       EventPublisher
	log          *logger.Logger
	metrics      *metrics.Metrics
}

func NewPaymentService(sessions *browser.Manager, orchestrator *Orchestrator, processor *StripeService, events EventPublisher, log *logger.Logger, m *metrics.Metrics) *PaymentService {
	return &PaymentService{
		sessions:     sessions,
		orchestrator: orchestrator,
		processor:    processor,
		events:       events,
		log:          log,
		metrics:      m,
	}
}

// Simulate drives the checkout page in the request's mode. The browser
// session is released before Simulate returns.
func (s *PaymentService) Simulate(ctx context.Context, v *models.ValidatedPayment) (*models.PaymentResult, error) {
	res, err := s.viaBrowser(ctx, v)
	s.finish(ctx, v.Mode, false, res, err)
	return res, err
}

// CardToPayment runs a direct-mode browser payment that is flagged as real.
func (s *PaymentService) CardToPayment(ctx context.Context, v *models.ValidatedPayment) (*models.PaymentResult, error) {
	if v.Mode != models.ModeDirect {
		return nil, apperr.New(apperr.KindInvalidRequestShape, "cardInfo is required")
	}
	res, err := s.viaBrowser(ctx, v)
	if res != nil {
		if res.Success != nil {
			res.Success.RealTransaction = true
		}
		if res.Failure != nil {
			res.Failure.RealTransaction = true
		}
	}
	var e *apperr.Error
	if errors.As(err, &e) {
		e.RealTransaction = true
	}
	s.finish(ctx, v.Mode, true, res, err)
	return res, err
}

// RealPayment sends the request straight to the processor.
func (s *PaymentService) RealPayment(ctx context.Context, v *models.ValidatedPayment) (*models.PaymentResult, error) {
	var (
		res  *models.PaymentResult
		err  error
		mode models.Mode
	)
	switch v.Mode {
	case models.ModeToken:
		mode = models.ModeRealToken
		res, err = s.processor.ChargeToken(ctx, v.Token.Raw, v.CardholderName, v.Payment)
	case models.ModeDirect:
		mode = models.ModeRealDirect
		res, err = s.processor.ChargeCard(ctx, v.Card, v.Payment)
	default:
		return nil, apperr.New(apperr.KindInvalidRequestShape, "Unsupported payment mode")
	}
	s.finish(ctx, mode, true, res, err)
	return res, err
}

func (s *PaymentService) viaBrowser(ctx context.Context, v *models.ValidatedPayment) (*models.PaymentResult, error) {
	env := browser.Environment{UserAgent: v.Env.UserAgent}
	if v.Env.Viewport != nil {
		env.Width, env.Height = v.Env.Viewport.Width, v.Env.Viewport.Height
	}

	var res *models.PaymentResult
	err := s.sessions.WithSession(ctx, env, func(ctx context.Context, sess browser.Session) error {
		var err error
		switch v.Mode {
		case models.ModeToken:
			res, err = s.orchestrator.RunTokenMode(ctx, sess, v.Token, v.CardholderName, v.Payment)
		case models.ModeDirect:
			res, err = s.orchestrator.RunDirectMode(ctx, sess, v.Card, v.Payment)
		default:
			err = apperr.New(apperr.KindInvalidRequestShape, "Unsupported payment mode")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *PaymentService) finish(ctx context.Context, mode models.Mode, real bool, res *models.PaymentResult, err error) {
	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
	case res != nil && res.Failure != nil:
		outcome = "declined"
	}
	s.metrics.Payment(string(mode), outcome)

	if s.events == nil {
		return
	}
	event := &models.PaymentEvent{
		Type:            "payment." + outcome,
		RequestID:       requestctx.RequestID(ctx),
		Mode:            mode,
		Outcome:         outcome,
		RealTransaction: real,
		Timestamp:       time.Now().UTC(),
	}
	if res != nil && res.Success != nil {
		event.PaymentIntentID = res.Success.PaymentIntentID
		event.Amount = res.Success.Amount
		event.Currency = res.Success.Currency
	}
	if err != nil {
		event.ErrorType = string(apperr.Classify(err).Type)
	}
	if pubErr := s.events.PublishPaymentEvent(event); pubErr != nil {
		s.log.Warn("KAFKA", "payment event publish failed", zap.Error(pubErr))
	}
}
