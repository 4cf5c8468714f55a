package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"payment-simulator/internal/apperr"
	"payment-simulator/internal/logger"
	"payment-simulator/internal/models"
	"payment-simulator/internal/requestctx"
	"payment-simulator/internal/services"
	"payment-simulator/internal/utils"
)

const maxBodyBytes = 1 << 20

var (
	simulateReqs = services.Requirements{Browser: true}
	realReqs     = services.Requirements{}
	cardReqs     = services.Requirements{Browser: true, CardOnly: true, Amount: true}
)

type PaymentHandler struct {
	paymentService *services.PaymentService
	validator      *services.Validator
	log            *logger.Logger
	timeout        time.Duration
}

// NewPaymentHandler builds the payment endpoints. A zero timeout leaves the
// request context unbounded.
func NewPaymentHandler(paymentService *services.PaymentService, validator *services.Validator, log *logger.Logger, timeout time.Duration) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		validator:      validator,
		log:            log,
		timeout:        timeout,
	}
}

// SimulatePayment drives the checkout page in token or direct mode.
func (h *PaymentHandler) SimulatePayment(c *gin.Context) {
	v, ok := h.admit(c, simulateReqs, func(m models.Mode) models.Mode { return m })
	if !ok {
		return
	}
	h.run(c, v, h.paymentService.Simulate)
}

// RealPayment forwards the request to the processor API without a browser.
func (h *PaymentHandler) RealPayment(c *gin.Context) {
	v, ok := h.admit(c, realReqs, realMode)
	if !ok {
		return
	}
	h.run(c, v, h.paymentService.RealPayment)
}

// CardToPayment enters raw card data into the checkout page as a real
// transaction.
func (h *PaymentHandler) CardToPayment(c *gin.Context) {
	v, ok := h.admit(c, cardReqs, func(m models.Mode) models.Mode { return m })
	if !ok {
		return
	}
	h.run(c, v, h.paymentService.CardToPayment)
}

func realMode(m models.Mode) models.Mode {
	if m == models.ModeToken {
		return models.ModeRealToken
	}
	return models.ModeRealDirect
}

// admit decodes and validates the body and fixes the request's mode.
func (h *PaymentHandler) admit(c *gin.Context, reqs services.Requirements, logMode func(models.Mode) models.Mode) (*models.ValidatedPayment, bool) {
	ctx := c.Request.Context()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var req models.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		e := apperr.Wrap(apperr.KindInvalidRequestShape, "Invalid JSON request body", err)
		h.fail(c, "request rejected", e)
		return nil, false
	}

	v, err := h.validator.Validate(&req, reqs)
	if err != nil {
		h.fail(c, "validation failed", err)
		return nil, false
	}

	if state := requestctx.FromContext(ctx); state != nil {
		if err := state.SetMode(string(logMode(v.Mode))); err != nil {
			h.fail(c, "mode conflict", apperr.Wrap(apperr.KindModeAlreadyDetermined, "Payment mode already determined", err))
			return nil, false
		}
	}

	h.log.LogPayment(ctx, "VALIDATED", "payment request accepted",
		zap.String("mode", string(logMode(v.Mode))),
		zap.Bool("hasCardholderName", v.CardholderName != ""))
	return v, true
}

type runFunc func(ctx context.Context, v *models.ValidatedPayment) (*models.PaymentResult, error)

func (h *PaymentHandler) run(c *gin.Context, v *models.ValidatedPayment, fn runFunc) {
	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := fn(ctx, v)
	h.log.LogPerformance(ctx, "payment_request", time.Since(start), zap.String("mode", string(v.Mode)))
	if err != nil {
		h.fail(c, "payment processing failed", err)
		return
	}
	utils.WriteResult(c, res)
}

func (h *PaymentHandler) fail(c *gin.Context, msg string, err error) {
	class := apperr.Classify(err)
	h.log.LogError(c.Request.Context(), msg, err,
		zap.String("errorType", string(class.Type)),
		zap.String("severity", string(class.Severity)),
		zap.Bool("retryable", class.Retryable))
	utils.AbortWithError(c, err)
}
