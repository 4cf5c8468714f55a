package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"payment-simulator/internal/apperr"
	"payment-simulator/internal/browser"
	"payment-simulator/internal/browser/browsertest"
	"payment-simulator/internal/logger"
	"payment-simulator/internal/models"
	"payment-simulator/internal/requestctx"
)

const widgetFrame = "https://js.stripe.com/v3/elements-inner-card-abc.html"

func newTestOrchestrator(t *testing.T) (*Orchestrator, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	locator := browser.NewPrefixFrameLocator(30 * time.Millisecond)
	locator.Interval = 5 * time.Millisecond

	o := NewOrchestrator(OrchestratorConfig{
		Page:           DefaultPageContract("http://localhost:3000/payment-test.html"),
		Currency:       "usd",
		FormTimeout:    20 * time.Millisecond,
		SubmitAttempts: 3,
		FillAttempts:   2,
		Clock:          clockz.NewFakeClock(),
	}, locator, logger.NewWithCore(core, "test"), nil)
	return o, logs
}

func pageWithWidget() *browsertest.Session {
	s := browsertest.NewSession()
	s.FrameURLs = []string{"https://example.com/ads", widgetFrame}
	return s
}

func succeeded(id string) map[string]interface{} {
	return map[string]interface{}{"success": map[string]interface{}{"paymentIntentId": id, "status": "succeeded"}}
}

func requestCtx() context.Context {
	return requestctx.WithState(context.Background(), requestctx.New("req-42", "POST", "/api/simulate-payment", "", ""))
}

func TestRunDirectModeSuccess(t *testing.T) {
	o, logs := newTestOrchestrator(t)
	s := pageWithWidget()
	s.EvalResults = []interface{}{succeeded("pi_123")}

	card := testCard()
	card.PostalCode = "94107"
	res, err := o.RunDirectMode(requestCtx(), s, card, models.PaymentInfo{})

	require.NoError(t, err)
	require.NotNil(t, res.Success)
	assert.Equal(t, models.ModeDirect, res.Success.Mode)
	assert.Equal(t, "pi_123", res.Success.PaymentIntentID)
	assert.Equal(t, "4242", res.Success.Last4)
	assert.Equal(t, int64(DefaultAmountCents), res.Success.Amount)
	assert.Equal(t, "usd", res.Success.Currency)
	assert.Equal(t, "req-42", res.Success.RequestID)
	assert.False(t, res.Success.RealTransaction)

	assert.Equal(t, "4242424242424242", s.FrameTyped[`input[name="cardnumber"]`])
	assert.Equal(t, "1230", s.FrameTyped[`input[name="exp-date"]`])
	assert.Equal(t, "123", s.FrameTyped[`input[name="cvc"]`])
	assert.Equal(t, "94107", s.FrameTyped[`input[name="postal"]`])
	assert.Equal(t, "Jane Doe", s.Values["#card-name"])
	assert.Equal(t, 1, s.EvaluatedContaining("window.triggerStripePayment("))

	for _, entry := range logs.All() {
		assert.NotContains(t, fmt.Sprint(entry.ContextMap()), "4242424242424242")
	}
}

func TestRunTokenModeSkipsFrames(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	s := browsertest.NewSession()
	s.EvalResults = []interface{}{succeeded("pi_tok")}

	ref, err := models.ParseToken("tok_visa")
	require.NoError(t, err)
	amount := decimal.RequireFromString("12.34")

	res, err := o.RunTokenMode(requestCtx(), s, &ref, "Jane Doe", models.PaymentInfo{Amount: &amount, Description: "Tickets"})

	require.NoError(t, err)
	assert.Equal(t, models.ModeToken, res.Success.Mode)
	assert.Equal(t, int64(1234), res.Success.Amount)
	assert.Equal(t, 0, s.FrameCalls)
	assert.Equal(t, 1, s.EvaluatedContaining(`window.triggerStripePaymentWithToken("tok_visa", "Jane Doe")`))
	assert.Equal(t, "12.34", s.Values["#amount"])
	assert.Equal(t, "Tickets", s.Values["#description"])
}

func TestDeclineIsNotRetried(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	s := pageWithWidget()
	s.EvalResults = []interface{}{
		map[string]interface{}{"error": "Your card was declined.", "declined": true, "code": "card_declined", "declineCode": "insufficient_funds"},
		succeeded("pi_never"),
	}

	res, err := o.RunDirectMode(requestCtx(), s, testCard(), models.PaymentInfo{})

	require.NoError(t, err)
	require.Nil(t, res.Success)
	require.NotNil(t, res.Failure)
	assert.True(t, res.Failure.Declined)
	assert.Equal(t, "Your card has insufficient funds.", res.Failure.Error)
	assert.Equal(t, "stripe_error", res.Failure.Type)
	assert.Len(t, s.Evaluated, 1)
}

func TestSubmitRetriesTransientFailures(t *testing.T) {
	o, logs := newTestOrchestrator(t)
	s := pageWithWidget()
	s.EvalResults = []interface{}{
		errors.New("window.triggerStripePayment is not a function"),
		map[string]interface{}{},
		succeeded("pi_third"),
	}

	res, err := o.RunDirectMode(requestCtx(), s, testCard(), models.PaymentInfo{})

	require.NoError(t, err)
	assert.Equal(t, "pi_third", res.Success.PaymentIntentID)
	assert.Len(t, s.Evaluated, 3)
	assert.Equal(t, 2, logs.FilterField(zapcore.Field{Key: "stage", Type: zapcore.StringType, String: "RETRY"}).Len())
}

func TestSubmitPropagatesLastError(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	s := pageWithWidget()
	last := errors.New("third failure")
	s.EvalResults = []interface{}{errors.New("first"), errors.New("second"), last, succeeded("pi_never")}

	_, err := o.RunDirectMode(requestCtx(), s, testCard(), models.PaymentInfo{})

	require.Error(t, err)
	assert.ErrorIs(t, err, last)
	assert.ErrorIs(t, err, apperr.BrowserAutomation)
	assert.Len(t, s.Evaluated, 3)
}

func TestCardFillRetriedThenSucceeds(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	s := pageWithWidget()
	s.TypeErrs = map[string][]error{`frame:input[name="cardnumber"]`: {errors.New("node not ready")}}
	s.EvalResults = []interface{}{succeeded("pi_fill")}

	res, err := o.RunDirectMode(requestCtx(), s, testCard(), models.PaymentInfo{})

	require.NoError(t, err)
	assert.Equal(t, "pi_fill", res.Success.PaymentIntentID)
}

func TestCardFillGivesUpAfterTwoAttempts(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	s := pageWithWidget()
	s.TypeErrs = map[string][]error{`frame:input[name="cvc"]`: {errors.New("detached"), errors.New("detached again"), nil}}
	s.EvalResults = []interface{}{succeeded("pi_never")}

	_, err := o.RunDirectMode(requestCtx(), s, testCard(), models.PaymentInfo{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "detached again")
	assert.Empty(t, s.Evaluated)
}

func TestMissingFormFails(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	s := pageWithWidget()
	s.Missing = map[string]bool{"#payment-form": true}

	_, err := o.RunDirectMode(requestCtx(), s, testCard(), models.PaymentInfo{})
	assert.ErrorIs(t, err, apperr.FormNotFound)
}

func TestMissingWidgetFrameFails(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	s := browsertest.NewSession()
	s.FrameURLs = []string{"https://example.com/not-the-widget"}

	_, err := o.RunDirectMode(requestCtx(), s, testCard(), models.PaymentInfo{})
	assert.ErrorIs(t, err, apperr.WidgetFrameNotFound)
	assert.Empty(t, s.Evaluated)
}

func TestNavigationFailure(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	s := pageWithWidget()
	s.NavigateErr = errors.New("net::ERR_CONNECTION_REFUSED")

	_, err := o.RunTokenMode(requestCtx(), s, &models.TokenRef{Kind: models.TokenProcessor, ID: "tok_x", Raw: "tok_x"}, "", models.PaymentInfo{})
	assert.ErrorIs(t, err, apperr.BrowserAutomation)
}
