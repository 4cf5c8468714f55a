package utils

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"

	"payment-simulator/internal/apperr"
	"payment-simulator/internal/models"
	"payment-simulator/internal/requestctx"
)

func NewRequestID() string {
	return uuid.NewString()
}

// RequestID returns the correlation id of the request being served.
func RequestID(c *gin.Context) string {
	return requestctx.RequestID(c.Request.Context())
}

// Failure maps err onto the status and sanitized body returned to callers.
// Causes and stack traces never reach the body.
func Failure(err error, requestID string) (int, models.PaymentFailure) {
	class := apperr.Classify(err)
	body := models.PaymentFailure{
		Error:     class.Message,
		Type:      string(class.Type),
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}

	status := http.StatusInternalServerError
	var e *apperr.Error
	if errors.As(err, &e) {
		status = apperr.HTTPStatus(e.Kind)
		body.Details = e.Fields
		body.RealTransaction = e.RealTransaction
		if e.Kind == apperr.KindRealTransactionsOff {
			body.Code = "real_transactions_disabled"
		}
	}

	var se *stripe.Error
	if errors.As(err, &se) {
		body.Code = string(se.Code)
		body.DeclineCode = string(se.DeclineCode)
		body.Declined = se.Type == stripe.ErrorTypeCard
	}

	if status >= http.StatusInternalServerError {
		retryable := class.Retryable
		body.Retryable = &retryable
	}
	return status, body
}

func AbortWithError(c *gin.Context, err error) {
	status, body := Failure(err, RequestID(c))
	c.AbortWithStatusJSON(status, body)
}

// WriteResult renders a page or processor outcome. A decline is a completed
// request and is returned with 200 like a success.
func WriteResult(c *gin.Context, res *models.PaymentResult) {
	if res.Success != nil {
		c.JSON(http.StatusOK, models.SuccessEnvelope{Success: res.Success, RequestID: RequestID(c)})
		return
	}
	if res.Failure.RequestID == "" {
		res.Failure.RequestID = RequestID(c)
	}
	c.JSON(http.StatusOK, res.Failure)
}
