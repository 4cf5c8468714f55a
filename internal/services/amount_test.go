package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"payment-simulator/internal/models"
)

func TestMinorUnits(t *testing.T) {
	amount := func(s string) *decimal.Decimal {
		d := decimal.RequireFromString(s)
		return &d
	}

	assert.Equal(t, int64(DefaultAmountCents), MinorUnits(models.PaymentInfo{}))
	assert.Equal(t, int64(1234), MinorUnits(models.PaymentInfo{Amount: amount("12.34")}))
	assert.Equal(t, int64(1999), MinorUnits(models.PaymentInfo{Amount: amount("19.99")}))
	assert.Equal(t, int64(101), MinorUnits(models.PaymentInfo{Amount: amount("1.005")}))
	assert.Equal(t, int64(50), MinorUnits(models.PaymentInfo{Amount: amount("0.5")}))

	assert.Equal(t, DefaultDescription, Description(models.PaymentInfo{}))
	assert.Equal(t, "Tickets", Description(models.PaymentInfo{Description: "Tickets"}))
}
