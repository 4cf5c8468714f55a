package services

import (
	"github.com/shopspring/decimal"

	"payment-simulator/internal/models"
)

const (
	DefaultAmountCents = 1000
	// MaxAmountCents is the processor's eight-digit ceiling.
	MaxAmountCents     = 99999999
	DefaultDescription = "Test Payment Transaction"
)

var (
	hundred  = decimal.NewFromInt(100)
	maxCents = decimal.NewFromInt(MaxAmountCents)
)

func minorUnitsOf(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(hundred).Round(0)
}

// MinorUnits converts a currency amount to integer cents, rounding half away
// from zero. A missing amount yields DefaultAmountCents.
func MinorUnits(info models.PaymentInfo) int64 {
	if info.Amount == nil {
		return DefaultAmountCents
	}
	return minorUnitsOf(*info.Amount).IntPart()
}

func Description(info models.PaymentInfo) string {
	if info.Description == "" {
		return DefaultDescription
	}
	return info.Description
}
