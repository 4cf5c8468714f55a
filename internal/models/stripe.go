package models

// WidgetOutcome is the value returned by the checkout page's submit actions.
type WidgetOutcome struct {
	Success     *WidgetSuccess `json:"success,omitempty"`
	Error       string         `json:"error,omitempty"`
	Declined    bool           `json:"declined,omitempty"`
	Code        string         `json:"code,omitempty"`
	DeclineCode string         `json:"declineCode,omitempty"`
}

type WidgetSuccess struct {
	PaymentIntentID string `json:"paymentIntentId,omitempty"`
	PaymentMethodID string `json:"paymentMethodId,omitempty"`
	Status          string `json:"status,omitempty"`
	Amount          int64  `json:"amount,omitempty"`
	Currency        string `json:"currency,omitempty"`
	Last4           string `json:"last4,omitempty"`
	Brand           string `json:"brand,omitempty"`
}
