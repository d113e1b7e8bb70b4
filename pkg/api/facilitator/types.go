// Package facilitator defines the wire types of the external x402
// facilitator's verify and settle operations.
package facilitator

import (
	"github.com/protocolwhisper/paymeskill/pkg/x402"
)

// VerifyRequest asks the facilitator to check a payment header against an
// independently rebuilt requirement.
type VerifyRequest struct {
	X402Version         int                       `json:"x402Version"`
	PaymentHeader       string                    `json:"paymentHeader"`
	PaymentRequirements *x402.PaymentRequirements `json:"paymentRequirements"`
}

// VerifyResponse is the facilitator's verdict on a payment header.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleRequest asks the facilitator to settle a verified payment.
type SettleRequest struct {
	X402Version         int                       `json:"x402Version"`
	PaymentHeader       string                    `json:"paymentHeader"`
	PaymentRequirements *x402.PaymentRequirements `json:"paymentRequirements"`
}

// SettleResponse reports the settlement outcome.
type SettleResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Payer       string `json:"payer,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}
