package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Protocol version carried on every payment-gated response.
const Version = "2"

// Header names of the x402 exchange.
const (
	HeaderPayment         = "PAYMENT-SIGNATURE"
	HeaderPaymentFallback = "X-PAYMENT"
	HeaderVersion         = "x402-version"
	HeaderReceipt         = "payment-response"
)

// PaymentProof is the caller-supplied proof artifact, transported as
// base64-encoded JSON in the payment header.
type PaymentProof struct {
	Service             string `json:"service"`
	AmountCents         int64  `json:"amount_cents"`
	TxHash              string `json:"tx_hash"`
	Payer               string `json:"payer,omitempty"`
	SponsoredCampaignID string `json:"sponsored_campaign_id,omitempty"`
}

// GetPaymentHeaderFromRequest returns the x402 payment header from an HTTP request.
// Accepts both PAYMENT-SIGNATURE and X-PAYMENT.
func GetPaymentHeaderFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	return GetPaymentHeaderFromHeaders(r.Header)
}

// GetPaymentHeaderFromHeaders returns the x402 payment header from HTTP headers.
// Accepts both PAYMENT-SIGNATURE and X-PAYMENT.
func GetPaymentHeaderFromHeaders(headers http.Header) string {
	if headers == nil {
		return ""
	}
	if value := strings.TrimSpace(headers.Get(HeaderPayment)); value != "" {
		return value
	}
	if value := strings.TrimSpace(headers.Get(HeaderPaymentFallback)); value != "" {
		return value
	}
	return ""
}

// ParsePaymentProof decodes and parses a payment header value.
func ParsePaymentProof(header string) (*PaymentProof, error) {
	payloadBytes, err := base64Decode(strings.TrimSpace(header))
	if err != nil {
		return nil, fmt.Errorf("payment header is not valid base64: %w", err)
	}

	var proof PaymentProof
	if err := json.Unmarshal(payloadBytes, &proof); err != nil {
		return nil, fmt.Errorf("payment header is not valid JSON: %w", err)
	}

	return &proof, nil
}

// EncodePaymentProof renders a proof the way callers transmit it.
func EncodePaymentProof(proof PaymentProof) (string, error) {
	data, err := json.Marshal(proof)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func base64Decode(s string) ([]byte, error) {
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.URLEncoding.DecodeString(s); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return decoded, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
