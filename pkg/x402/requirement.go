package x402

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Configuration errors are deployment defects, not request errors.
var (
	ErrPayToNotConfigured = errors.New("x402 payee address is not configured")
	ErrAssetNotConfigured = errors.New("x402 asset is not configured")
)

// Cents on a 6-decimal asset: 1 cent = 10^6 / 100 base units.
var centsToBaseUnits = decimal.NewFromInt(10_000)

// Config holds the protocol parameters a deployment must supply to issue
// payment requirements.
type Config struct {
	Network           string
	PayTo             string
	Asset             string
	PublicBaseURL     string
	MaxTimeoutSeconds int
}

// PaymentRequirements is the wire challenge descriptor. Field order is fixed;
// both the issuing service and a remote verifier must be able to reconstruct
// the encoded form byte-for-byte from the same inputs.
type PaymentRequirements struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	MaxAmountRequired string `json:"maxAmountRequired"`
	Resource          string `json:"resource"`
	Description       string `json:"description"`
	MimeType          string `json:"mimeType"`
	PayTo             string `json:"payTo"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds"`
	Asset             string `json:"asset"`
}

// BuildRequirement constructs the challenge for one priced access attempt.
// Deterministic: identical inputs yield an identical requirement.
func BuildRequirement(service string, priceCents int64, resourcePath string, cfg Config) (*PaymentRequirements, error) {
	if strings.TrimSpace(cfg.PayTo) == "" {
		return nil, ErrPayToNotConfigured
	}
	if strings.TrimSpace(cfg.Asset) == "" {
		return nil, ErrAssetNotConfigured
	}

	amount := decimal.NewFromInt(priceCents).Mul(centsToBaseUnits)

	return &PaymentRequirements{
		Scheme:            "exact",
		Network:           cfg.Network,
		MaxAmountRequired: amount.String(),
		Resource:          strings.TrimRight(cfg.PublicBaseURL, "/") + resourcePath,
		Description:       "Payment for " + service,
		MimeType:          "application/json",
		PayTo:             cfg.PayTo,
		MaxTimeoutSeconds: cfg.MaxTimeoutSeconds,
		Asset:             cfg.Asset,
	}, nil
}

// Encode renders the requirement as canonical JSON.
func (r *PaymentRequirements) Encode() ([]byte, error) {
	return json.Marshal(r)
}
