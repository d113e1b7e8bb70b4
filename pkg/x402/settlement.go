package x402

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// SettlementReceipt is the proof-of-settlement artifact attached to accepted
// responses in the payment-response header.
type SettlementReceipt struct {
	TxHash    string `json:"tx_hash"`
	Status    string `json:"status"`
	SettledAt string `json:"settled_at"`
}

// NewSettlementReceipt stamps a receipt for a settled transaction reference.
func NewSettlementReceipt(txHash string) SettlementReceipt {
	return SettlementReceipt{
		TxHash:    txHash,
		Status:    "settled",
		SettledAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// EncodeHeader renders the receipt as the base64 JSON header value.
func (s SettlementReceipt) EncodeHeader() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
