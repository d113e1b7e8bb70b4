package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	facilitatorapi "github.com/protocolwhisper/paymeskill/pkg/api/facilitator"
	"github.com/protocolwhisper/paymeskill/pkg/clients/facilitator"
	"github.com/protocolwhisper/paymeskill/pkg/logging"
	"github.com/protocolwhisper/paymeskill/pkg/models"
	"github.com/protocolwhisper/paymeskill/pkg/x402"
)

// PaymentDenial is a protocol-level refusal. It is rendered as the 402
// challenge, never as a server error.
type PaymentDenial struct {
	Message  string
	NextStep string
}

// VerifiedPayment is the accepted outcome of proof verification.
type VerifiedPayment struct {
	TxHash        string
	Payer         string
	ReceiptHeader string
}

// Verifier checks a payment header against a priced access attempt. A nil
// denial and nil error means the payment is accepted. Errors are reserved
// for deployment or storage failures; anything the caller can fix comes back
// as a denial.
type Verifier interface {
	Verify(ctx context.Context, header, service string, priceCents int64, resourcePath string) (*VerifiedPayment, *PaymentDenial, error)
}

// LedgerVerifier validates payment proofs against the local payments table.
// The proof itself carries no cryptography; trust comes from the referenced
// transaction being a settled ledger row.
type LedgerVerifier struct{}

func (LedgerVerifier) Verify(ctx context.Context, header, service string, priceCents int64, _ string) (*VerifiedPayment, *PaymentDenial, error) {
	if header == "" {
		return nil, &PaymentDenial{
			Message:  "missing payment proof",
			NextStep: "call /payments/mock/direct first, then retry with payment-signature header",
		}, nil
	}

	proof, err := x402.ParsePaymentProof(header)
	if err != nil {
		return nil, &PaymentDenial{
			Message:  fmt.Sprintf("invalid payment proof: %v", err),
			NextStep: "regenerate payment signature via /payments/mock/direct",
		}, nil
	}

	if proof.Service != service {
		return nil, &PaymentDenial{
			Message:  "payment proof service mismatch",
			NextStep: "create a payment proof for this specific service",
		}, nil
	}

	if proof.AmountCents < priceCents {
		return nil, &PaymentDenial{
			Message:  fmt.Sprintf("insufficient amount in proof: %d < %d", proof.AmountCents, priceCents),
			NextStep: "create a payment proof with an amount >= service price",
		}, nil
	}

	start := time.Now()
	var status string
	err = db.QueryRowContext(ctx, "SELECT status FROM payments WHERE tx_hash = $1", proof.TxHash).Scan(&status)
	observeQuery("lookup_payment", start, err)
	if err == sql.ErrNoRows {
		return nil, &PaymentDenial{
			Message:  "payment tx hash not found in ledger",
			NextStep: "register payment via /payments/mock/direct or /webhooks/x402scan/settlement",
		}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if status != models.PaymentStatusSettled {
		return nil, &PaymentDenial{
			Message:  "payment exists but is not settled",
			NextStep: "wait for settlement or ingest a settled webhook from x402scan",
		}, nil
	}

	receipt, err := x402.NewSettlementReceipt(proof.TxHash).EncodeHeader()
	if err != nil {
		return nil, nil, err
	}

	return &VerifiedPayment{
		TxHash:        proof.TxHash,
		Payer:         proof.Payer,
		ReceiptHeader: receipt,
	}, nil, nil
}

// FacilitatorVerifier delegates verification and settlement to a remote x402
// facilitator. The requirement is rebuilt locally from the same inputs that
// produced the challenge, so the facilitator judges the header against
// exactly what the caller was quoted. Any facilitator failure denies the
// payment; the gateway never grants access on a transport error.
type FacilitatorVerifier struct {
	client *facilitator.Client
}

// NewFacilitatorVerifier wraps a facilitator client as a Verifier.
func NewFacilitatorVerifier(client *facilitator.Client) *FacilitatorVerifier {
	return &FacilitatorVerifier{client: client}
}

func (v *FacilitatorVerifier) Verify(ctx context.Context, header, service string, priceCents int64, resourcePath string) (*VerifiedPayment, *PaymentDenial, error) {
	if header == "" {
		return nil, &PaymentDenial{
			Message:  "missing payment proof",
			NextStep: "retry with a PAYMENT-SIGNATURE header signed for this requirement",
		}, nil
	}

	requirement, err := x402.BuildRequirement(service, priceCents, resourcePath, cfg.X402)
	if err != nil {
		return nil, nil, err
	}

	verdict, err := v.client.Verify(ctx, &facilitatorapi.VerifyRequest{
		X402Version:         2,
		PaymentHeader:       header,
		PaymentRequirements: requirement,
	})
	if err != nil {
		logger.WithError(err).WithField("service", service).Warn("Facilitator verify call failed")
		return nil, &PaymentDenial{
			Message:  fmt.Sprintf("payment verification failed: %v", err),
			NextStep: "retry with a fresh payment signature",
		}, nil
	}
	if !verdict.IsValid {
		reason := verdict.InvalidReason
		if reason == "" {
			reason = "payment rejected by facilitator"
		}
		return nil, &PaymentDenial{
			Message:  fmt.Sprintf("payment verification failed: %s", reason),
			NextStep: "retry with a fresh payment signature",
		}, nil
	}

	outcome, err := v.client.Settle(ctx, &facilitatorapi.SettleRequest{
		X402Version:         2,
		PaymentHeader:       header,
		PaymentRequirements: requirement,
	})
	if err != nil {
		logger.WithError(err).WithField("service", service).Warn("Facilitator settle call failed")
		return nil, &PaymentDenial{
			Message:  fmt.Sprintf("payment settlement failed: %v", err),
			NextStep: "retry with a fresh payment signature",
		}, nil
	}
	if !outcome.Success {
		reason := outcome.ErrorReason
		if reason == "" {
			reason = "settlement rejected by facilitator"
		}
		return nil, &PaymentDenial{
			Message:  fmt.Sprintf("payment settlement failed: %s", reason),
			NextStep: "retry with a fresh payment signature",
		}, nil
	}

	payer := outcome.Payer
	if payer == "" {
		payer = verdict.Payer
	}

	if outcome.Transaction != "" {
		if err := recordUserPayment(ctx, outcome.Transaction, service, priceCents, payer); err != nil {
			return nil, nil, err
		}
	}

	receipt, err := x402.NewSettlementReceipt(outcome.Transaction).EncodeHeader()
	if err != nil {
		return nil, nil, err
	}

	logger.WithFields(logging.Fields{
		"service":  service,
		"tx_hash":  outcome.Transaction,
		"payer":    payer,
		"amount_c": priceCents,
	}).Info("Payment settled via facilitator")

	return &VerifiedPayment{
		TxHash:        outcome.Transaction,
		Payer:         payer,
		ReceiptHeader: receipt,
	}, nil, nil
}

// verifyPayment runs the configured verifier for one access attempt and
// renders the failure responses. Returns false when a response has already
// been written.
func verifyPayment(c *gin.Context, service string, priceCents int64, resourcePath string) (*VerifiedPayment, bool) {
	header := x402.GetPaymentHeaderFromRequest(c.Request)

	payment, denial, err := verifier.Verify(c.Request.Context(), header, service, priceCents, resourcePath)
	if err != nil {
		if errors.Is(err, x402.ErrPayToNotConfigured) || errors.Is(err, x402.ErrAssetNotConfigured) {
			respondConfigError(c, err.Error())
		} else {
			respondDatabaseError(c, err)
		}
		return nil, false
	}
	if denial != nil {
		respondPaymentRequired(c, paymentRequiredChallenge(service, priceCents, resourcePath, denial.Message, denial.NextStep))
		return nil, false
	}
	return payment, true
}
