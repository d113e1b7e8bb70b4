package handlers

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	paymasterapi "github.com/protocolwhisper/paymeskill/pkg/api/paymaster"
	"github.com/protocolwhisper/paymeskill/pkg/x402"
)

// Error codes of the wire envelope.
const (
	codeValidation   = "validation_error"
	codeNotFound     = "not_found"
	codePrecondition = "precondition_required"
	codeUpstream     = "upstream_error"
	codeConfig       = "config_error"
	codeInternal     = "internal_error"
	codeDatabase     = "database"
)

const errPostgresNotConfigured = "Postgres not configured; set DATABASE_URL"

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, paymasterapi.ErrorResponse{
		Error: paymasterapi.ErrorBody{Code: code, Message: message},
	})
}

func respondValidationError(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, codeValidation, message)
}

func respondNotFound(c *gin.Context, message string) {
	respondError(c, http.StatusNotFound, codeNotFound, message)
}

func respondPreconditionRequired(c *gin.Context, message string) {
	respondError(c, http.StatusPreconditionRequired, codePrecondition, message)
}

func respondUpstreamError(c *gin.Context, err error) {
	respondError(c, http.StatusBadGateway, codeUpstream, err.Error())
}

func respondConfigError(c *gin.Context, message string) {
	respondError(c, http.StatusInternalServerError, codeConfig, message)
}

func respondDatabaseError(c *gin.Context, err error) {
	logger.WithError(err).Error("Database operation failed")
	respondError(c, http.StatusInternalServerError, codeDatabase, err.Error())
}

// respondPaymentRequired renders the 402 challenge. Unlike the other error
// responses the body is the challenge itself, not the error envelope, and the
// response always carries the protocol version header.
func respondPaymentRequired(c *gin.Context, challenge paymasterapi.PaymentRequired) {
	c.Header(x402.HeaderVersion, x402.Version)
	c.JSON(http.StatusPaymentRequired, challenge)
}

// paymentRequiredChallenge builds the 402 body for one denied access attempt.
// The encoded requirement is attached when the deployment has the protocol
// parameters configured; callers in ledger-only deployments still get the
// price and header name.
func paymentRequiredChallenge(service string, priceCents int64, resourcePath, message, nextStep string) paymasterapi.PaymentRequired {
	challenge := paymasterapi.PaymentRequired{
		Service:        service,
		AmountCents:    priceCents,
		AcceptedHeader: x402.HeaderPayment,
		Message:        message,
		NextStep:       nextStep,
	}

	if requirement, err := x402.BuildRequirement(service, priceCents, resourcePath, cfg.X402); err == nil {
		if encoded, err := requirement.Encode(); err == nil {
			challenge.PaymentRequirement = base64.StdEncoding.EncodeToString(encoded)
		}
	}

	return challenge
}
