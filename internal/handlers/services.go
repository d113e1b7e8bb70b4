package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	paymasterapi "github.com/protocolwhisper/paymeskill/pkg/api/paymaster"
	"github.com/protocolwhisper/paymeskill/pkg/logging"
	"github.com/protocolwhisper/paymeskill/pkg/x402"
)

// Payment modes reported on accepted runs.
const (
	paymentModeUserDirect = "user_direct"
	paymentModeSponsored  = "sponsored"
)

// RunTool executes a priced service against a direct payment. No sponsorship
// is consulted on this path; the caller always pays.
func RunTool(c *gin.Context) {
	service := c.Param("service")
	price := servicePrice(service)
	resourcePath := fmt.Sprintf("/tool/%s/run", service)

	var req paymasterapi.ServiceRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}
	if err := validateRequest(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	payment, ok := verifyPayment(c, service, price, resourcePath)
	if !ok {
		return
	}
	metrics.PaymentEvents.WithLabelValues(paymentModeUserDirect, "settled").Inc()

	respondPaidRun(c, service, req, paymentModeUserDirect, "", payment.TxHash, payment.ReceiptHeader)
}

// RunProxy executes a priced service for a registered user. A payment header
// short-circuits to direct verification; otherwise the sponsorship matcher
// looks for a campaign willing to fund the call. The budget debit happens
// before the service runs and is never compensated.
func RunProxy(c *gin.Context) {
	service := c.Param("service")
	price := servicePrice(service)
	resourcePath := fmt.Sprintf("/proxy/%s/run", service)

	hasHeader := x402.GetPaymentHeaderFromRequest(c.Request) != ""

	var req paymasterapi.ServiceRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}
	if err := validateRequest(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	ctx := c.Request.Context()

	if hasHeader {
		start := time.Now()
		var userExists bool
		err := db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", req.UserID).Scan(&userExists)
		observeQuery("user_exists", start, err)
		if err != nil || !userExists {
			respondNotFound(c, "user profile is required before proxy usage")
			return
		}

		payment, ok := verifyPayment(c, service, price, resourcePath)
		if !ok {
			return
		}
		metrics.PaymentEvents.WithLabelValues(paymentModeUserDirect, "settled").Inc()

		respondPaidRun(c, service, req, paymentModeUserDirect, "", payment.TxHash, payment.ReceiptHeader)
		return
	}

	user, err := loadUserProfile(c, req.UserID)
	if err == sql.ErrNoRows {
		respondNotFound(c, "user profile is required before proxy usage")
		return
	}
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	eligible, pendingTask, err := matchSponsorship(ctx, user, price)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	if eligible != nil {
		if _, _, err := debitCampaignBudget(ctx, eligible.ID, price); err != nil {
			// Zero rows means another call spent the budget first; the
			// caller is told to pay rather than silently retried.
			if err == sql.ErrNoRows {
				respondPaymentRequired(c, paymentRequiredChallenge(
					service, price, resourcePath,
					"no eligible sponsor campaign found",
					"either complete a sponsor task or pay with PAYMENT-SIGNATURE",
				))
				return
			}
			respondDatabaseError(c, err)
			return
		}

		txHash, err := recordSponsorPayment(ctx, eligible.ID, service, price, eligible.Sponsor)
		if err != nil {
			respondDatabaseError(c, err)
			return
		}

		metrics.PaymentEvents.WithLabelValues(paymentModeSponsored, "settled").Inc()
		metrics.SponsorSpendCents.Add(float64(price))

		logger.WithFields(logging.Fields{
			"service":  service,
			"campaign": eligible.ID,
			"sponsor":  eligible.Sponsor,
			"user_id":  user.ID,
			"amount_c": price,
		}).Info("Sponsored call charged to campaign")

		respondPaidRun(c, service, req, paymentModeSponsored, eligible.Sponsor, txHash, "")
		return
	}

	if pendingTask != nil {
		respondPreconditionRequired(c, fmt.Sprintf(
			"complete sponsor task '%s' for campaign '%s' before sponsored usage",
			pendingTask.RequiredTask, pendingTask.Name,
		))
		return
	}

	respondPaymentRequired(c, paymentRequiredChallenge(
		service, price, resourcePath,
		"no eligible sponsor campaign found",
		"either complete a sponsor task or pay with PAYMENT-SIGNATURE",
	))
}

// respondPaidRun renders the accepted run response with the x402 headers.
func respondPaidRun(c *gin.Context, service string, req paymasterapi.ServiceRunRequest, mode, sponsoredBy, txHash, receiptHeader string) {
	c.Header(x402.HeaderVersion, x402.Version)
	if receiptHeader != "" {
		c.Header(x402.HeaderReceipt, receiptHeader)
	}

	c.JSON(http.StatusOK, paymasterapi.ServiceRunResponse{
		Service:     service,
		Output:      fmt.Sprintf("Executed '%s' task for user %s with input: %s", service, req.UserID, req.Input),
		PaymentMode: mode,
		SponsoredBy: sponsoredBy,
		TxHash:      txHash,
	})
}
