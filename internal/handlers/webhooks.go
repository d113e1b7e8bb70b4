package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	paymasterapi "github.com/protocolwhisper/paymeskill/pkg/api/paymaster"
	"github.com/protocolwhisper/paymeskill/pkg/logging"
	"github.com/protocolwhisper/paymeskill/pkg/models"
)

// IngestSettlement records an externally observed settlement from x402scan.
// Idempotent on tx_hash: replays and races insert nothing and still return
// 202, so the scanner can redeliver freely.
func IngestSettlement(c *gin.Context) {
	var req paymasterapi.SettlementWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}
	if err := validateRequest(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	campaignID := sql.NullString{}
	if req.CampaignID != "" {
		campaignID = sql.NullString{String: req.CampaignID, Valid: true}
	}

	start := time.Now()
	_, err := db.ExecContext(c.Request.Context(), `
		INSERT INTO payments (tx_hash, campaign_id, service, amount_cents, payer, source, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tx_hash) DO NOTHING`,
		req.TxHash, campaignID, req.Service, req.AmountCents,
		req.Payer, req.Source, req.Status, time.Now().UTC(),
	)
	observeQuery("insert_payment", start, err)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	mode := paymentModeUserDirect
	if req.Source == models.PaymentSourceSponsor {
		mode = paymentModeSponsored
	}
	metrics.PaymentEvents.WithLabelValues(mode, req.Status).Inc()

	logger.WithFields(logging.Fields{
		"tx_hash": req.TxHash,
		"service": req.Service,
		"source":  req.Source,
		"status":  req.Status,
	}).Info("Settlement ingested")

	c.JSON(http.StatusAccepted, paymasterapi.MessageResponse{Message: "settlement ingested"})
}
