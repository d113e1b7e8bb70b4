package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	paymasterapi "github.com/protocolwhisper/paymeskill/pkg/api/paymaster"
	"github.com/protocolwhisper/paymeskill/pkg/models"
)

// GetSponsorDashboard summarizes one campaign for its sponsor: task funnel,
// calls charged and spend against the remaining budget
func GetSponsorDashboard(c *gin.Context) {
	campaignID := c.Param("campaign_id")

	campaign, err := loadCampaign(c, campaignID)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	if campaign == nil {
		respondNotFound(c, "campaign not found")
		return
	}

	ctx := c.Request.Context()

	start := time.Now()
	var tasksCompleted int64
	err = db.QueryRowContext(ctx,
		"SELECT count(*) FROM task_completions WHERE campaign_id = $1", campaignID,
	).Scan(&tasksCompleted)
	observeQuery("count_task_completions", start, err)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	start = time.Now()
	var sponsoredCalls, spendCents int64
	err = db.QueryRowContext(ctx, `
		SELECT count(*), COALESCE(sum(amount_cents), 0)
		FROM payments
		WHERE campaign_id = $1 AND source = $2 AND status = $3`,
		campaignID, models.PaymentSourceSponsor, models.PaymentStatusSettled,
	).Scan(&sponsoredCalls, &spendCents)
	observeQuery("sum_sponsor_spend", start, err)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	c.JSON(http.StatusOK, paymasterapi.SponsorDashboard{
		Campaign:             *campaign,
		TasksCompleted:       tasksCompleted,
		SponsoredCalls:       sponsoredCalls,
		SpendCents:           spendCents,
		RemainingBudgetCents: campaign.BudgetRemainingCents,
	})
}
