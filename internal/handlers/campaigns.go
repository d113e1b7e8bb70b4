package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lib/pq"

	paymasterapi "github.com/protocolwhisper/paymeskill/pkg/api/paymaster"
	"github.com/protocolwhisper/paymeskill/pkg/models"
)

// CreateCampaign registers a sponsor campaign with its full budget available
func CreateCampaign(c *gin.Context) {
	var req paymasterapi.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}
	if err := validateRequest(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}
	for _, queryURL := range req.QueryURLs {
		if _, err := url.ParseRequestURI(queryURL); err != nil {
			respondValidationError(c, fmt.Sprintf("invalid query URL: %s", queryURL))
			return
		}
	}

	campaign := models.Campaign{
		ID:                   uuid.New().String(),
		Name:                 req.Name,
		Sponsor:              req.Sponsor,
		TargetRoles:          pq.StringArray(req.TargetRoles),
		TargetTools:          pq.StringArray(req.TargetTools),
		RequiredTask:         req.RequiredTask,
		SubsidyPerCallCents:  req.SubsidyPerCallCents,
		BudgetTotalCents:     req.BudgetCents,
		BudgetRemainingCents: req.BudgetCents,
		QueryURLs:            pq.StringArray(req.QueryURLs),
		Active:               true,
		CreatedAt:            time.Now().UTC(),
	}

	start := time.Now()
	_, err := db.ExecContext(c.Request.Context(), `
		INSERT INTO campaigns (
			id, name, sponsor, target_roles, target_tools, required_task,
			subsidy_per_call_cents, budget_total_cents, budget_remaining_cents,
			query_urls, active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		campaign.ID, campaign.Name, campaign.Sponsor,
		campaign.TargetRoles, campaign.TargetTools, campaign.RequiredTask,
		campaign.SubsidyPerCallCents, campaign.BudgetTotalCents, campaign.BudgetRemainingCents,
		campaign.QueryURLs, campaign.Active, campaign.CreatedAt,
	)
	observeQuery("insert_campaign", start, err)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	c.JSON(http.StatusCreated, paymasterapi.CreateCampaignResponse{
		Campaign:     campaign,
		CampaignURL:  fmt.Sprintf("%s/campaigns/%s", base, campaign.ID),
		DashboardURL: fmt.Sprintf("%s/dashboard/sponsor/%s", base, campaign.ID),
	})
}

// ListCampaigns returns all campaigns, oldest first
func ListCampaigns(c *gin.Context) {
	campaigns, err := loadCampaigns(c)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	sort.Slice(campaigns, func(i, j int) bool {
		return campaigns[i].CreatedAt.Before(campaigns[j].CreatedAt)
	})

	c.JSON(http.StatusOK, campaigns)
}

// GetCampaign returns one campaign by id
func GetCampaign(c *gin.Context) {
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

	c.JSON(http.StatusOK, campaign)
}

// ListCampaignDiscovery returns the public listing of active campaigns that
// published query URLs, sorted by name
func ListCampaignDiscovery(c *gin.Context) {
	campaigns, err := loadCampaigns(c)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	items := []paymasterapi.CampaignDiscoveryItem{}
	for _, campaign := range campaigns {
		if !campaign.Active || len(campaign.QueryURLs) == 0 {
			continue
		}
		items = append(items, paymasterapi.CampaignDiscoveryItem{
			CampaignID:               campaign.ID,
			Name:                     campaign.Name,
			Sponsor:                  campaign.Sponsor,
			Active:                   campaign.Active,
			QueryURLs:                campaign.QueryURLs,
			ServiceRunURL:            fmt.Sprintf("%s/proxy/:service/run", base),
			SponsoredApiDiscoveryURL: fmt.Sprintf("%s/sponsored-apis", base),
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	c.JSON(http.StatusOK, items)
}

func loadCampaigns(c *gin.Context) ([]models.Campaign, error) {
	start := time.Now()
	rows, err := db.QueryContext(c.Request.Context(), `
		SELECT id, name, sponsor, target_roles, target_tools, required_task,
		       subsidy_per_call_cents, budget_total_cents, budget_remaining_cents,
		       query_urls, active, created_at
		FROM campaigns
		ORDER BY created_at DESC`)
	observeQuery("list_campaigns", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		var campaign models.Campaign
		if err := rows.Scan(
			&campaign.ID, &campaign.Name, &campaign.Sponsor,
			&campaign.TargetRoles, &campaign.TargetTools, &campaign.RequiredTask,
			&campaign.SubsidyPerCallCents, &campaign.BudgetTotalCents, &campaign.BudgetRemainingCents,
			&campaign.QueryURLs, &campaign.Active, &campaign.CreatedAt,
		); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, campaign)
	}
	return campaigns, rows.Err()
}

// loadCampaign fetches one campaign by id. Returns nil when absent.
func loadCampaign(c *gin.Context, campaignID string) (*models.Campaign, error) {
	start := time.Now()
	var campaign models.Campaign
	err := db.QueryRowContext(c.Request.Context(), `
		SELECT id, name, sponsor, target_roles, target_tools, required_task,
		       subsidy_per_call_cents, budget_total_cents, budget_remaining_cents,
		       query_urls, active, created_at
		FROM campaigns
		WHERE id = $1`,
		campaignID,
	).Scan(
		&campaign.ID, &campaign.Name, &campaign.Sponsor,
		&campaign.TargetRoles, &campaign.TargetTools, &campaign.RequiredTask,
		&campaign.SubsidyPerCallCents, &campaign.BudgetTotalCents, &campaign.BudgetRemainingCents,
		&campaign.QueryURLs, &campaign.Active, &campaign.CreatedAt,
	)
	observeQuery("load_campaign", start, err)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}
