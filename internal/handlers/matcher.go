package handlers

import (
	"context"
	"time"

	"github.com/protocolwhisper/paymeskill/pkg/models"
)

// userMatchesCampaign reports whether a caller falls inside a campaign's
// audience. An empty target list matches everyone; a non-empty list needs at
// least one overlap. Role and tool targeting must both pass.
func userMatchesCampaign(user *models.UserProfile, campaign *models.Campaign) bool {
	roleMatch := len(campaign.TargetRoles) == 0
	for _, role := range user.Roles {
		if roleMatch {
			break
		}
		for _, target := range campaign.TargetRoles {
			if target == role {
				roleMatch = true
				break
			}
		}
	}

	toolMatch := len(campaign.TargetTools) == 0
	for _, tool := range user.ToolsUsed {
		if toolMatch {
			break
		}
		for _, target := range campaign.TargetTools {
			if target == tool {
				toolMatch = true
				break
			}
		}
	}

	return roleMatch && toolMatch
}

// hasCompletedTask reports whether the user has recorded the campaign's
// required task.
func hasCompletedTask(ctx context.Context, campaignID, userID, requiredTask string) (bool, error) {
	start := time.Now()
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM task_completions
			WHERE campaign_id = $1 AND user_id = $2 AND task_name = $3
		)`,
		campaignID, userID, requiredTask,
	).Scan(&exists)
	observeQuery("has_completed_task", start, err)
	return exists, err
}

// loadFundedCampaigns returns active campaigns that can still afford one call
// at the given price, newest first. Newest-first makes the match
// deterministic when several campaigns qualify.
func loadFundedCampaigns(ctx context.Context, priceCents int64) ([]models.Campaign, error) {
	start := time.Now()
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, sponsor, target_roles, target_tools, required_task,
		       subsidy_per_call_cents, budget_total_cents, budget_remaining_cents,
		       query_urls, active, created_at
		FROM campaigns
		WHERE active = true AND budget_remaining_cents >= $1
		ORDER BY created_at DESC`,
		priceCents,
	)
	observeQuery("load_funded_campaigns", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []models.Campaign
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

// matchSponsorship walks funded campaigns in order and returns the first one
// the user matches with its task completed. When no such campaign exists but
// one matched except for the task, that campaign is returned as pending so
// the caller can say which task to finish.
func matchSponsorship(ctx context.Context, user *models.UserProfile, priceCents int64) (eligible *models.Campaign, pendingTask *models.Campaign, err error) {
	campaigns, err := loadFundedCampaigns(ctx, priceCents)
	if err != nil {
		return nil, nil, err
	}

	for i := range campaigns {
		campaign := &campaigns[i]
		if !userMatchesCampaign(user, campaign) {
			continue
		}

		done, err := hasCompletedTask(ctx, campaign.ID, user.ID, campaign.RequiredTask)
		if err != nil {
			return nil, nil, err
		}
		if done {
			return campaign, nil, nil
		}
		if pendingTask == nil {
			pendingTask = campaign
		}
	}

	return nil, pendingTask, nil
}
