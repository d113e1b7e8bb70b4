package models

import (
	"time"

	"github.com/lib/pq"
)

// Campaign is a sponsor-funded budget that pays for callers' use of priced
// services on their behalf. Budget invariant: 0 <= remaining <= total.
// The active flag only ever transitions true -> false.
type Campaign struct {
	ID                   string         `json:"id" db:"id"`
	Name                 string         `json:"name" db:"name"`
	Sponsor              string         `json:"sponsor" db:"sponsor"`
	TargetRoles          pq.StringArray `json:"target_roles" db:"target_roles"`
	TargetTools          pq.StringArray `json:"target_tools" db:"target_tools"`
	RequiredTask         string         `json:"required_task" db:"required_task"`
	SubsidyPerCallCents  int64          `json:"subsidy_per_call_cents" db:"subsidy_per_call_cents"`
	BudgetTotalCents     int64          `json:"budget_total_cents" db:"budget_total_cents"`
	BudgetRemainingCents int64          `json:"budget_remaining_cents" db:"budget_remaining_cents"`
	QueryURLs            pq.StringArray `json:"query_urls" db:"query_urls"`
	Active               bool           `json:"active" db:"active"`
	CreatedAt            time.Time      `json:"created_at" db:"created_at"`
}

// TaskCompletion is append-only evidence that a caller finished a campaign's
// required task
type TaskCompletion struct {
	ID         string    `json:"id" db:"id"`
	CampaignID string    `json:"campaign_id" db:"campaign_id"`
	UserID     string    `json:"user_id" db:"user_id"`
	TaskName   string    `json:"task_name" db:"task_name"`
	Details    string    `json:"details" db:"details"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
