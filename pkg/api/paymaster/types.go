package paymaster

import (
	"github.com/protocolwhisper/paymeskill/pkg/models"
)

// CreateProfileRequest registers a caller profile
type CreateProfileRequest struct {
	Email      string            `json:"email" validate:"required,email"`
	Region     string            `json:"region" validate:"required"`
	Roles      []string          `json:"roles"`
	ToolsUsed  []string          `json:"tools_used"`
	Attributes map[string]string `json:"attributes"`
}

// CreateCampaignRequest creates a sponsor campaign
type CreateCampaignRequest struct {
	Name                string   `json:"name" validate:"required"`
	Sponsor             string   `json:"sponsor" validate:"required"`
	TargetRoles         []string `json:"target_roles"`
	TargetTools         []string `json:"target_tools"`
	RequiredTask        string   `json:"required_task" validate:"required"`
	SubsidyPerCallCents int64    `json:"subsidy_per_call_cents" validate:"gt=0"`
	BudgetCents         int64    `json:"budget_cents" validate:"gt=0"`
	QueryURLs           []string `json:"query_urls"`
}

// CreateCampaignResponse returns the created campaign plus convenience URLs
type CreateCampaignResponse struct {
	Campaign     models.Campaign `json:"campaign"`
	CampaignURL  string          `json:"campaign_url"`
	DashboardURL string          `json:"dashboard_url"`
}

// CampaignDiscoveryItem is one row of the public campaign discovery listing
type CampaignDiscoveryItem struct {
	CampaignID               string   `json:"campaign_id"`
	Name                     string   `json:"name"`
	Sponsor                  string   `json:"sponsor"`
	Active                   bool     `json:"active"`
	QueryURLs                []string `json:"query_urls"`
	ServiceRunURL            string   `json:"service_run_url"`
	SponsoredApiDiscoveryURL string   `json:"sponsored_api_discovery_url"`
}

// TaskCompletionRequest records sponsor-task evidence for a caller
type TaskCompletionRequest struct {
	CampaignID string `json:"campaign_id" validate:"required,uuid"`
	UserID     string `json:"user_id" validate:"required,uuid"`
	TaskName   string `json:"task_name" validate:"required"`
	Details    string `json:"details"`
}

// ServiceRunRequest is the body of a priced tool or proxy invocation
type ServiceRunRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Input  string `json:"input"`
}

// ServiceRunResponse is the body of an accepted tool or proxy invocation
type ServiceRunResponse struct {
	Service     string `json:"service"`
	Output      string `json:"output"`
	PaymentMode string `json:"payment_mode"`
	SponsoredBy string `json:"sponsored_by,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
}

// PaymentRequired is the 402 challenge envelope. PaymentRequirement carries
// the base64-encoded x402 requirement descriptor when the deployment has the
// protocol parameters configured.
type PaymentRequired struct {
	Service            string `json:"service"`
	AmountCents        int64  `json:"amount_cents"`
	AcceptedHeader     string `json:"accepted_header"`
	PaymentRequirement string `json:"payment_required,omitempty"`
	Message            string `json:"message"`
	NextStep           string `json:"next_step"`
}

// CreateSponsoredApiRequest creates a sponsor-funded proxy target
type CreateSponsoredApiRequest struct {
	Name            string            `json:"name" validate:"required"`
	Sponsor         string            `json:"sponsor" validate:"required"`
	Description     string            `json:"description"`
	UpstreamURL     string            `json:"upstream_url" validate:"required,url"`
	UpstreamMethod  string            `json:"upstream_method"`
	UpstreamHeaders map[string]string `json:"upstream_headers"`
	PriceCents      *int64            `json:"price_cents"`
	BudgetCents     int64             `json:"budget_cents" validate:"gt=0"`
}

// SponsoredApiRunRequest invokes a sponsored API
type SponsoredApiRunRequest struct {
	Caller string                 `json:"caller"`
	Input  map[string]interface{} `json:"input"`
}

// SponsoredApiRunResponse is the result of an accepted sponsored API call
type SponsoredApiRunResponse struct {
	ApiID          string `json:"api_id"`
	PaymentMode    string `json:"payment_mode"`
	SponsoredBy    string `json:"sponsored_by,omitempty"`
	TxHash         string `json:"tx_hash,omitempty"`
	UpstreamStatus int    `json:"upstream_status"`
	UpstreamBody   string `json:"upstream_body"`
}

// SettlementWebhookRequest is the x402scan settlement ingest payload
type SettlementWebhookRequest struct {
	TxHash      string `json:"tx_hash" validate:"required"`
	Service     string `json:"service" validate:"required"`
	AmountCents int64  `json:"amount_cents" validate:"gte=0"`
	Payer       string `json:"payer" validate:"required"`
	Source      string `json:"source" validate:"required,oneof=user sponsor"`
	Status      string `json:"status" validate:"required,oneof=settled failed"`
	CampaignID  string `json:"campaign_id" validate:"omitempty,uuid"`
}

// CreatorMetricEventRequest records one creator skill event
type CreatorMetricEventRequest struct {
	SkillName  string `json:"skill_name" validate:"required"`
	Platform   string `json:"platform" validate:"required"`
	EventType  string `json:"event_type" validate:"required"`
	DurationMs int64  `json:"duration_ms"`
	Success    bool   `json:"success"`
}

// SkillMetrics is the per-skill aggregate of creator events
type SkillMetrics struct {
	SkillName     string  `json:"skill_name"`
	TotalEvents   int64   `json:"total_events"`
	SuccessEvents int64   `json:"success_events"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	LastSeenAt    string  `json:"last_seen_at"`
}

// CreatorMetricSummary aggregates creator events
type CreatorMetricSummary struct {
	TotalEvents   int64          `json:"total_events"`
	SuccessEvents int64          `json:"success_events"`
	SuccessRate   float64        `json:"success_rate"`
	PerSkill      []SkillMetrics `json:"per_skill"`
}

// SponsorDashboard summarizes one campaign for its sponsor
type SponsorDashboard struct {
	Campaign             models.Campaign `json:"campaign"`
	TasksCompleted       int64           `json:"tasks_completed"`
	SponsoredCalls       int64           `json:"sponsored_calls"`
	SpendCents           int64           `json:"spend_cents"`
	RemainingBudgetCents int64           `json:"remaining_budget_cents"`
}

// MessageResponse is a minimal acknowledgement body
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorBody is the inner error descriptor
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ErrorResponse is the standard error envelope
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
