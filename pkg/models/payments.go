package models

import (
	"database/sql"
	"time"
)

// Payment statuses
const (
	PaymentStatusSettled = "settled"
	PaymentStatusFailed  = "failed"
)

// Payment sources
const (
	PaymentSourceUser    = "user"
	PaymentSourceSponsor = "sponsor"
)

// Payment is an immutable settlement record. The transaction reference
// (tx_hash) is the natural key; at most one record exists per reference.
type Payment struct {
	TxHash      string         `json:"tx_hash" db:"tx_hash"`
	CampaignID  sql.NullString `json:"campaign_id,omitempty" db:"campaign_id"`
	Service     string         `json:"service" db:"service"`
	AmountCents int64          `json:"amount_cents" db:"amount_cents"`
	Payer       string         `json:"payer" db:"payer"`
	Source      string         `json:"source" db:"source"`
	Status      string         `json:"status" db:"status"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}

// SponsoredApi is a sponsor-funded proxy target with its own price and
// budget, forwarding accepted calls to an upstream HTTP endpoint
type SponsoredApi struct {
	ID                   string    `json:"id" db:"id"`
	Name                 string    `json:"name" db:"name"`
	Sponsor              string    `json:"sponsor" db:"sponsor"`
	Description          string    `json:"description" db:"description"`
	UpstreamURL          string    `json:"upstream_url" db:"upstream_url"`
	UpstreamMethod       string    `json:"upstream_method" db:"upstream_method"`
	UpstreamHeaders      JSONB     `json:"upstream_headers" db:"upstream_headers"`
	PriceCents           int64     `json:"price_cents" db:"price_cents"`
	BudgetTotalCents     int64     `json:"budget_total_cents" db:"budget_total_cents"`
	BudgetRemainingCents int64     `json:"budget_remaining_cents" db:"budget_remaining_cents"`
	Active               bool      `json:"active" db:"active"`
	ServiceKey           string    `json:"service_key" db:"service_key"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
}

// SponsoredApiCall is the audit record written for each accepted proxy call
type SponsoredApiCall struct {
	ID             string    `json:"id" db:"id"`
	SponsoredApiID string    `json:"sponsored_api_id" db:"sponsored_api_id"`
	PaymentMode    string    `json:"payment_mode" db:"payment_mode"`
	AmountCents    int64     `json:"amount_cents" db:"amount_cents"`
	TxHash         string    `json:"tx_hash" db:"tx_hash"`
	Caller         string    `json:"caller" db:"caller"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// CreatorEvent records a creator skill invocation for usage metrics
type CreatorEvent struct {
	ID         string    `json:"id" db:"id"`
	SkillName  string    `json:"skill_name" db:"skill_name"`
	Platform   string    `json:"platform" db:"platform"`
	EventType  string    `json:"event_type" db:"event_type"`
	DurationMs int64     `json:"duration_ms" db:"duration_ms"`
	Success    bool      `json:"success" db:"success"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
