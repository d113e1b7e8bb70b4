package models

import (
	"time"

	"github.com/lib/pq"
)

// UserProfile represents a registered caller eligible for sponsorship matching
type UserProfile struct {
	ID         string         `json:"id" db:"id"`
	Email      string         `json:"email" db:"email"`
	Region     string         `json:"region" db:"region"`
	Roles      pq.StringArray `json:"roles" db:"roles"`
	ToolsUsed  pq.StringArray `json:"tools_used" db:"tools_used"`
	Attributes JSONB          `json:"attributes" db:"attributes"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}
