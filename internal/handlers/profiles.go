package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lib/pq"

	paymasterapi "github.com/protocolwhisper/paymeskill/pkg/api/paymaster"
	"github.com/protocolwhisper/paymeskill/pkg/models"
)

// CreateProfile registers a caller profile used for sponsorship matching
func CreateProfile(c *gin.Context) {
	createProfile(c)
}

// RegisterUser is the onboarding alias of CreateProfile
func RegisterUser(c *gin.Context) {
	createProfile(c)
}

func createProfile(c *gin.Context) {
	var req paymasterapi.CreateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}
	if err := validateRequest(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	attributes := models.JSONB{}
	for key, value := range req.Attributes {
		attributes[key] = value
	}

	profile := models.UserProfile{
		ID:         uuid.New().String(),
		Email:      req.Email,
		Region:     req.Region,
		Roles:      pq.StringArray(req.Roles),
		ToolsUsed:  pq.StringArray(req.ToolsUsed),
		Attributes: attributes,
		CreatedAt:  time.Now().UTC(),
	}

	start := time.Now()
	_, err := db.ExecContext(c.Request.Context(), `
		INSERT INTO users (id, email, region, roles, tools_used, attributes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		profile.ID, profile.Email, profile.Region,
		profile.Roles, profile.ToolsUsed, profile.Attributes, profile.CreatedAt,
	)
	observeQuery("insert_user", start, err)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, profile)
}

// ListProfiles returns registered profiles, newest first
func ListProfiles(c *gin.Context) {
	start := time.Now()
	rows, err := db.QueryContext(c.Request.Context(), `
		SELECT id, email, region, roles, tools_used, attributes, created_at
		FROM users
		ORDER BY created_at DESC`)
	observeQuery("list_users", start, err)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	defer rows.Close()

	profiles := []models.UserProfile{}
	for rows.Next() {
		var profile models.UserProfile
		if err := rows.Scan(
			&profile.ID, &profile.Email, &profile.Region,
			&profile.Roles, &profile.ToolsUsed, &profile.Attributes, &profile.CreatedAt,
		); err != nil {
			respondDatabaseError(c, err)
			return
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		respondDatabaseError(c, err)
		return
	}

	c.JSON(http.StatusOK, profiles)
}

// loadUserProfile fetches one profile by id. Returns nil when absent.
func loadUserProfile(c *gin.Context, userID string) (*models.UserProfile, error) {
	start := time.Now()
	var profile models.UserProfile
	err := db.QueryRowContext(c.Request.Context(), `
		SELECT id, email, region, roles, tools_used, attributes, created_at
		FROM users
		WHERE id = $1`,
		userID,
	).Scan(
		&profile.ID, &profile.Email, &profile.Region,
		&profile.Roles, &profile.ToolsUsed, &profile.Attributes, &profile.CreatedAt,
	)
	observeQuery("load_user", start, err)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
