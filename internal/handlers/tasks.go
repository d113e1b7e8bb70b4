package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	paymasterapi "github.com/protocolwhisper/paymeskill/pkg/api/paymaster"
	"github.com/protocolwhisper/paymeskill/pkg/models"
)

// CompleteTask records append-only evidence that a user finished a campaign
// task. Completions are never consumed; once recorded the user stays eligible
// for that campaign.
func CompleteTask(c *gin.Context) {
	var req paymasterapi.TaskCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}
	if err := validateRequest(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	ctx := c.Request.Context()

	start := time.Now()
	var campaignExists bool
	err := db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)", req.CampaignID).Scan(&campaignExists)
	observeQuery("campaign_exists", start, err)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	if !campaignExists {
		respondNotFound(c, "campaign not found")
		return
	}

	start = time.Now()
	var userExists bool
	err = db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", req.UserID).Scan(&userExists)
	observeQuery("user_exists", start, err)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	if !userExists {
		respondNotFound(c, "user not found")
		return
	}

	completion := models.TaskCompletion{
		ID:         uuid.New().String(),
		CampaignID: req.CampaignID,
		UserID:     req.UserID,
		TaskName:   req.TaskName,
		Details:    req.Details,
		CreatedAt:  time.Now().UTC(),
	}

	start = time.Now()
	_, err = db.ExecContext(ctx, `
		INSERT INTO task_completions (id, campaign_id, user_id, task_name, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		completion.ID, completion.CampaignID, completion.UserID,
		completion.TaskName, completion.Details, completion.CreatedAt,
	)
	observeQuery("insert_task_completion", start, err)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, completion)
}
