package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	paymasterapi "github.com/protocolwhisper/paymeskill/pkg/api/paymaster"
	"github.com/protocolwhisper/paymeskill/pkg/models"
)

// RecordCreatorMetricEvent stores one creator skill event
func RecordCreatorMetricEvent(c *gin.Context) {
	var req paymasterapi.CreatorMetricEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}
	if err := validateRequest(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	event := models.CreatorEvent{
		ID:         uuid.New().String(),
		SkillName:  req.SkillName,
		Platform:   req.Platform,
		EventType:  req.EventType,
		DurationMs: req.DurationMs,
		Success:    req.Success,
		CreatedAt:  time.Now().UTC(),
	}

	start := time.Now()
	_, err := db.ExecContext(c.Request.Context(), `
		INSERT INTO creator_events (id, skill_name, platform, event_type, duration_ms, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.SkillName, event.Platform, event.EventType,
		event.DurationMs, event.Success, event.CreatedAt,
	)
	observeQuery("insert_creator_event", start, err)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	metrics.CreatorEvents.WithLabelValues(event.SkillName, event.Platform, event.EventType).Inc()

	c.JSON(http.StatusCreated, event)
}

// GetCreatorMetrics aggregates creator events overall and per skill
func GetCreatorMetrics(c *gin.Context) {
	ctx := c.Request.Context()

	start := time.Now()
	var totalEvents, successEvents int64
	err := db.QueryRowContext(ctx, `
		SELECT count(*), count(*) FILTER (WHERE success = true)
		FROM creator_events`,
	).Scan(&totalEvents, &successEvents)
	observeQuery("count_creator_events", start, err)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}

	successRate := 0.0
	if totalEvents > 0 {
		successRate = float64(successEvents) / float64(totalEvents)
	}

	start = time.Now()
	rows, err := db.QueryContext(ctx, `
		SELECT skill_name,
		       count(*) AS total_events,
		       count(*) FILTER (WHERE success = true) AS success_events,
		       avg(duration_ms) AS avg_duration_ms,
		       max(created_at) AS last_seen_at
		FROM creator_events
		GROUP BY skill_name
		ORDER BY total_events DESC, last_seen_at DESC`)
	observeQuery("aggregate_creator_events", start, err)
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	defer rows.Close()

	perSkill := []paymasterapi.SkillMetrics{}
	for rows.Next() {
		var skill paymasterapi.SkillMetrics
		var avgDuration sql.NullFloat64
		var lastSeen time.Time
		if err := rows.Scan(&skill.SkillName, &skill.TotalEvents, &skill.SuccessEvents, &avgDuration, &lastSeen); err != nil {
			respondDatabaseError(c, err)
			return
		}
		skill.AvgDurationMs = avgDuration.Float64
		skill.LastSeenAt = lastSeen.UTC().Format(time.RFC3339)
		perSkill = append(perSkill, skill)
	}
	if err := rows.Err(); err != nil {
		respondDatabaseError(c, err)
		return
	}

	c.JSON(http.StatusOK, paymasterapi.CreatorMetricSummary{
		TotalEvents:   totalEvents,
		SuccessEvents: successEvents,
		SuccessRate:   successRate,
		PerSkill:      perSkill,
	})
}
