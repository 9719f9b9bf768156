package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/jasonk0/card-count/internal/models"
	"github.com/jasonk0/card-count/internal/pause"
	"github.com/jasonk0/card-count/internal/stats"
)

// StatsHandler serves dashboard cost aggregates.
type StatsHandler struct {
	db  *gorm.DB         // Database handle for stats queries.
	now func() time.Time // Clock, replaceable in tests.
}

// NewStatsHandler wires a stats handler with its database dependency.
func NewStatsHandler(db *gorm.DB) *StatsHandler {
	return &StatsHandler{db: db, now: time.Now}
}

// Dashboard computes the full dashboard over all cards and records. Active
// flags are derived from the pause history rather than trusted from storage.
func (h *StatsHandler) Dashboard(c *gin.Context) {
	var cards []models.MembershipCard
	if errFind := h.db.WithContext(c.Request.Context()).Find(&cards).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list cards failed"})
		return
	}
	var records []models.UsageRecord
	if errFind := h.db.WithContext(c.Request.Context()).Find(&records).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list records failed"})
		return
	}

	today := models.DateOf(h.now())
	for i := range cards {
		cards[i] = pause.Refresh(cards[i], today)
	}
	c.JSON(http.StatusOK, stats.ComputeDashboard(cards, records))
}
