package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	dbutil "github.com/jasonk0/card-count/internal/db"
	"github.com/jasonk0/card-count/internal/models"
)

// RecordHandler handles usage record CRUD and quick keyword recording.
type RecordHandler struct {
	db  *gorm.DB         // Database handle for record queries.
	now func() time.Time // Clock, replaceable in tests.
}

// NewRecordHandler wires a record handler with its database dependency.
func NewRecordHandler(db *gorm.DB) *RecordHandler {
	return &RecordHandler{db: db, now: time.Now}
}

// recordPayload is the wire representation of a usage record, shared by
// create, batch update, and import.
type recordPayload struct {
	ID        string      `json:"id"`
	CardID    string      `json:"cardId"`
	Date      models.Date `json:"date"`
	IsUsed    bool        `json:"isUsed"`
	IsSold    bool        `json:"isSold"`
	SoldPrice *float64    `json:"soldPrice"`
	Notes     string      `json:"notes"`
}

// toModel converts the payload into a usage record model.
func (p *recordPayload) toModel() models.UsageRecord {
	return models.UsageRecord{
		ID:        p.ID,
		CardID:    strings.TrimSpace(p.CardID),
		Date:      p.Date,
		IsUsed:    p.IsUsed,
		IsSold:    p.IsSold,
		SoldPrice: p.SoldPrice,
		Notes:     strings.TrimSpace(p.Notes),
	}
}

// formatRecord maps a usage record model into a response payload.
func formatRecord(record *models.UsageRecord) gin.H {
	return gin.H{
		"id":        record.ID,
		"cardId":    record.CardID,
		"date":      record.Date,
		"isUsed":    record.IsUsed,
		"isSold":    record.IsSold,
		"soldPrice": record.SoldPrice,
		"notes":     record.Notes,
		"createdAt": record.CreatedAt,
	}
}

// List returns every usage record, newest first.
func (h *RecordHandler) List(c *gin.Context) {
	var rows []models.UsageRecord
	if errFind := h.db.WithContext(c.Request.Context()).
		Order("date DESC, created_at DESC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list records failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, formatRecord(&row))
	}
	c.JSON(http.StatusOK, out)
}

// Create validates input and persists a new usage record.
func (h *RecordHandler) Create(c *gin.Context) {
	var body recordPayload
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.CardID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing cardId"})
		return
	}

	record := body.toModel()
	record.ID = uuid.NewString()
	if record.Date.IsZero() {
		record.Date = models.DateOf(h.now())
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&record).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create record failed"})
		return
	}
	c.JSON(http.StatusCreated, formatRecord(&record))
}

// BatchCreate persists multiple usage records in one transaction.
func (h *RecordHandler) BatchCreate(c *gin.Context) {
	var body []recordPayload
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a record array"})
		return
	}

	created := make([]gin.H, 0, len(body))
	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		for _, payload := range body {
			if strings.TrimSpace(payload.CardID) == "" {
				continue
			}
			record := payload.toModel()
			record.ID = uuid.NewString()
			if record.Date.IsZero() {
				record.Date = models.DateOf(h.now())
			}
			if errCreate := tx.Create(&record).Error; errCreate != nil {
				return errCreate
			}
			created = append(created, formatRecord(&record))
		}
		return nil
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "batch create records failed"})
		return
	}
	c.JSON(http.StatusCreated, created)
}

// updateRecordRequest captures optional fields for record updates.
type updateRecordRequest struct {
	CardID    *string      `json:"cardId"`
	Date      *models.Date `json:"date"`
	IsUsed    *bool        `json:"isUsed"`
	IsSold    *bool        `json:"isSold"`
	SoldPrice *float64     `json:"soldPrice"`
	Notes     *string      `json:"notes"`
}

// apply copies the provided fields onto the record.
func (r *updateRecordRequest) apply(record *models.UsageRecord) {
	if r.CardID != nil {
		record.CardID = strings.TrimSpace(*r.CardID)
	}
	if r.Date != nil {
		record.Date = *r.Date
	}
	if r.IsUsed != nil {
		record.IsUsed = *r.IsUsed
	}
	if r.IsSold != nil {
		record.IsSold = *r.IsSold
	}
	if r.SoldPrice != nil {
		record.SoldPrice = r.SoldPrice
	}
	if r.Notes != nil {
		record.Notes = strings.TrimSpace(*r.Notes)
	}
}

// Update applies field changes to a usage record.
func (h *RecordHandler) Update(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var record models.UsageRecord
	if errFind := h.db.WithContext(c.Request.Context()).First(&record, "id = ?", id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	var body updateRecordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.CardID != nil && strings.TrimSpace(*body.CardID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cardId cannot be empty"})
		return
	}

	body.apply(&record)
	if errSave := h.db.WithContext(c.Request.Context()).Save(&record).Error; errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update record failed"})
		return
	}
	c.JSON(http.StatusOK, formatRecord(&record))
}

// batchUpdateRecordPayload pairs a record id with its optional field changes.
type batchUpdateRecordPayload struct {
	ID string `json:"id"`
	updateRecordRequest
}

// BatchUpdate applies field changes to multiple records. Unknown IDs are
// skipped; the updated set is returned.
func (h *RecordHandler) BatchUpdate(c *gin.Context) {
	var body []batchUpdateRecordPayload
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a record array"})
		return
	}

	updated := make([]gin.H, 0, len(body))
	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		for _, payload := range body {
			id := strings.TrimSpace(payload.ID)
			if id == "" {
				continue
			}
			var record models.UsageRecord
			if errFind := tx.First(&record, "id = ?", id).Error; errFind != nil {
				if errors.Is(errFind, gorm.ErrRecordNotFound) {
					continue
				}
				return errFind
			}
			payload.apply(&record)
			if errSave := tx.Save(&record).Error; errSave != nil {
				return errSave
			}
			updated = append(updated, formatRecord(&record))
		}
		return nil
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "batch update records failed"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete removes a usage record by ID.
func (h *RecordHandler) Delete(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	res := h.db.WithContext(c.Request.Context()).Delete(&models.UsageRecord{}, "id = ?", id)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete record failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "record deleted"})
}

// BatchDelete removes the records matching the posted ID list.
func (h *RecordHandler) BatchDelete(c *gin.Context) {
	var ids []string
	if errBind := c.ShouldBindJSON(&ids); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be an id array"})
		return
	}
	if len(ids) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be an id array"})
		return
	}
	if errDelete := h.db.WithContext(c.Request.Context()).
		Delete(&models.UsageRecord{}, "id IN ?", ids).Error; errDelete != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "batch delete records failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "records deleted"})
}

// quickRecordRequest captures the payload for keyword-based quick recording.
type quickRecordRequest struct {
	Keyword string `json:"keyword"`
}

// Quick finds the first card whose name contains the keyword, creates a used
// record dated today, and decrements the card's remaining days.
func (h *RecordHandler) Quick(c *gin.Context) {
	var body quickRecordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	keyword := strings.TrimSpace(body.Keyword)
	if keyword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing keyword"})
		return
	}

	pattern := dbutil.NormalizeLikePattern(h.db, "%"+keyword+"%")
	var card models.MembershipCard
	errFind := h.db.WithContext(c.Request.Context()).
		Where(dbutil.CaseInsensitiveLikeExpr(h.db, "name"), pattern).
		Order("created_at ASC").
		First(&card).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no card matches keyword"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	record := models.UsageRecord{
		ID:     uuid.NewString(),
		CardID: card.ID,
		Date:   models.DateOf(h.now()),
		IsUsed: true,
		Notes:  "quick record: " + keyword,
	}
	if card.RemainingDays > 0 {
		card.RemainingDays--
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&record).Error; errCreate != nil {
			return errCreate
		}
		return tx.Model(&models.MembershipCard{}).
			Where("id = ?", card.ID).
			Update("remaining_days", card.RemainingDays).Error
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create quick record failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "quick record created",
		"record":  formatRecord(&record),
		"card":    formatCard(&card),
		"keyword": keyword,
	})
}
