package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jasonk0/card-count/internal/models"
	"github.com/jasonk0/card-count/internal/pause"
)

// CardHandler handles membership card CRUD and pause scheduling.
type CardHandler struct {
	db  *gorm.DB         // Database handle for card queries.
	now func() time.Time // Clock, replaceable in tests.
}

// NewCardHandler wires a card handler with its database dependency.
func NewCardHandler(db *gorm.DB) *CardHandler {
	return &CardHandler{db: db, now: time.Now}
}

// today returns the current civil date.
func (h *CardHandler) today() models.Date {
	return models.DateOf(h.now())
}

// cardPayload is the wire representation of a card, shared by create, batch
// update, and import.
type cardPayload struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	Type                string               `json:"type"`
	TotalDays           int                  `json:"totalDays"`
	RemainingDays       *int                 `json:"remainingDays"`
	StartDate           models.Date          `json:"startDate"`
	EndDate             models.Date          `json:"endDate"`
	IsActive            *bool                `json:"isActive"`
	PauseHistory        []models.PauseRecord `json:"pauseHistory"`
	Price               float64              `json:"price"`
	ExpectedPricePerUse float64              `json:"expectedPricePerUse"`
}

// toModel converts the payload into a card model, filling derived defaults.
func (p *cardPayload) toModel() models.MembershipCard {
	card := models.MembershipCard{
		ID:                  p.ID,
		Name:                strings.TrimSpace(p.Name),
		Type:                strings.TrimSpace(p.Type),
		TotalDays:           p.TotalDays,
		StartDate:           p.StartDate,
		EndDate:             p.EndDate,
		IsActive:            true,
		Price:               p.Price,
		ExpectedPricePerUse: p.ExpectedPricePerUse,
	}
	if p.RemainingDays != nil {
		card.RemainingDays = *p.RemainingDays
	} else {
		card.RemainingDays = p.TotalDays
	}
	if card.EndDate.IsZero() && !card.StartDate.IsZero() {
		card.EndDate = card.StartDate.AddDays(card.TotalDays)
	}
	if p.IsActive != nil {
		card.IsActive = *p.IsActive
	}
	card.SetPauses(p.PauseHistory)
	return card
}

// formatCard maps a card model into a response payload.
func formatCard(card *models.MembershipCard) gin.H {
	pauses := card.Pauses()
	if pauses == nil {
		pauses = []models.PauseRecord{}
	}
	return gin.H{
		"id":                  card.ID,
		"name":                card.Name,
		"type":                card.Type,
		"totalDays":           card.TotalDays,
		"remainingDays":       card.RemainingDays,
		"startDate":           card.StartDate,
		"endDate":             card.EndDate,
		"isActive":            card.IsActive,
		"pauseHistory":        pauses,
		"price":               card.Price,
		"expectedPricePerUse": card.ExpectedPricePerUse,
		"createdAt":           card.CreatedAt,
		"updatedAt":           card.UpdatedAt,
	}
}

// refreshCard recomputes the cached remaining-days and active flags and
// persists them when they drift from the stored snapshot.
func (h *CardHandler) refreshCard(c *gin.Context, card models.MembershipCard) models.MembershipCard {
	refreshed := pause.Refresh(card, h.today())
	if refreshed.RemainingDays != card.RemainingDays || refreshed.IsActive != card.IsActive {
		_ = h.db.WithContext(c.Request.Context()).Model(&models.MembershipCard{}).
			Where("id = ?", card.ID).
			Updates(map[string]any{
				"remaining_days": refreshed.RemainingDays,
				"is_active":      refreshed.IsActive,
			}).Error
	}
	return refreshed
}

// List returns every card with freshly derived day caches.
func (h *CardHandler) List(c *gin.Context) {
	var rows []models.MembershipCard
	if errFind := h.db.WithContext(c.Request.Context()).Order("created_at ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list cards failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		refreshed := h.refreshCard(c, row)
		out = append(out, formatCard(&refreshed))
	}
	c.JSON(http.StatusOK, out)
}

// Create validates input and persists a new card.
func (h *CardHandler) Create(c *gin.Context) {
	var body cardPayload
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name"})
		return
	}
	if body.TotalDays < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totalDays cannot be negative"})
		return
	}
	if body.StartDate.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing startDate"})
		return
	}

	card := body.toModel()
	card.ID = uuid.NewString()
	card = pause.Refresh(card, h.today())
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&card).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create card failed"})
		return
	}
	c.JSON(http.StatusCreated, formatCard(&card))
}

// Get fetches a single card by ID.
func (h *CardHandler) Get(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var card models.MembershipCard
	if errFind := h.db.WithContext(c.Request.Context()).First(&card, "id = ?", id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	refreshed := h.refreshCard(c, card)
	c.JSON(http.StatusOK, formatCard(&refreshed))
}

// updateCardRequest captures optional fields for card updates.
type updateCardRequest struct {
	Name                *string      `json:"name"`
	Type                *string      `json:"type"`
	TotalDays           *int         `json:"totalDays"`
	RemainingDays       *int         `json:"remainingDays"`
	StartDate           *models.Date `json:"startDate"`
	EndDate             *models.Date `json:"endDate"`
	Price               *float64     `json:"price"`
	ExpectedPricePerUse *float64     `json:"expectedPricePerUse"`
}

// apply copies the provided fields onto the card.
func (r *updateCardRequest) apply(card *models.MembershipCard) {
	if r.Name != nil {
		card.Name = strings.TrimSpace(*r.Name)
	}
	if r.Type != nil {
		card.Type = strings.TrimSpace(*r.Type)
	}
	if r.TotalDays != nil {
		card.TotalDays = *r.TotalDays
	}
	if r.RemainingDays != nil {
		card.RemainingDays = *r.RemainingDays
	}
	if r.StartDate != nil {
		card.StartDate = *r.StartDate
	}
	if r.EndDate != nil {
		card.EndDate = *r.EndDate
	}
	if r.Price != nil {
		card.Price = *r.Price
	}
	if r.ExpectedPricePerUse != nil {
		card.ExpectedPricePerUse = *r.ExpectedPricePerUse
	}
}

// Update applies field changes to a card and refreshes its caches.
func (h *CardHandler) Update(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var card models.MembershipCard
	if errFind := h.db.WithContext(c.Request.Context()).First(&card, "id = ?", id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	var body updateCardRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Name != nil && strings.TrimSpace(*body.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
		return
	}

	body.apply(&card)
	card = pause.Refresh(card, h.today())
	if errSave := h.db.WithContext(c.Request.Context()).Save(&card).Error; errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update card failed"})
		return
	}
	c.JSON(http.StatusOK, formatCard(&card))
}

// BatchUpdate replaces the stored fields of every card in the payload.
// Unknown IDs are skipped; the updated set is returned.
func (h *CardHandler) BatchUpdate(c *gin.Context) {
	var body []cardPayload
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a card array"})
		return
	}

	updated := make([]gin.H, 0, len(body))
	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		for _, payload := range body {
			id := strings.TrimSpace(payload.ID)
			if id == "" {
				continue
			}
			var existing models.MembershipCard
			if errFind := tx.First(&existing, "id = ?", id).Error; errFind != nil {
				if errors.Is(errFind, gorm.ErrRecordNotFound) {
					continue
				}
				return errFind
			}
			card := payload.toModel()
			card.ID = existing.ID
			card.CreatedAt = existing.CreatedAt
			card = pause.Refresh(card, h.today())
			if errSave := tx.Save(&card).Error; errSave != nil {
				return errSave
			}
			updated = append(updated, formatCard(&card))
		}
		return nil
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "batch update cards failed"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete removes a card. Its usage records are kept; CardID is a weak
// reference.
func (h *CardHandler) Delete(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	res := h.db.WithContext(c.Request.Context()).Delete(&models.MembershipCard{}, "id = ?", id)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete card failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "card deleted"})
}

// pauseRequest captures the payload for scheduling a pause.
type pauseRequest struct {
	StartDate models.Date  `json:"startDate"`
	EndDate   *models.Date `json:"endDate"`
	Reason    string       `json:"reason"`
}

// Pause schedules a suspension interval on the card. A closed interval
// extends the card's end date so total validity is preserved.
func (h *CardHandler) Pause(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var card models.MembershipCard
	if errFind := h.db.WithContext(c.Request.Context()).First(&card, "id = ?", id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	var body pauseRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.StartDate.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing startDate"})
		return
	}

	today := h.today()
	// Snapshot the usable days first so the value stays frozen while paused.
	card = pause.Refresh(card, today)
	card = pause.Schedule(card, pause.NewPause{
		StartDate: body.StartDate,
		EndDate:   body.EndDate,
		Reason:    strings.TrimSpace(body.Reason),
	}, today)
	if errSave := h.db.WithContext(c.Request.Context()).Save(&card).Error; errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "pause card failed"})
		return
	}
	c.JSON(http.StatusOK, formatCard(&card))
}

// resumeRequest captures the payload for resuming a paused card.
type resumeRequest struct {
	PauseID    string      `json:"pauseId"`
	ResumeDate models.Date `json:"resumeDate"`
}

// Resume closes a pause record at the given date. Resuming early returns the
// unused reserved days to the card.
func (h *CardHandler) Resume(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var card models.MembershipCard
	if errFind := h.db.WithContext(c.Request.Context()).First(&card, "id = ?", id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	var body resumeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.PauseID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing pauseId"})
		return
	}
	resumeDate := body.ResumeDate
	if resumeDate.IsZero() {
		resumeDate = h.today()
	}

	today := h.today()
	card, errResume := pause.Resume(card, body.PauseID, resumeDate, today)
	if errResume != nil {
		if errors.Is(errResume, pause.ErrPauseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "pause record not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resume card failed"})
		return
	}
	card = pause.Refresh(card, today)
	if errSave := h.db.WithContext(c.Request.Context()).Save(&card).Error; errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resume card failed"})
		return
	}
	c.JSON(http.StatusOK, formatCard(&card))
}

// editPauseRequest captures a pause history correction.
type editPauseRequest struct {
	StartDate models.Date  `json:"startDate"`
	EndDate   *models.Date `json:"endDate"`
	Reason    string       `json:"reason"`
}

// EditPause rewrites one pause record in place. Corrections do not re-run the
// end-date accounting.
func (h *CardHandler) EditPause(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	pauseID := strings.TrimSpace(c.Param("pauseId"))
	var card models.MembershipCard
	if errFind := h.db.WithContext(c.Request.Context()).First(&card, "id = ?", id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	var body editPauseRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.StartDate.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing startDate"})
		return
	}

	updated := models.PauseRecord{
		ID:        pauseID,
		StartDate: body.StartDate,
		EndDate:   body.EndDate,
		Reason:    strings.TrimSpace(body.Reason),
	}
	card, errEdit := pause.EditRecord(card, updated, h.today())
	if errEdit != nil {
		if errors.Is(errEdit, pause.ErrPauseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "pause record not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "edit pause failed"})
		return
	}
	if errSave := h.db.WithContext(c.Request.Context()).Save(&card).Error; errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "edit pause failed"})
		return
	}
	c.JSON(http.StatusOK, formatCard(&card))
}

// DeletePause removes one pause record from the card's history.
func (h *CardHandler) DeletePause(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	pauseID := strings.TrimSpace(c.Param("pauseId"))
	var card models.MembershipCard
	if errFind := h.db.WithContext(c.Request.Context()).First(&card, "id = ?", id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	card, errDelete := pause.DeleteRecord(card, pauseID, h.today())
	if errDelete != nil {
		if errors.Is(errDelete, pause.ErrPauseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "pause record not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete pause failed"})
		return
	}
	if errSave := h.db.WithContext(c.Request.Context()).Save(&card).Error; errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete pause failed"})
		return
	}
	c.JSON(http.StatusOK, formatCard(&card))
}

// Records lists the usage records belonging to one card.
func (h *CardHandler) Records(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var rows []models.UsageRecord
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("card_id = ?", id).
		Order("date DESC, created_at DESC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list card records failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, formatRecord(&row))
	}
	c.JSON(http.StatusOK, out)
}
