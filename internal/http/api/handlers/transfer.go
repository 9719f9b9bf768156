package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/jasonk0/card-count/internal/models"
)

// TransferHandler handles whole-collection export and import.
type TransferHandler struct {
	db *gorm.DB // Database handle for transfer queries.
}

// NewTransferHandler wires a transfer handler with its database dependency.
func NewTransferHandler(db *gorm.DB) *TransferHandler {
	return &TransferHandler{db: db}
}

// Export returns every card and record as a single backup document.
func (h *TransferHandler) Export(c *gin.Context) {
	var cards []models.MembershipCard
	if errFind := h.db.WithContext(c.Request.Context()).Order("created_at ASC").Find(&cards).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export cards failed"})
		return
	}
	var records []models.UsageRecord
	if errFind := h.db.WithContext(c.Request.Context()).Order("created_at ASC").Find(&records).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export records failed"})
		return
	}

	cardsOut := make([]gin.H, 0, len(cards))
	for _, card := range cards {
		cardsOut = append(cardsOut, formatCard(&card))
	}
	recordsOut := make([]gin.H, 0, len(records))
	for _, record := range records {
		recordsOut = append(recordsOut, formatRecord(&record))
	}
	c.JSON(http.StatusOK, gin.H{
		"cards":      cardsOut,
		"records":    recordsOut,
		"exportDate": time.Now().UTC(),
	})
}

// importPayload is the backup document accepted by Import.
type importPayload struct {
	Cards   []cardPayload   `json:"cards"`
	Records []recordPayload `json:"records"`
}

// Import replaces both collections with the uploaded backup in a single
// transaction. The payload may arrive as a multipart "file" field or as the
// raw request body.
func (h *TransferHandler) Import(c *gin.Context) {
	data, errRead := importBody(c)
	if errRead != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no import data provided"})
		return
	}
	var payload importPayload
	if errDecode := json.Unmarshal(data, &payload); errDecode != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid import format"})
		return
	}
	if payload.Cards == nil && payload.Records == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid import format"})
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if errClear := tx.Where("1 = 1").Delete(&models.MembershipCard{}).Error; errClear != nil {
			return errClear
		}
		if errClear := tx.Where("1 = 1").Delete(&models.UsageRecord{}).Error; errClear != nil {
			return errClear
		}
		for _, cardIn := range payload.Cards {
			card := cardIn.toModel()
			if card.ID == "" {
				card.ID = uuid.NewString()
			}
			if errCreate := tx.Create(&card).Error; errCreate != nil {
				return errCreate
			}
		}
		for _, recordIn := range payload.Records {
			record := recordIn.toModel()
			if record.ID == "" {
				record.ID = uuid.NewString()
			}
			if errCreate := tx.Create(&record).Error; errCreate != nil {
				return errCreate
			}
		}
		return nil
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "import data failed"})
		return
	}

	log.Infof("imported %d cards and %d records", len(payload.Cards), len(payload.Records))
	c.JSON(http.StatusOK, gin.H{
		"message": "data imported",
		"cards":   len(payload.Cards),
		"records": len(payload.Records),
	})
}

// importBody reads the backup document from a multipart upload or the raw
// request body.
func importBody(c *gin.Context) ([]byte, error) {
	if file, errFile := c.FormFile("file"); errFile == nil {
		f, errOpen := file.Open()
		if errOpen != nil {
			return nil, errOpen
		}
		defer func() { _ = f.Close() }()
		return io.ReadAll(f)
	}
	return io.ReadAll(c.Request.Body)
}
