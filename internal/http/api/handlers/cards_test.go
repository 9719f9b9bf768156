package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/jasonk0/card-count/internal/models"
)

func setupCardsDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:cards_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(&models.MembershipCard{}, &models.UsageRecord{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return db
}

func newCardRouter(t *testing.T, db *gorm.DB, now time.Time) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	handler := NewCardHandler(db)
	handler.now = func() time.Time { return now }

	router := gin.New()
	router.GET("/api/cards", handler.List)
	router.POST("/api/cards", handler.Create)
	router.PUT("/api/cards", handler.BatchUpdate)
	router.GET("/api/cards/:id", handler.Get)
	router.PUT("/api/cards/:id", handler.Update)
	router.DELETE("/api/cards/:id", handler.Delete)
	router.POST("/api/cards/:id/pause", handler.Pause)
	router.POST("/api/cards/:id/resume", handler.Resume)
	router.PUT("/api/cards/:id/pauses/:pauseId", handler.EditPause)
	router.DELETE("/api/cards/:id/pauses/:pauseId", handler.DeletePause)
	router.GET("/api/cards/:id/records", handler.Records)
	return router
}

type cardResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	TotalDays     int    `json:"totalDays"`
	RemainingDays int    `json:"remainingDays"`
	StartDate     string `json:"startDate"`
	EndDate       string `json:"endDate"`
	IsActive      bool   `json:"isActive"`
	PauseHistory  []struct {
		ID        string  `json:"id"`
		StartDate string  `json:"startDate"`
		EndDate   *string `json:"endDate"`
		Reason    string  `json:"reason"`
	} `json:"pauseHistory"`
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeCard(t *testing.T, w *httptest.ResponseRecorder) cardResponse {
	t.Helper()
	var card cardResponse
	if errDecode := json.Unmarshal(w.Body.Bytes(), &card); errDecode != nil {
		t.Fatalf("decode card: %v (body %s)", errDecode, w.Body.String())
	}
	return card
}

func TestCardCreateDerivesCaches(t *testing.T) {
	db := setupCardsDB(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	router := newCardRouter(t, db, now)

	w := doJSON(t, router, http.MethodPost, "/api/cards", gin.H{
		"name":      "Gym 90",
		"type":      "gym",
		"totalDays": 90,
		"startDate": "2024-01-01",
		"endDate":   "2024-04-01",
		"price":     900,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d (%s)", w.Code, w.Body.String())
	}
	card := decodeCard(t, w)
	if card.ID == "" {
		t.Fatalf("expected generated id")
	}
	// 2024-03-01 → 2024-04-01 is 31 days, no pauses scheduled.
	if card.RemainingDays != 31 {
		t.Fatalf("expected remainingDays=31, got %d", card.RemainingDays)
	}
	if !card.IsActive {
		t.Fatalf("expected card active")
	}
}

func TestCardCreateRejectsMissingFields(t *testing.T) {
	db := setupCardsDB(t)
	router := newCardRouter(t, db, time.Now())

	w := doJSON(t, router, http.MethodPost, "/api/cards", gin.H{"totalDays": 30, "startDate": "2024-01-01"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for missing name, got %d", w.Code)
	}
	w = doJSON(t, router, http.MethodPost, "/api/cards", gin.H{"name": "x", "totalDays": 30})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for missing startDate, got %d", w.Code)
	}
}

func TestCardPauseExtendsAndEarlyResumeShrinks(t *testing.T) {
	db := setupCardsDB(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	router := newCardRouter(t, db, now)

	created := decodeCard(t, doJSON(t, router, http.MethodPost, "/api/cards", gin.H{
		"name":      "Gym 90",
		"totalDays": 90,
		"startDate": "2024-01-01",
		"endDate":   "2024-04-01",
	}))

	w := doJSON(t, router, http.MethodPost, "/api/cards/"+created.ID+"/pause", gin.H{
		"startDate": "2024-03-05",
		"endDate":   "2024-03-15",
		"reason":    "travel",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", w.Code, w.Body.String())
	}
	paused := decodeCard(t, w)
	// A 10-day pause pushes the end date out by 10 days.
	if paused.EndDate != "2024-04-11" {
		t.Fatalf("expected endDate=2024-04-11, got %s", paused.EndDate)
	}
	if len(paused.PauseHistory) != 1 {
		t.Fatalf("expected 1 pause record, got %d", len(paused.PauseHistory))
	}
	if !paused.IsActive {
		t.Fatalf("expected card still active before the pause starts")
	}

	w = doJSON(t, router, http.MethodPost, "/api/cards/"+created.ID+"/resume", gin.H{
		"pauseId":    paused.PauseHistory[0].ID,
		"resumeDate": "2024-03-10",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", w.Code, w.Body.String())
	}
	resumed := decodeCard(t, w)
	// Only 5 of the 10 reserved days were used, so 5 come back.
	if resumed.EndDate != "2024-04-06" {
		t.Fatalf("expected endDate=2024-04-06, got %s", resumed.EndDate)
	}
}

func TestCardResumeUnknownPause(t *testing.T) {
	db := setupCardsDB(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	router := newCardRouter(t, db, now)

	created := decodeCard(t, doJSON(t, router, http.MethodPost, "/api/cards", gin.H{
		"name":      "Gym",
		"totalDays": 30,
		"startDate": "2024-03-01",
	}))

	w := doJSON(t, router, http.MethodPost, "/api/cards/"+created.ID+"/resume", gin.H{
		"pauseId":    "missing",
		"resumeDate": "2024-03-10",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestCardGetRefreshesStoredCaches(t *testing.T) {
	db := setupCardsDB(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	router := newCardRouter(t, db, now)

	card := models.MembershipCard{
		ID:            "card-stale",
		Name:          "Stale",
		TotalDays:     90,
		RemainingDays: 90,
		StartDate:     models.NewDate(2024, time.January, 1),
		EndDate:       models.NewDate(2024, time.April, 1),
		IsActive:      true,
	}
	if errCreate := db.Create(&card).Error; errCreate != nil {
		t.Fatalf("create card: %v", errCreate)
	}

	w := doJSON(t, router, http.MethodGet, "/api/cards/card-stale", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	got := decodeCard(t, w)
	if got.RemainingDays != 31 {
		t.Fatalf("expected refreshed remainingDays=31, got %d", got.RemainingDays)
	}

	var stored models.MembershipCard
	if errFind := db.First(&stored, "id = ?", "card-stale").Error; errFind != nil {
		t.Fatalf("reload card: %v", errFind)
	}
	if stored.RemainingDays != 31 {
		t.Fatalf("expected persisted remainingDays=31, got %d", stored.RemainingDays)
	}
}

func TestCardDeletePauseKeepsEndDate(t *testing.T) {
	db := setupCardsDB(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	router := newCardRouter(t, db, now)

	created := decodeCard(t, doJSON(t, router, http.MethodPost, "/api/cards", gin.H{
		"name":      "Gym",
		"totalDays": 90,
		"startDate": "2024-01-01",
		"endDate":   "2024-04-01",
	}))
	paused := decodeCard(t, doJSON(t, router, http.MethodPost, "/api/cards/"+created.ID+"/pause", gin.H{
		"startDate": "2024-03-05",
		"endDate":   "2024-03-15",
	}))

	w := doJSON(t, router, http.MethodDelete,
		"/api/cards/"+created.ID+"/pauses/"+paused.PauseHistory[0].ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", w.Code, w.Body.String())
	}
	got := decodeCard(t, w)
	if len(got.PauseHistory) != 0 {
		t.Fatalf("expected empty pause history, got %d records", len(got.PauseHistory))
	}
	// Removing the record is a history correction; the extended end date stays.
	if got.EndDate != "2024-04-11" {
		t.Fatalf("expected endDate=2024-04-11, got %s", got.EndDate)
	}
}

func TestCardBatchUpdateSkipsUnknownIDs(t *testing.T) {
	db := setupCardsDB(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	router := newCardRouter(t, db, now)

	created := decodeCard(t, doJSON(t, router, http.MethodPost, "/api/cards", gin.H{
		"name":      "Gym",
		"totalDays": 90,
		"startDate": "2024-01-01",
		"endDate":   "2024-04-01",
	}))

	w := doJSON(t, router, http.MethodPut, "/api/cards", []gin.H{
		{"id": created.ID, "name": "Gym Renamed", "totalDays": 90,
			"startDate": "2024-01-01", "endDate": "2024-04-01"},
		{"id": "unknown", "name": "Ghost", "totalDays": 1, "startDate": "2024-01-01"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", w.Code, w.Body.String())
	}
	var updated []cardResponse
	if errDecode := json.Unmarshal(w.Body.Bytes(), &updated); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if len(updated) != 1 {
		t.Fatalf("expected 1 updated card, got %d", len(updated))
	}
	if updated[0].Name != "Gym Renamed" {
		t.Fatalf("expected renamed card, got %s", updated[0].Name)
	}
}

func TestCardDeleteNotFound(t *testing.T) {
	db := setupCardsDB(t)
	router := newCardRouter(t, db, time.Now())

	w := doJSON(t, router, http.MethodDelete, "/api/cards/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}
