package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/jasonk0/card-count/internal/models"
)

func setupStatsDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:stats_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(&models.MembershipCard{}, &models.UsageRecord{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return db
}

func TestDashboardAggregates(t *testing.T) {
	db := setupStatsDB(t)
	gin.SetMode(gin.TestMode)
	handler := NewStatsHandler(db)
	handler.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }
	router := gin.New()
	router.GET("/api/stats/dashboard", handler.Dashboard)

	card := models.MembershipCard{
		ID:            "card-1",
		Name:          "Gym",
		Price:         300,
		StartDate:     models.NewDate(2024, time.January, 1),
		EndDate:       models.NewDate(2024, time.April, 1),
		RemainingDays: 31,
	}
	if errCreate := db.Create(&card).Error; errCreate != nil {
		t.Fatalf("create card: %v", errCreate)
	}
	sold := 50.0
	records := []models.UsageRecord{
		{ID: "r1", CardID: "card-1", Date: models.NewDate(2024, time.January, 10), IsUsed: true},
		{ID: "r2", CardID: "card-1", Date: models.NewDate(2024, time.January, 11), IsUsed: true},
		{ID: "r3", CardID: "card-1", Date: models.NewDate(2024, time.January, 12), IsUsed: true, IsSold: true, SoldPrice: &sold},
	}
	for _, record := range records {
		if errCreate := db.Create(&record).Error; errCreate != nil {
			t.Fatalf("create record: %v", errCreate)
		}
	}

	w := doJSON(t, router, http.MethodGet, "/api/stats/dashboard", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", w.Code, w.Body.String())
	}
	var resp struct {
		TotalCards        int     `json:"totalCards"`
		ActiveCards       int     `json:"activeCards"`
		TotalUsage        int     `json:"totalUsage"`
		TotalCost         float64 `json:"totalCost"`
		AverageCostPerUse float64 `json:"averageCostPerUse"`
		CardStats         []struct {
			NetCost    float64 `json:"netCost"`
			CostPerUse float64 `json:"costPerUse"`
		} `json:"cardStats"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if resp.TotalCards != 1 || resp.ActiveCards != 1 {
		t.Fatalf("expected 1 card / 1 active, got %d/%d", resp.TotalCards, resp.ActiveCards)
	}
	if resp.TotalUsage != 3 {
		t.Fatalf("expected totalUsage=3, got %d", resp.TotalUsage)
	}
	if resp.TotalCost != 250 {
		t.Fatalf("expected totalCost=250, got %v", resp.TotalCost)
	}
	if resp.AverageCostPerUse != 125 {
		t.Fatalf("expected averageCostPerUse=125, got %v", resp.AverageCostPerUse)
	}
	if len(resp.CardStats) != 1 || resp.CardStats[0].NetCost != 250 || resp.CardStats[0].CostPerUse != 125 {
		t.Fatalf("unexpected card stats: %+v", resp.CardStats)
	}
}
