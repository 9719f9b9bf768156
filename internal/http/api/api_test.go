package api

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

	"github.com/jasonk0/card-count/internal/config"
	"github.com/jasonk0/card-count/internal/models"
	"github.com/jasonk0/card-count/internal/security"
	"github.com/jasonk0/card-count/internal/tokens"
)

func setupAPITest(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:api_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(
		&models.User{}, &models.MembershipCard{}, &models.UsageRecord{}, &models.TokenRecord{},
	); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}

	hash, errHash := security.HashPassword("secret-pass")
	if errHash != nil {
		t.Fatalf("hash password: %v", errHash)
	}
	if errCreate := db.Create(&models.User{Username: "admin", Password: hash, Role: "admin"}).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}

	lifecycle := tokens.NewLifecycle(security.NewJWTCodec("test-secret"), nil)
	router := gin.New()
	RegisterRoutes(router, db, lifecycle, config.JWTConfig{
		Secret:          "test-secret",
		LoginExpiresIn:  "7d",
		CreateExpiresIn: "99y",
	})
	return router, db
}

func login(t *testing.T, router *gin.Engine) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "secret-pass"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("login failed: %d (%s)", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode login response: %v", errDecode)
	}
	return resp.Token
}

func authedRequest(router *gin.Engine, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRoutesRequireToken(t *testing.T) {
	router, _ := setupAPITest(t)

	w := authedRequest(router, http.MethodGet, "/api/cards", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without token, got %d", w.Code)
	}
	w = authedRequest(router, http.MethodGet, "/api/cards", "garbage", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 with malformed token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/cards", nil)
	req.Header.Set("Authorization", "Token something")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for non-bearer scheme, got %d", w.Code)
	}
}

func TestHealthzIsPublic(t *testing.T) {
	router, _ := setupAPITest(t)
	w := authedRequest(router, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestLoginTokenGrantsAccess(t *testing.T) {
	router, _ := setupAPITest(t)
	token := login(t, router)

	w := authedRequest(router, http.MethodGet, "/api/cards", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", w.Code, w.Body.String())
	}
	w = authedRequest(router, http.MethodGet, "/api/auth/verify", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestRevokedTokenIsRejected(t *testing.T) {
	router, db := setupAPITest(t)
	first := login(t, router)
	second := login(t, router)

	// Find the first token's record id and revoke it using the second token.
	var record models.TokenRecord
	if errFind := db.First(&record, "token = ?", first).Error; errFind != nil {
		t.Fatalf("find token record: %v", errFind)
	}
	w := authedRequest(router, http.MethodDelete, "/api/auth/tokens/"+record.ID, second, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("revoke failed: %d (%s)", w.Code, w.Body.String())
	}

	w = authedRequest(router, http.MethodGet, "/api/cards", first, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for revoked token, got %d", w.Code)
	}
	var resp struct {
		Error string `json:"error"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &resp); errDecode != nil {
		t.Fatalf("decode response: %v", errDecode)
	}
	if resp.Error != "token revoked" {
		t.Fatalf("expected token revoked error, got %q", resp.Error)
	}

	// The second token keeps working.
	w = authedRequest(router, http.MethodGet, "/api/cards", second, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}
