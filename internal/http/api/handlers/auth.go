package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/jasonk0/card-count/internal/config"
	"github.com/jasonk0/card-count/internal/models"
	"github.com/jasonk0/card-count/internal/security"
	"github.com/jasonk0/card-count/internal/tokens"
	"github.com/jasonk0/card-count/internal/util"
)

// Context keys set by the auth middleware.
const (
	// CtxClaimsKey holds the authenticated tokens.Claims.
	CtxClaimsKey = "authClaims"
	// CtxTokenKey holds the raw bearer credential of the current request.
	CtxTokenKey = "authToken"
)

// AuthHandler handles login, password changes, and token management.
type AuthHandler struct {
	db        *gorm.DB          // Database handle for user and token queries.
	lifecycle *tokens.Lifecycle // Token state machine.
	jwtCfg    config.JWTConfig  // Default expiry settings.
}

// NewAuthHandler wires an auth handler with its dependencies.
func NewAuthHandler(db *gorm.DB, lifecycle *tokens.Lifecycle, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{db: db, lifecycle: lifecycle, jwtCfg: jwtCfg}
}

// claimsFromContext extracts the middleware-stored claims.
func claimsFromContext(c *gin.Context) (tokens.Claims, bool) {
	value, ok := c.Get(CtxClaimsKey)
	if !ok {
		return tokens.Claims{}, false
	}
	claims, ok := value.(tokens.Claims)
	return claims, ok
}

// tokenFromContext extracts the middleware-stored raw credential.
func tokenFromContext(c *gin.Context) string {
	return c.GetString(CtxTokenKey)
}

// formatUser maps claims into the user payload returned by auth endpoints.
func formatUser(claims tokens.Claims) gin.H {
	return gin.H{
		"id":       claims.UserID,
		"username": claims.Username,
		"role":     claims.Role,
	}
}

// loginRequest captures the login payload.
type loginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	ExpiresIn string `json:"expiresIn"`
}

// Login verifies credentials and issues a login-source token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username or password"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("username = ?", username).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if !security.CheckPassword(user.Password, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}

	expiresIn := strings.TrimSpace(body.ExpiresIn)
	if expiresIn == "" {
		expiresIn = h.jwtCfg.LoginExpiresIn
	}
	duration, errParse := tokens.ParseExpiresIn(expiresIn)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expiresIn"})
		return
	}

	record, errIssue := h.lifecycle.Issue(user, duration, models.TokenSourceLogin, "login token")
	if errIssue != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&record).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save token failed"})
		return
	}

	log.WithFields(log.Fields{"username": user.Username, "token": util.MaskToken(record.Token)}).Info("user logged in")
	c.JSON(http.StatusOK, gin.H{
		"message":   "login successful",
		"token":     record.Token,
		"expiresAt": record.ExpiresAt,
		"user":      formatUser(tokens.Claims{UserID: user.ID, Username: user.Username, Role: user.Role}),
	})
}

// Verify confirms the current token and returns its user claims.
func (h *AuthHandler) Verify(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "token valid",
		"user":    formatUser(claims),
	})
}

// changePasswordRequest captures the password change payload.
type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword verifies the current password and stores a new hash.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body changePasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.CurrentPassword == "" || body.NewPassword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing current or new password"})
		return
	}
	if len(body.NewPassword) < 6 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "new password too short"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	if !security.CheckPassword(user.Password, body.CurrentPassword) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "current password incorrect"})
		return
	}

	hash, errHash := security.HashPassword(body.NewPassword)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}
	if errSave := h.db.WithContext(c.Request.Context()).Model(&user).
		Update("password", hash).Error; errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update password failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

// createTokenRequest captures the manual token creation payload.
type createTokenRequest struct {
	ExpiresIn   string `json:"expiresIn"`
	Description string `json:"description"`
}

// CreateToken issues a manual-source token for the current user.
func (h *AuthHandler) CreateToken(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body createTokenRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	expiresIn := strings.TrimSpace(body.ExpiresIn)
	if expiresIn == "" {
		expiresIn = h.jwtCfg.CreateExpiresIn
	}
	duration, errParse := tokens.ParseExpiresIn(expiresIn)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expiresIn"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}

	description := strings.TrimSpace(body.Description)
	if description == "" {
		description = "API token"
	}
	record, errIssue := h.lifecycle.Issue(user, duration, models.TokenSourceManual, description)
	if errIssue != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&record).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save token failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":     "token created",
		"token":       record.Token,
		"expiresAt":   record.ExpiresAt,
		"description": record.Description,
		"createdAt":   record.CreatedAt,
	})
}

// TokenInfo reports the claims and time remaining of the current token.
func (h *AuthHandler) TokenInfo(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":          formatUser(claims),
		"issuedAt":      claims.IssuedAt,
		"expiresAt":     claims.ExpiresAt,
		"timeRemaining": int64(time.Until(claims.ExpiresAt) / time.Second),
	})
}

// formatTokenStatus maps an annotated token record into a response payload.
func formatTokenStatus(status tokens.Status) gin.H {
	return gin.H{
		"id":             status.ID,
		"token":          status.Token,
		"userId":         status.UserID,
		"username":       status.Username,
		"description":    status.Description,
		"source":         status.Source,
		"isActive":       status.IsActive,
		"createdAt":      status.CreatedAt,
		"expiresAt":      status.ExpiresAt,
		"isExpired":      status.IsExpired,
		"timeRemaining":  status.TimeRemaining,
		"isCurrentToken": status.IsCurrentToken,
		"revokedAt":      status.RevokedAt,
		"revokedBy":      status.RevokedBy,
	}
}

// ListTokens returns every token record annotated with validity state.
func (h *AuthHandler) ListTokens(c *gin.Context) {
	var records []models.TokenRecord
	if errFind := h.db.WithContext(c.Request.Context()).Find(&records).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list tokens failed"})
		return
	}
	statuses := h.lifecycle.ListWithStatus(records, tokenFromContext(c))
	out := make([]gin.H, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, formatTokenStatus(status))
	}
	c.JSON(http.StatusOK, out)
}

// RevokeToken deactivates a token record. The current token cannot revoke
// itself.
func (h *AuthHandler) RevokeToken(c *gin.Context) {
	claims, ok := claimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	tokenID := strings.TrimSpace(c.Param("id"))

	var records []models.TokenRecord
	if errFind := h.db.WithContext(c.Request.Context()).Find(&records).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list tokens failed"})
		return
	}
	revoked, errRevoke := h.lifecycle.Revoke(records, tokenID, tokenFromContext(c), claims.Username)
	if errRevoke != nil {
		switch {
		case errors.Is(errRevoke, tokens.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "token not found"})
		case errors.Is(errRevoke, tokens.ErrRevokeCurrent):
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot revoke the current token"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "revoke token failed"})
		}
		return
	}

	if errSave := h.db.WithContext(c.Request.Context()).Model(&models.TokenRecord{}).
		Where("id = ?", revoked.ID).
		Updates(map[string]any{
			"is_active":  false,
			"revoked_at": revoked.RevokedAt,
			"revoked_by": revoked.RevokedBy,
		}).Error; errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "revoke token failed"})
		return
	}
	log.WithFields(log.Fields{"tokenId": revoked.ID, "revokedBy": claims.Username}).Info("token revoked")
	c.JSON(http.StatusOK, gin.H{
		"message": "token revoked",
		"revokedToken": gin.H{
			"id":          revoked.ID,
			"description": revoked.Description,
			"createdAt":   revoked.CreatedAt,
		},
	})
}

// DeleteToken permanently removes a token record. The current token cannot
// delete itself.
func (h *AuthHandler) DeleteToken(c *gin.Context) {
	tokenID := strings.TrimSpace(c.Param("id"))

	var records []models.TokenRecord
	if errFind := h.db.WithContext(c.Request.Context()).Find(&records).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list tokens failed"})
		return
	}
	target, errDelete := h.lifecycle.Delete(records, tokenID, tokenFromContext(c))
	if errDelete != nil {
		switch {
		case errors.Is(errDelete, tokens.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "token not found"})
		case errors.Is(errDelete, tokens.ErrDeleteCurrent):
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete the current token"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "delete token failed"})
		}
		return
	}

	if errRemove := h.db.WithContext(c.Request.Context()).
		Delete(&models.TokenRecord{}, "id = ?", target.ID).Error; errRemove != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "token deleted",
		"deletedToken": gin.H{
			"id":          target.ID,
			"description": target.Description,
			"createdAt":   target.CreatedAt,
		},
	})
}

// CleanupTokens removes every expired or undecodable token record.
func (h *AuthHandler) CleanupTokens(c *gin.Context) {
	var records []models.TokenRecord
	if errFind := h.db.WithContext(c.Request.Context()).Find(&records).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list tokens failed"})
		return
	}

	survivors, removed := h.lifecycle.CleanupExpired(records)
	if removed > 0 {
		keep := make(map[string]struct{}, len(survivors))
		for _, record := range survivors {
			keep[record.ID] = struct{}{}
		}
		drop := make([]string, 0, removed)
		for _, record := range records {
			if _, ok := keep[record.ID]; !ok {
				drop = append(drop, record.ID)
			}
		}
		if errDelete := h.db.WithContext(c.Request.Context()).
			Delete(&models.TokenRecord{}, "id IN ?", drop).Error; errDelete != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cleanup tokens failed"})
			return
		}
		log.Infof("cleaned up %d expired tokens", removed)
	}
	c.JSON(http.StatusOK, gin.H{
		"message":      "expired tokens cleaned up",
		"cleanedCount": removed,
	})
}
