// Package api registers the HTTP routes and the bearer-token middleware.
package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/jasonk0/card-count/internal/config"
	"github.com/jasonk0/card-count/internal/http/api/handlers"
	"github.com/jasonk0/card-count/internal/models"
	"github.com/jasonk0/card-count/internal/tokens"
)

// RegisterRoutes registers all API routes on the engine. Everything except
// login and the health check sits behind the token middleware.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, lifecycle *tokens.Lifecycle, jwtCfg config.JWTConfig) {
	if r == nil || db == nil || lifecycle == nil {
		return
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	root := r.Group("/api")

	authHandler := handlers.NewAuthHandler(db, lifecycle, jwtCfg)
	root.POST("/auth/login", authHandler.Login)

	authed := root.Group("")
	authed.Use(tokenAuthMiddleware(db, lifecycle))

	authed.GET("/auth/verify", authHandler.Verify)
	authed.POST("/auth/change-password", authHandler.ChangePassword)
	authed.POST("/auth/create-token", authHandler.CreateToken)
	authed.GET("/auth/token-info", authHandler.TokenInfo)
	authed.GET("/auth/tokens", authHandler.ListTokens)
	authed.DELETE("/auth/tokens/cleanup", authHandler.CleanupTokens)
	authed.DELETE("/auth/tokens/:id", authHandler.RevokeToken)
	authed.DELETE("/auth/tokens/:id/permanent", authHandler.DeleteToken)

	cardHandler := handlers.NewCardHandler(db)
	authed.GET("/cards", cardHandler.List)
	authed.POST("/cards", cardHandler.Create)
	authed.PUT("/cards", cardHandler.BatchUpdate)
	authed.GET("/cards/:id", cardHandler.Get)
	authed.PUT("/cards/:id", cardHandler.Update)
	authed.DELETE("/cards/:id", cardHandler.Delete)
	authed.POST("/cards/:id/pause", cardHandler.Pause)
	authed.POST("/cards/:id/resume", cardHandler.Resume)
	authed.PUT("/cards/:id/pauses/:pauseId", cardHandler.EditPause)
	authed.DELETE("/cards/:id/pauses/:pauseId", cardHandler.DeletePause)
	authed.GET("/cards/:id/records", cardHandler.Records)

	recordHandler := handlers.NewRecordHandler(db)
	authed.GET("/records", recordHandler.List)
	authed.POST("/records", recordHandler.Create)
	authed.PUT("/records", recordHandler.BatchUpdate)
	authed.DELETE("/records", recordHandler.BatchDelete)
	authed.POST("/records/batch", recordHandler.BatchCreate)
	authed.POST("/records/quick", recordHandler.Quick)
	authed.PUT("/records/:id", recordHandler.Update)
	authed.DELETE("/records/:id", recordHandler.Delete)

	transferHandler := handlers.NewTransferHandler(db)
	authed.GET("/export", transferHandler.Export)
	authed.POST("/import", transferHandler.Import)

	statsHandler := handlers.NewStatsHandler(db)
	authed.GET("/stats/dashboard", statsHandler.Dashboard)
}

// tokenAuthMiddleware validates the bearer credential against the stored
// token collection and loads the claims into the request context.
func tokenAuthMiddleware(db *gorm.DB, lifecycle *tokens.Lifecycle) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		var records []models.TokenRecord
		if errFind := db.WithContext(c.Request.Context()).Find(&records).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}

		claims, errAuth := lifecycle.Authenticate(token, records)
		if errAuth != nil {
			switch {
			case errors.Is(errAuth, tokens.ErrRevoked):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
			case errors.Is(errAuth, tokens.ErrExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token expired"})
			default:
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			}
			return
		}

		c.Set(handlers.CtxClaimsKey, claims)
		c.Set(handlers.CtxTokenKey, token)
		c.Next()
	}
}
