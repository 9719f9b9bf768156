// Package app wires configuration, logging, storage, and routing into a
// runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/jasonk0/card-count/internal/config"
	"github.com/jasonk0/card-count/internal/db"
	"github.com/jasonk0/card-count/internal/http/api"
	"github.com/jasonk0/card-count/internal/logging"
	"github.com/jasonk0/card-count/internal/security"
	"github.com/jasonk0/card-count/internal/tokens"
)

// Run boots the server from the config at path and blocks until shutdown.
func Run(configPath string) error {
	cfg, errLoad := config.Load(config.ResolveConfigPath(configPath))
	if errLoad != nil {
		return errLoad
	}
	logging.Setup(cfg.Log)

	if cfg.JWT.Secret == "" {
		return fmt.Errorf("app: jwt secret is not configured")
	}

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errSeed := db.EnsureAdmin(conn, cfg.Admin.Username, cfg.Admin.Password); errSeed != nil {
		return errSeed
	}

	lifecycle := tokens.NewLifecycle(security.NewJWTCodec(cfg.JWT.Secret), nil)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(logging.RequestLogger(), gin.Recovery())
	api.RegisterRoutes(engine, conn, lifecycle, cfg.JWT)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.Server.Addr)
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case errServe := <-errCh:
		return errServe
	case sig := <-quit:
		log.Infof("received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		return errShutdown
	}
	if sqlDB, errDB := conn.DB(); errDB == nil {
		_ = sqlDB.Close()
	}
	return nil
}
