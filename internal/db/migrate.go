package db

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/jasonk0/card-count/internal/models"
	"github.com/jasonk0/card-count/internal/security"
)

// Migrate creates or updates the schema for all application models.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.User{},
		&models.MembershipCard{},
		&models.UsageRecord{},
		&models.TokenRecord{},
	)
}

// EnsureAdmin seeds the configured account when it does not exist yet. An
// empty password skips seeding so a fresh deployment fails closed instead of
// shipping a default credential.
func EnsureAdmin(conn *gorm.DB, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		log.Warn("admin seed skipped: no credentials configured")
		return nil
	}

	var existing models.User
	errFind := conn.Where("username = ?", username).First(&existing).Error
	if errFind == nil {
		return nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: query admin user: %w", errFind)
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("db: hash admin password: %w", errHash)
	}
	user := models.User{
		Username: username,
		Password: hash,
		Role:     "admin",
	}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		return fmt.Errorf("db: create admin user: %w", errCreate)
	}
	log.Infof("seeded admin user %s", username)
	return nil
}
