package db

import (
	"fmt"

	"github.com/auroralabs/aurora/internal/models"
	"gorm.io/gorm"
)

// Migrate applies the schema for all persisted models.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.User{},
		&models.Admin{},
		&models.UserCredit{},
		&models.CreditTransaction{},
		&models.UserLifetimeMembership{},
		&models.PaymentRecord{},
		&models.WebhookEvent{},
		&models.Setting{},
	)
}
