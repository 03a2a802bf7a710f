package db

import (
	"errors"
	"fmt"
	"strings"

	"nudfans-backend/models"
	"nudfans-backend/utils"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Models lists every table AutoMigrate manages.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.CreatorProfile{},
		&models.Post{},
		&models.PostMedia{},
		&models.PostLike{},
		&models.Comment{},
		&models.CommentLike{},
		&models.Report{},
		&models.Follower{},
		&models.Subscription{},
		&models.PpvPurchase{},
		&models.Tip{},
		&models.Transaction{},
		&models.Notification{},
		&models.Conversation{},
		&models.Message{},
		&models.WebhookEvent{},
	}
}

// Open connects to Postgres. TranslateError makes unique violations surface as
// gorm.ErrDuplicatedKey.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("DB_URL is not set")
	}
	database, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         utils.GetGormLogger(),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to the database: %w", err)
	}
	utils.LogSuccess("Database connection successful")
	return database, nil
}

// Migrate runs AutoMigrate then creates the partial unique indexes GORM tags cannot express.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return createConstraints(database)
}

// The statements are valid on both Postgres and SQLite.
var constraints = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_subscriptions_active_pair
		ON subscriptions (subscriber_id, creator_id) WHERE status = 'active'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_ppv_purchases_completed_pair
		ON ppv_purchases (buyer_id, post_id) WHERE status = 'completed'`,
}

func createConstraints(database *gorm.DB) error {
	for _, stmt := range constraints {
		if err := database.Exec(stmt).Error; err != nil {
			return fmt.Errorf("creating constraint: %w", err)
		}
	}
	return nil
}

// IsUniqueViolation reports whether err comes from a unique index. Drivers that do not
// translate errors are matched on their message.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
