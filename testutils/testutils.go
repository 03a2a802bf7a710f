package testutils

import (
	"io"
	"log"
	"testing"
	"time"

	"nudfans-backend/db"
	"nudfans-backend/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func silentLogger() logger.Interface {
	return logger.New(
		log.New(io.Discard, "", log.LstdFlags),
		logger.Config{
			LogLevel: logger.Silent,
		},
	)
}

// SetupTestDB returns a Postgres-dialect gorm DB backed by sqlmock. It is used for the
// database failure paths.
func SetupTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, func()) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("could not create sqlmock connection: %s", err)
	}

	dialector := postgres.New(postgres.Config{
		Conn:       sqlDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger:         silentLogger(),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("could not open gorm on sqlmock: %s", err)
	}

	cleanup := func() {
		sqlDB.Close()
	}

	return gormDB, mock, cleanup
}

// SetupSQLiteDB returns a migrated in-memory database. A single connection keeps every
// query on the same memory database.
func SetupSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         silentLogger(),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("could not open sqlite: %s", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		t.Fatalf("could not get sql.DB: %s", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.Migrate(gormDB); err != nil {
		t.Fatalf("could not migrate: %s", err)
	}
	return gormDB
}

func SetupTestRouter() *gin.Engine {
	r := gin.New()
	return r
}

func InitTestMain() {
	gin.SetMode(gin.TestMode)
}

// CreateUser inserts a user of the given type.
func CreateUser(t *testing.T, database *gorm.DB, username string, userType models.UserType) *models.User {
	t.Helper()
	user := &models.User{
		Email:    username + "@example.com",
		Password: "hashed",
		UserName: username,
		Role:     models.UserRole,
		UserType: userType,
		Enable:   true,
	}
	if err := database.Create(user).Error; err != nil {
		t.Fatalf("creating user %s: %s", username, err)
	}
	return user
}

// CreateCreator inserts a creator user and its profile.
func CreateCreator(t *testing.T, database *gorm.DB, username string, priceCents int64) (*models.User, *models.CreatorProfile) {
	t.Helper()
	user := CreateUser(t, database, username, models.CreatorType)
	profile := &models.CreatorProfile{
		UserID:                 user.ID,
		SubscriptionPriceCents: priceCents,
	}
	if err := database.Create(profile).Error; err != nil {
		t.Fatalf("creating creator profile: %s", err)
	}
	profile.User = user
	return user, profile
}

// CreatePost inserts an enabled post with one image.
func CreatePost(t *testing.T, database *gorm.DB, creatorID string, postType models.PostType, ppvCents int64) *models.Post {
	t.Helper()
	post := &models.Post{
		CreatorID:     creatorID,
		Content:       "post content",
		PostType:      postType,
		PpvPriceCents: ppvCents,
		Enable:        true,
		Media: []models.PostMedia{
			{Type: models.MediaImage, URL: "https://cdn.example.com/full/" + string(postType) + ".jpg", FileKey: "posts/" + string(postType), Position: 0},
		},
	}
	if err := database.Create(post).Error; err != nil {
		t.Fatalf("creating post: %s", err)
	}
	return post
}

// CreateSubscription inserts a subscription row directly.
func CreateSubscription(t *testing.T, database *gorm.DB, subscriberID, creatorID string, status models.SubscriptionStatus, periodEnd time.Time) *models.Subscription {
	t.Helper()
	sub := &models.Subscription{
		SubscriberID:           subscriberID,
		CreatorID:              creatorID,
		Status:                 status,
		ProviderSubscriptionId: "sub_" + subscriberID[:8],
		CurrentPeriodStart:     periodEnd.AddDate(0, -1, 0),
		CurrentPeriodEnd:       periodEnd,
		PriceAtPurchaseCents:   1999,
		Currency:               "brl",
	}
	if err := database.Create(sub).Error; err != nil {
		t.Fatalf("creating subscription: %s", err)
	}
	return sub
}
