package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/veebeeyoukay/6-7game-beta/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory SQLite database with the full schema.
// Single connection: shared-cache SQLite drops tables when the last
// connection to a memory DB closes.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Family{},
		&models.Parent{},
		&models.Child{},
		&models.MollarTransaction{},
		&models.ValidationTask{},
		&models.ValidationRequest{},
		&models.ReferralEvent{},
		&models.Battle{},
		&models.BattleRound{},
		&models.NotificationEvent{},
		&models.LearningProgress{},
	))

	return db
}

func seedFamily(t *testing.T, db *gorm.DB, name string) *models.Family {
	t.Helper()
	family := &models.Family{ID: uuid.NewString(), Name: name, CreatedBy: uuid.NewString()}
	require.NoError(t, db.Create(family).Error)
	return family
}

func seedParent(t *testing.T, db *gorm.DB, familyID, referralCode string) *models.Parent {
	t.Helper()
	parent := &models.Parent{
		ID:           uuid.NewString(),
		FamilyID:     familyID,
		DisplayName:  "Test Parent",
		ReferralCode: referralCode,
	}
	require.NoError(t, db.Create(parent).Error)
	return parent
}

func seedChild(t *testing.T, db *gorm.DB, familyID, name string) *models.Child {
	t.Helper()
	child := &models.Child{
		ID:          uuid.NewString(),
		FamilyID:    familyID,
		DisplayName: name,
		Grade:       3,
		IsActive:    true,
	}
	require.NoError(t, db.Create(child).Error)
	return child
}

func seedTask(t *testing.T, db *gorm.DB, familyID string, reward int64) *models.ValidationTask {
	t.Helper()
	task := &models.ValidationTask{
		ID:            uuid.NewString(),
		FamilyID:      familyID,
		Name:          "Clean your room",
		Slug:          "clean-your-room",
		MollarsReward: reward,
		IsActive:      true,
	}
	require.NoError(t, db.Create(task).Error)
	return task
}

func backdate(t *testing.T, db *gorm.DB, model interface{}, id, column string, d time.Duration) {
	t.Helper()
	past := time.Now().Add(-d)
	require.NoError(t, db.Model(model).Where("id = ?", id).Update(column, past).Error)
}
