package service

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"surveypoints/internal/config"
	"surveypoints/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBSeq int64

// setupTestDB 每个测试独立的内存数据库
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&model.User{},
		&model.Category{},
		&model.PointTransaction{},
		&model.Survey{},
		&model.SurveyQuestion{},
		&model.SurveyResponse{},
		&model.DataMarketListing{},
		&model.DataPurchase{},
		&model.Notification{},
		&model.UserNotificationRead{},
		&model.NotificationPointClaim{},
		&model.LotteryEvent{},
		&model.LotteryEntry{},
		&model.OutboxMessage{},
	)
	require.NoError(t, err)

	return db
}

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func testConfig() *config.Config {
	return &config.Config{
		Business: config.BusinessConfig{
			ProfileBonusPoints: 500,
			SurveyMinBudget:    1000,
			SurveyBudgetStep:   100,
			SurveyMinResponses: 10,
			SurveyResponseStep: 10,
			MaxRetryCount:      3,
		},
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				PointEvents:        "point-events",
				NotificationEvents: "notification-events",
			},
		},
	}
}

func createTestUser(t *testing.T, db *gorm.DB, email string, points int64) *model.User {
	t.Helper()
	user := &model.User{
		Email:    email,
		Username: "测试用户",
		Points:   points,
		Role:     model.RoleUser,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestSurvey(t *testing.T, db *gorm.DB, creatorID int64, reward, budget, maxResponses int64) *model.Survey {
	t.Helper()
	survey := &model.Survey{
		CreatorID:    creatorID,
		Title:        "消费习惯调查",
		CategoryID:   1,
		RewardPoints: reward,
		TotalBudget:  budget,
		MaxResponses: maxResponses,
		Deadline:     time.Now().Add(24 * time.Hour),
		Status:       model.SurveyStatusActive,
	}
	require.NoError(t, db.Create(survey).Error)
	return survey
}

func balanceOf(t *testing.T, db *gorm.DB, userID int64) int64 {
	t.Helper()
	var points int64
	require.NoError(t, db.Model(&model.User{}).Where("id = ?", userID).Pluck("points", &points).Error)
	return points
}
