package job

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"surveypoints/internal/config"
	"surveypoints/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var jobTestSeq int64

func setupJobTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:jobdb%d?mode=memory&cache=shared", atomic.AddInt64(&jobTestSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Survey{},
		&model.PointTransaction{},
		&model.LotteryEvent{},
	))
	return db
}

func jobTestConfig() *config.Config {
	return &config.Config{
		Business: config.BusinessConfig{MaxRetryCount: 3},
	}
}

func TestSurveyDeadlineJobClosesAndRefunds(t *testing.T) {
	db := setupJobTestDB(t)
	ctx := context.Background()

	creator := &model.User{Email: "creator@test.com", Points: 0, Role: model.RoleUser}
	require.NoError(t, db.Create(creator).Error)

	// 到期问卷：10 个名额用了 4 个，应返还 6*100
	expired := &model.Survey{
		CreatorID:        creator.ID,
		Title:            "到期问卷",
		CategoryID:       1,
		RewardPoints:     100,
		TotalBudget:      1000,
		MaxResponses:     10,
		CurrentResponses: 4,
		Deadline:         time.Now().Add(-time.Hour),
		Status:           model.SurveyStatusActive,
	}
	require.NoError(t, db.Create(expired).Error)

	// 未到期问卷不受影响
	active := &model.Survey{
		CreatorID:    creator.ID,
		Title:        "募集中问卷",
		CategoryID:   1,
		RewardPoints: 100,
		TotalBudget:  1000,
		MaxResponses: 10,
		Deadline:     time.Now().Add(24 * time.Hour),
		Status:       model.SurveyStatusActive,
	}
	require.NoError(t, db.Create(active).Error)

	j := NewSurveyDeadlineJob(db, jobTestConfig())
	j.closeExpiredSurveys(ctx)

	var closedSurvey model.Survey
	require.NoError(t, db.First(&closedSurvey, expired.ID).Error)
	assert.Equal(t, model.SurveyStatusClosed, closedSurvey.Status)

	var activeSurvey model.Survey
	require.NoError(t, db.First(&activeSurvey, active.ID).Error)
	assert.Equal(t, model.SurveyStatusActive, activeSurvey.Status)

	var points int64
	require.NoError(t, db.Model(&model.User{}).Where("id = ?", creator.ID).Pluck("points", &points).Error)
	assert.Equal(t, int64(600), points)

	var trans model.PointTransaction
	require.NoError(t, db.Where("user_id = ? AND type = ?", creator.ID, model.TransactionTypeSurveyClosure).
		First(&trans).Error)
	assert.Equal(t, int64(600), trans.Amount)

	// 再跑一轮不会重复返还
	j.closeExpiredSurveys(ctx)
	require.NoError(t, db.Model(&model.User{}).Where("id = ?", creator.ID).Pluck("points", &points).Error)
	assert.Equal(t, int64(600), points)
}

func TestLotteryCloseJob(t *testing.T) {
	db := setupJobTestDB(t)
	ctx := context.Background()

	expired := &model.LotteryEvent{
		Title:     "已到期抽奖",
		EntryCost: 100,
		EndDate:   time.Now().Add(-time.Hour),
		Status:    model.LotteryStatusActive,
	}
	require.NoError(t, db.Create(expired).Error)

	j := NewLotteryCloseJob(db, jobTestConfig())
	j.closeExpiredEvents(ctx)

	var event model.LotteryEvent
	require.NoError(t, db.First(&event, expired.ID).Error)
	assert.Equal(t, model.LotteryStatusClosed, event.Status)
}
