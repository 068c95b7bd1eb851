package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"surveypoints/internal/model"
	"surveypoints/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestNotification(t *testing.T, svc *NotificationService, reward int64, maxClaims *int64, deadline *time.Time) *model.Notification {
	t.Helper()
	notification, err := svc.CreateNotification(context.Background(), &CreateNotificationRequest{
		Title:         "新功能上线",
		Content:       "数据市场已开放",
		RewardPoints:  reward,
		MaxClaims:     maxClaims,
		ClaimDeadline: deadline,
	})
	require.NoError(t, err)
	return notification
}

func TestClaimNotificationPoints(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := NewNotificationService(db, setupTestRedis(t), testConfig())

	user := createTestUser(t, db, "user@test.com", 0)
	notification := createTestNotification(t, svc, 100, nil, nil)

	result, err := svc.ClaimPoints(ctx, user.ID, notification.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(100), result.PointsClaimed)
	assert.Equal(t, int64(100), balanceOf(t, db, user.ID))

	var updated model.Notification
	require.NoError(t, db.First(&updated, notification.ID).Error)
	assert.Equal(t, int64(1), updated.CurrentClaims)

	var trans model.PointTransaction
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&trans).Error)
	assert.Equal(t, model.TransactionTypeNotificationClaim, trans.Type)
}

func TestClaimNotificationIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := NewNotificationService(db, setupTestRedis(t), testConfig())

	user := createTestUser(t, db, "user@test.com", 0)
	notification := createTestNotification(t, svc, 100, nil, nil)

	_, err := svc.ClaimPoints(ctx, user.ID, notification.ID)
	require.NoError(t, err)

	// 重复领取拿到第一次的结果，不会二次入账
	result, err := svc.ClaimPoints(ctx, user.ID, notification.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(100), balanceOf(t, db, user.ID))

	var updated model.Notification
	require.NoError(t, db.First(&updated, notification.ID).Error)
	assert.Equal(t, int64(1), updated.CurrentClaims)
}

func TestClaimNotificationCapReached(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := NewNotificationService(db, setupTestRedis(t), testConfig())

	user1 := createTestUser(t, db, "u1@test.com", 0)
	user2 := createTestUser(t, db, "u2@test.com", 0)
	maxClaims := int64(1)
	notification := createTestNotification(t, svc, 100, &maxClaims, nil)

	_, err := svc.ClaimPoints(ctx, user1.ID, notification.ID)
	require.NoError(t, err)

	// 上限 1 人，第二个用户领取失败且不入账
	_, err = svc.ClaimPoints(ctx, user2.ID, notification.ID)
	require.ErrorIs(t, err, repository.ErrClaimUnavailable)
	assert.Equal(t, int64(0), balanceOf(t, db, user2.ID))

	var updated model.Notification
	require.NoError(t, db.First(&updated, notification.ID).Error)
	assert.Equal(t, int64(1), updated.CurrentClaims)
}

func TestConcurrentClaimSingleCap(t *testing.T) {
	db := setupTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	svc := NewNotificationService(db, setupTestRedis(t), testConfig())

	user1 := createTestUser(t, db, "u1@test.com", 0)
	user2 := createTestUser(t, db, "u2@test.com", 0)
	maxClaims := int64(1)
	notification := createTestNotification(t, svc, 100, &maxClaims, nil)

	// 上限 1 人，两个用户同时领取只能成功一个
	errCh := make(chan error, 2)
	for _, uid := range []int64{user1.ID, user2.ID} {
		go func(userID int64) {
			_, err := svc.ClaimPoints(context.Background(), userID, notification.ID)
			errCh <- err
		}(uid)
	}

	var successes, rejections int
	for i := 0; i < 2; i++ {
		switch err := <-errCh; {
		case err == nil:
			successes++
		case errors.Is(err, repository.ErrClaimUnavailable):
			rejections++
		default:
			t.Fatalf("预期之外的错误: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, rejections)

	var updated model.Notification
	require.NoError(t, db.First(&updated, notification.ID).Error)
	assert.Equal(t, int64(1), updated.CurrentClaims)

	var claimCount, transCount int64
	require.NoError(t, db.Model(&model.NotificationPointClaim{}).
		Where("notification_id = ?", notification.ID).Count(&claimCount).Error)
	require.NoError(t, db.Model(&model.PointTransaction{}).
		Where("type = ?", model.TransactionTypeNotificationClaim).Count(&transCount).Error)
	assert.Equal(t, int64(1), claimCount)
	assert.Equal(t, int64(1), transCount)
}

func TestClaimNotificationDeadlinePassed(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := NewNotificationService(db, setupTestRedis(t), testConfig())

	user := createTestUser(t, db, "user@test.com", 0)
	deadline := time.Now().Add(-time.Hour)
	notification := createTestNotification(t, svc, 100, nil, &deadline)

	_, err := svc.ClaimPoints(ctx, user.ID, notification.ID)
	assert.ErrorIs(t, err, repository.ErrClaimUnavailable)
	assert.Equal(t, int64(0), balanceOf(t, db, user.ID))
}

func TestClaimNotificationNoReward(t *testing.T) {
	db := setupTestDB(t)
	svc := NewNotificationService(db, setupTestRedis(t), testConfig())

	user := createTestUser(t, db, "user@test.com", 0)
	notification := createTestNotification(t, svc, 0, nil, nil)

	_, err := svc.ClaimPoints(context.Background(), user.ID, notification.ID)
	assert.ErrorIs(t, err, ErrNoReward)
}

func TestListNotificationsWithReadState(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := NewNotificationService(db, setupTestRedis(t), testConfig())

	user := createTestUser(t, db, "user@test.com", 0)
	first := createTestNotification(t, svc, 100, nil, nil)
	second := createTestNotification(t, svc, 0, nil, nil)

	require.NoError(t, svc.MarkRead(ctx, user.ID, first.ID))
	// 重复标记已读静默成功
	require.NoError(t, svc.MarkRead(ctx, user.ID, first.ID))

	_, err := svc.ClaimPoints(ctx, user.ID, first.ID)
	require.NoError(t, err)

	views, total, err := svc.ListForUser(ctx, user.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	byID := make(map[int64]*NotificationView, len(views))
	for _, v := range views {
		byID[v.Notification.ID] = v
	}
	assert.True(t, byID[first.ID].IsRead)
	assert.True(t, byID[first.ID].IsClaimed)
	assert.False(t, byID[second.ID].IsRead)
	assert.False(t, byID[second.ID].IsClaimed)
}

func TestCreateNotificationWritesOutbox(t *testing.T) {
	db := setupTestDB(t)
	svc := NewNotificationService(db, setupTestRedis(t), testConfig())

	createTestNotification(t, svc, 100, nil, nil)

	var msg model.OutboxMessage
	require.NoError(t, db.Where("topic = ?", "notification-events").First(&msg).Error)
	assert.Equal(t, model.OutboxStatusPending, msg.Status)
	assert.Contains(t, msg.Payload, "新功能上线")
}
