package service

import (
	"context"
	"testing"

	"surveypoints/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteProfileAwardsBonusOnce(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := NewUserService(db, testConfig())

	user := createTestUser(t, db, "user@test.com", 0)

	result, err := svc.CompleteProfile(ctx, &CompleteProfileRequest{
		UserID:    user.ID,
		Username:  "山田太郎",
		Gender:    "male",
		BirthDate: "1998-04-12",
	})
	require.NoError(t, err)
	assert.True(t, result.BonusAwarded)
	assert.Equal(t, int64(500), result.BonusPoints)
	assert.Equal(t, int64(500), balanceOf(t, db, user.ID))

	var updated model.User
	require.NoError(t, db.First(&updated, user.ID).Error)
	assert.True(t, updated.ProfileCompleted)
	assert.Equal(t, "山田太郎", updated.Username)
	require.NotNil(t, updated.BirthDate)

	// 再次提交资料不会重复发放
	result, err = svc.CompleteProfile(ctx, &CompleteProfileRequest{
		UserID:    user.ID,
		Username:  "山田太郎",
		Gender:    "male",
		BirthDate: "1998-04-12",
	})
	require.NoError(t, err)
	assert.False(t, result.BonusAwarded)
	assert.Equal(t, int64(500), balanceOf(t, db, user.ID))

	var bonusCount int64
	require.NoError(t, db.Model(&model.PointTransaction{}).
		Where("user_id = ? AND type = ?", user.ID, model.TransactionTypeProfileBonus).
		Count(&bonusCount).Error)
	assert.Equal(t, int64(1), bonusCount)
}

func TestCompleteProfileValidation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := NewUserService(db, testConfig())

	user := createTestUser(t, db, "user@test.com", 0)

	_, err := svc.CompleteProfile(ctx, &CompleteProfileRequest{
		UserID: user.ID, Username: "", Gender: "male", BirthDate: "1998-04-12",
	})
	assert.ErrorIs(t, err, ErrProfileIncomplete)

	_, err = svc.CompleteProfile(ctx, &CompleteProfileRequest{
		UserID: user.ID, Username: "山田", Gender: "male", BirthDate: "98/04/12",
	})
	assert.Error(t, err)
	assert.Equal(t, int64(0), balanceOf(t, db, user.ID))
}

func TestGetBalance(t *testing.T) {
	db := setupTestDB(t)
	svc := NewUserService(db, testConfig())

	user := createTestUser(t, db, "user@test.com", 1234)

	balance, err := svc.GetBalance(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), balance)
}
