package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"surveypoints/internal/model"
	"surveypoints/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSurveyDebitsBudget(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := NewSurveyService(db, testConfig())

	creator := createTestUser(t, db, "creator@test.com", 2000)

	survey, err := svc.CreateSurvey(ctx, &CreateSurveyRequest{
		CreatorID:    creator.ID,
		Title:        "消费习惯调查",
		CategoryID:   1,
		TotalBudget:  1000,
		MaxResponses: 10,
		Deadline:     time.Now().Add(24 * time.Hour),
		Questions: []QuestionInput{
			{QuestionText: "每月外食次数", QuestionType: model.QuestionTypeText, IsRequired: true},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(100), survey.RewardPoints)
	assert.Equal(t, model.SurveyStatusActive, survey.Status)
	assert.Equal(t, int64(1000), balanceOf(t, db, creator.ID))

	var trans model.PointTransaction
	require.NoError(t, db.Where("user_id = ?", creator.ID).First(&trans).Error)
	assert.Equal(t, model.TransactionTypeSurveyCreation, trans.Type)
	assert.Equal(t, int64(-1000), trans.Amount)
}

func TestCreateSurveyValidation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := NewSurveyService(db, testConfig())

	creator := createTestUser(t, db, "creator@test.com", 10000)
	questions := []QuestionInput{{QuestionText: "Q", QuestionType: model.QuestionTypeText}}
	deadline := time.Now().Add(24 * time.Hour)

	// 预算低于下限
	_, err := svc.CreateSurvey(ctx, &CreateSurveyRequest{
		CreatorID: creator.ID, Title: "t", CategoryID: 1,
		TotalBudget: 900, MaxResponses: 10, Deadline: deadline, Questions: questions,
	})
	assert.ErrorIs(t, err, ErrInvalidBudget)

	// 预算不是步长的整数倍
	_, err = svc.CreateSurvey(ctx, &CreateSurveyRequest{
		CreatorID: creator.ID, Title: "t", CategoryID: 1,
		TotalBudget: 1050, MaxResponses: 10, Deadline: deadline, Questions: questions,
	})
	assert.ErrorIs(t, err, ErrInvalidBudget)

	// 回答人数不是步长的整数倍
	_, err = svc.CreateSurvey(ctx, &CreateSurveyRequest{
		CreatorID: creator.ID, Title: "t", CategoryID: 1,
		TotalBudget: 1000, MaxResponses: 15, Deadline: deadline, Questions: questions,
	})
	assert.ErrorIs(t, err, ErrInvalidMaxResponses)

	// 截止时间在过去
	_, err = svc.CreateSurvey(ctx, &CreateSurveyRequest{
		CreatorID: creator.ID, Title: "t", CategoryID: 1,
		TotalBudget: 1000, MaxResponses: 10, Deadline: time.Now().Add(-time.Hour), Questions: questions,
	})
	assert.ErrorIs(t, err, ErrInvalidDeadline)
}

func TestCreateSurveyInsufficientBalance(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := NewSurveyService(db, testConfig())

	creator := createTestUser(t, db, "poor@test.com", 500)

	_, err := svc.CreateSurvey(ctx, &CreateSurveyRequest{
		CreatorID:    creator.ID,
		Title:        "t",
		CategoryID:   1,
		TotalBudget:  1000,
		MaxResponses: 10,
		Deadline:     time.Now().Add(24 * time.Hour),
		Questions:    []QuestionInput{{QuestionText: "Q", QuestionType: model.QuestionTypeText}},
	})
	require.ErrorIs(t, err, repository.ErrBalanceNotEnough)

	// 扣款失败时问卷不能留下半成品记录
	var surveyCount, questionCount int64
	require.NoError(t, db.Model(&model.Survey{}).Count(&surveyCount).Error)
	require.NoError(t, db.Model(&model.SurveyQuestion{}).Count(&questionCount).Error)
	assert.Equal(t, int64(0), surveyCount)
	assert.Equal(t, int64(0), questionCount)
	assert.Equal(t, int64(500), balanceOf(t, db, creator.ID))
}

func submitTestResponse(t *testing.T, svc *SurveyService, surveyID, respondentID int64, answers map[string]interface{}) (*model.SurveyResponse, error) {
	t.Helper()
	return svc.SubmitResponse(context.Background(), &SubmitResponseRequest{
		SurveyID:     surveyID,
		RespondentID: respondentID,
		Answers:      answers,
	})
}

func TestSubmitResponseRewardsRespondent(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSurveyService(db, testConfig())

	creator := createTestUser(t, db, "creator@test.com", 0)
	respondent := createTestUser(t, db, "respondent@test.com", 0)
	survey := createTestSurvey(t, db, creator.ID, 100, 1000, 10)

	_, err := submitTestResponse(t, svc, survey.ID, respondent.ID, map[string]interface{}{"1": "外食多"})
	require.NoError(t, err)

	assert.Equal(t, int64(100), balanceOf(t, db, respondent.ID))

	var updated model.Survey
	require.NoError(t, db.First(&updated, survey.ID).Error)
	assert.Equal(t, int64(1), updated.CurrentResponses)

	var trans model.PointTransaction
	require.NoError(t, db.Where("user_id = ?", respondent.ID).First(&trans).Error)
	assert.Equal(t, model.TransactionTypeSurveyReward, trans.Type)
	assert.Equal(t, survey.ID, *trans.RelatedID)
}

func TestSubmitResponseDuplicateRejected(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSurveyService(db, testConfig())

	creator := createTestUser(t, db, "creator@test.com", 0)
	respondent := createTestUser(t, db, "respondent@test.com", 0)
	survey := createTestSurvey(t, db, creator.ID, 100, 1000, 10)

	_, err := submitTestResponse(t, svc, survey.ID, respondent.ID, map[string]interface{}{"1": "a"})
	require.NoError(t, err)

	_, err = submitTestResponse(t, svc, survey.ID, respondent.ID, map[string]interface{}{"1": "b"})
	require.ErrorIs(t, err, repository.ErrAlreadyResponded)

	// 重复提交整体回滚：报酬没有重复发放，计数也没有多加
	assert.Equal(t, int64(100), balanceOf(t, db, respondent.ID))

	var updated model.Survey
	require.NoError(t, db.First(&updated, survey.ID).Error)
	assert.Equal(t, int64(1), updated.CurrentResponses)
}

func TestSubmitResponseRequiredQuestion(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSurveyService(db, testConfig())

	creator := createTestUser(t, db, "creator@test.com", 0)
	respondent := createTestUser(t, db, "respondent@test.com", 0)
	survey := createTestSurvey(t, db, creator.ID, 100, 1000, 10)

	question := &model.SurveyQuestion{
		SurveyID:     survey.ID,
		QuestionText: "必答题",
		QuestionType: model.QuestionTypeText,
		IsRequired:   true,
	}
	require.NoError(t, db.Create(question).Error)

	// 未回答必答题
	_, err := submitTestResponse(t, svc, survey.ID, respondent.ID, map[string]interface{}{})
	assert.ErrorIs(t, err, ErrRequiredUnanswered)

	// 空字符串也视为未回答
	_, err = submitTestResponse(t, svc, survey.ID, respondent.ID,
		map[string]interface{}{strconv.FormatInt(question.ID, 10): ""})
	assert.ErrorIs(t, err, ErrRequiredUnanswered)

	_, err = submitTestResponse(t, svc, survey.ID, respondent.ID,
		map[string]interface{}{strconv.FormatInt(question.ID, 10): "回答"})
	assert.NoError(t, err)
}

func TestHasRespondedPrecheck(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := NewSurveyService(db, testConfig())

	creator := createTestUser(t, db, "creator@test.com", 0)
	respondent := createTestUser(t, db, "respondent@test.com", 0)
	survey := createTestSurvey(t, db, creator.ID, 100, 1000, 10)

	responded, err := svc.HasResponded(ctx, survey.ID, respondent.ID)
	require.NoError(t, err)
	assert.False(t, responded)

	_, err = submitTestResponse(t, svc, survey.ID, respondent.ID, map[string]interface{}{"1": "a"})
	require.NoError(t, err)

	responded, err = svc.HasResponded(ctx, survey.ID, respondent.ID)
	require.NoError(t, err)
	assert.True(t, responded)

	_, err = svc.HasResponded(ctx, 99999, respondent.ID)
	assert.ErrorIs(t, err, repository.ErrSurveyNotFound)
}

func TestSubmitResponseCapacityReached(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSurveyService(db, testConfig())

	creator := createTestUser(t, db, "creator@test.com", 0)
	survey := createTestSurvey(t, db, creator.ID, 100, 1000, 10)

	// 已有 9 个回答，第 10 个成功，之后拒绝
	require.NoError(t, db.Model(&model.Survey{}).Where("id = ?", survey.ID).
		Update("current_responses", 9).Error)

	tenth := createTestUser(t, db, "u10@test.com", 0)
	_, err := submitTestResponse(t, svc, survey.ID, tenth.ID, map[string]interface{}{"1": "a"})
	require.NoError(t, err)

	eleventh := createTestUser(t, db, "u11@test.com", 0)
	_, err = submitTestResponse(t, svc, survey.ID, eleventh.ID, map[string]interface{}{"1": "a"})
	assert.ErrorIs(t, err, repository.ErrSurveyUnavailable)
	assert.Equal(t, int64(0), balanceOf(t, db, eleventh.ID))
}

func TestSubmitResponseExpiredSurvey(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSurveyService(db, testConfig())

	creator := createTestUser(t, db, "creator@test.com", 0)
	respondent := createTestUser(t, db, "respondent@test.com", 0)
	survey := createTestSurvey(t, db, creator.ID, 100, 1000, 10)
	require.NoError(t, db.Model(&model.Survey{}).Where("id = ?", survey.ID).
		Update("deadline", time.Now().Add(-time.Hour)).Error)

	_, err := submitTestResponse(t, svc, survey.ID, respondent.ID, map[string]interface{}{"1": "a"})
	assert.ErrorIs(t, err, repository.ErrSurveyUnavailable)
}

func TestCloseSurveyRefundsUnusedBudget(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := NewSurveyService(db, testConfig())

	creator := createTestUser(t, db, "creator@test.com", 0)
	respondent := createTestUser(t, db, "respondent@test.com", 0)
	survey := createTestSurvey(t, db, creator.ID, 100, 1000, 10)

	_, err := submitTestResponse(t, svc, survey.ID, respondent.ID, map[string]interface{}{"1": "a"})
	require.NoError(t, err)

	refund, err := svc.CloseSurvey(ctx, creator.ID, survey.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(900), refund)
	assert.Equal(t, int64(900), balanceOf(t, db, creator.ID))

	var updated model.Survey
	require.NoError(t, db.First(&updated, survey.ID).Error)
	assert.Equal(t, model.SurveyStatusClosed, updated.Status)

	// 重复结束
	_, err = svc.CloseSurvey(ctx, creator.ID, survey.ID)
	assert.ErrorIs(t, err, repository.ErrSurveyStatusInvalid)

	// 结束后不再接受回答
	another := createTestUser(t, db, "late@test.com", 0)
	_, err = submitTestResponse(t, svc, survey.ID, another.ID, map[string]interface{}{"1": "a"})
	assert.ErrorIs(t, err, repository.ErrSurveyUnavailable)
}

func TestCloseSurveyOnlyOwner(t *testing.T) {
	db := setupTestDB(t)
	svc := NewSurveyService(db, testConfig())

	creator := createTestUser(t, db, "creator@test.com", 0)
	other := createTestUser(t, db, "other@test.com", 0)
	survey := createTestSurvey(t, db, creator.ID, 100, 1000, 10)

	_, err := svc.CloseSurvey(context.Background(), other.ID, survey.ID)
	assert.ErrorIs(t, err, ErrNotSurveyOwner)
}

func TestDeleteSurveyRefundsAndCascades(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := NewSurveyService(db, testConfig())

	creator := createTestUser(t, db, "creator@test.com", 0)
	respondent := createTestUser(t, db, "respondent@test.com", 0)
	survey := createTestSurvey(t, db, creator.ID, 100, 1000, 10)
	require.NoError(t, db.Create(&model.SurveyQuestion{
		SurveyID: survey.ID, QuestionText: "Q", QuestionType: model.QuestionTypeText,
	}).Error)
	require.NoError(t, db.Create(&model.DataMarketListing{
		SurveyID: survey.ID, SellerID: creator.ID, Title: "数据集", IsActive: true,
	}).Error)

	_, err := submitTestResponse(t, svc, survey.ID, respondent.ID, map[string]interface{}{"1": "a"})
	require.NoError(t, err)

	refund, err := svc.DeleteSurvey(ctx, creator.ID, survey.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(900), refund)
	assert.Equal(t, int64(900), balanceOf(t, db, creator.ID))

	var surveyCount, questionCount, responseCount int64
	require.NoError(t, db.Model(&model.Survey{}).Where("id = ?", survey.ID).Count(&surveyCount).Error)
	require.NoError(t, db.Model(&model.SurveyQuestion{}).Where("survey_id = ?", survey.ID).Count(&questionCount).Error)
	require.NoError(t, db.Model(&model.SurveyResponse{}).Where("survey_id = ?", survey.ID).Count(&responseCount).Error)
	assert.Equal(t, int64(0), surveyCount)
	assert.Equal(t, int64(0), questionCount)
	assert.Equal(t, int64(0), responseCount)

	// 关联数据集同步下架
	var listing model.DataMarketListing
	require.NoError(t, db.Where("survey_id = ?", survey.ID).First(&listing).Error)
	assert.False(t, listing.IsActive)

	// 流水类型为删除返还
	var trans model.PointTransaction
	require.NoError(t, db.Where("user_id = ? AND type = ?", creator.ID, model.TransactionTypeSurveyRefund).
		First(&trans).Error)
	assert.Equal(t, int64(900), trans.Amount)
}

func TestDeleteSurveyAfterCloseDoesNotRefundAgain(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := NewSurveyService(db, testConfig())

	creator := createTestUser(t, db, "creator@test.com", 0)
	respondent := createTestUser(t, db, "respondent@test.com", 0)
	survey := createTestSurvey(t, db, creator.ID, 100, 1000, 10)

	_, err := submitTestResponse(t, svc, survey.ID, respondent.ID, map[string]interface{}{"1": "a"})
	require.NoError(t, err)

	refund, err := svc.CloseSurvey(ctx, creator.ID, survey.ID)
	require.NoError(t, err)
	require.Equal(t, int64(900), refund)

	// 结束时已返还过，删除不能再返还一次
	refund, err = svc.DeleteSurvey(ctx, creator.ID, survey.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), refund)
	assert.Equal(t, int64(900), balanceOf(t, db, creator.ID))

	var refundCount int64
	require.NoError(t, db.Model(&model.PointTransaction{}).
		Where("user_id = ? AND type = ?", creator.ID, model.TransactionTypeSurveyRefund).
		Count(&refundCount).Error)
	assert.Equal(t, int64(0), refundCount)

	// 发放总额（报酬 + 返还）不超过预算
	var credited int64
	require.NoError(t, db.Model(&model.PointTransaction{}).
		Where("amount > 0").
		Select("COALESCE(SUM(amount), 0)").
		Scan(&credited).Error)
	assert.Equal(t, int64(1000), credited)
}

func TestConcurrentSubmitLastSlot(t *testing.T) {
	db := setupTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	svc := NewSurveyService(db, testConfig())

	creator := createTestUser(t, db, "creator@test.com", 0)
	first := createTestUser(t, db, "u1@test.com", 0)
	second := createTestUser(t, db, "u2@test.com", 0)
	survey := createTestSurvey(t, db, creator.ID, 100, 1000, 10)
	require.NoError(t, db.Model(&model.Survey{}).Where("id = ?", survey.ID).
		Update("current_responses", 9).Error)

	// 最后一个名额被两个用户同时抢，只能成功一个
	errCh := make(chan error, 2)
	for _, uid := range []int64{first.ID, second.ID} {
		go func(respondentID int64) {
			_, err := submitTestResponse(t, svc, survey.ID, respondentID, map[string]interface{}{"1": "a"})
			errCh <- err
		}(uid)
	}

	var successes, rejections int
	for i := 0; i < 2; i++ {
		switch err := <-errCh; {
		case err == nil:
			successes++
		case errors.Is(err, repository.ErrSurveyUnavailable):
			rejections++
		default:
			t.Fatalf("预期之外的错误: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, rejections)

	var updated model.Survey
	require.NoError(t, db.First(&updated, survey.ID).Error)
	assert.Equal(t, int64(10), updated.CurrentResponses)

	var responseCount, rewardCount int64
	require.NoError(t, db.Model(&model.SurveyResponse{}).
		Where("survey_id = ?", survey.ID).Count(&responseCount).Error)
	require.NoError(t, db.Model(&model.PointTransaction{}).
		Where("type = ?", model.TransactionTypeSurveyReward).Count(&rewardCount).Error)
	assert.Equal(t, int64(1), responseCount)
	assert.Equal(t, int64(1), rewardCount)
}

func TestExportResponsesCSV(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	svc := NewSurveyService(db, testConfig())

	creator := createTestUser(t, db, "creator@test.com", 0)
	respondent := createTestUser(t, db, "respondent@test.com", 0)
	survey := createTestSurvey(t, db, creator.ID, 100, 1000, 10)

	question := &model.SurveyQuestion{
		SurveyID:     survey.ID,
		QuestionText: "喜欢的食物",
		QuestionType: model.QuestionTypeMultipleChoice,
	}
	require.NoError(t, db.Create(question).Error)

	// 答案里混入逗号和多选数组，验证 CSV 引号规则和分号连接
	answers := map[string]interface{}{
		strconv.FormatInt(question.ID, 10): []interface{}{"寿司, 拉面", "咖喱"},
	}
	_, err := submitTestResponse(t, svc, survey.ID, respondent.ID, answers)
	require.NoError(t, err)

	data, err := svc.ExportResponsesCSV(ctx, creator.ID, survey.ID)
	require.NoError(t, err)

	// UTF-8 BOM 前缀
	require.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))

	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})))
	records, err := reader.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, []string{"respondent_id", "respondent_name", "submitted_at", "喜欢的食物"}, records[0])
	assert.Equal(t, fmt.Sprintf("%d", respondent.ID), records[1][0])
	assert.Equal(t, "测试用户", records[1][1])
	assert.Equal(t, "寿司, 拉面; 咖喱", records[1][3])

	// 非创建者不能导出
	_, err = svc.ExportResponsesCSV(ctx, respondent.ID, survey.ID)
	assert.ErrorIs(t, err, ErrNotSurveyOwner)
}
