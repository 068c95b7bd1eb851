package repository

import (
	"context"
	"errors"
	"time"

	"surveypoints/internal/model"

	"gorm.io/gorm"
)

var (
	ErrSurveyNotFound      = errors.New("问卷不存在")
	ErrSurveyStatusInvalid = errors.New("问卷状态不合法")
	ErrSurveyUnavailable   = errors.New("问卷已截止或回答数已达上限")
	ErrAlreadyResponded    = errors.New("已经回答过该问卷")
)

type SurveyRepository struct {
	db *gorm.DB
}

func NewSurveyRepository(db *gorm.DB) *SurveyRepository {
	return &SurveyRepository{db: db}
}

func (r *SurveyRepository) Create(ctx context.Context, tx *gorm.DB, survey *model.Survey) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(survey).Error
}

func (r *SurveyRepository) GetByID(ctx context.Context, surveyID int64) (*model.Survey, error) {
	return r.getByID(ctx, r.db, surveyID)
}

func (r *SurveyRepository) getByID(ctx context.Context, tx *gorm.DB, surveyID int64) (*model.Survey, error) {
	var survey model.Survey
	err := tx.WithContext(ctx).Where("id = ?", surveyID).First(&survey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSurveyNotFound
		}
		return nil, err
	}
	return &survey, nil
}

func (r *SurveyRepository) List(ctx context.Context, categoryID int64, search string, page, pageSize int) ([]*model.Survey, int64, error) {
	var surveys []*model.Survey
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Survey{}).Where("status = ?", model.SurveyStatusActive)
	if categoryID > 0 {
		query = query.Where("category_id = ?", categoryID)
	}
	if search != "" {
		query = query.Where("title LIKE ?", "%"+search+"%")
	}

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&surveys).Error

	return surveys, total, err
}

func (r *SurveyRepository) ListByCreator(ctx context.Context, creatorID int64) ([]*model.Survey, error) {
	var surveys []*model.Survey
	err := r.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("created_at DESC").
		Find(&surveys).Error
	return surveys, err
}

// UpdateStatus 带状态机校验的条件更新，WHERE 里带上原状态防止并发覆盖
func (r *SurveyRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, surveyID int64, fromStatus, toStatus string) error {
	if !model.CanTransitionSurvey(fromStatus, toStatus) {
		return ErrSurveyStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Survey{}).
		Where("id = ? AND status = ?", surveyID, fromStatus).
		Update("status", toStatus)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSurveyStatusInvalid
	}
	return nil
}

// IncrementResponses 回答计数的条件自增
//
// 【关键点】募集中、未过截止、未满上限三个前置条件全部放进 WHERE，
// 两个并发提交不可能把同一个计数值写两次（丢失更新），
// 也不可能把计数推过 max_responses
func (r *SurveyRepository) IncrementResponses(ctx context.Context, tx *gorm.DB, surveyID int64, now time.Time) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Survey{}).
		Where("id = ? AND status = ? AND deadline > ? AND current_responses < max_responses",
			surveyID, model.SurveyStatusActive, now).
		Update("current_responses", gorm.Expr("current_responses + 1"))

	if result.Error != nil {
		return result.Error
	}

	// 区分原因的回查走同一个事务连接，避免跨连接读到不同快照
	if result.RowsAffected == 0 {
		if _, err := r.getByID(ctx, tx, surveyID); err != nil {
			return err
		}
		return ErrSurveyUnavailable
	}
	return nil
}

// GetExpired 查询已过截止时间但仍在募集中的问卷
func (r *SurveyRepository) GetExpired(ctx context.Context, limit int) ([]*model.Survey, error) {
	var surveys []*model.Survey
	err := r.db.WithContext(ctx).
		Where("status = ? AND deadline < ?", model.SurveyStatusActive, time.Now()).
		Limit(limit).
		Find(&surveys).Error
	return surveys, err
}

func (r *SurveyRepository) Delete(ctx context.Context, tx *gorm.DB, surveyID int64) error {
	if tx == nil {
		tx = r.db
	}
	if err := tx.WithContext(ctx).Where("survey_id = ?", surveyID).Delete(&model.SurveyResponse{}).Error; err != nil {
		return err
	}
	if err := tx.WithContext(ctx).Where("survey_id = ?", surveyID).Delete(&model.SurveyQuestion{}).Error; err != nil {
		return err
	}
	return tx.WithContext(ctx).Where("id = ?", surveyID).Delete(&model.Survey{}).Error
}

// ============================================================
// 题目
// ============================================================

func (r *SurveyRepository) CreateQuestions(ctx context.Context, tx *gorm.DB, questions []*model.SurveyQuestion) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(questions).Error
}

func (r *SurveyRepository) GetQuestions(ctx context.Context, surveyID int64) ([]*model.SurveyQuestion, error) {
	var questions []*model.SurveyQuestion
	err := r.db.WithContext(ctx).
		Where("survey_id = ?", surveyID).
		Order("order_index ASC").
		Find(&questions).Error
	return questions, err
}

// ============================================================
// 回答
// ============================================================

// CreateResponse 写入回答记录，唯一索引冲突映射为 ErrAlreadyResponded
func (r *SurveyRepository) CreateResponse(ctx context.Context, tx *gorm.DB, response *model.SurveyResponse) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(response).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyResponded
		}
		return err
	}
	return nil
}

func (r *SurveyRepository) GetResponses(ctx context.Context, surveyID int64, limit int) ([]*model.SurveyResponse, error) {
	var responses []*model.SurveyResponse
	query := r.db.WithContext(ctx).
		Where("survey_id = ?", surveyID).
		Order("submitted_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&responses).Error
	return responses, err
}

func (r *SurveyRepository) HasResponded(ctx context.Context, surveyID, respondentID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.SurveyResponse{}).
		Where("survey_id = ? AND respondent_id = ?", surveyID, respondentID).
		Count(&count).Error
	return count > 0, err
}

// ============================================================
// 分类
// ============================================================

func (r *SurveyRepository) ListCategories(ctx context.Context) ([]*model.Category, error) {
	var categories []*model.Category
	err := r.db.WithContext(ctx).Order("id ASC").Find(&categories).Error
	return categories, err
}
