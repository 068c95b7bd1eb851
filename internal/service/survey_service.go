package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"surveypoints/internal/config"
	"surveypoints/internal/model"
	"surveypoints/internal/repository"

	"gorm.io/gorm"
)

var (
	ErrNotSurveyOwner      = errors.New("只有问卷创建者可以执行该操作")
	ErrRequiredUnanswered  = errors.New("存在未回答的必答题")
	ErrInvalidBudget       = errors.New("预算不符合要求")
	ErrInvalidMaxResponses = errors.New("回答人数不符合要求")
	ErrInvalidDeadline     = errors.New("截止时间必须晚于当前时间")
)

type SurveyService struct {
	db         *gorm.DB
	cfg        *config.Config
	surveyRepo *repository.SurveyRepository
	userRepo   *repository.UserRepository
	marketRepo *repository.MarketRepository
	ledger     *LedgerService
}

func NewSurveyService(db *gorm.DB, cfg *config.Config) *SurveyService {
	return &SurveyService{
		db:         db,
		cfg:        cfg,
		surveyRepo: repository.NewSurveyRepository(db),
		userRepo:   repository.NewUserRepository(db),
		marketRepo: repository.NewMarketRepository(db),
		ledger:     NewLedgerService(db),
	}
}

type QuestionInput struct {
	QuestionText string   `json:"question_text" binding:"required"`
	QuestionType string   `json:"question_type" binding:"required"`
	Options      []string `json:"options"`
	IsRequired   bool     `json:"is_required"`
}

type CreateSurveyRequest struct {
	CreatorID    int64           `json:"creator_id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	CategoryID   int64           `json:"category_id"`
	TotalBudget  int64           `json:"total_budget"`
	MaxResponses int64           `json:"max_responses"`
	Deadline     time.Time       `json:"deadline"`
	Questions    []QuestionInput `json:"questions"`
}

// CreateSurvey 创建问卷
// 问卷、题目、预算扣除在同一个事务内完成：
// 扣款失败（积分不足）时问卷不会留下半成品记录
func (s *SurveyService) CreateSurvey(ctx context.Context, req *CreateSurveyRequest) (*model.Survey, error) {
	if req.TotalBudget < s.cfg.Business.SurveyMinBudget || req.TotalBudget%s.cfg.Business.SurveyBudgetStep != 0 {
		return nil, ErrInvalidBudget
	}
	if req.MaxResponses < s.cfg.Business.SurveyMinResponses || req.MaxResponses%s.cfg.Business.SurveyResponseStep != 0 {
		return nil, ErrInvalidMaxResponses
	}
	rewardPerResponse := req.TotalBudget / req.MaxResponses
	if rewardPerResponse <= 0 {
		return nil, ErrInvalidBudget
	}
	if !req.Deadline.After(time.Now()) {
		return nil, ErrInvalidDeadline
	}
	if len(req.Questions) == 0 {
		return nil, errors.New("至少需要一个题目")
	}

	if _, err := s.userRepo.GetActive(ctx, req.CreatorID); err != nil {
		return nil, err
	}

	survey := &model.Survey{
		CreatorID:    req.CreatorID,
		Title:        req.Title,
		Description:  req.Description,
		CategoryID:   req.CategoryID,
		RewardPoints: rewardPerResponse,
		TotalBudget:  req.TotalBudget,
		MaxResponses: req.MaxResponses,
		Deadline:     req.Deadline,
		Status:       model.SurveyStatusActive,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.surveyRepo.Create(ctx, tx, survey); err != nil {
			return fmt.Errorf("创建问卷失败: %w", err)
		}

		questions := make([]*model.SurveyQuestion, 0, len(req.Questions))
		for i, q := range req.Questions {
			options := ""
			if len(q.Options) > 0 {
				optionBytes, err := json.Marshal(q.Options)
				if err != nil {
					return fmt.Errorf("题目选项序列化失败: %w", err)
				}
				options = string(optionBytes)
			}
			questions = append(questions, &model.SurveyQuestion{
				SurveyID:     survey.ID,
				QuestionText: q.QuestionText,
				QuestionType: q.QuestionType,
				Options:      options,
				IsRequired:   q.IsRequired,
				OrderIndex:   i,
			})
		}
		if err := s.surveyRepo.CreateQuestions(ctx, tx, questions); err != nil {
			return fmt.Errorf("创建题目失败: %w", err)
		}

		_, err := s.ledger.Apply(ctx, tx, &ApplyRequest{
			UserID:      req.CreatorID,
			Amount:      -req.TotalBudget,
			Type:        model.TransactionTypeSurveyCreation,
			RelatedID:   &survey.ID,
			Description: fmt.Sprintf("创建问卷: %s", req.Title),
		})
		return err
	})

	if err != nil {
		return nil, err
	}
	return survey, nil
}

func (s *SurveyService) ListSurveys(ctx context.Context, categoryID int64, search string, page, pageSize int) ([]*model.Survey, int64, error) {
	return s.surveyRepo.List(ctx, categoryID, search, page, pageSize)
}

func (s *SurveyService) ListByCreator(ctx context.Context, creatorID int64) ([]*model.Survey, error) {
	return s.surveyRepo.ListByCreator(ctx, creatorID)
}

func (s *SurveyService) ListCategories(ctx context.Context) ([]*model.Category, error) {
	return s.surveyRepo.ListCategories(ctx)
}

// HasResponded 提交前的预检查，最终去重仍由唯一索引保证
func (s *SurveyService) HasResponded(ctx context.Context, surveyID, respondentID int64) (bool, error) {
	if _, err := s.surveyRepo.GetByID(ctx, surveyID); err != nil {
		return false, err
	}
	return s.surveyRepo.HasResponded(ctx, surveyID, respondentID)
}

type SurveyDetail struct {
	Survey    *model.Survey           `json:"survey"`
	Questions []*model.SurveyQuestion `json:"questions"`
}

func (s *SurveyService) GetSurveyDetail(ctx context.Context, surveyID int64) (*SurveyDetail, error) {
	survey, err := s.surveyRepo.GetByID(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	questions, err := s.surveyRepo.GetQuestions(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	return &SurveyDetail{Survey: survey, Questions: questions}, nil
}

type SubmitResponseRequest struct {
	SurveyID     int64                  `json:"survey_id"`
	RespondentID int64                  `json:"respondent_id"`
	Answers      map[string]interface{} `json:"answers"`
}

// SubmitResponse 提交回答并发放报酬
//
// 【关键点】一个事务内按固定顺序执行：
// 1. 回答计数条件自增 —— 状态/截止/上限三个守卫都在 WHERE 里，抢不到名额直接失败
// 2. 写入回答记录 —— (survey_id, respondent_id) 唯一索引拦截重复提交
// 3. 发放报酬 —— 流水与余额同事务
// 任何一步失败整个事务回滚，不会出现"有回答没报酬"的中间状态
func (s *SurveyService) SubmitResponse(ctx context.Context, req *SubmitResponseRequest) (*model.SurveyResponse, error) {
	survey, err := s.surveyRepo.GetByID(ctx, req.SurveyID)
	if err != nil {
		return nil, err
	}

	if _, err := s.userRepo.GetActive(ctx, req.RespondentID); err != nil {
		return nil, err
	}

	questions, err := s.surveyRepo.GetQuestions(ctx, req.SurveyID)
	if err != nil {
		return nil, err
	}
	if err := validateRequired(questions, req.Answers); err != nil {
		return nil, err
	}

	answerBytes, err := json.Marshal(req.Answers)
	if err != nil {
		return nil, fmt.Errorf("回答内容序列化失败: %w", err)
	}

	response := &model.SurveyResponse{
		SurveyID:     req.SurveyID,
		RespondentID: req.RespondentID,
		Answers:      string(answerBytes),
		IsApproved:   true,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.surveyRepo.IncrementResponses(ctx, tx, req.SurveyID, time.Now()); err != nil {
			return err
		}

		if err := s.surveyRepo.CreateResponse(ctx, tx, response); err != nil {
			return err
		}

		_, err := s.ledger.Apply(ctx, tx, &ApplyRequest{
			UserID:      req.RespondentID,
			Amount:      survey.RewardPoints,
			Type:        model.TransactionTypeSurveyReward,
			RelatedID:   &survey.ID,
			Description: fmt.Sprintf("问卷回答报酬: %s", survey.Title),
		})
		return err
	})

	if err != nil {
		return nil, err
	}
	return response, nil
}

// CloseSurvey 结束募集并返还未使用预算
func (s *SurveyService) CloseSurvey(ctx context.Context, userID, surveyID int64) (refund int64, err error) {
	survey, err := s.surveyRepo.GetByID(ctx, surveyID)
	if err != nil {
		return 0, err
	}
	if survey.CreatorID != userID {
		return 0, ErrNotSurveyOwner
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.surveyRepo.UpdateStatus(ctx, tx, surveyID, model.SurveyStatusActive, model.SurveyStatusClosed); err != nil {
			return err
		}

		// 状态已锁定为 closed，此后不会再有新回答，计数在事务内重读
		var current int64
		if err := tx.WithContext(ctx).
			Model(&model.Survey{}).
			Where("id = ?", surveyID).
			Pluck("current_responses", &current).Error; err != nil {
			return err
		}

		refund = (survey.MaxResponses - current) * survey.RewardPoints
		if refund <= 0 {
			refund = 0
			return nil
		}

		_, err := s.ledger.Apply(ctx, tx, &ApplyRequest{
			UserID:      userID,
			Amount:      refund,
			Type:        model.TransactionTypeSurveyClosure,
			RelatedID:   &survey.ID,
			Description: fmt.Sprintf("问卷结束返还: %s", survey.Title),
		})
		return err
	})

	if err != nil {
		return 0, err
	}
	return refund, nil
}

// DeleteSurvey 删除问卷：返还未使用预算，下架关联数据集，级联删除题目与回答
func (s *SurveyService) DeleteSurvey(ctx context.Context, userID, surveyID int64) (refund int64, err error) {
	survey, err := s.surveyRepo.GetByID(ctx, surveyID)
	if err != nil {
		return 0, err
	}
	if survey.CreatorID != userID {
		return 0, ErrNotSurveyOwner
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 与 CloseSurvey 相同的顺序：先条件锁定状态，再重读计数算返还。
		// 直接 Pluck 会和并发提交竞争，按过期计数返还就是超发
		if survey.Status == model.SurveyStatusActive {
			switch err := s.surveyRepo.UpdateStatus(ctx, tx, surveyID, model.SurveyStatusActive, model.SurveyStatusClosed); {
			case err == nil:
				var current int64
				if err := tx.WithContext(ctx).
					Model(&model.Survey{}).
					Where("id = ?", surveyID).
					Pluck("current_responses", &current).Error; err != nil {
					return err
				}

				refund = (survey.MaxResponses - current) * survey.RewardPoints
				if refund > 0 {
					_, err := s.ledger.Apply(ctx, tx, &ApplyRequest{
						UserID:      userID,
						Amount:      refund,
						Type:        model.TransactionTypeSurveyRefund,
						RelatedID:   &survey.ID,
						Description: fmt.Sprintf("问卷删除返还: %s", survey.Title),
					})
					if err != nil {
						return err
					}
				} else {
					refund = 0
				}
			case errors.Is(err, repository.ErrSurveyStatusInvalid):
				// 并发的结束操作抢先锁定了状态，预算已在那边返还
				refund = 0
			default:
				return err
			}
		}

		if err := s.marketRepo.DeactivateBySurveyID(ctx, tx, surveyID); err != nil {
			return fmt.Errorf("下架数据集失败: %w", err)
		}

		return s.surveyRepo.Delete(ctx, tx, surveyID)
	})

	if err != nil {
		return 0, err
	}
	return refund, nil
}

func validateRequired(questions []*model.SurveyQuestion, answers map[string]interface{}) error {
	for _, q := range questions {
		if !q.IsRequired {
			continue
		}
		key := strconv.FormatInt(q.ID, 10)
		value, ok := answers[key]
		if !ok || value == nil {
			return ErrRequiredUnanswered
		}
		if str, isStr := value.(string); isStr && str == "" {
			return ErrRequiredUnanswered
		}
	}
	return nil
}
