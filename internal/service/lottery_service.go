package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"surveypoints/internal/config"
	"surveypoints/internal/model"
	"surveypoints/internal/repository"

	"gorm.io/gorm"
)

type LotteryService struct {
	db          *gorm.DB
	cfg         *config.Config
	lotteryRepo *repository.LotteryRepository
	userRepo    *repository.UserRepository
	ledger      *LedgerService
}

func NewLotteryService(db *gorm.DB, cfg *config.Config) *LotteryService {
	return &LotteryService{
		db:          db,
		cfg:         cfg,
		lotteryRepo: repository.NewLotteryRepository(db),
		userRepo:    repository.NewUserRepository(db),
		ledger:      NewLedgerService(db),
	}
}

func (s *LotteryService) ListEvents(ctx context.Context) ([]*model.LotteryEvent, error) {
	return s.lotteryRepo.ListActive(ctx)
}

func (s *LotteryService) ListUserEntries(ctx context.Context, userID int64) ([]*model.LotteryEntry, error) {
	return s.lotteryRepo.ListEntriesByUser(ctx, userID)
}

type CreateLotteryRequest struct {
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	EntryCost        int64     `json:"entry_cost"`
	PrizeDescription string    `json:"prize_description"`
	MaxParticipants  *int64    `json:"max_participants"`
	EndDate          time.Time `json:"end_date"`
}

// CreateEvent 管理员创建抽奖活动
func (s *LotteryService) CreateEvent(ctx context.Context, req *CreateLotteryRequest) (*model.LotteryEvent, error) {
	if req.EntryCost <= 0 {
		return nil, errors.New("参与费用必须大于0")
	}
	if !req.EndDate.After(time.Now()) {
		return nil, errors.New("结束时间必须晚于当前时间")
	}

	event := &model.LotteryEvent{
		Title:            req.Title,
		Description:      req.Description,
		EntryCost:        req.EntryCost,
		PrizeDescription: req.PrizeDescription,
		MaxParticipants:  req.MaxParticipants,
		EndDate:          req.EndDate,
		Status:           model.LotteryStatusActive,
	}
	if err := s.lotteryRepo.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("创建抽奖活动失败: %w", err)
	}
	return event, nil
}

// Enter 参与抽奖
// 与问卷回答相同的事务形态：参与计数条件自增（有效期/人数上限守卫）、
// 唯一索引拦截重复参与、参与费出账，三步同事务
func (s *LotteryService) Enter(ctx context.Context, userID, eventID int64) (*model.LotteryEntry, error) {
	event, err := s.lotteryRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if _, err := s.userRepo.GetActive(ctx, userID); err != nil {
		return nil, err
	}

	entry := &model.LotteryEntry{
		EventID: eventID,
		UserID:  userID,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.lotteryRepo.IncrementParticipants(ctx, tx, eventID, time.Now()); err != nil {
			return err
		}

		if err := s.lotteryRepo.CreateEntry(ctx, tx, entry); err != nil {
			return err
		}

		_, err := s.ledger.Apply(ctx, tx, &ApplyRequest{
			UserID:      userID,
			Amount:      -event.EntryCost,
			Type:        model.TransactionTypeEventEntry,
			RelatedID:   &event.ID,
			Description: fmt.Sprintf("抽奖参与: %s", event.Title),
		})
		return err
	})

	if err != nil {
		return nil, err
	}
	return entry, nil
}
