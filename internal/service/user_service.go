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

var ErrProfileIncomplete = errors.New("资料不完整")

type UserService struct {
	db              *gorm.DB
	cfg             *config.Config
	userRepo        *repository.UserRepository
	transactionRepo *repository.TransactionRepository
	ledger          *LedgerService
}

func NewUserService(db *gorm.DB, cfg *config.Config) *UserService {
	return &UserService{
		db:              db,
		cfg:             cfg,
		userRepo:        repository.NewUserRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		ledger:          NewLedgerService(db),
	}
}

func (s *UserService) GetProfile(ctx context.Context, userID int64) (*model.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

func (s *UserService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.Points, nil
}

type CompleteProfileRequest struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Gender    string `json:"gender"`
	BirthDate string `json:"birth_date"` // YYYY-MM-DD
}

type CompleteProfileResponse struct {
	BonusAwarded bool  `json:"bonus_awarded"`
	BonusPoints  int64 `json:"bonus_points,omitempty"`
}

// CompleteProfile 完善资料并发放一次性奖励
// 幂等检查（是否已有 profile_bonus 流水）放在事务内，
// 重复提交不会重复发放
func (s *UserService) CompleteProfile(ctx context.Context, req *CompleteProfileRequest) (*CompleteProfileResponse, error) {
	if req.Username == "" || req.Gender == "" || req.BirthDate == "" {
		return nil, ErrProfileIncomplete
	}
	birthDate, err := time.Parse("2006-01-02", req.BirthDate)
	if err != nil {
		return nil, fmt.Errorf("出生日期格式错误: %w", err)
	}

	user, err := s.userRepo.GetActive(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	resp := &CompleteProfileResponse{}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		user.Username = req.Username
		user.Gender = req.Gender
		user.BirthDate = &birthDate
		if err := s.userRepo.CompleteProfile(ctx, tx, user); err != nil {
			return fmt.Errorf("更新资料失败: %w", err)
		}

		exists, err := s.transactionRepo.ExistsByUserIDAndType(ctx, tx, req.UserID, model.TransactionTypeProfileBonus)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		_, err = s.ledger.Apply(ctx, tx, &ApplyRequest{
			UserID:      req.UserID,
			Amount:      s.cfg.Business.ProfileBonusPoints,
			Type:        model.TransactionTypeProfileBonus,
			Description: "完善资料奖励",
		})
		if err != nil {
			return err
		}

		resp.BonusAwarded = true
		resp.BonusPoints = s.cfg.Business.ProfileBonusPoints
		return nil
	})

	if err != nil {
		return nil, err
	}
	return resp, nil
}
