package service

import (
	"context"
	"errors"
	"fmt"

	"surveypoints/internal/model"
	"surveypoints/internal/repository"
	"surveypoints/pkg/idgen"

	"gorm.io/gorm"
)

var (
	ErrInvalidAmount = errors.New("积分变动金额不能为0")
	ErrMissingTx     = errors.New("积分变动必须在数据库事务内执行")
)

// LedgerService 积分账本
//
// 【重要】这是整个系统唯一允许修改用户余额的入口。
// 一次 Apply 在调用方的数据库事务内完成两件事：
// 1. 条件 UPDATE 调整余额（出账时余额校验在 WHERE 条件里）
// 2. 追加一条积分流水（含变动前后余额快照）
// 两者同事务提交，流水累加值与余额恒等
type LedgerService struct {
	userRepo        *repository.UserRepository
	transactionRepo *repository.TransactionRepository
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{
		userRepo:        repository.NewUserRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
	}
}

// ApplyRequest 一笔积分变动
type ApplyRequest struct {
	UserID      int64
	Amount      int64 // 正数入账，负数出账
	Type        string
	RelatedID   *int64
	Description string
}

// Apply 执行积分变动，必须在事务内调用
func (s *LedgerService) Apply(ctx context.Context, tx *gorm.DB, req *ApplyRequest) (*model.PointTransaction, error) {
	if tx == nil {
		return nil, ErrMissingTx
	}
	if req.Amount == 0 {
		return nil, ErrInvalidAmount
	}

	if err := s.userRepo.IncrementPoints(ctx, tx, req.UserID, req.Amount); err != nil {
		return nil, err
	}

	// 余额已在本事务内更新，读出的值即变动后余额
	var balanceAfter int64
	err := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", req.UserID).
		Pluck("points", &balanceAfter).Error
	if err != nil {
		return nil, fmt.Errorf("查询余额失败: %w", err)
	}

	trans := &model.PointTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		UserID:        req.UserID,
		Amount:        req.Amount,
		Type:          req.Type,
		RelatedID:     req.RelatedID,
		Description:   req.Description,
		BalanceBefore: balanceAfter - req.Amount,
		BalanceAfter:  balanceAfter,
	}
	if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
		return nil, fmt.Errorf("记录流水失败: %w", err)
	}

	return trans, nil
}

// Reconcile 对账：流水累加值应等于当前余额
func (s *LedgerService) Reconcile(ctx context.Context, userID int64) (balance int64, ledgerSum int64, err error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	sum, err := s.transactionRepo.SumByUserID(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	return user.Points, sum, nil
}

// ListTransactions 查询用户积分流水
func (s *LedgerService) ListTransactions(ctx context.Context, userID int64, page, pageSize int) ([]*model.PointTransaction, int64, error) {
	return s.transactionRepo.ListByUserID(ctx, userID, page, pageSize)
}
