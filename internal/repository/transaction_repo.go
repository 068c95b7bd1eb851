package repository

import (
	"context"

	"surveypoints/internal/model"

	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.PointTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.PointTransaction, int64, error) {
	var transactions []*model.PointTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PointTransaction{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

// ExistsByUserIDAndType 一次性奖励（如完善资料）的幂等检查
func (r *TransactionRepository) ExistsByUserIDAndType(ctx context.Context, tx *gorm.DB, userID int64, transactionType string) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.PointTransaction{}).
		Where("user_id = ? AND type = ?", userID, transactionType).
		Count(&count).Error
	return count > 0, err
}

// SumByUserID 对账用：流水累加值应等于当前余额
func (r *TransactionRepository) SumByUserID(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&model.PointTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}
