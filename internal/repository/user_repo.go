package repository

import (
	"context"
	"errors"

	"surveypoints/internal/model"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound     = errors.New("用户不存在")
	ErrBalanceNotEnough = errors.New("积分不足")
	ErrUserBanned       = errors.New("账号已被封禁")
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*model.User, error) {
	return r.getByID(ctx, r.db, userID)
}

func (r *UserRepository) getByID(ctx context.Context, tx *gorm.DB, userID int64) (*model.User, error) {
	var user model.User
	err := tx.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetActive 查询用户并校验封禁状态，所有扣减/入账流程的统一入口
func (r *UserRepository) GetActive(ctx context.Context, userID int64) (*model.User, error) {
	user, err := r.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsBanned {
		return nil, ErrUserBanned
	}
	return user, nil
}

// IncrementPoints 原子调整积分余额
//
// 【关键点】出账时把余额校验放进 UPDATE 的 WHERE 条件里，
// "查余额再扣款"的竞态窗口被压缩成一条原子语句：
//
//	UPDATE users SET points = points + ? WHERE id = ? AND points >= ?
//
// RowsAffected = 0 时回查一次区分"用户不存在"和"积分不足"
func (r *UserRepository) IncrementPoints(ctx context.Context, tx *gorm.DB, userID int64, amount int64) error {
	if tx == nil {
		tx = r.db
	}

	query := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID)

	if amount < 0 {
		query = query.Where("points >= ?", -amount)
	}

	result := query.Updates(map[string]interface{}{
		"points":  gorm.Expr("points + ?", amount),
		"version": gorm.Expr("version + 1"),
	})

	if result.Error != nil {
		return result.Error
	}

	// 回查必须走同一个事务连接，事务外的读会拿到另一份快照，
	// sqlite 下甚至会和未提交的写互相锁死
	if result.RowsAffected == 0 {
		user, err := r.getByID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if amount < 0 && user.Points < -amount {
			return ErrBalanceNotEnough
		}
		return ErrUserNotFound
	}

	return nil
}

// MapUsernames 批量查询用户名（导出用）
func (r *UserRepository) MapUsernames(ctx context.Context, userIDs []int64) (map[int64]string, error) {
	result := make(map[int64]string, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	var users []model.User
	err := r.db.WithContext(ctx).
		Select("id", "username").
		Where("id IN ?", userIDs).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		result[u.ID] = u.Username
	}
	return result, nil
}

// CompleteProfile 标记资料已完善
func (r *UserRepository) CompleteProfile(ctx context.Context, tx *gorm.DB, user *model.User) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"username":          user.Username,
			"gender":            user.Gender,
			"birth_date":        user.BirthDate,
			"profile_completed": true,
		}).Error
}
