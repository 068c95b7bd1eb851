package repository

import (
	"context"
	"errors"
	"time"

	"surveypoints/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotificationNotFound = errors.New("公告不存在")
	ErrClaimUnavailable     = errors.New("积分领取已结束")
	ErrAlreadyClaimed       = errors.New("已领取过该公告积分")
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, tx *gorm.DB, notification *model.Notification) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(notification).Error
}

func (r *NotificationRepository) GetByID(ctx context.Context, notificationID int64) (*model.Notification, error) {
	return r.getByID(ctx, r.db, notificationID)
}

func (r *NotificationRepository) getByID(ctx context.Context, tx *gorm.DB, notificationID int64) (*model.Notification, error) {
	var notification model.Notification
	err := tx.WithContext(ctx).Where("id = ?", notificationID).First(&notification).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return &notification, nil
}

func (r *NotificationRepository) ListActive(ctx context.Context, page, pageSize int) ([]*model.Notification, int64, error) {
	var notifications []*model.Notification
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Notification{}).Where("is_active = ?", true)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&notifications).Error

	return notifications, total, err
}

// UpsertRead 标记已读，重复标记静默成功
func (r *NotificationRepository) UpsertRead(ctx context.Context, read *model.UserNotificationRead) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "notification_id"}},
			DoNothing: true,
		}).
		Create(read).Error
}

func (r *NotificationRepository) ListReadIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.UserNotificationRead{}).
		Where("user_id = ?", userID).
		Pluck("notification_id", &ids).Error
	return ids, err
}

// IncrementClaims 领取计数的条件自增
//
// 【关键点】claim_notification_points 的上限保证就在这一条语句里：
// 有效期、启用状态、领取上限全部进 WHERE，
// 并发领取时 current_claims 绝不会超过 max_claims
func (r *NotificationRepository) IncrementClaims(ctx context.Context, tx *gorm.DB, notificationID int64, now time.Time) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ? AND is_active = ?", notificationID, true).
		Where("claim_deadline IS NULL OR claim_deadline > ?", now).
		Where("max_claims IS NULL OR current_claims < max_claims").
		Update("current_claims", gorm.Expr("current_claims + 1"))

	if result.Error != nil {
		return result.Error
	}

	// 区分原因的回查走同一个事务连接，避免跨连接读到不同快照
	if result.RowsAffected == 0 {
		if _, err := r.getByID(ctx, tx, notificationID); err != nil {
			return err
		}
		return ErrClaimUnavailable
	}
	return nil
}

// CreateClaim 写入领取记录，唯一索引冲突映射为 ErrAlreadyClaimed
func (r *NotificationRepository) CreateClaim(ctx context.Context, tx *gorm.DB, claim *model.NotificationPointClaim) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(claim).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyClaimed
		}
		return err
	}
	return nil
}

func (r *NotificationRepository) GetClaim(ctx context.Context, notificationID, userID int64) (*model.NotificationPointClaim, error) {
	var claim model.NotificationPointClaim
	err := r.db.WithContext(ctx).
		Where("notification_id = ? AND user_id = ?", notificationID, userID).
		First(&claim).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &claim, nil
}
