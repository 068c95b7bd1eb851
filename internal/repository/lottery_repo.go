package repository

import (
	"context"
	"errors"
	"time"

	"surveypoints/internal/model"

	"gorm.io/gorm"
)

var (
	ErrLotteryNotFound    = errors.New("抽奖活动不存在")
	ErrLotteryUnavailable = errors.New("抽奖活动已结束或参与人数已满")
	ErrAlreadyEntered     = errors.New("已参与过该抽奖")
)

type LotteryRepository struct {
	db *gorm.DB
}

func NewLotteryRepository(db *gorm.DB) *LotteryRepository {
	return &LotteryRepository{db: db}
}

func (r *LotteryRepository) Create(ctx context.Context, event *model.LotteryEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *LotteryRepository) GetByID(ctx context.Context, eventID int64) (*model.LotteryEvent, error) {
	return r.getByID(ctx, r.db, eventID)
}

func (r *LotteryRepository) getByID(ctx context.Context, tx *gorm.DB, eventID int64) (*model.LotteryEvent, error) {
	var event model.LotteryEvent
	err := tx.WithContext(ctx).Where("id = ?", eventID).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLotteryNotFound
		}
		return nil, err
	}
	return &event, nil
}

func (r *LotteryRepository) ListActive(ctx context.Context) ([]*model.LotteryEvent, error) {
	var events []*model.LotteryEvent
	err := r.db.WithContext(ctx).
		Where("status = ?", model.LotteryStatusActive).
		Order("end_date ASC").
		Find(&events).Error
	return events, err
}

// IncrementParticipants 参与计数的条件自增，有效期和人数上限都进 WHERE
func (r *LotteryRepository) IncrementParticipants(ctx context.Context, tx *gorm.DB, eventID int64, now time.Time) error {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.LotteryEvent{}).
		Where("id = ? AND status = ? AND end_date > ?", eventID, model.LotteryStatusActive, now).
		Where("max_participants IS NULL OR current_participants < max_participants").
		Update("current_participants", gorm.Expr("current_participants + 1"))

	if result.Error != nil {
		return result.Error
	}

	// 区分原因的回查走同一个事务连接，避免跨连接读到不同快照
	if result.RowsAffected == 0 {
		if _, err := r.getByID(ctx, tx, eventID); err != nil {
			return err
		}
		return ErrLotteryUnavailable
	}
	return nil
}

// CreateEntry 写入参与记录，唯一索引冲突映射为 ErrAlreadyEntered
func (r *LotteryRepository) CreateEntry(ctx context.Context, tx *gorm.DB, entry *model.LotteryEntry) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyEntered
		}
		return err
	}
	return nil
}

func (r *LotteryRepository) ListEntriesByUser(ctx context.Context, userID int64) ([]*model.LotteryEntry, error) {
	var entries []*model.LotteryEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&entries).Error
	return entries, err
}

// GetExpired 查询已过结束时间但仍为 active 的活动
func (r *LotteryRepository) GetExpired(ctx context.Context, limit int) ([]*model.LotteryEvent, error) {
	var events []*model.LotteryEvent
	err := r.db.WithContext(ctx).
		Where("status = ? AND end_date < ?", model.LotteryStatusActive, time.Now()).
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *LotteryRepository) Close(ctx context.Context, eventID int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.LotteryEvent{}).
		Where("id = ? AND status = ?", eventID, model.LotteryStatusActive).
		Update("status", model.LotteryStatusClosed)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLotteryUnavailable
	}
	return nil
}
