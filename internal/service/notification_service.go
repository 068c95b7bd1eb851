package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"surveypoints/internal/config"
	"surveypoints/internal/infrastructure/lock"
	"surveypoints/internal/model"
	"surveypoints/internal/repository"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var ErrNoReward = errors.New("该公告没有积分奖励")

type NotificationService struct {
	db               *gorm.DB
	redisClient      *redis.Client
	cfg              *config.Config
	notificationRepo *repository.NotificationRepository
	userRepo         *repository.UserRepository
	outboxRepo       *repository.OutboxRepository
	ledger           *LedgerService
}

func NewNotificationService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *NotificationService {
	return &NotificationService{
		db:               db,
		redisClient:      redisClient,
		cfg:              cfg,
		notificationRepo: repository.NewNotificationRepository(db),
		userRepo:         repository.NewUserRepository(db),
		outboxRepo:       repository.NewOutboxRepository(db),
		ledger:           NewLedgerService(db),
	}
}

// NotificationView 公告 + 当前用户的已读/已领取状态
type NotificationView struct {
	*model.Notification
	IsRead    bool `json:"is_read"`
	IsClaimed bool `json:"is_claimed"`
}

func (s *NotificationService) ListForUser(ctx context.Context, userID int64, page, pageSize int) ([]*NotificationView, int64, error) {
	notifications, total, err := s.notificationRepo.ListActive(ctx, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	readIDs, err := s.notificationRepo.ListReadIDs(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	readSet := make(map[int64]bool, len(readIDs))
	for _, id := range readIDs {
		readSet[id] = true
	}

	views := make([]*NotificationView, 0, len(notifications))
	for _, n := range notifications {
		claimed := false
		if n.RewardPoints > 0 {
			claim, err := s.notificationRepo.GetClaim(ctx, n.ID, userID)
			if err != nil {
				return nil, 0, err
			}
			claimed = claim != nil
		}
		views = append(views, &NotificationView{
			Notification: n,
			IsRead:       readSet[n.ID],
			IsClaimed:    claimed,
		})
	}
	return views, total, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID int64) error {
	if _, err := s.notificationRepo.GetByID(ctx, notificationID); err != nil {
		return err
	}
	return s.notificationRepo.UpsertRead(ctx, &model.UserNotificationRead{
		UserID:         userID,
		NotificationID: notificationID,
	})
}

type ClaimResponse struct {
	Success       bool   `json:"success"`
	PointsClaimed int64  `json:"points_claimed,omitempty"`
	Message       string `json:"message,omitempty"`
}

// ClaimPoints 领取公告积分
//
// 【关键点】一个事务内按固定顺序执行：
// 1. 写领取记录 —— (notification_id, user_id) 唯一索引保证每人一次
// 2. 领取计数条件自增 —— 上限与截止都在 WHERE 里，并发领取不会超发
// 3. 积分入账 notification_claim
// 三步同事务，cap=1 的公告被并发领取时恰好成功一次
func (s *NotificationService) ClaimPoints(ctx context.Context, userID, notificationID int64) (*ClaimResponse, error) {
	notification, err := s.notificationRepo.GetByID(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if notification.RewardPoints <= 0 {
		return nil, ErrNoReward
	}

	if _, err := s.userRepo.GetActive(ctx, userID); err != nil {
		return nil, err
	}

	claimLock := lock.NewClaimLock(s.redisClient, userID, notificationID)
	if err := claimLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer claimLock.Unlock(ctx)

	existing, err := s.notificationRepo.GetClaim(ctx, notificationID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &ClaimResponse{
			Success:       true,
			PointsClaimed: existing.PointsClaimed,
			Message:       "已领取过该公告积分",
		}, nil
	}

	claim := &model.NotificationPointClaim{
		NotificationID: notificationID,
		UserID:         userID,
		PointsClaimed:  notification.RewardPoints,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.notificationRepo.CreateClaim(ctx, tx, claim); err != nil {
			return err
		}

		if err := s.notificationRepo.IncrementClaims(ctx, tx, notificationID, time.Now()); err != nil {
			return err
		}

		_, err := s.ledger.Apply(ctx, tx, &ApplyRequest{
			UserID:      userID,
			Amount:      notification.RewardPoints,
			Type:        model.TransactionTypeNotificationClaim,
			RelatedID:   &notification.ID,
			Description: fmt.Sprintf("公告积分领取: %s", notification.Title),
		})
		return err
	})

	if err != nil {
		return nil, err
	}

	log.Printf("公告积分领取成功: notificationID=%d, userID=%d, points=%d",
		notificationID, userID, notification.RewardPoints)

	return &ClaimResponse{
		Success:       true,
		PointsClaimed: notification.RewardPoints,
		Message:       "领取成功",
	}, nil
}

type CreateNotificationRequest struct {
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	Type          string     `json:"type"`
	RewardPoints  int64      `json:"reward_points"`
	MaxClaims     *int64     `json:"max_claims"`
	ClaimDeadline *time.Time `json:"claim_deadline"`
}

// CreateNotification 管理员发布公告（权限校验在中间件完成）
func (s *NotificationService) CreateNotification(ctx context.Context, req *CreateNotificationRequest) (*model.Notification, error) {
	if req.Title == "" || req.Content == "" {
		return nil, errors.New("标题和内容不能为空")
	}

	notificationType := req.Type
	if notificationType == "" {
		notificationType = model.NotificationTypeInfo
	}

	notification := &model.Notification{
		Title:         req.Title,
		Content:       req.Content,
		Type:          notificationType,
		IsActive:      true,
		RewardPoints:  req.RewardPoints,
		MaxClaims:     req.MaxClaims,
		ClaimDeadline: req.ClaimDeadline,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.notificationRepo.Create(ctx, tx, notification); err != nil {
			return fmt.Errorf("创建公告失败: %w", err)
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"notification_id": notification.ID,
			"title":           notification.Title,
			"type":            notification.Type,
			"reward_points":   notification.RewardPoints,
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: fmt.Sprintf("notification-%d", notification.ID),
			Topic:      s.cfg.Kafka.Topic.NotificationEvents,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		return s.outboxRepo.Create(ctx, tx, outboxMsg)
	})

	if err != nil {
		return nil, err
	}
	return notification, nil
}
