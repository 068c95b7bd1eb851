package model

import (
	"time"
)

const (
	NotificationTypeInfo    = "info"
	NotificationTypeSuccess = "success"
	NotificationTypeWarning = "warning"
	NotificationTypeError   = "error"
)

// Notification 全站公告
// 可附带积分奖励：reward_points > 0 时用户可领取，
// max_claims 为空表示不限领取人数，claim_deadline 为空表示不限期
type Notification struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Title         string     `gorm:"type:varchar(128);not null" json:"title"`
	Content       string     `gorm:"type:text;not null" json:"content"`
	Type          string     `gorm:"type:varchar(16);not null;default:info" json:"type"`
	IsActive      bool       `gorm:"not null;default:true;index" json:"is_active"`
	RewardPoints  int64      `gorm:"not null;default:0" json:"reward_points"`
	MaxClaims     *int64     `json:"max_claims"`                                  // 领取人数上限（NULL 不限）
	CurrentClaims int64      `gorm:"not null;default:0" json:"current_claims"`
	ClaimDeadline *time.Time `json:"claim_deadline"`                              // 领取截止时间（NULL 不限）
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

// UserNotificationRead 已读标记（按用户）
type UserNotificationRead struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64     `gorm:"uniqueIndex:uk_user_notification;not null" json:"user_id"`
	NotificationID int64     `gorm:"uniqueIndex:uk_user_notification;not null" json:"notification_id"`
	ReadAt         time.Time `gorm:"autoCreateTime" json:"read_at"`
}

func (UserNotificationRead) TableName() string {
	return "user_notification_reads"
}

// NotificationPointClaim 公告积分领取记录
// (notification_id, user_id) 唯一索引保证每人只能领一次
type NotificationPointClaim struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	NotificationID int64     `gorm:"uniqueIndex:uk_notification_user;not null" json:"notification_id"`
	UserID         int64     `gorm:"uniqueIndex:uk_notification_user;not null" json:"user_id"`
	PointsClaimed  int64     `gorm:"not null" json:"points_claimed"`
	ClaimedAt      time.Time `gorm:"autoCreateTime" json:"claimed_at"`
}

func (NotificationPointClaim) TableName() string {
	return "notification_point_claims"
}
