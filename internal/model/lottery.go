package model

import (
	"time"
)

const (
	LotteryStatusActive = "active"
	LotteryStatusClosed = "closed"
)

// LotteryEvent 抽奖活动
// 参与需消耗 entry_cost 积分，current_participants 只通过条件 UPDATE 累加
type LotteryEvent struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title               string    `gorm:"type:varchar(128);not null" json:"title"`
	Description         string    `gorm:"type:text" json:"description"`
	EntryCost           int64     `gorm:"not null" json:"entry_cost"`
	PrizeDescription    string    `gorm:"type:varchar(256)" json:"prize_description"`
	MaxParticipants     *int64    `json:"max_participants"` // 参与人数上限（NULL 不限）
	CurrentParticipants int64     `gorm:"not null;default:0" json:"current_participants"`
	EndDate             time.Time `gorm:"not null;index" json:"end_date"`
	Status              string    `gorm:"type:varchar(20);index;not null" json:"status"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (LotteryEvent) TableName() string {
	return "lottery_events"
}

// LotteryEntry 抽奖参与记录
// (event_id, user_id) 唯一索引保证同一活动只能参与一次
type LotteryEntry struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID   int64     `gorm:"uniqueIndex:uk_event_user;not null" json:"event_id"`
	UserID    int64     `gorm:"uniqueIndex:uk_event_user;not null" json:"user_id"`
	EnteredAt time.Time `gorm:"autoCreateTime" json:"entered_at"`
}

func (LotteryEntry) TableName() string {
	return "lottery_entries"
}
