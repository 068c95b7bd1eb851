package model

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User 用户表
// 记录用户的积分余额，是整个积分系统的核心数据
type User struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Email            string     `gorm:"type:varchar(128);uniqueIndex;not null" json:"email"`
	Username         string     `gorm:"type:varchar(64)" json:"username"`
	Points           int64      `gorm:"not null;default:0" json:"points"`             // 积分余额
	Version          int        `gorm:"not null;default:0" json:"version"`            // 乐观锁版本号
	Role             string     `gorm:"type:varchar(16);not null;default:user" json:"role"`
	IsBanned         bool       `gorm:"not null;default:false" json:"is_banned"`      // 封禁标记
	Gender           string     `gorm:"type:varchar(16)" json:"gender"`
	BirthDate        *time.Time `json:"birth_date"`
	ProfileCompleted bool       `gorm:"not null;default:false" json:"profile_completed"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Category 问卷分类
type Category struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string `gorm:"type:varchar(64);not null" json:"name"`
	Slug        string `gorm:"type:varchar(64);uniqueIndex;not null" json:"slug"`
	Description string `gorm:"type:varchar(256)" json:"description"`
}

func (Category) TableName() string {
	return "categories"
}
