package model

import (
	"time"
)

// ============================================================================
// 积分流水类型常量
// ============================================================================

const (
	TransactionTypeSurveyReward      = "survey_reward"      // 问卷回答奖励
	TransactionTypeSurveyCreation    = "survey_creation"    // 创建问卷（预算扣除）
	TransactionTypeDataPurchase      = "data_purchase"      // 购买数据
	TransactionTypeDataSale          = "data_sale"          // 出售数据（卖家分成）
	TransactionTypeEventEntry        = "event_entry"        // 抽奖参与
	TransactionTypeProfileBonus      = "profile_bonus"      // 完善资料奖励
	TransactionTypeSurveyClosure     = "survey_closure"     // 问卷结束返还
	TransactionTypeSurveyRefund      = "survey_refund"      // 问卷删除返还
	TransactionTypeNotificationClaim = "notification_claim" // 公告积分领取
)

// ============================================================================
// 积分流水实体
// ============================================================================

// PointTransaction 积分流水表
// 记录账户的每一笔积分变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 记录交易前后余额 —— 便于校验余额一致性
// 3. 余额变更与流水写入必须在同一个数据库事务内完成，
//    任何业务代码不允许绕过 LedgerService 直接改余额
type PointTransaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"` // 流水号（全局唯一）
	UserID        int64     `gorm:"index;not null" json:"user_id"`                               // 用户ID
	Amount        int64     `gorm:"not null" json:"amount"`                                      // 积分（正数入账，负数出账）
	Type          string    `gorm:"type:varchar(32);index;not null" json:"type"`                 // 流水类型
	RelatedID     *int64    `gorm:"index" json:"related_id"`                                     // 关联实体ID（问卷/商品/活动等）
	Description   string    `gorm:"type:varchar(256)" json:"description"`                        // 备注
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`                              // 变动前余额
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`                               // 变动后余额
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (PointTransaction) TableName() string {
	return "point_transactions"
}
