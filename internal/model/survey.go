package model

import (
	"time"
)

const (
	SurveyStatusActive    = "active"    // 募集中
	SurveyStatusClosed    = "closed"    // 已截止（不再接受回答）
	SurveyStatusCompleted = "completed" // 已完结
)

var ValidSurveyTransitions = map[string][]string{
	SurveyStatusActive: {SurveyStatusClosed},
	SurveyStatusClosed: {SurveyStatusCompleted},
}

func CanTransitionSurvey(currentStatus, targetStatus string) bool {
	allowed, exists := ValidSurveyTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == targetStatus {
			return true
		}
	}
	return false
}

const (
	QuestionTypeMultipleChoice = "multiple_choice"
	QuestionTypeRating         = "rating"
	QuestionTypeText           = "text"
)

// Survey 问卷表
// 创建时从创建者余额一次性扣除 total_budget，
// 每个被接受的回答发放 reward_points，结束/删除时返还未使用部分
type Survey struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatorID        int64     `gorm:"index;not null" json:"creator_id"`
	Title            string    `gorm:"type:varchar(128);not null" json:"title"`
	Description      string    `gorm:"type:text" json:"description"`
	CategoryID       int64     `gorm:"index;not null" json:"category_id"`
	RewardPoints     int64     `gorm:"not null" json:"reward_points"`     // 每个回答的报酬
	TotalBudget      int64     `gorm:"not null" json:"total_budget"`      // 总预算
	MaxResponses     int64     `gorm:"not null" json:"max_responses"`     // 回答数上限
	CurrentResponses int64     `gorm:"not null;default:0" json:"current_responses"`
	Deadline         time.Time `gorm:"not null;index" json:"deadline"`
	Status           string    `gorm:"type:varchar(20);index;not null" json:"status"`
	CreatedAt        time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Survey) TableName() string {
	return "surveys"
}

// SurveyQuestion 问卷题目
type SurveyQuestion struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	SurveyID     int64  `gorm:"index;not null" json:"survey_id"`
	QuestionText string `gorm:"type:varchar(512);not null" json:"question_text"`
	QuestionType string `gorm:"type:varchar(32);not null" json:"question_type"`
	Options      string `gorm:"type:text" json:"options"` // 选项（JSON 数组，选择题使用）
	IsRequired   bool   `gorm:"not null;default:false" json:"is_required"`
	OrderIndex   int    `gorm:"not null" json:"order_index"`
}

func (SurveyQuestion) TableName() string {
	return "survey_questions"
}

// SurveyResponse 问卷回答
// (survey_id, respondent_id) 唯一索引保证同一用户只能回答一次，
// 重复提交在数据库层直接失败，不依赖先查后写
type SurveyResponse struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SurveyID     int64     `gorm:"uniqueIndex:uk_survey_respondent;not null" json:"survey_id"`
	RespondentID int64     `gorm:"uniqueIndex:uk_survey_respondent;not null" json:"respondent_id"`
	Answers      string    `gorm:"type:text;not null" json:"answers"` // 回答内容（JSON：题目ID -> 答案）
	IsApproved   bool      `gorm:"not null;default:true" json:"is_approved"`
	SubmittedAt  time.Time `gorm:"autoCreateTime;index" json:"submitted_at"`
}

func (SurveyResponse) TableName() string {
	return "survey_responses"
}
