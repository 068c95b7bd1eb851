package handler

import (
	"time"

	"surveypoints/internal/service"
	"surveypoints/pkg/response"

	"github.com/gin-gonic/gin"
)

// ============================================================
// 抽奖相关接口
// ============================================================

// ListLotteryEvents 查询进行中的抽奖活动
// GET /api/v1/lottery/events
func (h *Handler) ListLotteryEvents(c *gin.Context) {
	events, err := h.lotteryService.ListEvents(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, events)
}

// ListLotteryEntries 查询自己的参与记录
// GET /api/v1/lottery/entries?user_id=xxx
func (h *Handler) ListLotteryEntries(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}

	entries, err := h.lotteryService.ListUserEntries(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, entries)
}

// EnterLottery 参与抽奖（扣除参与费）
// POST /api/v1/lottery/enter
func (h *Handler) EnterLottery(c *gin.Context) {
	var req struct {
		UserID  int64 `json:"user_id" binding:"required"`
		EventID int64 `json:"event_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	entry, err := h.lotteryService.Enter(c.Request.Context(), req.UserID, req.EventID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"entry_id":   entry.ID,
		"event_id":   entry.EventID,
		"entered_at": entry.EnteredAt,
	})
}

// CreateLotteryRequest 创建抽奖活动请求
type CreateLotteryRequest struct {
	Title            string    `json:"title" binding:"required"`
	Description      string    `json:"description"`
	EntryCost        int64     `json:"entry_cost" binding:"required,gt=0"`
	PrizeDescription string    `json:"prize_description" binding:"required"`
	MaxParticipants  *int64    `json:"max_participants"`
	EndDate          time.Time `json:"end_date" binding:"required"`
}

// CreateLotteryEvent 创建抽奖活动（仅管理员）
// POST /api/v1/admin/lottery/create
func (h *Handler) CreateLotteryEvent(c *gin.Context) {
	var req CreateLotteryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	event, err := h.lotteryService.CreateEvent(c.Request.Context(), &service.CreateLotteryRequest{
		Title:            req.Title,
		Description:      req.Description,
		EntryCost:        req.EntryCost,
		PrizeDescription: req.PrizeDescription,
		MaxParticipants:  req.MaxParticipants,
		EndDate:          req.EndDate,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"event_id":   event.ID,
		"entry_cost": event.EntryCost,
		"end_date":   event.EndDate,
	})
}
