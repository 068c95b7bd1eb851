package handler

import (
	"time"

	"surveypoints/internal/service"
	"surveypoints/pkg/response"

	"github.com/gin-gonic/gin"
)

// ============================================================
// 公告相关接口
// ============================================================

// ListNotifications 查询公告列表（带当前用户的已读/已领取状态）
// GET /api/v1/notification/list?user_id=xxx&page=1&page_size=10
func (h *Handler) ListNotifications(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	page, pageSize := queryPage(c)

	notifications, total, err := h.notificationService.ListForUser(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      notifications,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// MarkNotificationRead 标记公告已读
// POST /api/v1/notification/read
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	var req struct {
		UserID         int64 `json:"user_id" binding:"required"`
		NotificationID int64 `json:"notification_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.notificationService.MarkRead(c.Request.Context(), req.UserID, req.NotificationID); err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"message": "已标记为已读",
	})
}

// ClaimNotificationPoints 领取公告积分
// POST /api/v1/notification/claim
func (h *Handler) ClaimNotificationPoints(c *gin.Context) {
	var req struct {
		UserID         int64 `json:"user_id" binding:"required"`
		NotificationID int64 `json:"notification_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.notificationService.ClaimPoints(c.Request.Context(), req.UserID, req.NotificationID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, result)
}

// ============================================================
// 管理员接口
// ============================================================

// CreateNotificationRequest 发布公告请求
type CreateNotificationRequest struct {
	Title         string     `json:"title" binding:"required"`
	Content       string     `json:"content" binding:"required"`
	Type          string     `json:"type"`
	RewardPoints  int64      `json:"reward_points"`
	MaxClaims     *int64     `json:"max_claims"`
	ClaimDeadline *time.Time `json:"claim_deadline"`
}

// CreateNotification 发布公告（仅管理员，权限由中间件校验）
// POST /api/v1/admin/notification/create
func (h *Handler) CreateNotification(c *gin.Context) {
	var req CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	notification, err := h.notificationService.CreateNotification(c.Request.Context(), &service.CreateNotificationRequest{
		Title:         req.Title,
		Content:       req.Content,
		Type:          req.Type,
		RewardPoints:  req.RewardPoints,
		MaxClaims:     req.MaxClaims,
		ClaimDeadline: req.ClaimDeadline,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"notification_id": notification.ID,
		"reward_points":   notification.RewardPoints,
	})
}
