package handler

import (
	"errors"
	"strconv"
	"time"

	"surveypoints/internal/config"
	"surveypoints/internal/repository"
	"surveypoints/internal/service"
	"surveypoints/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	userService         *service.UserService
	surveyService       *service.SurveyService
	marketService       *service.MarketService
	notificationService *service.NotificationService
	lotteryService      *service.LotteryService
	ledgerService       *service.LedgerService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	return &Handler{
		userService:         service.NewUserService(db, cfg),
		surveyService:       service.NewSurveyService(db, cfg),
		marketService:       service.NewMarketService(db, rdb, cfg),
		notificationService: service.NewNotificationService(db, rdb, cfg),
		lotteryService:      service.NewLotteryService(db, cfg),
		ledgerService:       service.NewLedgerService(db),
	}
}

// handleError 业务错误转换为统一错误码
func handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		response.BusinessError(c, response.CodeUserNotFound, err.Error())
	case errors.Is(err, repository.ErrBalanceNotEnough):
		response.BusinessError(c, response.CodeBalanceNotEnough, err.Error())
	case errors.Is(err, repository.ErrUserBanned):
		response.BusinessError(c, response.CodeUserBanned, err.Error())
	case errors.Is(err, repository.ErrSurveyNotFound):
		response.BusinessError(c, response.CodeSurveyNotFound, err.Error())
	case errors.Is(err, repository.ErrSurveyUnavailable),
		errors.Is(err, repository.ErrSurveyStatusInvalid):
		response.BusinessError(c, response.CodeSurveyUnavailable, err.Error())
	case errors.Is(err, repository.ErrAlreadyResponded):
		response.BusinessError(c, response.CodeAlreadyResponded, err.Error())
	case errors.Is(err, service.ErrNotSurveyOwner):
		response.BusinessError(c, response.CodeNotSurveyOwner, err.Error())
	case errors.Is(err, service.ErrInvalidBudget),
		errors.Is(err, service.ErrInvalidMaxResponses),
		errors.Is(err, service.ErrInvalidDeadline),
		errors.Is(err, service.ErrRequiredUnanswered):
		response.BusinessError(c, response.CodeInvalidSurveyParams, err.Error())
	case errors.Is(err, repository.ErrListingNotFound):
		response.BusinessError(c, response.CodeListingNotFound, err.Error())
	case errors.Is(err, repository.ErrListingInactive):
		response.BusinessError(c, response.CodeListingInactive, err.Error())
	case errors.Is(err, repository.ErrAlreadyPurchased):
		response.BusinessError(c, response.CodeAlreadyPurchased, err.Error())
	case errors.Is(err, service.ErrSelfPurchase):
		response.BusinessError(c, response.CodeSelfPurchase, err.Error())
	case errors.Is(err, service.ErrNotPurchased):
		response.BusinessError(c, response.CodeNotPurchased, err.Error())
	case errors.Is(err, service.ErrNoResponses):
		response.BusinessError(c, response.CodeNoResponses, err.Error())
	case errors.Is(err, service.ErrNotListingOwner):
		response.BusinessError(c, response.CodeNotListingOwner, err.Error())
	case errors.Is(err, service.ErrNoReward):
		response.BusinessError(c, response.CodeNoReward, err.Error())
	case errors.Is(err, service.ErrProfileIncomplete):
		response.BusinessError(c, response.CodeProfileIncomplete, err.Error())
	case errors.Is(err, repository.ErrClaimUnavailable):
		response.BusinessError(c, response.CodeClaimUnavailable, err.Error())
	case errors.Is(err, repository.ErrAlreadyClaimed):
		response.BusinessError(c, response.CodeAlreadyClaimed, err.Error())
	case errors.Is(err, repository.ErrLotteryUnavailable):
		response.BusinessError(c, response.CodeLotteryUnavailable, err.Error())
	case errors.Is(err, repository.ErrAlreadyEntered):
		response.BusinessError(c, response.CodeAlreadyEntered, err.Error())
	case errors.Is(err, repository.ErrNotificationNotFound),
		errors.Is(err, repository.ErrLotteryNotFound):
		response.BusinessError(c, response.CodeNotFound, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

func queryInt64(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return v, true
}

func queryPage(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "10"))
	return page, pageSize
}

// ============================================================
// 用户相关接口
// ============================================================

// GetProfile 查询用户资料
// GET /api/v1/user/profile?user_id=xxx
func (h *Handler) GetProfile(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}

	user, err := h.userService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, user)
}

// GetBalance 查询积分余额
// GET /api/v1/user/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}

	balance, err := h.userService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id": userID,
		"balance": balance,
	})
}

// ListTransactions 查询积分流水
// GET /api/v1/user/transactions?user_id=xxx&page=1&page_size=10
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	page, pageSize := queryPage(c)

	transactions, total, err := h.ledgerService.ListTransactions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      transactions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// CompleteProfileRequest 完善资料请求
type CompleteProfileRequest struct {
	UserID    int64  `json:"user_id" binding:"required"`
	Username  string `json:"username" binding:"required"`
	Gender    string `json:"gender" binding:"required"`
	BirthDate string `json:"birth_date" binding:"required"` // YYYY-MM-DD
}

// CompleteProfile 完善资料（首次完成时发放一次性奖励）
// POST /api/v1/user/profile/complete
func (h *Handler) CompleteProfile(c *gin.Context) {
	var req CompleteProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.userService.CompleteProfile(c.Request.Context(), &service.CompleteProfileRequest{
		UserID:    req.UserID,
		Username:  req.Username,
		Gender:    req.Gender,
		BirthDate: req.BirthDate,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, result)
}

// Reconcile 对账接口：流水累加值与当前余额比对
// GET /api/v1/admin/reconcile?user_id=xxx
func (h *Handler) Reconcile(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}

	balance, ledgerSum, err := h.ledgerService.Reconcile(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":    userID,
		"balance":    balance,
		"ledger_sum": ledgerSum,
		"consistent": balance == ledgerSum,
		"checked_at": time.Now().Format(time.RFC3339),
	})
}
