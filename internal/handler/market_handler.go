package handler

import (
	"fmt"

	"surveypoints/internal/service"
	"surveypoints/pkg/response"

	"github.com/gin-gonic/gin"
)

// ============================================================
// 数据市场相关接口
// ============================================================

// ListListings 查询在售数据集列表
// GET /api/v1/market/list?page=1&page_size=10
func (h *Handler) ListListings(c *gin.Context) {
	page, pageSize := queryPage(c)

	listings, total, err := h.marketService.ListListings(c.Request.Context(), page, pageSize)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      listings,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetListingDetail 查询数据集详情（含购买前预览）
// GET /api/v1/market/detail?listing_id=xxx
func (h *Handler) GetListingDetail(c *gin.Context) {
	listingID, ok := queryInt64(c, "listing_id")
	if !ok {
		return
	}

	listing, err := h.marketService.GetListing(c.Request.Context(), listingID)
	if err != nil {
		handleError(c, err)
		return
	}

	preview, err := h.marketService.BuildPreview(c.Request.Context(), listingID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"listing": listing,
		"preview": preview,
	})
}

// CreateListingRequest 上架请求
type CreateListingRequest struct {
	SellerID       int64  `json:"seller_id" binding:"required"`
	SurveyID       int64  `json:"survey_id" binding:"required"`
	Title          string `json:"title" binding:"required"`
	Description    string `json:"description"`
	Price          int64  `json:"price"`            // 0 表示免费
	RevenuePerSale int64  `json:"revenue_per_sale"` // 每笔销售给卖家的分成
}

// CreateListing 上架问卷回答数据
// POST /api/v1/market/listing/create
func (h *Handler) CreateListing(c *gin.Context) {
	var req CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	listing, err := h.marketService.CreateListing(c.Request.Context(), &service.CreateListingRequest{
		SellerID:       req.SellerID,
		SurveyID:       req.SurveyID,
		Title:          req.Title,
		Description:    req.Description,
		Price:          req.Price,
		RevenuePerSale: req.RevenuePerSale,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"listing_id": listing.ID,
		"is_active":  listing.IsActive,
	})
}

// CancelListing 下架数据集
// POST /api/v1/market/listing/cancel
func (h *Handler) CancelListing(c *gin.Context) {
	var req struct {
		SellerID  int64 `json:"seller_id" binding:"required"`
		ListingID int64 `json:"listing_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.marketService.CancelListing(c.Request.Context(), req.SellerID, req.ListingID); err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"message": "数据集已下架",
	})
}

// Purchase 购买数据集
// POST /api/v1/market/purchase
func (h *Handler) Purchase(c *gin.Context) {
	var req struct {
		BuyerID   int64 `json:"buyer_id" binding:"required"`
		ListingID int64 `json:"listing_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.marketService.Purchase(c.Request.Context(), req.BuyerID, req.ListingID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, result)
}

// ListPurchases 查询自己购买过的数据集
// GET /api/v1/market/purchases?user_id=xxx
func (h *Handler) ListPurchases(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}

	purchases, err := h.marketService.ListPurchases(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, purchases)
}

// DownloadDataset 下载完整数据集 CSV（买家或卖家本人）
// GET /api/v1/market/download?user_id=xxx&listing_id=xxx
func (h *Handler) DownloadDataset(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	listingID, ok := queryInt64(c, "listing_id")
	if !ok {
		return
	}

	data, err := h.marketService.DownloadDatasetCSV(c.Request.Context(), userID, listingID)
	if err != nil {
		handleError(c, err)
		return
	}

	filename := fmt.Sprintf("dataset_%d.csv", listingID)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(200, "text/csv; charset=utf-8", data)
}
