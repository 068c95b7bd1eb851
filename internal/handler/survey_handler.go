package handler

import (
	"fmt"
	"strconv"
	"time"

	"surveypoints/internal/service"
	"surveypoints/pkg/response"

	"github.com/gin-gonic/gin"
)

// ============================================================
// 问卷相关接口
// ============================================================

// ListSurveys 查询募集中的问卷列表
// GET /api/v1/survey/list?category_id=xxx&search=xxx&page=1&page_size=10
func (h *Handler) ListSurveys(c *gin.Context) {
	categoryID, _ := strconv.ParseInt(c.DefaultQuery("category_id", "0"), 10, 64)
	search := c.Query("search")
	page, pageSize := queryPage(c)

	surveys, total, err := h.surveyService.ListSurveys(c.Request.Context(), categoryID, search, page, pageSize)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      surveys,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ListCategories 查询问卷分类
// GET /api/v1/survey/categories
func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.surveyService.ListCategories(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, categories)
}

// GetSurveyDetail 查询问卷详情（含题目）
// GET /api/v1/survey/detail?survey_id=xxx
func (h *Handler) GetSurveyDetail(c *gin.Context) {
	surveyID, ok := queryInt64(c, "survey_id")
	if !ok {
		return
	}

	detail, err := h.surveyService.GetSurveyDetail(c.Request.Context(), surveyID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, detail)
}

// ListMySurveys 查询自己创建的问卷
// GET /api/v1/survey/mine?user_id=xxx
func (h *Handler) ListMySurveys(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}

	surveys, err := h.surveyService.ListByCreator(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, surveys)
}

// CheckResponded 查询是否已回答过某问卷（提交前预检查）
// GET /api/v1/survey/responded?survey_id=xxx&user_id=xxx
func (h *Handler) CheckResponded(c *gin.Context) {
	surveyID, ok := queryInt64(c, "survey_id")
	if !ok {
		return
	}
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}

	responded, err := h.surveyService.HasResponded(c.Request.Context(), surveyID, userID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"survey_id": surveyID,
		"user_id":   userID,
		"responded": responded,
	})
}

// CreateSurveyRequest 创建问卷请求
type CreateSurveyRequest struct {
	CreatorID    int64                   `json:"creator_id" binding:"required"`
	Title        string                  `json:"title" binding:"required"`
	Description  string                  `json:"description"`
	CategoryID   int64                   `json:"category_id" binding:"required"`
	TotalBudget  int64                   `json:"total_budget" binding:"required,gt=0"`
	MaxResponses int64                   `json:"max_responses" binding:"required,gt=0"`
	Deadline     time.Time               `json:"deadline" binding:"required"`
	Questions    []service.QuestionInput `json:"questions" binding:"required,min=1"`
}

// CreateSurvey 创建问卷（从余额一次性扣除总预算）
// POST /api/v1/survey/create
func (h *Handler) CreateSurvey(c *gin.Context) {
	var req CreateSurveyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	survey, err := h.surveyService.CreateSurvey(c.Request.Context(), &service.CreateSurveyRequest{
		CreatorID:    req.CreatorID,
		Title:        req.Title,
		Description:  req.Description,
		CategoryID:   req.CategoryID,
		TotalBudget:  req.TotalBudget,
		MaxResponses: req.MaxResponses,
		Deadline:     req.Deadline,
		Questions:    req.Questions,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"survey_id":     survey.ID,
		"status":        survey.Status,
		"reward_points": survey.RewardPoints,
		"total_budget":  survey.TotalBudget,
	})
}

// SubmitResponseRequest 提交回答请求
type SubmitResponseRequest struct {
	SurveyID     int64                  `json:"survey_id" binding:"required"`
	RespondentID int64                  `json:"respondent_id" binding:"required"`
	Answers      map[string]interface{} `json:"answers" binding:"required"`
}

// SubmitResponse 提交问卷回答并领取报酬
// POST /api/v1/survey/respond
func (h *Handler) SubmitResponse(c *gin.Context) {
	var req SubmitResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	resp, err := h.surveyService.SubmitResponse(c.Request.Context(), &service.SubmitResponseRequest{
		SurveyID:     req.SurveyID,
		RespondentID: req.RespondentID,
		Answers:      req.Answers,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"response_id":  resp.ID,
		"submitted_at": resp.SubmittedAt,
	})
}

// CloseSurvey 结束募集并返还未使用预算
// POST /api/v1/survey/close
func (h *Handler) CloseSurvey(c *gin.Context) {
	var req struct {
		UserID   int64 `json:"user_id" binding:"required"`
		SurveyID int64 `json:"survey_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	refund, err := h.surveyService.CloseSurvey(c.Request.Context(), req.UserID, req.SurveyID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"survey_id": req.SurveyID,
		"refund":    refund,
	})
}

// DeleteSurvey 删除问卷（返还未使用预算并下架关联数据集）
// POST /api/v1/survey/delete
func (h *Handler) DeleteSurvey(c *gin.Context) {
	var req struct {
		UserID   int64 `json:"user_id" binding:"required"`
		SurveyID int64 `json:"survey_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	refund, err := h.surveyService.DeleteSurvey(c.Request.Context(), req.UserID, req.SurveyID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"survey_id": req.SurveyID,
		"refund":    refund,
	})
}

// ExportResponses 创建者导出回答 CSV
// GET /api/v1/survey/export?user_id=xxx&survey_id=xxx
func (h *Handler) ExportResponses(c *gin.Context) {
	userID, ok := queryInt64(c, "user_id")
	if !ok {
		return
	}
	surveyID, ok := queryInt64(c, "survey_id")
	if !ok {
		return
	}

	data, err := h.surveyService.ExportResponsesCSV(c.Request.Context(), userID, surveyID)
	if err != nil {
		handleError(c, err)
		return
	}

	filename := fmt.Sprintf("survey_%d_responses.csv", surveyID)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(200, "text/csv; charset=utf-8", data)
}
