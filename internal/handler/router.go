package handler

import (
	"surveypoints/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg)

	api := r.Group("/api/v1")
	{
		// 用户相关
		user := api.Group("/user")
		{
			user.GET("/profile", h.GetProfile)
			user.GET("/balance", h.GetBalance)
			user.GET("/transactions", h.ListTransactions)
			user.POST("/profile/complete", h.CompleteProfile)
		}

		// 问卷相关
		survey := api.Group("/survey")
		{
			survey.GET("/list", h.ListSurveys)
			survey.GET("/categories", h.ListCategories)
			survey.GET("/detail", h.GetSurveyDetail)
			survey.GET("/mine", h.ListMySurveys)
			survey.GET("/responded", h.CheckResponded)
			survey.POST("/create", h.CreateSurvey)
			survey.POST("/respond", h.SubmitResponse)
			survey.POST("/close", h.CloseSurvey)
			survey.POST("/delete", h.DeleteSurvey)
			survey.GET("/export", h.ExportResponses)
		}

		// 数据市场相关
		market := api.Group("/market")
		{
			market.GET("/list", h.ListListings)
			market.GET("/detail", h.GetListingDetail)
			market.GET("/purchases", h.ListPurchases)
			market.GET("/download", h.DownloadDataset)
			market.POST("/listing/create", h.CreateListing)
			market.POST("/listing/cancel", h.CancelListing)
			market.POST("/purchase", h.Purchase)
		}

		// 公告相关
		notification := api.Group("/notification")
		{
			notification.GET("/list", h.ListNotifications)
			notification.POST("/read", h.MarkNotificationRead)
			notification.POST("/claim", h.ClaimNotificationPoints)
		}

		// 抽奖相关
		lottery := api.Group("/lottery")
		{
			lottery.GET("/events", h.ListLotteryEvents)
			lottery.GET("/entries", h.ListLotteryEntries)
			lottery.POST("/enter", h.EnterLottery)
		}

		// 管理员相关
		admin := api.Group("/admin")
		admin.Use(AdminAuthMiddleware(db))
		{
			admin.POST("/notification/create", h.CreateNotification)
			admin.POST("/lottery/create", h.CreateLotteryEvent)
			admin.GET("/reconcile", h.Reconcile)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
