package job

import (
	"context"
	"fmt"
	"log"
	"time"

	"surveypoints/internal/config"
	"surveypoints/internal/model"
	"surveypoints/internal/repository"
	"surveypoints/internal/service"

	"gorm.io/gorm"
)

// SurveyDeadlineJob 定时关闭已过截止时间的问卷，并向创建者返还未使用预算
type SurveyDeadlineJob struct {
	db         *gorm.DB
	surveyRepo *repository.SurveyRepository
	ledger     *service.LedgerService
	cfg        *config.Config
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewSurveyDeadlineJob(db *gorm.DB, cfg *config.Config) *SurveyDeadlineJob {
	return &SurveyDeadlineJob{
		db:         db,
		surveyRepo: repository.NewSurveyRepository(db),
		ledger:     service.NewLedgerService(db),
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		interval:   30 * time.Second,
		batchSize:  100,
	}
}

func (j *SurveyDeadlineJob) Start(ctx context.Context) {
	log.Println("[SurveyDeadlineJob] 问卷到期任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[SurveyDeadlineJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[SurveyDeadlineJob] 任务停止")
			return
		case <-ticker.C:
			j.closeExpiredSurveys(ctx)
		}
	}
}

func (j *SurveyDeadlineJob) Stop() {
	close(j.stopCh)
}

func (j *SurveyDeadlineJob) closeExpiredSurveys(ctx context.Context) {
	surveys, err := j.surveyRepo.GetExpired(ctx, j.batchSize)
	if err != nil {
		log.Printf("[SurveyDeadlineJob] 查询到期问卷失败: %v", err)
		return
	}

	if len(surveys) == 0 {
		return
	}

	log.Printf("[SurveyDeadlineJob] 发现 %d 个到期问卷", len(surveys))

	closedCount := 0
	for _, survey := range surveys {
		if err := j.closeSurvey(ctx, survey); err != nil {
			log.Printf("[SurveyDeadlineJob] 关闭问卷失败: surveyID=%d, err=%v", survey.ID, err)
			continue
		}
		closedCount++
	}

	log.Printf("[SurveyDeadlineJob] 本次关闭 %d 个到期问卷", closedCount)
}

// closeSurvey 关闭单个问卷
// 状态流转与返还同事务，流转条件是 status=active：
// 创建者手动结束和定时任务并发时，只有一方会成功执行返还
func (j *SurveyDeadlineJob) closeSurvey(ctx context.Context, survey *model.Survey) error {
	return j.db.Transaction(func(tx *gorm.DB) error {
		if err := j.surveyRepo.UpdateStatus(ctx, tx, survey.ID, model.SurveyStatusActive, model.SurveyStatusClosed); err != nil {
			return err
		}

		var current int64
		if err := tx.WithContext(ctx).
			Model(&model.Survey{}).
			Where("id = ?", survey.ID).
			Pluck("current_responses", &current).Error; err != nil {
			return err
		}

		refund := (survey.MaxResponses - current) * survey.RewardPoints
		if refund <= 0 {
			return nil
		}

		_, err := j.ledger.Apply(ctx, tx, &service.ApplyRequest{
			UserID:      survey.CreatorID,
			Amount:      refund,
			Type:        model.TransactionTypeSurveyClosure,
			RelatedID:   &survey.ID,
			Description: fmt.Sprintf("问卷到期返还: %s", survey.Title),
		})
		if err != nil {
			return err
		}

		log.Printf("[SurveyDeadlineJob] 问卷已到期关闭: surveyID=%d, creatorID=%d, refund=%d",
			survey.ID, survey.CreatorID, refund)
		return nil
	})
}
