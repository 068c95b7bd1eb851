package job

import (
	"context"
	"log"
	"time"

	"surveypoints/internal/config"
	"surveypoints/internal/repository"

	"gorm.io/gorm"
)

// LotteryCloseJob 定时关闭已过结束时间的抽奖活动
type LotteryCloseJob struct {
	db          *gorm.DB
	lotteryRepo *repository.LotteryRepository
	cfg         *config.Config
	stopCh      chan struct{}
	interval    time.Duration
	batchSize   int
}

func NewLotteryCloseJob(db *gorm.DB, cfg *config.Config) *LotteryCloseJob {
	return &LotteryCloseJob{
		db:          db,
		lotteryRepo: repository.NewLotteryRepository(db),
		cfg:         cfg,
		stopCh:      make(chan struct{}),
		interval:    time.Minute,
		batchSize:   50,
	}
}

func (j *LotteryCloseJob) Start(ctx context.Context) {
	log.Println("[LotteryCloseJob] 抽奖结束任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[LotteryCloseJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[LotteryCloseJob] 任务停止")
			return
		case <-ticker.C:
			j.closeExpiredEvents(ctx)
		}
	}
}

func (j *LotteryCloseJob) Stop() {
	close(j.stopCh)
}

func (j *LotteryCloseJob) closeExpiredEvents(ctx context.Context) {
	events, err := j.lotteryRepo.GetExpired(ctx, j.batchSize)
	if err != nil {
		log.Printf("[LotteryCloseJob] 查询到期活动失败: %v", err)
		return
	}

	for _, event := range events {
		if err := j.lotteryRepo.Close(ctx, event.ID); err != nil {
			log.Printf("[LotteryCloseJob] 关闭活动失败: eventID=%d, err=%v", event.ID, err)
			continue
		}
		log.Printf("[LotteryCloseJob] 抽奖活动已结束: eventID=%d, participants=%d",
			event.ID, event.CurrentParticipants)
	}
}
