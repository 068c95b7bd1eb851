package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"surveypoints/internal/config"
	"surveypoints/internal/infrastructure/lock"
	"surveypoints/internal/model"
	"surveypoints/internal/repository"
	"surveypoints/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var (
	ErrSelfPurchase    = errors.New("不能购买自己的数据集")
	ErrNotListingOwner = errors.New("只有卖家本人可以下架数据集")
	ErrNoResponses     = errors.New("问卷还没有回答，无法上架")
	ErrNotPurchased    = errors.New("尚未购买该数据集")
)

type MarketService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	marketRepo  *repository.MarketRepository
	surveyRepo  *repository.SurveyRepository
	userRepo    *repository.UserRepository
	outboxRepo  *repository.OutboxRepository
	ledger      *LedgerService
}

func NewMarketService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *MarketService {
	return &MarketService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		marketRepo:  repository.NewMarketRepository(db),
		surveyRepo:  repository.NewSurveyRepository(db),
		userRepo:    repository.NewUserRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		ledger:      NewLedgerService(db),
	}
}

type CreateListingRequest struct {
	SellerID       int64  `json:"seller_id"`
	SurveyID       int64  `json:"survey_id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Price          int64  `json:"price"`            // 0 表示免费数据集
	RevenuePerSale int64  `json:"revenue_per_sale"`
}

// CreateListing 上架问卷回答数据
func (s *MarketService) CreateListing(ctx context.Context, req *CreateListingRequest) (*model.DataMarketListing, error) {
	if req.Price < 0 || req.RevenuePerSale < 0 || req.RevenuePerSale > req.Price {
		return nil, errors.New("售价或分成设置不合法")
	}

	survey, err := s.surveyRepo.GetByID(ctx, req.SurveyID)
	if err != nil {
		return nil, err
	}
	if survey.CreatorID != req.SellerID {
		return nil, ErrNotSurveyOwner
	}
	if survey.CurrentResponses == 0 {
		return nil, ErrNoResponses
	}

	if _, err := s.userRepo.GetActive(ctx, req.SellerID); err != nil {
		return nil, err
	}

	listing := &model.DataMarketListing{
		SurveyID:       req.SurveyID,
		SellerID:       req.SellerID,
		Title:          req.Title,
		Description:    req.Description,
		Price:          req.Price,
		RevenuePerSale: req.RevenuePerSale,
		IsActive:       true,
	}
	if err := s.marketRepo.CreateListing(ctx, listing); err != nil {
		return nil, fmt.Errorf("上架失败: %w", err)
	}
	return listing, nil
}

func (s *MarketService) ListListings(ctx context.Context, page, pageSize int) ([]*model.DataMarketListing, int64, error) {
	return s.marketRepo.ListActive(ctx, page, pageSize)
}

func (s *MarketService) GetListing(ctx context.Context, listingID int64) (*model.DataMarketListing, error) {
	return s.marketRepo.GetListingByID(ctx, listingID)
}

func (s *MarketService) ListPurchases(ctx context.Context, buyerID int64) ([]*model.DataPurchase, error) {
	return s.marketRepo.ListPurchasesByBuyer(ctx, buyerID)
}

// CancelListing 下架数据集
func (s *MarketService) CancelListing(ctx context.Context, sellerID, listingID int64) error {
	err := s.marketRepo.Deactivate(ctx, nil, listingID, sellerID)
	if !errors.Is(err, repository.ErrListingNotFound) {
		return err
	}

	// 条件更新没命中行，回查区分：不存在 / 非卖家本人 / 已下架
	listing, getErr := s.marketRepo.GetListingByID(ctx, listingID)
	if getErr != nil {
		return getErr
	}
	if listing.SellerID != sellerID {
		return ErrNotListingOwner
	}
	return repository.ErrListingInactive
}

type PurchaseResponse struct {
	PurchaseNo      string `json:"purchase_no"`
	ListingID       int64  `json:"listing_id"`
	PricePaid       int64  `json:"price_paid"`
	RevenueToSeller int64  `json:"revenue_to_seller"`
	Message         string `json:"message,omitempty"`
}

// Purchase 购买数据集
//
// 【关键点】购买涉及四处写入（购买记录、买家扣款、卖家入账、销量累计），
// 任何一步单独失败都会留下不一致状态，必须折叠进一个数据库事务：
// 1. 写购买记录 —— (buyer_id, listing_id) 唯一索引拦截重复购买
// 2. 买家出账 data_purchase
// 3. 卖家入账 data_sale
// 4. 销量/收入条件自增（is_active 守卫）
// 5. 事务内写 outbox，购买事件异步投递 Kafka
// 分布式锁按买家维度，拦截同一买家的并发重复提交
func (s *MarketService) Purchase(ctx context.Context, buyerID, listingID int64) (*PurchaseResponse, error) {
	listing, err := s.marketRepo.GetListingByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !listing.IsActive {
		return nil, repository.ErrListingNotFound
	}
	if listing.SellerID == buyerID {
		return nil, ErrSelfPurchase
	}

	if _, err := s.userRepo.GetActive(ctx, buyerID); err != nil {
		return nil, err
	}

	purchaseLock := lock.NewPurchaseLock(s.redisClient, buyerID)
	if err := purchaseLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer purchaseLock.Unlock(ctx)

	// 获取锁后再查一次，重复提交直接返回已有结果
	existing, err := s.marketRepo.GetPurchase(ctx, buyerID, listingID)
	if err != nil {
		return nil, fmt.Errorf("查询购买记录失败: %w", err)
	}
	if existing != nil {
		return &PurchaseResponse{
			PurchaseNo:      existing.PurchaseNo,
			ListingID:       listingID,
			PricePaid:       existing.PricePaid,
			RevenueToSeller: existing.RevenueToSeller,
			Message:         "已购买过该数据集",
		}, nil
	}

	purchase := &model.DataPurchase{
		PurchaseNo:      idgen.GeneratePurchaseNo(),
		ListingID:       listingID,
		BuyerID:         buyerID,
		SellerID:        listing.SellerID,
		PricePaid:       listing.Price,
		RevenueToSeller: listing.RevenuePerSale,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.marketRepo.CreatePurchase(ctx, tx, purchase); err != nil {
			return err
		}

		// 免费数据集（price=0）不产生流水，只记录购买
		if listing.Price > 0 {
			_, err := s.ledger.Apply(ctx, tx, &ApplyRequest{
				UserID:      buyerID,
				Amount:      -listing.Price,
				Type:        model.TransactionTypeDataPurchase,
				RelatedID:   &listing.SurveyID,
				Description: fmt.Sprintf("数据购买: %s", listing.Title),
			})
			if err != nil {
				return err
			}
		}

		if listing.RevenuePerSale > 0 {
			_, err := s.ledger.Apply(ctx, tx, &ApplyRequest{
				UserID:      listing.SellerID,
				Amount:      listing.RevenuePerSale,
				Type:        model.TransactionTypeDataSale,
				RelatedID:   &listing.SurveyID,
				Description: fmt.Sprintf("数据销售: %s", listing.Title),
			})
			if err != nil {
				return err
			}
		}

		if err := s.marketRepo.IncrementSales(ctx, tx, listingID, listing.RevenuePerSale); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"purchase_no": purchase.PurchaseNo,
			"listing_id":  listingID,
			"buyer_id":    buyerID,
			"seller_id":   listing.SellerID,
			"price_paid":  listing.Price,
			"revenue":     listing.RevenuePerSale,
			"paid_at":     time.Now().Format(time.RFC3339),
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: purchase.PurchaseNo,
			Topic:      s.cfg.Kafka.Topic.PointEvents,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		}
		return s.outboxRepo.Create(ctx, tx, outboxMsg)
	})

	if err != nil {
		return nil, err
	}

	log.Printf("数据购买成功: purchaseNo=%s, buyerID=%d, listingID=%d, price=%d",
		purchase.PurchaseNo, buyerID, listingID, listing.Price)

	return &PurchaseResponse{
		PurchaseNo:      purchase.PurchaseNo,
		ListingID:       listingID,
		PricePaid:       listing.Price,
		RevenueToSeller: listing.RevenuePerSale,
		Message:         "购买成功",
	}, nil
}

// CanDownload 只有已购买的买家和卖家本人可以下载完整数据
func (s *MarketService) CanDownload(ctx context.Context, userID, listingID int64) (*model.DataMarketListing, error) {
	listing, err := s.marketRepo.GetListingByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID == userID {
		return listing, nil
	}
	purchase, err := s.marketRepo.GetPurchase(ctx, userID, listingID)
	if err != nil {
		return nil, err
	}
	if purchase == nil {
		return nil, ErrNotPurchased
	}
	return listing, nil
}
