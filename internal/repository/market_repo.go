package repository

import (
	"context"
	"errors"

	"surveypoints/internal/model"

	"gorm.io/gorm"
)

var (
	ErrListingNotFound  = errors.New("数据集不存在或已下架")
	ErrListingInactive  = errors.New("数据集已下架")
	ErrAlreadyPurchased = errors.New("已购买过该数据集")
)

type MarketRepository struct {
	db *gorm.DB
}

func NewMarketRepository(db *gorm.DB) *MarketRepository {
	return &MarketRepository{db: db}
}

func (r *MarketRepository) CreateListing(ctx context.Context, listing *model.DataMarketListing) error {
	return r.db.WithContext(ctx).Create(listing).Error
}

func (r *MarketRepository) GetListingByID(ctx context.Context, listingID int64) (*model.DataMarketListing, error) {
	var listing model.DataMarketListing
	err := r.db.WithContext(ctx).Where("id = ?", listingID).First(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return &listing, nil
}

func (r *MarketRepository) ListActive(ctx context.Context, page, pageSize int) ([]*model.DataMarketListing, int64, error) {
	var listings []*model.DataMarketListing
	var total int64

	query := r.db.WithContext(ctx).Model(&model.DataMarketListing{}).Where("is_active = ?", true)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&listings).Error

	return listings, total, err
}

// Deactivate 下架数据集（cancel_listing），只有卖家本人可以操作
func (r *MarketRepository) Deactivate(ctx context.Context, tx *gorm.DB, listingID, sellerID int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.DataMarketListing{}).
		Where("id = ? AND seller_id = ? AND is_active = ?", listingID, sellerID, true).
		Update("is_active", false)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrListingNotFound
	}
	return nil
}

func (r *MarketRepository) DeactivateBySurveyID(ctx context.Context, tx *gorm.DB, surveyID int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.DataMarketListing{}).
		Where("survey_id = ? AND is_active = ?", surveyID, true).
		Update("is_active", false).Error
}

// IncrementSales 销量/收入计数的条件自增（update_listing_sales）
// is_active 放进 WHERE，购买与下架并发时不会给已下架数据集累计销量
func (r *MarketRepository) IncrementSales(ctx context.Context, tx *gorm.DB, listingID int64, revenueAmount int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.DataMarketListing{}).
		Where("id = ? AND is_active = ?", listingID, true).
		Updates(map[string]interface{}{
			"total_sales":   gorm.Expr("total_sales + 1"),
			"total_revenue": gorm.Expr("total_revenue + ?", revenueAmount),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrListingInactive
	}
	return nil
}

// CreatePurchase 写入购买记录，唯一索引冲突映射为 ErrAlreadyPurchased
func (r *MarketRepository) CreatePurchase(ctx context.Context, tx *gorm.DB, purchase *model.DataPurchase) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(purchase).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyPurchased
		}
		return err
	}
	return nil
}

func (r *MarketRepository) GetPurchase(ctx context.Context, buyerID, listingID int64) (*model.DataPurchase, error) {
	var purchase model.DataPurchase
	err := r.db.WithContext(ctx).
		Where("buyer_id = ? AND listing_id = ?", buyerID, listingID).
		First(&purchase).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &purchase, nil
}

func (r *MarketRepository) ListPurchasesByBuyer(ctx context.Context, buyerID int64) ([]*model.DataPurchase, error) {
	var purchases []*model.DataPurchase
	err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC").
		Find(&purchases).Error
	return purchases, err
}
