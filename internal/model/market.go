package model

import (
	"time"
)

// DataMarketListing 数据集上架信息
// total_sales / total_revenue 只通过条件 UPDATE 累加，
// 下架后（is_active=false）不再接受购买
type DataMarketListing struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SurveyID       int64     `gorm:"index;not null" json:"survey_id"`
	SellerID       int64     `gorm:"index;not null" json:"seller_id"`
	Title          string    `gorm:"type:varchar(128);not null" json:"title"`
	Description    string    `gorm:"type:text" json:"description"`
	Price          int64     `gorm:"not null" json:"price"`            // 售价（0 表示免费数据集）
	RevenuePerSale int64     `gorm:"not null" json:"revenue_per_sale"` // 每笔销售给卖家的分成
	TotalSales     int64     `gorm:"not null;default:0" json:"total_sales"`
	TotalRevenue   int64     `gorm:"not null;default:0" json:"total_revenue"`
	IsActive       bool      `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DataMarketListing) TableName() string {
	return "data_market_listings"
}

// DataPurchase 数据购买记录
// (buyer_id, listing_id) 唯一索引即"已购买"标记，同时防止重复扣款
type DataPurchase struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PurchaseNo      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"purchase_no"`
	ListingID       int64     `gorm:"uniqueIndex:uk_buyer_listing;not null" json:"listing_id"`
	BuyerID         int64     `gorm:"uniqueIndex:uk_buyer_listing;not null" json:"buyer_id"`
	SellerID        int64     `gorm:"index;not null" json:"seller_id"`
	PricePaid       int64     `gorm:"not null" json:"price_paid"`
	RevenueToSeller int64     `gorm:"not null" json:"revenue_to_seller"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (DataPurchase) TableName() string {
	return "data_purchases"
}
