package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Product struct {
	ID            uint    `gorm:"primaryKey;autoIncrement"  json:"id"`
	Name          string  `gorm:"not null"                  json:"name"`
	NameAr        string  `json:"name_ar"`
	Description   string  `gorm:"not null"                  json:"description"`
	DescriptionAr string  `json:"description_ar"`
	Price         float64 `gorm:"not null"                  json:"price"`
	OldPrice      float64 `json:"old_price,omitempty"`
	Count         uint    `json:"count"`

	DiscountAmount     float64    `json:"discount_amount"`
	DiscountPercentage float64    `json:"discount_percentage"`
	DiscountStart      *time.Time `json:"discount_start,omitempty"`
	DiscountEnd        *time.Time `json:"discount_end,omitempty"`
	HasActiveDiscount  bool       `gorm:"default:false" json:"has_active_discount"`
}

// EffectivePrice returns the price to charge at the given moment. Stored
// discount fields are honored only while HasActiveDiscount is set and now
// falls inside the discount window; otherwise the plain price applies.
func (p *Product) EffectivePrice(now time.Time) float64 {
	if !p.HasActiveDiscount || p.DiscountStart == nil || p.DiscountEnd == nil {
		return p.Price
	}
	if now.Before(*p.DiscountStart) || now.After(*p.DiscountEnd) {
		return p.Price
	}
	price := p.Price
	if p.DiscountPercentage > 0 {
		price = price * (1 - p.DiscountPercentage/100)
	} else if p.DiscountAmount > 0 {
		price = price - p.DiscountAmount
	}
	if price < 0 {
		return 0
	}
	return price
}

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"unique;not null"          json:"username"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	Role         string `gorm:"not null"                 json:"role"`
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"          json:"id"`
	Token     string `gorm:"unique;not null"     json:"token"`
	UserID    uint   `gorm:"index;not null"      json:"user_id"`
	ExpiresAt int64  `gorm:"not null"            json:"expires_at"`
	Revoked   bool   `gorm:"default:false"       json:"revoked"`
}

type CartItem struct {
	ID        uint    `gorm:"primaryKey"                             json:"id"`
	UserID    uint    `gorm:"uniqueIndex:idx_user_product;not null"  json:"user_id"`
	ProductID uint    `gorm:"uniqueIndex:idx_user_product;not null"  json:"product_id"`
	Quantity  uint    `gorm:"default:1;check:quantity>0"             json:"quantity"`
	Size      string  `json:"size,omitempty"`
	Color     string  `json:"color,omitempty"`
	Price     float64 `json:"price"`
}

type CouponType string

const (
	CouponPercentage CouponType = "percentage"
	CouponFixed      CouponType = "fixed"
)

type Coupon struct {
	ID        uuid.UUID  `gorm:"primaryKey"       json:"id"`
	Code      string     `gorm:"unique;not null"  json:"code"`
	Type      CouponType `gorm:"not null"         json:"type"`
	Value     float64    `gorm:"not null"         json:"value"`
	MinOrder  float64    `json:"min_order"`
	MaxUses   uint       `json:"max_uses"`
	UsedCount uint       `gorm:"default:0"        json:"used_count"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Active    bool       `gorm:"default:true"     json:"active"`
}

func (c *Coupon) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type Order struct {
	ID          uint    `gorm:"primaryKey"     json:"id"`
	UserID      uint    `gorm:"index;not null" json:"user_id"`
	Subtotal    float64 `json:"subtotal"`
	Discount    float64 `json:"discount"`
	DeliveryFee float64 `json:"delivery_fee"`
	Total       float64 `json:"total"`
	CouponCode  string  `json:"coupon_code,omitempty"`
	Status      string  `json:"status"`
	CreatedAt   int64   `json:"created_at"`
}

type OrderItem struct {
	ID        uint    `gorm:"primaryKey"     json:"id"`
	OrderID   uint    `gorm:"index;not null" json:"order_id"`
	UserID    uint    `gorm:"index;not null" json:"user_id"`
	ProductID uint    `gorm:"not null"       json:"product_id"`
	Quantity  uint    `json:"quantity"`
	Size      string  `json:"size,omitempty"`
	Color     string  `json:"color,omitempty"`
	UnitPrice float64 `json:"unit_price"`
}
