package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentEvent 已处理的支付事件，主键即 Stripe 事件 id，用于幂等
type PaymentEvent struct {
	EventID      string    `gorm:"primaryKey;type:varchar(255)"`
	EventType    string    `gorm:"type:varchar(64);not null"`
	SessionID    string    `gorm:"type:varchar(255)"`
	UserID       string    `gorm:"type:varchar(36);not null;index"`
	TokenAmount  int64     `gorm:"not null"`
	DiscountCode string    `gorm:"type:varchar(64)"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

// TableName 指定表名
func (PaymentEvent) TableName() string {
	return "payment_event"
}

// DiscountCode 折扣码表，使用后删除
type DiscountCode struct {
	Code       string          `gorm:"primaryKey;type:varchar(64)"`
	Multiplier decimal.Decimal `gorm:"type:decimal(5,4);not null"`
	CreatedAt  time.Time       `gorm:"autoCreateTime"`
}

// TableName 指定表名
func (DiscountCode) TableName() string {
	return "discount_code"
}
