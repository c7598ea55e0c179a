package model

import (
	"time"

	"docflow-service/internal/constants"
)

// 流水类型常量（引用 constants 包中的常量，保持一致性）
const (
	TransactionKindDebit    = constants.TransactionKindDebit
	TransactionKindPurchase = constants.TransactionKindPurchase
	TransactionKindReferral = constants.TransactionKindReferral
)

// TokenTransaction 账本流水表，只插入不更新
type TokenTransaction struct {
	TokenTransactionID string    `gorm:"primaryKey;type:varchar(36)"`
	UserID             string    `gorm:"type:varchar(36);not null;index:idx_user_time,priority:1"`
	Amount             int64     `gorm:"not null"` // 入账为正，扣减为负
	Kind               string    `gorm:"type:varchar(16);not null"`
	Reference          string    `gorm:"type:varchar(255);index"`
	CreatedAt          time.Time `gorm:"autoCreateTime;index:idx_user_time,priority:2"`
}

// TableName 指定表名
func (TokenTransaction) TableName() string {
	return "token_transaction"
}
