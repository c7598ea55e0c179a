package model

import (
	"time"
)

// Account 用户 token 账户表
type Account struct {
	AccountID    string    `gorm:"primaryKey;type:varchar(36)"`
	UserID       string    `gorm:"uniqueIndex;type:varchar(36);not null"`
	TokenBalance int64     `gorm:"not null;default:0;check:chk_account_balance,token_balance >= 0"`
	InviterID    string    `gorm:"type:varchar(36);index"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Account) TableName() string {
	return "account"
}
