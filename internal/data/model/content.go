package model

import (
	"time"
)

// Content 内容表，暂存与永久内容共用一张表，以 kind 区分
type Content struct {
	ContentID      string     `gorm:"primaryKey;type:varchar(36)"`
	OwnerID        string     `gorm:"type:varchar(36);not null;index:idx_owner_kind,priority:1"`
	Kind           string     `gorm:"type:varchar(16);not null;index:idx_owner_kind,priority:2;index:idx_kind_expire,priority:1"`
	Status         string     `gorm:"type:varchar(16);not null;index"`
	RawText        string     `gorm:"type:mediumtext;not null"`
	EnhancedText   string     `gorm:"type:mediumtext"`
	WordCount      int        `gorm:"not null"`
	Stuck          bool       `gorm:"not null;default:false;index"`
	ClaimToken     string     `gorm:"type:varchar(36)"`
	ClaimedUntil   *time.Time `gorm:"index"`
	SubmittedAt    *time.Time
	ExpireAt       *time.Time `gorm:"index:idx_kind_expire,priority:2"`
	ProcessedAt    *time.Time
	OutputURL      string `gorm:"type:text"`
	OutputExpireAt *time.Time
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Content) TableName() string {
	return "content"
}
