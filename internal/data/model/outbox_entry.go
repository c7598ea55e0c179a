package model

import (
	"time"
)

// OutboxEntry 待投递任务表，与触发它的状态变更同事务写入
type OutboxEntry struct {
	OutboxEntryID string     `gorm:"primaryKey;type:varchar(36)"`
	JobType       string     `gorm:"type:varchar(16);not null"`
	ContentID     string     `gorm:"type:varchar(36);not null;index"`
	Status        string     `gorm:"type:varchar(16);not null;index:idx_status_created,priority:1"`
	Attempts      int        `gorm:"not null;default:0"`
	LastError     string     `gorm:"type:text"`
	CreatedAt     time.Time  `gorm:"index:idx_status_created,priority:2"`
	SentAt        *time.Time
}

// TableName 指定表名
func (OutboxEntry) TableName() string {
	return "outbox_entry"
}
