package biz

import (
	"context"
	"time"

	"docflow-service/internal/constants"
)

// ContentKind 内容类型
type ContentKind string

const (
	ContentPermanent ContentKind = constants.ContentKindPermanent
	ContentTemporary ContentKind = constants.ContentKindTemporary
)

// ContentStatus 内容处理状态，只能按 waiting → processing → processed → packaged 前进
type ContentStatus string

const (
	StatusWaiting    ContentStatus = constants.ContentStatusWaiting
	StatusProcessing ContentStatus = constants.ContentStatusProcessing
	StatusProcessed  ContentStatus = constants.ContentStatusProcessed
	StatusPackaged   ContentStatus = constants.ContentStatusPackaged
)

var statusRank = map[ContentStatus]int{
	StatusWaiting:    1,
	StatusProcessing: 2,
	StatusProcessed:  3,
	StatusPackaged:   4,
}

// Valid 是否为已知状态
func (s ContentStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Beyond 当前状态是否已越过 other
func (s ContentStatus) Beyond(other ContentStatus) bool {
	return statusRank[s] > statusRank[other]
}

// CanAdvanceTo 是否允许从 s 迁移到 next（相同状态视为续租）
func (s ContentStatus) CanAdvanceTo(next ContentStatus) bool {
	return s.Valid() && next.Valid() && statusRank[next] >= statusRank[s] && statusRank[next]-statusRank[s] <= 1
}

// Content 内容领域对象
type Content struct {
	ID             string
	OwnerID        string
	Kind           ContentKind
	Status         ContentStatus
	RawText        string
	EnhancedText   string
	WordCount      int
	Stuck          bool
	SubmittedAt    *time.Time
	ExpireAt       *time.Time
	ProcessedAt    *time.Time
	OutputURL      string
	OutputExpireAt *time.Time
	CreatedAt      time.Time
}

// Expired 暂存内容是否已过期
func (c *Content) Expired(now time.Time) bool {
	return c.Kind == ContentTemporary && c.ExpireAt != nil && !now.Before(*c.ExpireAt)
}

// ContentRepo 内容存储接口（定义在 biz 层）
//
// Claim 系列方法是条件更新：只有当前状态在 from 中且没有有效租约时才成功，
// 否则返回 ErrClaimRejected。Complete 系列方法只有持有 token 的一方能提交。
type ContentRepo interface {
	CreateTemporary(ctx context.Context, c *Content) error
	// GetContent 过期的暂存内容视为不存在
	GetContent(ctx context.Context, id string, now time.Time) (*Content, error)
	ListOwnerContents(ctx context.Context, ownerID string) ([]*Content, error)
	ClaimContent(ctx context.Context, id string, from []ContentStatus, to ContentStatus, lease time.Duration, now time.Time) (*Content, string, error)
	// CompleteEnhancement 写入增强文本并在同一事务内登记 conversion 任务
	CompleteEnhancement(ctx context.Context, id, token, enhancedText string, now time.Time) (*OutboxEntry, error)
	CompletePackaging(ctx context.Context, id, token, outputURL string, outputExpireAt, now time.Time) error
	ReleaseClaim(ctx context.Context, id, token string) error
	MarkStuck(ctx context.Context, id string, stuck bool) error
	ListStuck(ctx context.Context, limit int) ([]*Content, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
