package data

import (
	"context"
	"errors"
	"time"

	"docflow-service/internal/biz"
	"docflow-service/internal/data/model"
	appErrors "docflow-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// contentRepo 内容数据访问，状态迁移全部是条件更新
type contentRepo struct {
	data *Data
	log  *log.Helper
}

// NewContentRepo 创建内容 repo（返回 biz.ContentRepo 接口）
func NewContentRepo(data *Data, logger log.Logger) biz.ContentRepo {
	return &contentRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// CreateTemporary 写入暂存内容
func (r *contentRepo) CreateTemporary(ctx context.Context, c *biz.Content) error {
	m := toContentModel(c)
	m.Kind = string(biz.ContentTemporary)
	return r.data.db.WithContext(ctx).Create(m).Error
}

// GetContent 获取内容，过期暂存视为不存在
func (r *contentRepo) GetContent(ctx context.Context, id string, now time.Time) (*biz.Content, error) {
	var m model.Content
	if err := r.data.db.WithContext(ctx).Where("content_id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrContentNotFound
		}
		return nil, err
	}
	c := toBizContent(&m)
	if c.Expired(now) {
		return nil, appErrors.ErrContentNotFound
	}
	return c, nil
}

// ListOwnerContents 获取用户的永久内容
func (r *contentRepo) ListOwnerContents(ctx context.Context, ownerID string) ([]*biz.Content, error) {
	var rows []model.Content
	if err := r.data.db.WithContext(ctx).
		Where("owner_id = ? AND kind = ?", ownerID, string(biz.ContentPermanent)).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]*biz.Content, 0, len(rows))
	for i := range rows {
		result = append(result, toBizContent(&rows[i]))
	}
	return result, nil
}

// ClaimContent 条件认领：状态在 from 中且无有效租约
// 状态已越过本阶段返回 ErrClaimRejected，租约仍被持有返回 ErrClaimBusy
func (r *contentRepo) ClaimContent(ctx context.Context, id string, from []biz.ContentStatus, to biz.ContentStatus, lease time.Duration, now time.Time) (*biz.Content, string, error) {
	statuses := make([]string, 0, len(from))
	for _, s := range from {
		if !s.CanAdvanceTo(to) {
			return nil, "", appErrors.ErrClaimRejected
		}
		statuses = append(statuses, string(s))
	}

	token := uuid.New().String()
	until := now.Add(lease)
	db := r.data.db.WithContext(ctx)
	res := db.Model(&model.Content{}).
		Where("content_id = ? AND kind = ? AND status IN ? AND (claimed_until IS NULL OR claimed_until < ?)",
			id, string(biz.ContentPermanent), statuses, now).
		Updates(map[string]interface{}{
			"status":        string(to),
			"claim_token":   token,
			"claimed_until": until,
		})
	if res.Error != nil {
		return nil, "", res.Error
	}

	var m model.Content
	if err := db.Where("content_id = ? AND kind = ?", id, string(biz.ContentPermanent)).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", appErrors.ErrContentNotFound
		}
		return nil, "", err
	}
	if res.RowsAffected == 0 || m.ClaimToken != token {
		for _, s := range statuses {
			if m.Status == s {
				return nil, "", appErrors.ErrClaimBusy
			}
		}
		return nil, "", appErrors.ErrClaimRejected
	}
	return toBizContent(&m), token, nil
}

// CompleteEnhancement processing → processed，同事务登记 conversion 任务
func (r *contentRepo) CompleteEnhancement(ctx context.Context, id, token, enhancedText string, now time.Time) (*biz.OutboxEntry, error) {
	var entry *biz.OutboxEntry
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Content{}).
			Where("content_id = ? AND claim_token = ? AND status = ?", id, token, string(biz.StatusProcessing)).
			Updates(map[string]interface{}{
				"status":        string(biz.StatusProcessed),
				"enhanced_text": enhancedText,
				"processed_at":  now,
				"stuck":         false,
				"claim_token":   "",
				"claimed_until": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return appErrors.ErrClaimLost
		}
		var err error
		entry, err = createOutboxEntryTx(tx, biz.Job{Type: biz.JobConversion, ID: id}, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// CompletePackaging processed → packaged
func (r *contentRepo) CompletePackaging(ctx context.Context, id, token, outputURL string, outputExpireAt, now time.Time) error {
	res := r.data.db.WithContext(ctx).Model(&model.Content{}).
		Where("content_id = ? AND claim_token = ? AND status = ?", id, token, string(biz.StatusProcessed)).
		Updates(map[string]interface{}{
			"status":           string(biz.StatusPackaged),
			"output_url":       outputURL,
			"output_expire_at": outputExpireAt,
			"stuck":            false,
			"claim_token":      "",
			"claimed_until":    nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return appErrors.ErrClaimLost
	}
	return nil
}

// ReleaseClaim 释放租约，状态保持不变以便重试
func (r *contentRepo) ReleaseClaim(ctx context.Context, id, token string) error {
	return r.data.db.WithContext(ctx).Model(&model.Content{}).
		Where("content_id = ? AND claim_token = ?", id, token).
		Updates(map[string]interface{}{
			"claim_token":   "",
			"claimed_until": nil,
		}).Error
}

// MarkStuck 设置或清除卡住标记
func (r *contentRepo) MarkStuck(ctx context.Context, id string, stuck bool) error {
	return r.data.db.WithContext(ctx).Model(&model.Content{}).
		Where("content_id = ?", id).
		Update("stuck", stuck).Error
}

// ListStuck 获取卡住的内容
func (r *contentRepo) ListStuck(ctx context.Context, limit int) ([]*biz.Content, error) {
	var rows []model.Content
	if err := r.data.db.WithContext(ctx).
		Where("stuck = ? AND kind = ?", true, string(biz.ContentPermanent)).
		Order("updated_at").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]*biz.Content, 0, len(rows))
	for i := range rows {
		result = append(result, toBizContent(&rows[i]))
	}
	return result, nil
}

// PurgeExpired 删除已过期的暂存内容
func (r *contentRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.data.db.WithContext(ctx).
		Where("kind = ? AND expire_at <= ?", string(biz.ContentTemporary), now).
		Delete(&model.Content{})
	return res.RowsAffected, res.Error
}

func toContentModel(c *biz.Content) *model.Content {
	return &model.Content{
		ContentID:      c.ID,
		OwnerID:        c.OwnerID,
		Kind:           string(c.Kind),
		Status:         string(c.Status),
		RawText:        c.RawText,
		EnhancedText:   c.EnhancedText,
		WordCount:      c.WordCount,
		Stuck:          c.Stuck,
		SubmittedAt:    c.SubmittedAt,
		ExpireAt:       c.ExpireAt,
		ProcessedAt:    c.ProcessedAt,
		OutputURL:      c.OutputURL,
		OutputExpireAt: c.OutputExpireAt,
		CreatedAt:      c.CreatedAt,
	}
}

func toBizContent(m *model.Content) *biz.Content {
	return &biz.Content{
		ID:             m.ContentID,
		OwnerID:        m.OwnerID,
		Kind:           biz.ContentKind(m.Kind),
		Status:         biz.ContentStatus(m.Status),
		RawText:        m.RawText,
		EnhancedText:   m.EnhancedText,
		WordCount:      m.WordCount,
		Stuck:          m.Stuck,
		SubmittedAt:    utcPtr(m.SubmittedAt),
		ExpireAt:       utcPtr(m.ExpireAt),
		ProcessedAt:    utcPtr(m.ProcessedAt),
		OutputURL:      m.OutputURL,
		OutputExpireAt: utcPtr(m.OutputExpireAt),
		CreatedAt:      m.CreatedAt,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
