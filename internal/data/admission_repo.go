package data

import (
	"context"
	"errors"
	"time"

	"docflow-service/internal/biz"
	"docflow-service/internal/data/model"
	appErrors "docflow-service/internal/errors"
	"docflow-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// admissionRepo 准入事务：扣费、内容与任务一起提交或一起回滚
type admissionRepo struct {
	data    *Data
	log     *log.Helper
	metrics *metrics.PipelineMetrics
}

// NewAdmissionRepo 创建准入 repo（返回 biz.AdmissionRepo 接口）
func NewAdmissionRepo(data *Data, logger log.Logger) biz.AdmissionRepo {
	return &admissionRepo{
		data:    data,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// AdmitContent 扣费并写入永久内容
func (r *admissionRepo) AdmitContent(ctx context.Context, c *biz.Content) (*biz.OutboxEntry, error) {
	var entry *biz.OutboxEntry
	err := withUserLock(ctx, r.data, r.log, r.metrics, c.OwnerID, func() error {
		return r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if _, err := debitTx(tx, c.OwnerID, int64(c.WordCount), biz.TxDebit, c.ID); err != nil {
				return err
			}
			m := toContentModel(c)
			m.Kind = string(biz.ContentPermanent)
			m.Status = string(biz.StatusWaiting)
			if err := tx.Create(m).Error; err != nil {
				return err
			}
			var err error
			entry, err = createOutboxEntryTx(tx, biz.Job{Type: biz.JobText, ID: c.ID}, c.CreatedAt)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	r.data.cache.invalidate(c.OwnerID)
	return entry, nil
}

// PromoteContent 暂存转永久，只会成功一次
func (r *admissionRepo) PromoteContent(ctx context.Context, ownerID, id string, now time.Time) (*biz.Content, *biz.OutboxEntry, error) {
	var (
		promoted *biz.Content
		entry    *biz.OutboxEntry
	)
	err := withUserLock(ctx, r.data, r.log, r.metrics, ownerID, func() error {
		return r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var m model.Content
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("content_id = ? AND owner_id = ? AND kind = ? AND expire_at > ?", id, ownerID, string(biz.ContentTemporary), now).
				First(&m).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return appErrors.ErrContentNotFound
				}
				return err
			}

			if _, err := debitTx(tx, ownerID, int64(m.WordCount), biz.TxDebit, id); err != nil {
				return err
			}

			res := tx.Model(&model.Content{}).
				Where("content_id = ? AND kind = ?", id, string(biz.ContentTemporary)).
				Updates(map[string]interface{}{
					"kind":         string(biz.ContentPermanent),
					"status":       string(biz.StatusWaiting),
					"expire_at":    nil,
					"submitted_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return appErrors.ErrContentNotFound
			}

			m.Kind = string(biz.ContentPermanent)
			m.Status = string(biz.StatusWaiting)
			m.ExpireAt = nil
			m.SubmittedAt = &now
			promoted = toBizContent(&m)

			entry, err = createOutboxEntryTx(tx, biz.Job{Type: biz.JobText, ID: id}, now)
			return err
		})
	})
	if err != nil {
		return nil, nil, err
	}
	r.data.cache.invalidate(ownerID)
	return promoted, entry, nil
}
