package data

import (
	"context"
	"time"

	"docflow-service/internal/biz"
	"docflow-service/internal/constants"
	"docflow-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// outboxRepo outbox 数据访问
type outboxRepo struct {
	data *Data
	log  *log.Helper
}

// NewOutboxRepo 创建 outbox repo（返回 biz.OutboxRepo 接口）
func NewOutboxRepo(data *Data, logger log.Logger) biz.OutboxRepo {
	return &outboxRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// createOutboxEntryTx 在调用方事务内登记任务
func createOutboxEntryTx(tx *gorm.DB, job biz.Job, now time.Time) (*biz.OutboxEntry, error) {
	m := &model.OutboxEntry{
		OutboxEntryID: uuid.New().String(),
		JobType:       string(job.Type),
		ContentID:     job.ID,
		Status:        constants.OutboxStatusPending,
		CreatedAt:     now,
	}
	if err := tx.Create(m).Error; err != nil {
		return nil, err
	}
	return toBizOutboxEntry(m), nil
}

// AddEntry 登记任务
func (r *outboxRepo) AddEntry(ctx context.Context, job biz.Job) (*biz.OutboxEntry, error) {
	return createOutboxEntryTx(r.data.db.WithContext(ctx), job, time.Now().UTC())
}

// ListPending 获取早于 createdBefore 仍未投递的任务
func (r *outboxRepo) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]*biz.OutboxEntry, error) {
	var rows []model.OutboxEntry
	if err := r.data.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", constants.OutboxStatusPending, createdBefore).
		Order("created_at").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]*biz.OutboxEntry, 0, len(rows))
	for i := range rows {
		result = append(result, toBizOutboxEntry(&rows[i]))
	}
	return result, nil
}

// MarkSent 标记已投递
func (r *outboxRepo) MarkSent(ctx context.Context, id string, now time.Time) error {
	return r.data.db.WithContext(ctx).Model(&model.OutboxEntry{}).
		Where("outbox_entry_id = ?", id).
		Updates(map[string]interface{}{
			"status":  constants.OutboxStatusSent,
			"sent_at": now,
		}).Error
}

// MarkFailed 记录一次投递失败
func (r *outboxRepo) MarkFailed(ctx context.Context, id string, cause string) error {
	return r.data.db.WithContext(ctx).Model(&model.OutboxEntry{}).
		Where("outbox_entry_id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": cause,
		}).Error
}

func toBizOutboxEntry(m *model.OutboxEntry) *biz.OutboxEntry {
	return &biz.OutboxEntry{
		ID:        m.OutboxEntryID,
		Job:       biz.Job{Type: biz.JobType(m.JobType), ID: m.ContentID},
		Attempts:  m.Attempts,
		CreatedAt: m.CreatedAt,
	}
}
