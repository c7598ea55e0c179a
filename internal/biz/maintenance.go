package biz

import (
	"context"
	"time"

	appErrors "docflow-service/internal/errors"
	"docflow-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// MaintenanceUseCase 后台维护：清理过期暂存、outbox 中继、卡住任务巡检与重放
type MaintenanceUseCase struct {
	contents   ContentRepo
	outbox     OutboxRepo
	dispatcher *Dispatcher
	config     *PipelineConfig
	log        *log.Helper
	metrics    *metrics.PipelineMetrics
	now        func() time.Time
}

// NewMaintenanceUseCase 创建维护 UseCase
func NewMaintenanceUseCase(contents ContentRepo, outbox OutboxRepo, dispatcher *Dispatcher, config *PipelineConfig, logger log.Logger) *MaintenanceUseCase {
	return &MaintenanceUseCase{
		contents:   contents,
		outbox:     outbox,
		dispatcher: dispatcher,
		config:     config,
		log:        log.NewHelper(logger),
		metrics:    metrics.GetMetrics(),
		now:        utcNow,
	}
}

// PurgeExpired 物理删除已过期的暂存内容
func (uc *MaintenanceUseCase) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := uc.contents.PurgeExpired(ctx, uc.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		uc.metrics.TemporaryPurged.Add(float64(n))
		uc.log.Infof("expired temporary contents purged: count=%d", n)
	}
	return n, nil
}

// RelayOutbox 重投未送达的任务
func (uc *MaintenanceUseCase) RelayOutbox(ctx context.Context) (int, error) {
	return uc.dispatcher.Relay(ctx, uc.config.OutboxGrace, uc.config.OutboxBatch)
}

// ReportStuck 列出卡住的内容并更新指标
func (uc *MaintenanceUseCase) ReportStuck(ctx context.Context) ([]*Content, error) {
	stuck, err := uc.contents.ListStuck(ctx, 1000)
	if err != nil {
		return nil, err
	}
	uc.metrics.StuckContents.Set(float64(len(stuck)))
	for _, c := range stuck {
		uc.log.Warnf("content stuck: id=%s, status=%s, owner=%s", c.ID, c.Status, c.OwnerID)
	}
	return stuck, nil
}

// Requeue 清除卡住标记并按当前状态重新登记任务
func (uc *MaintenanceUseCase) Requeue(ctx context.Context, id string) (*Content, error) {
	c, err := uc.contents.GetContent(ctx, id, uc.now())
	if err != nil {
		return nil, err
	}
	if c.Kind != ContentPermanent {
		return nil, appErrors.ErrContentNotFound
	}
	job := Job{ID: c.ID}
	switch c.Status {
	case StatusWaiting, StatusProcessing:
		job.Type = JobText
	case StatusProcessed:
		job.Type = JobConversion
	default:
		return nil, appErrors.ErrClaimRejected
	}
	if err := uc.contents.MarkStuck(ctx, id, false); err != nil {
		return nil, err
	}
	entry, err := uc.outbox.AddEntry(ctx, job)
	if err != nil {
		return nil, err
	}
	uc.dispatcher.Publish(ctx, entry)
	uc.log.Infof("content requeued: id=%s, status=%s, job=%s", id, c.Status, job.Type)
	c.Stuck = false
	return c, nil
}
