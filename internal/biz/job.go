package biz

import (
	"context"
	"time"

	"docflow-service/internal/constants"
	"docflow-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// JobType 任务类型
type JobType string

const (
	JobText       JobType = constants.JobTypeText
	JobConversion JobType = constants.JobTypeConversion
)

// Job 队列消息体，消费者只依赖 id 重新读取内容
type Job struct {
	Type JobType `json:"type"`
	ID   string  `json:"id"`
}

// OutboxEntry 与状态变更同事务写入的待投递任务
type OutboxEntry struct {
	ID        string
	Job       Job
	Attempts  int
	CreatedAt time.Time
}

// JobQueue 任务队列（RocketMQ 或进程内队列）
type JobQueue interface {
	Enqueue(ctx context.Context, job Job) error
}

// OutboxRepo outbox 存储接口
type OutboxRepo interface {
	// AddEntry 在事务外补登任务（人工重放时使用）
	AddEntry(ctx context.Context, job Job) (*OutboxEntry, error)
	ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]*OutboxEntry, error)
	MarkSent(ctx context.Context, id string, now time.Time) error
	MarkFailed(ctx context.Context, id string, cause string) error
}

// Dispatcher 把 outbox 条目投递到队列
type Dispatcher struct {
	outbox  OutboxRepo
	queue   JobQueue
	log     *log.Helper
	metrics *metrics.PipelineMetrics
	now     func() time.Time
}

// NewDispatcher 创建 Dispatcher
func NewDispatcher(outbox OutboxRepo, queue JobQueue, logger log.Logger) *Dispatcher {
	return &Dispatcher{
		outbox:  outbox,
		queue:   queue,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
		now:     utcNow,
	}
}

// Publish 投递条目；失败只记录，由中继重试
func (d *Dispatcher) Publish(ctx context.Context, entries ...*OutboxEntry) int {
	sent := 0
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		if err := d.queue.Enqueue(ctx, entry.Job); err != nil {
			d.log.Warnf("enqueue job failed, left for relay: entry=%s, type=%s, id=%s, error=%v", entry.ID, entry.Job.Type, entry.Job.ID, err)
			d.metrics.OutboxPublished.WithLabelValues(constants.ResultFailed).Inc()
			if markErr := d.outbox.MarkFailed(ctx, entry.ID, err.Error()); markErr != nil {
				d.log.Errorf("mark outbox entry failed: entry=%s, error=%v", entry.ID, markErr)
			}
			continue
		}
		if err := d.outbox.MarkSent(ctx, entry.ID, d.now()); err != nil {
			// 已投递但未标记，中继会重复投递，下游按状态幂等
			d.log.Warnf("mark outbox entry sent failed: entry=%s, error=%v", entry.ID, err)
		}
		d.metrics.OutboxPublished.WithLabelValues(constants.ResultSuccess).Inc()
		sent++
	}
	return sent
}

// Relay 重投超过宽限期仍未投递的条目
func (d *Dispatcher) Relay(ctx context.Context, grace time.Duration, limit int) (int, error) {
	pending, err := d.outbox.ListPending(ctx, d.now().Add(-grace), limit)
	if err != nil {
		return 0, err
	}
	d.metrics.OutboxPending.Set(float64(len(pending)))
	if len(pending) == 0 {
		return 0, nil
	}
	return d.Publish(ctx, pending...), nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}
