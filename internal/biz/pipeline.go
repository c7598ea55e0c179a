package biz

import (
	"context"
	"fmt"
	"time"

	"docflow-service/internal/constants"
	"docflow-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// JobRouter 把队列消息路由到对应阶段
type JobRouter struct {
	contents    ContentRepo
	enhancement *EnhancementUseCase
	packaging   *PackagingUseCase
	log         *log.Helper
	metrics     *metrics.PipelineMetrics
}

// NewJobRouter 创建 JobRouter
func NewJobRouter(contents ContentRepo, enhancement *EnhancementUseCase, packaging *PackagingUseCase, logger log.Logger) *JobRouter {
	return &JobRouter{
		contents:    contents,
		enhancement: enhancement,
		packaging:   packaging,
		log:         log.NewHelper(logger),
		metrics:     metrics.GetMetrics(),
	}
}

// Dispatch 处理一条任务，返回错误表示需要重试
func (r *JobRouter) Dispatch(ctx context.Context, job Job) error {
	startTime := time.Now()
	var err error
	switch job.Type {
	case JobText:
		err = r.enhancement.Handle(ctx, job.ID)
	case JobConversion:
		err = r.packaging.Handle(ctx, job.ID)
	default:
		// 未知类型重试没有意义
		r.log.Errorf("unknown job type dropped: type=%s, id=%s", job.Type, job.ID)
		return nil
	}
	r.metrics.JobDuration.WithLabelValues(string(job.Type)).Observe(time.Since(startTime).Seconds())
	if err != nil {
		r.metrics.JobTotal.WithLabelValues(string(job.Type), constants.ResultFailed).Inc()
		return fmt.Errorf("%s job %s: %w", job.Type, job.ID, err)
	}
	r.metrics.JobTotal.WithLabelValues(string(job.Type), constants.ResultSuccess).Inc()
	return nil
}

// Escalate 重试耗尽：保留当前状态并标记卡住，等待人工重放
func (r *JobRouter) Escalate(ctx context.Context, job Job, cause error) {
	r.metrics.JobStuckTotal.WithLabelValues(string(job.Type)).Inc()
	r.log.Errorf("job exhausted retries, content marked stuck: type=%s, id=%s, error=%v", job.Type, job.ID, cause)
	if err := r.contents.MarkStuck(ctx, job.ID, true); err != nil {
		r.log.Errorf("mark content stuck failed: id=%s, error=%v", job.ID, err)
	}
}
