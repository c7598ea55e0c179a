package biz

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"docflow-service/internal/constants"
	appErrors "docflow-service/internal/errors"
	"docflow-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// Enhancer 外部文本增强服务
type Enhancer interface {
	Enhance(ctx context.Context, text string) (string, error)
}

// EnhancementUseCase 处理 text 任务：waiting → processing → processed
type EnhancementUseCase struct {
	contents   ContentRepo
	enhancer   Enhancer
	dispatcher *Dispatcher
	config     *PipelineConfig
	log        *log.Helper
	metrics    *metrics.PipelineMetrics
	now        func() time.Time
}

// NewEnhancementUseCase 创建增强 UseCase
func NewEnhancementUseCase(contents ContentRepo, enhancer Enhancer, dispatcher *Dispatcher, config *PipelineConfig, logger log.Logger) *EnhancementUseCase {
	return &EnhancementUseCase{
		contents:   contents,
		enhancer:   enhancer,
		dispatcher: dispatcher,
		config:     config,
		log:        log.NewHelper(logger),
		metrics:    metrics.GetMetrics(),
		now:        utcNow,
	}
}

// Handle 处理一次投递；已越过本阶段时直接返回 nil
// 租约仍被其它 worker 持有时返回 ErrClaimBusy，由队列在稍后重投
func (uc *EnhancementUseCase) Handle(ctx context.Context, id string) error {
	c, token, err := uc.contents.ClaimContent(ctx, id, []ContentStatus{StatusWaiting, StatusProcessing}, StatusProcessing, uc.config.ClaimLease, uc.now())
	if err != nil {
		if skippable(err) {
			uc.log.Infof("text job skipped: id=%s, reason=%v", id, err)
			uc.metrics.JobTotal.WithLabelValues(string(JobText), constants.ResultSkipped).Inc()
			return nil
		}
		if stderrors.Is(err, appErrors.ErrClaimBusy) {
			uc.log.Infof("text job deferred, claim held: id=%s", id)
		}
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, uc.config.EnhanceTimeout)
	startTime := time.Now()
	enhanced, err := uc.enhancer.Enhance(callCtx, c.RawText)
	cancel()
	uc.metrics.EnhancerDuration.Observe(time.Since(startTime).Seconds())
	if err == nil && strings.TrimSpace(enhanced) == "" {
		err = appErrors.ErrUpstreamFailed.WithCause(stderrors.New("empty processed text"))
	}
	if err != nil {
		uc.log.Warnf("enhance failed: id=%s, error=%v", id, err)
		uc.release(ctx, id, token)
		return err
	}

	entry, err := uc.contents.CompleteEnhancement(ctx, id, token, enhanced, uc.now())
	if err != nil {
		if stderrors.Is(err, appErrors.ErrClaimLost) {
			uc.log.Warnf("enhancement result dropped, claim lost: id=%s", id)
			return nil
		}
		uc.release(ctx, id, token)
		return err
	}
	uc.dispatcher.Publish(ctx, entry)
	uc.log.Infof("content processed: id=%s, words=%d", id, c.WordCount)
	return nil
}

func (uc *EnhancementUseCase) release(ctx context.Context, id, token string) {
	if err := uc.contents.ReleaseClaim(ctx, id, token); err != nil {
		uc.log.Warnf("release claim failed: id=%s, error=%v", id, err)
	}
}

// skippable 本阶段已完成或内容不存在，重投没有意义
func skippable(err error) bool {
	return stderrors.Is(err, appErrors.ErrClaimRejected) || stderrors.Is(err, appErrors.ErrContentNotFound)
}
