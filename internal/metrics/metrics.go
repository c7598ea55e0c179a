package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics 文档流水线指标
type PipelineMetrics struct {
	// 入口相关指标
	SubmissionTotal    *prometheus.CounterVec   // 提交总数（按来源、结果）
	SubmissionDuration *prometheus.HistogramVec // 提交耗时
	SubmissionWords    prometheus.Histogram     // 提交字数分布
	PromotionTotal     *prometheus.CounterVec   // 暂存转正总数（按结果）
	TemporaryPurged    prometheus.Counter       // 过期暂存清理数

	// 账本相关指标
	LedgerDebitTotal  *prometheus.CounterVec // 扣减总数（按结果）
	LedgerCreditTotal *prometheus.CounterVec // 入账总数（按类型）
	TokensDebited     prometheus.Counter     // 累计扣减 token
	TokensCredited    *prometheus.CounterVec // 累计入账 token（按类型）

	// 任务相关指标
	JobTotal        *prometheus.CounterVec   // 任务处理总数（按类型、结果）
	JobDuration     *prometheus.HistogramVec // 任务处理耗时
	JobStuckTotal   *prometheus.CounterVec   // 标记卡住的任务数
	StuckContents   prometheus.Gauge         // 当前卡住的内容数
	OutboxPublished *prometheus.CounterVec   // outbox 投递（按结果）
	OutboxPending   prometheus.Gauge         // 待投递 outbox 条目

	// 外部调用相关指标
	EnhancerDuration prometheus.Histogram   // 增强服务调用耗时
	StorageTotal     *prometheus.CounterVec // 对象存储操作（按操作、结果）

	// 支付相关指标
	PaymentEventTotal *prometheus.CounterVec // 支付事件（按结果）

	// 分布式锁相关指标
	LockAcquireTotal    *prometheus.CounterVec // 锁获取总数（按结果）
	LockAcquireDuration prometheus.Histogram   // 锁获取耗时
}

// NewPipelineMetrics 创建流水线指标
func NewPipelineMetrics() *PipelineMetrics {
	return &PipelineMetrics{
		SubmissionTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docflow_submission_total",
				Help: "Total number of content submissions",
			},
			[]string{"source", "result"}, // result: admitted/staged/rejected
		),
		SubmissionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docflow_submission_duration_seconds",
				Help:    "Duration of submission handling",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		SubmissionWords: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docflow_submission_words",
				Help:    "Word count of accepted submissions",
				Buckets: []float64{400, 1000, 2500, 5000, 7500, 10000, 15000},
			},
		),
		PromotionTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docflow_promotion_total",
				Help: "Total number of temporary content promotions",
			},
			[]string{"result"},
		),
		TemporaryPurged: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "docflow_temporary_purged_total",
				Help: "Total number of expired temporary contents removed",
			},
		),

		LedgerDebitTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docflow_ledger_debit_total",
				Help: "Total number of ledger debits",
			},
			[]string{"result"},
		),
		LedgerCreditTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docflow_ledger_credit_total",
				Help: "Total number of ledger credits",
			},
			[]string{"kind"},
		),
		TokensDebited: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "docflow_tokens_debited_total",
				Help: "Total tokens debited",
			},
		),
		TokensCredited: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docflow_tokens_credited_total",
				Help: "Total tokens credited",
			},
			[]string{"kind"},
		),

		JobTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docflow_job_total",
				Help: "Total number of processed jobs",
			},
			[]string{"type", "result"},
		),
		JobDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docflow_job_duration_seconds",
				Help:    "Duration of job handling",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"type"},
		),
		JobStuckTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docflow_job_stuck_total",
				Help: "Total number of jobs that exhausted retries",
			},
			[]string{"type"},
		),
		StuckContents: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "docflow_stuck_contents",
				Help: "Number of contents currently flagged stuck",
			},
		),
		OutboxPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docflow_outbox_published_total",
				Help: "Total number of outbox publish attempts",
			},
			[]string{"result"},
		),
		OutboxPending: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "docflow_outbox_pending",
				Help: "Number of outbox entries found pending by the relay",
			},
		),

		EnhancerDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docflow_enhancer_duration_seconds",
				Help:    "Duration of enhancement service calls",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		StorageTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docflow_storage_operations_total",
				Help: "Total number of object storage operations",
			},
			[]string{"operation", "result"},
		),

		PaymentEventTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docflow_payment_event_total",
				Help: "Total number of payment webhook events",
			},
			[]string{"result"}, // result: settled/duplicate/ignored/rejected
		),

		LockAcquireTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docflow_lock_acquire_total",
				Help: "Total number of lock acquisitions",
			},
			[]string{"result"},
		),
		LockAcquireDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docflow_lock_acquire_duration_seconds",
				Help:    "Duration of lock acquisition",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0}, // 毫秒级
			},
		),
	}
}

var (
	defaultMetrics *PipelineMetrics
	once           sync.Once
)

// GetMetrics 获取全局指标实例
func GetMetrics() *PipelineMetrics {
	once.Do(func() {
		defaultMetrics = NewPipelineMetrics()
	})
	return defaultMetrics
}
