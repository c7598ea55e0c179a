package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docflow-service/internal/biz"
	"docflow-service/internal/conf"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"github.com/go-kratos/kratos/v2/log"
)

const localQueueSize = 1024

// ErrQueueFull 进程内队列已满
var ErrQueueFull = errors.New("local job queue is full")

// Delivery 进程内队列的一次投递
type Delivery struct {
	Job     biz.Job
	Attempt int
}

// JobQueue 任务队列：启用 RocketMQ 时发送到对应 topic，否则退化为进程内队列
type JobQueue struct {
	producer rocketmq.Producer
	topics   map[biz.JobType]string
	local    chan Delivery
	log      *log.Helper
}

// NewJobQueue 创建任务队列
func NewJobQueue(c *conf.Data, logger log.Logger) (*JobQueue, func(), error) {
	helper := log.NewHelper(logger)
	q := &JobQueue{
		topics: map[biz.JobType]string{
			biz.JobText:       "docflow_text_jobs",
			biz.JobConversion: "docflow_conversion_jobs",
		},
		log: helper,
	}
	mq := c.Rocketmq
	if mq == nil || !mq.Enabled {
		helper.Info("rocketmq disabled, using local job queue")
		q.local = make(chan Delivery, localQueueSize)
		return q, func() {}, nil
	}
	if mq.TextTopic != "" {
		q.topics[biz.JobText] = mq.TextTopic
	}
	if mq.ConversionTopic != "" {
		q.topics[biz.JobConversion] = mq.ConversionTopic
	}

	group := mq.ProducerGroup
	if group == "" {
		group = mq.GroupName + "_producer"
	}
	p, err := rocketmq.NewProducer(
		producer.WithNsResolver(primitive.NewPassthroughResolver(mq.NameServers)),
		producer.WithGroupName(group),
		producer.WithRetry(int(mq.RetryTimes)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("init rocketmq producer: %w", err)
	}
	if err := p.Start(); err != nil {
		return nil, nil, fmt.Errorf("start rocketmq producer: %w", err)
	}
	q.producer = p
	cleanup := func() {
		if err := p.Shutdown(); err != nil {
			helper.Errorf("failed to shutdown rocketmq producer: %v", err)
		}
	}
	return q, cleanup, nil
}

// Topic 任务类型对应的 topic
func (q *JobQueue) Topic(t biz.JobType) string {
	return q.topics[t]
}

// Local 进程内队列；启用 RocketMQ 时为 nil
func (q *JobQueue) Local() <-chan Delivery {
	if q.local == nil {
		return nil
	}
	return q.local
}

// Enqueue 投递任务
func (q *JobQueue) Enqueue(ctx context.Context, job biz.Job) error {
	if q.producer == nil {
		return q.push(ctx, Delivery{Job: job})
	}
	topic, ok := q.topics[job.Type]
	if !ok {
		return fmt.Errorf("no topic for job type %q", job.Type)
	}
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	msg := primitive.NewMessage(topic, body).WithKeys([]string{job.ID})
	res, err := q.producer.SendSync(ctx, msg)
	if err != nil {
		return fmt.Errorf("send rocketmq message: %w", err)
	}
	if res.Status != primitive.SendOK {
		return fmt.Errorf("send rocketmq message: status=%d", res.Status)
	}
	return nil
}

// Redeliver 进程内队列的延迟重投，队列已满时回调 onDrop
func (q *JobQueue) Redeliver(d Delivery, after time.Duration, onDrop func(Delivery, error)) {
	if q.local == nil {
		return
	}
	time.AfterFunc(after, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := q.push(ctx, d); err != nil {
			q.log.Errorf("local redelivery dropped: type=%s, id=%s, attempt=%d, error=%v", d.Job.Type, d.Job.ID, d.Attempt, err)
			if onDrop != nil {
				onDrop(d, err)
			}
		}
	})
}

func (q *JobQueue) push(ctx context.Context, d Delivery) error {
	select {
	case q.local <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}
