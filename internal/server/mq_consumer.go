package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"docflow-service/internal/biz"
	"docflow-service/internal/conf"
	"docflow-service/internal/data"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultMaxReconsumeTimes = 5
	localWorkers             = 4
	localBaseBackoff         = time.Second
	localMaxBackoff          = time.Minute
)

// JobRouter 任务处理入口（biz.JobRouter 实现）
type JobRouter interface {
	Dispatch(ctx context.Context, job biz.Job) error
	Escalate(ctx context.Context, job biz.Job, cause error)
}

// JobConsumerServer 消费 text / conversion 两个队列
// 启用 RocketMQ 时使用 push consumer，否则消费进程内队列
type JobConsumerServer struct {
	c           rocketmq.PushConsumer
	queue       *data.JobQueue
	router      JobRouter
	log         *log.Helper
	maxAttempts int32

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJobConsumerServer 创建任务消费者
func NewJobConsumerServer(c *conf.Data, queue *data.JobQueue, router *biz.JobRouter, logger log.Logger) (*JobConsumerServer, error) {
	s := &JobConsumerServer{
		queue:       queue,
		router:      router,
		log:         log.NewHelper(logger),
		maxAttempts: defaultMaxReconsumeTimes,
	}
	mq := c.Rocketmq
	if mq != nil && mq.MaxReconsumeTimes > 0 {
		s.maxAttempts = mq.MaxReconsumeTimes
	}
	if mq == nil || !mq.Enabled {
		return s, nil
	}

	r, err := rocketmq.NewPushConsumer(
		consumer.WithNsResolver(primitive.NewPassthroughResolver(mq.NameServers)),
		consumer.WithGroupName(mq.GroupName),
		consumer.WithRetry(int(mq.RetryTimes)),
		consumer.WithConsumerModel(consumer.Clustering),
		// 每条消息独立确认，失败只重投这一条
		consumer.WithConsumeMessageBatchMaxSize(1),
		consumer.WithMaxReconsumeTimes(s.maxAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("init rocketmq consumer: %w", err)
	}
	s.c = r
	return s, nil
}

// Start starts the consumer
func (s *JobConsumerServer) Start(ctx context.Context) error {
	if s.c == nil {
		return s.startLocal()
	}

	for _, t := range []biz.JobType{biz.JobText, biz.JobConversion} {
		topic := s.queue.Topic(t)
		if err := s.c.Subscribe(topic, consumer.MessageSelector{}, s.handler); err != nil {
			s.log.Errorf("Failed to subscribe to topic %s: %v", topic, err)
			return err
		}
		s.log.Infof("JobConsumerServer subscribed, topic: %s", topic)
	}
	if err := s.c.Start(); err != nil {
		s.log.Errorf("Failed to start RocketMQ consumer: %v", err)
		return err
	}
	return nil
}

// Stop stops the consumer
func (s *JobConsumerServer) Stop(ctx context.Context) error {
	if s.c != nil {
		s.log.Info("Stopping JobConsumerServer")
		return s.c.Shutdown()
	}
	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
	}
	return nil
}

func (s *JobConsumerServer) handler(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
	for _, msg := range msgs {
		var job biz.Job
		if err := json.Unmarshal(msg.Body, &job); err != nil {
			s.log.Errorf("Unmarshal job failed: %v, body: %s", err, string(msg.Body))
			continue
		}
		if !s.process(ctx, job, msg.ReconsumeTimes) {
			return consumer.ConsumeRetryLater, nil
		}
	}
	return consumer.ConsumeSuccess, nil
}

// process 返回 false 表示需要重投
func (s *JobConsumerServer) process(ctx context.Context, job biz.Job, attempt int32) bool {
	err := s.router.Dispatch(ctx, job)
	if err == nil {
		return true
	}
	if attempt >= s.maxAttempts {
		s.router.Escalate(ctx, job, err)
		return true
	}
	s.log.Warnf("job failed, will retry: type=%s, id=%s, attempt=%d, error=%v", job.Type, job.ID, attempt, err)
	return false
}

func (s *JobConsumerServer) startLocal() error {
	deliveries := s.queue.Local()
	if deliveries == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	for i := 0; i < localWorkers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d := <-deliveries:
					if !s.process(ctx, d.Job, int32(d.Attempt)) {
						s.queue.Redeliver(data.Delivery{Job: d.Job, Attempt: d.Attempt + 1}, localBackoff(d.Attempt), s.dropped)
					}
				}
			}
		}()
	}
	s.log.Infof("JobConsumerServer consuming local queue, workers=%d", localWorkers)
	return nil
}

// dropped 重投失败等同重试耗尽
func (s *JobConsumerServer) dropped(d data.Delivery, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.router.Escalate(ctx, d.Job, err)
}

func localBackoff(attempt int) time.Duration {
	d := localBaseBackoff << uint(attempt)
	if d <= 0 || d > localMaxBackoff {
		return localMaxBackoff
	}
	return d
}
