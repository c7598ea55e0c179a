package server

import (
	"context"
	"sync"
	"time"

	"docflow-service/internal/biz"
	"docflow-service/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
)

const defaultOutboxInterval = 15 * time.Second

// OutboxRelayServer 定期重投提交后未能立即送达的任务
type OutboxRelayServer struct {
	maintenance *biz.MaintenanceUseCase
	interval    time.Duration
	log         *log.Helper

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxRelayServer 创建 outbox 重投服务
func NewOutboxRelayServer(c *conf.Bootstrap, maintenance *biz.MaintenanceUseCase, logger log.Logger) *OutboxRelayServer {
	interval := defaultOutboxInterval
	if c.Pipeline != nil {
		if d := c.Pipeline.OutboxInterval.AsDuration(); d > 0 {
			interval = d
		}
	}
	return &OutboxRelayServer{
		maintenance: maintenance,
		interval:    interval,
		log:         log.NewHelper(logger),
	}
}

// Start starts the relay loop
func (s *OutboxRelayServer) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.relay(runCtx)
			}
		}
	}()
	s.log.Infof("OutboxRelayServer started, interval=%s", s.interval)
	return nil
}

// Stop stops the relay loop
func (s *OutboxRelayServer) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *OutboxRelayServer) relay(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()
	n, err := s.maintenance.RelayOutbox(ctx)
	if err != nil {
		s.log.Errorf("outbox relay failed: %v", err)
		return
	}
	if n > 0 {
		s.log.Infof("outbox relay republished %d jobs", n)
	}
}
