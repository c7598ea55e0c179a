package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docflow-service/internal/conf"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
	_ "go.uber.org/automaxprocs"
)

var (
	flagconf string
)

const (
	defaultPurgeSpec  = "0 */1 * * * *"
	defaultStuckSpec  = "0 */10 * * * *"
	defaultOutboxSpec = "*/30 * * * * *"
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()

	// 初始化配置
	c := config.New(
		config.WithSource(
			file.NewSource(flagconf),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		panic(err)
	}

	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		panic(err)
	}

	// 初始化应用
	app, cleanup, err := wireApp(&bc)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	logHelper := log.NewHelper(app.logger)
	purgeSpec, stuckSpec, outboxSpec := defaultPurgeSpec, defaultStuckSpec, defaultOutboxSpec
	if bc.Cron != nil {
		if bc.Cron.PurgeSpec != "" {
			purgeSpec = bc.Cron.PurgeSpec
		}
		if bc.Cron.StuckSpec != "" {
			stuckSpec = bc.Cron.StuckSpec
		}
		if bc.Cron.OutboxSpec != "" {
			outboxSpec = bc.Cron.OutboxSpec
		}
	}

	// 创建定时任务调度器（支持秒级调度）
	cronScheduler := cron.New(cron.WithSeconds())

	// 过期暂存内容清理
	_, err = cronScheduler.AddFunc(purgeSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		count, err := app.maintenance.PurgeExpired(ctx)
		if err != nil {
			logHelper.Errorf("[CRON] Error purging expired contents: %v", err)
			return
		}
		if count > 0 {
			logHelper.Infof("[CRON] Purged expired temporary contents: count=%d", count)
		}
	})
	if err != nil {
		logHelper.Errorf("Failed to add purge job: %v", err)
	}

	// 卡住内容巡检
	_, err = cronScheduler.AddFunc(stuckSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		stuck, err := app.maintenance.ReportStuck(ctx)
		if err != nil {
			logHelper.Errorf("[CRON] Error listing stuck contents: %v", err)
			return
		}
		if len(stuck) == 0 {
			return
		}
		ids := make([]string, 0, 10)
		for i, content := range stuck {
			if i >= 10 {
				break
			}
			ids = append(ids, content.ID)
		}
		logHelper.Errorf("[CRON] Stuck contents need requeue: count=%d, first=%v", len(stuck), ids)
	})
	if err != nil {
		logHelper.Errorf("Failed to add stuck report job: %v", err)
	}

	// outbox 兜底重投；进程内队列没有跨进程消费者，只在启用 RocketMQ 时运行
	relayEnabled := bc.Data != nil && bc.Data.Rocketmq != nil && bc.Data.Rocketmq.Enabled
	if relayEnabled {
		_, err = cronScheduler.AddFunc(outboxSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			n, err := app.maintenance.RelayOutbox(ctx)
			if err != nil {
				logHelper.Errorf("[CRON] Error relaying outbox: %v", err)
				return
			}
			if n > 0 {
				logHelper.Infof("[CRON] Outbox relay republished %d jobs", n)
			}
		})
		if err != nil {
			logHelper.Errorf("Failed to add outbox relay job: %v", err)
		}
	}

	// 启动定时任务
	cronScheduler.Start()
	logHelper.Info("========================================")
	logHelper.Info("Cron jobs started successfully")
	logHelper.Info("Scheduled jobs:")
	logHelper.Infof("  - Expired temporary purge: %s", purgeSpec)
	logHelper.Infof("  - Stuck content report: %s", stuckSpec)
	if relayEnabled {
		logHelper.Infof("  - Outbox relay: %s", outboxSpec)
	}
	logHelper.Info("========================================")

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logHelper.Info("Shutting down gracefully...")

	// 停止定时任务
	ctx := cronScheduler.Stop()
	select {
	case <-ctx.Done():
		logHelper.Info("Cron jobs stopped gracefully")
	case <-time.After(5 * time.Second):
		logHelper.Info("Cron jobs forced to stop after timeout")
	}
}
