package main

import (
	"docflow-service/internal/biz"
	"docflow-service/internal/conf"

	"github.com/gaoyong06/go-pkg/logger"
	"github.com/go-kratos/kratos/v2/log"
)

// CronApp Cron 应用结构
type CronApp struct {
	maintenance *biz.MaintenanceUseCase
	logger      log.Logger
}

// newLogger 创建 logger (使用 go-pkg/logger)
func newLogger(c *conf.Bootstrap) log.Logger {
	cfg := &logger.Config{
		Level:         "info",
		Format:        "json",
		Output:        "stdout",
		FilePath:      "logs/docflow-cron.log",
		MaxSize:       100,
		MaxAge:        30,
		MaxBackups:    10,
		Compress:      true,
		EnableConsole: true,
	}
	if c.Log != nil {
		if c.Log.Level != "" {
			cfg.Level = c.Log.Level
		}
		if c.Log.Format != "" {
			cfg.Format = c.Log.Format
		}
		if c.Log.Output != "" {
			cfg.Output = c.Log.Output
		}
	}
	return log.With(logger.NewLogger(cfg),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.name", "docflow-cron",
	)
}
