//go:build wireinject
// +build wireinject

package main

import (
	"docflow-service/internal/biz"
	"docflow-service/internal/conf"
	"docflow-service/internal/data"

	"github.com/google/wire"
)

// wireApp 初始化应用
func wireApp(*conf.Bootstrap) (*CronApp, func(), error) {
	panic(wire.Build(
		// Logger
		newLogger,

		// Data 层（需要 conf.Data 和 logger）
		wire.FieldsOf(new(*conf.Bootstrap), "Data"),
		data.ProviderSet,

		// Biz 层
		biz.ProviderSet,

		// App 结构
		wire.Struct(new(CronApp), "*"),
	))
}
