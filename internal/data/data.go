package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docflow-service/internal/biz"
	"docflow-service/internal/conf"
	"docflow-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
	"github.com/google/wire"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewDB,
	NewRedis,
	NewRedsync,
	NewData,
	NewLedgerRepo,
	NewContentRepo,
	NewAdmissionRepo,
	NewOutboxRepo,
	NewSettlementRepo,
	NewJobQueue,
	wire.Bind(new(biz.JobQueue), new(*JobQueue)),
	NewEnhancerClient,
	wire.Bind(new(biz.Enhancer), new(*EnhancerClient)),
	NewObjectStorage,
	wire.Bind(new(biz.ObjectStorage), new(*S3Storage)),
	NewStripeGateway,
	wire.Bind(new(biz.PaymentVerifier), new(*StripeGateway)),
	wire.Bind(new(biz.CheckoutProvider), new(*StripeGateway)),
)

// Data 数据层结构体
type Data struct {
	db    *gorm.DB
	rdb   *redis.Client
	rs    *redsync.Redsync
	cache *balanceCache
	log   *log.Helper
}

// NewDB 创建数据库连接，driver 支持 mysql 与 sqlite
func NewDB(c *conf.Bootstrap) (*gorm.DB, error) {
	if c.Data == nil || c.Data.Database == nil {
		return nil, fmt.Errorf("database config is nil")
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(c.Data.Database.Driver) {
	case "", "mysql":
		db, err = gorm.Open(mysql.Open(c.Data.Database.Source), cfg)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(c.Data.Database.Source), cfg)
		if err == nil {
			// sqlite 只允许单写连接
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				sqlDB.SetMaxOpenConns(1)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.Data.Database.Driver)
	}
	if err != nil {
		return nil, err
	}

	if c.Data.Database.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}

// Migrate 同步表结构
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Account{},
		&model.TokenTransaction{},
		&model.Content{},
		&model.OutboxEntry{},
		&model.PaymentEvent{},
		&model.DiscountCode{},
	)
}

// NewRedis 创建 Redis 连接；未配置时返回 nil，缓存与分布式锁随之关闭
func NewRedis(c *conf.Bootstrap) (*redis.Client, error) {
	if c.Data == nil || c.Data.Redis == nil || c.Data.Redis.Addr == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         c.Data.Redis.Addr,
		Password:     c.Data.Redis.Password,
		DB:           c.Data.Redis.DB,
		ReadTimeout:  c.Data.Redis.ReadTimeout.AsDuration(),
		WriteTimeout: c.Data.Redis.WriteTimeout.AsDuration(),
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return rdb, nil
}

// NewRedsync 基于 Redis 创建分布式锁
func NewRedsync(rdb *redis.Client) *redsync.Redsync {
	if rdb == nil {
		return nil
	}
	return redsync.New(goredis.NewPool(rdb))
}

// NewData 创建数据层实例
func NewData(logger log.Logger, db *gorm.DB, rdb *redis.Client, rs *redsync.Redsync) (*Data, func(), error) {
	helper := log.NewHelper(logger)
	cleanup := func() {
		helper.Info("closing the data resources")
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
		if rdb != nil {
			if err := rdb.Close(); err != nil {
				helper.Errorf("failed to close redis: %v", err)
			}
		}
	}

	return &Data{
		db:    db,
		rdb:   rdb,
		rs:    rs,
		cache: newBalanceCache(rdb, helper),
		log:   helper,
	}, cleanup, nil
}
