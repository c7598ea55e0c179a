package biz

import (
	"time"

	"docflow-service/internal/conf"
	"docflow-service/internal/constants"
)

// PipelineConfig 流水线业务规则
type PipelineConfig struct {
	MinWords             int
	MaxWords             int
	MaxUploadBytes       int64
	TemporaryTTL         time.Duration
	OutputTTL            time.Duration
	ClaimLease           time.Duration
	EnhanceTimeout       time.Duration
	StorageTimeout       time.Duration
	ReferralBonusPercent int64
	OutboxBatch          int
	OutboxGrace          time.Duration
	TokensPerPack        int64
	UnitAmounts          map[string]int64
}

// NewPipelineConfig 从配置创建 PipelineConfig
func NewPipelineConfig(c *conf.Bootstrap) *PipelineConfig {
	config := &PipelineConfig{
		MinWords:             400,
		MaxWords:             15000,
		MaxUploadBytes:       10 << 20,
		TemporaryTTL:         10 * time.Minute,
		OutputTTL:            constants.DefaultOutputURLExpiry,
		ClaimLease:           5 * time.Minute,
		EnhanceTimeout:       2 * time.Minute,
		StorageTimeout:       constants.DefaultStorageTimeout,
		ReferralBonusPercent: 10,
		OutboxBatch:          100,
		OutboxGrace:          30 * time.Second,
		TokensPerPack:        100,
		UnitAmounts:          make(map[string]int64),
	}
	if p := c.Pipeline; p != nil {
		if p.MinWords > 0 {
			config.MinWords = p.MinWords
		}
		if p.MaxWords > 0 {
			config.MaxWords = p.MaxWords
		}
		if p.MaxUploadBytes > 0 {
			config.MaxUploadBytes = p.MaxUploadBytes
		}
		if d := p.TemporaryTTL.AsDuration(); d > 0 {
			config.TemporaryTTL = d
		}
		if d := p.OutputTTL.AsDuration(); d > 0 {
			config.OutputTTL = d
		}
		if d := p.ClaimLease.AsDuration(); d > 0 {
			config.ClaimLease = d
		}
		if p.ReferralBonusPercent > 0 {
			config.ReferralBonusPercent = p.ReferralBonusPercent
		}
		if p.OutboxBatch > 0 {
			config.OutboxBatch = p.OutboxBatch
		}
		if d := p.OutboxGrace.AsDuration(); d > 0 {
			config.OutboxGrace = d
		}
	}
	if c.Enhancer != nil {
		if d := c.Enhancer.Timeout.AsDuration(); d > 0 {
			config.EnhanceTimeout = d
		}
	}
	if c.Storage != nil {
		if d := c.Storage.Timeout.AsDuration(); d > 0 {
			config.StorageTimeout = d
		}
	}
	if c.Payment != nil {
		if c.Payment.TokensPerPack > 0 {
			config.TokensPerPack = c.Payment.TokensPerPack
		}
		for k, v := range c.Payment.UnitAmounts {
			config.UnitAmounts[k] = v
		}
	}
	// 处理中的租约必须覆盖一次完整的增强调用
	if config.ClaimLease < config.EnhanceTimeout {
		config.ClaimLease = config.EnhanceTimeout + time.Minute
	}
	// 打包的上传与签名两次调用同样要落在租约内
	if config.ClaimLease < 2*config.StorageTimeout {
		config.ClaimLease = 2*config.StorageTimeout + time.Minute
	}
	return config
}
