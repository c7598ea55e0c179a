package conf

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bootstrap 服务配置根节点
type Bootstrap struct {
	Server   *Server   `json:"server"`
	Data     *Data     `json:"data"`
	Storage  *Storage  `json:"storage"`
	Enhancer *Enhancer `json:"enhancer"`
	Payment  *Payment  `json:"payment"`
	Auth     *Auth     `json:"auth"`
	Pipeline *Pipeline `json:"pipeline"`
	Cron     *Cron     `json:"cron"`
	Log      *Log      `json:"log"`
}

// Server HTTP 服务配置
type Server struct {
	HTTP *Server_HTTP `json:"http"`
}

// Server_HTTP HTTP 监听配置
type Server_HTTP struct {
	Network string    `json:"network"`
	Addr    string    `json:"addr"`
	Timeout *Duration `json:"timeout"`
}

// Data 存储与消息队列配置
type Data struct {
	Database *Data_Database `json:"database"`
	Redis    *Data_Redis    `json:"redis"`
	Rocketmq *Data_Rocketmq `json:"rocketmq"`
}

// Data_Database 数据库配置
type Data_Database struct {
	Driver      string `json:"driver"`
	Source      string `json:"source"`
	AutoMigrate bool   `json:"auto_migrate"`
}

// Data_Redis Redis 配置
type Data_Redis struct {
	Addr         string    `json:"addr"`
	Password     string    `json:"password"`
	DB           int       `json:"db"`
	ReadTimeout  *Duration `json:"read_timeout"`
	WriteTimeout *Duration `json:"write_timeout"`
}

// Data_Rocketmq RocketMQ 配置
type Data_Rocketmq struct {
	Enabled           bool     `json:"enabled"`
	NameServers       []string `json:"name_servers"`
	GroupName         string   `json:"group_name"`
	ProducerGroup     string   `json:"producer_group"`
	TextTopic         string   `json:"text_topic"`
	ConversionTopic   string   `json:"conversion_topic"`
	RetryTimes        int32    `json:"retry_times"`
	MaxReconsumeTimes int32    `json:"max_reconsume_times"`
}

// Storage S3 兼容对象存储配置
type Storage struct {
	Bucket       string    `json:"bucket"`
	Region       string    `json:"region"`
	Endpoint     string    `json:"endpoint"`
	AccessKey    string    `json:"access_key"`
	SecretKey    string    `json:"secret_key"`
	UsePathStyle bool      `json:"use_path_style"`
	Timeout      *Duration `json:"timeout"`
}

// Enhancer 外部文本增强服务配置
type Enhancer struct {
	Endpoint           string    `json:"endpoint"`
	APIKey             string    `json:"api_key"`
	Timeout            *Duration `json:"timeout"`
	InsecureSkipVerify bool      `json:"insecure_skip_verify"`
}

// Payment Stripe 支付配置
type Payment struct {
	SecretKey     string `json:"secret_key"`
	WebhookSecret string `json:"webhook_secret"`
	SuccessURL    string `json:"success_url"`
	CancelURL     string `json:"cancel_url"`
	// UnitAmounts 每个币种一个 token 包的价格（最小货币单位）
	UnitAmounts   map[string]int64 `json:"unit_amounts"`
	TokensPerPack int64            `json:"tokens_per_pack"`
}

// Auth 鉴权配置
type Auth struct {
	JwtSecret     string `json:"jwt_secret"`
	InternalToken string `json:"internal_token"`
}

// Pipeline 业务规则配置
type Pipeline struct {
	MinWords             int       `json:"min_words"`
	MaxWords             int       `json:"max_words"`
	MaxUploadBytes       int64     `json:"max_upload_bytes"`
	TemporaryTTL         *Duration `json:"temporary_ttl"`
	OutputTTL            *Duration `json:"output_ttl"`
	ClaimLease           *Duration `json:"claim_lease"`
	ReferralBonusPercent int64     `json:"referral_bonus_percent"`
	OutboxBatch          int       `json:"outbox_batch"`
	OutboxInterval       *Duration `json:"outbox_interval"`
	OutboxGrace          *Duration `json:"outbox_grace"`
}

// Cron 定时任务配置
type Cron struct {
	PurgeSpec  string `json:"purge_spec"`
	StuckSpec  string `json:"stuck_spec"`
	OutboxSpec string `json:"outbox_spec"`
}

// Log 日志配置
type Log struct {
	Level    string `json:"level"`
	Format   string `json:"format"`
	Output   string `json:"output"`
	FilePath string `json:"file_path"`
}

// Duration 支持 "10s" 形式与纳秒数字两种写法
type Duration struct {
	time.Duration
}

// AsDuration 返回 time.Duration，nil 时为 0
func (d *Duration) AsDuration() time.Duration {
	if d == nil {
		return 0
	}
	return d.Duration
}

// UnmarshalJSON 实现 json.Unmarshaler
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration: %s", string(b))
	}
}

// MarshalJSON 实现 json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// NewDuration 便于测试构造配置
func NewDuration(d time.Duration) *Duration {
	return &Duration{Duration: d}
}
