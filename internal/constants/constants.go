package constants

import "time"

// Redis Key 前缀常量
const (
	// RedisKeyBalance 余额缓存 key 前缀
	RedisKeyBalance = "docflow:balance:"
	// RedisKeyLedgerLock 账本锁 key 前缀
	RedisKeyLedgerLock = "docflow:ledger:lock:"
)

// 缓存参数
const (
	BalanceCacheTTL     = 5 * time.Minute
	BalanceCacheTimeout = 1 * time.Second
	LedgerLockExpiry    = 5 * time.Second
)

// 内容类型
const (
	ContentKindPermanent = "permanent"
	ContentKindTemporary = "temporary"
)

// 内容状态
const (
	ContentStatusWaiting    = "waiting"
	ContentStatusProcessing = "processing"
	ContentStatusProcessed  = "processed"
	ContentStatusPackaged   = "packaged"
)

// 账本流水类型
const (
	TransactionKindDebit    = "debit"
	TransactionKindPurchase = "purchase"
	TransactionKindReferral = "referral"
)

// 任务类型
const (
	JobTypeText       = "text"
	JobTypeConversion = "conversion"
)

// Outbox 状态
const (
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
)

// 打包输出参数
const (
	DocxContentType        = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	DocxExtension          = ".docx"
	DocxDownloadFilename   = "document.docx"
	DefaultOutputURLExpiry = 72 * time.Hour
	DefaultStorageTimeout  = 30 * time.Second
)

// 支付事件
const (
	// StripeEventCheckoutCompleted 唯一会触发入账的事件类型
	StripeEventCheckoutCompleted = "checkout.session.completed"
	StripeMetadataUserID         = "user_id"
	StripeMetadataTokens         = "tokenAmount"
	StripeMetadataDiscountCode   = "discountCode"
	StripeSignatureHeader        = "Stripe-Signature"
)

// 结果标签（用于指标）
const (
	ResultSuccess  = "success"
	ResultFailed   = "failed"
	ResultRejected = "rejected"
	ResultSkipped  = "skipped"
)

// HTTP 头
const (
	HeaderEnhancerAPIKey = "X-API-Key"
	HeaderInternalToken  = "X-Internal-Token"
)
