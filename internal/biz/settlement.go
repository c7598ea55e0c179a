package biz

import (
	"context"
	"strings"
	"time"

	"docflow-service/internal/constants"
	appErrors "docflow-service/internal/errors"
	"docflow-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// PaymentEvent 验签后的支付事件
type PaymentEvent struct {
	ID           string
	Type         string
	SessionID    string
	UserID       string
	TokenAmount  int64
	DiscountCode string
}

// DiscountCode 折扣码，Multiplier 乘以原价得到实付价
type DiscountCode struct {
	Code       string
	Multiplier decimal.Decimal
	CreatedAt  time.Time
}

// Settlement 一次入账的结果
type Settlement struct {
	EventID          string
	Duplicate        bool
	Ignored          bool
	UserID           string
	Credited         int64
	ReferrerID       string
	ReferralBonus    int64
	DiscountRedeemed bool
}

// PaymentVerifier 验证支付回调签名并解析事件
type PaymentVerifier interface {
	VerifyEvent(payload []byte, signature string) (*PaymentEvent, error)
}

// CheckoutRequest 创建支付会话的参数
type CheckoutRequest struct {
	UserID       string
	Currency     string
	UnitAmount   int64
	Quantity     int64
	TokenAmount  int64
	DiscountCode string
}

// CheckoutSession 支付会话
type CheckoutSession struct {
	ID          string
	URL         string
	UnitAmount  int64
	TokenAmount int64
}

// CheckoutProvider 支付会话提供方
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error)
}

// SettlementRepo 入账事务接口
type SettlementRepo interface {
	// SettlePurchase 在一个事务内完成：登记事件、入账、邀请奖励、删除折扣码
	// 事件已处理过时返回 Duplicate 且不做任何变更
	SettlePurchase(ctx context.Context, ev *PaymentEvent, referralPercent int64) (*Settlement, error)
	GetDiscountCode(ctx context.Context, code string) (*DiscountCode, error)
	SaveDiscountCode(ctx context.Context, dc *DiscountCode) error
}

// ReferralBonus 邀请奖励，向下取整
func ReferralBonus(amount, percent int64) int64 {
	if amount <= 0 || percent <= 0 {
		return 0
	}
	return amount * percent / 100
}

// SettlementUseCase 支付入账业务逻辑
type SettlementUseCase struct {
	repo     SettlementRepo
	verifier PaymentVerifier
	checkout CheckoutProvider
	config   *PipelineConfig
	log      *log.Helper
	metrics  *metrics.PipelineMetrics
}

// NewSettlementUseCase 创建入账 UseCase
func NewSettlementUseCase(repo SettlementRepo, verifier PaymentVerifier, checkout CheckoutProvider, config *PipelineConfig, logger log.Logger) *SettlementUseCase {
	return &SettlementUseCase{
		repo:     repo,
		verifier: verifier,
		checkout: checkout,
		config:   config,
		log:      log.NewHelper(logger),
		metrics:  metrics.GetMetrics(),
	}
}

// HandleWebhook 处理支付回调；签名或完整性校验失败时不产生任何变更
func (uc *SettlementUseCase) HandleWebhook(ctx context.Context, payload []byte, signature string) (*Settlement, error) {
	ev, err := uc.verifier.VerifyEvent(payload, signature)
	if err != nil {
		uc.metrics.PaymentEventTotal.WithLabelValues(constants.ResultRejected).Inc()
		uc.log.Warnf("payment event rejected: error=%v", err)
		return nil, err
	}
	if ev.Type != constants.StripeEventCheckoutCompleted {
		uc.metrics.PaymentEventTotal.WithLabelValues("ignored").Inc()
		uc.log.Infof("payment event ignored: id=%s, type=%s", ev.ID, ev.Type)
		return &Settlement{EventID: ev.ID, Ignored: true}, nil
	}
	if ev.ID == "" || ev.UserID == "" || ev.TokenAmount <= 0 {
		uc.metrics.PaymentEventTotal.WithLabelValues(constants.ResultRejected).Inc()
		return nil, appErrors.ErrPaymentEventInvalid
	}

	settlement, err := uc.repo.SettlePurchase(ctx, ev, uc.config.ReferralBonusPercent)
	if err != nil {
		uc.metrics.PaymentEventTotal.WithLabelValues(constants.ResultFailed).Inc()
		uc.log.Errorf("settle purchase failed: event=%s, user_id=%s, error=%v", ev.ID, ev.UserID, err)
		return nil, err
	}
	if settlement.Duplicate {
		uc.metrics.PaymentEventTotal.WithLabelValues("duplicate").Inc()
		uc.log.Infof("payment event replayed, skipped: id=%s", ev.ID)
		return settlement, nil
	}

	uc.metrics.PaymentEventTotal.WithLabelValues("settled").Inc()
	uc.metrics.LedgerCreditTotal.WithLabelValues(string(TxPurchase)).Inc()
	uc.metrics.TokensCredited.WithLabelValues(string(TxPurchase)).Add(float64(settlement.Credited))
	if settlement.ReferralBonus > 0 {
		uc.metrics.LedgerCreditTotal.WithLabelValues(string(TxReferral)).Inc()
		uc.metrics.TokensCredited.WithLabelValues(string(TxReferral)).Add(float64(settlement.ReferralBonus))
	}
	uc.log.Infof("payment settled: event=%s, user_id=%s, tokens=%d, referrer=%s, bonus=%d, discount_redeemed=%v",
		ev.ID, ev.UserID, settlement.Credited, settlement.ReferrerID, settlement.ReferralBonus, settlement.DiscountRedeemed)
	return settlement, nil
}

// CreateCheckout 按币种单价与折扣码创建支付会话
func (uc *SettlementUseCase) CreateCheckout(ctx context.Context, userID string, packs int64, currency, discountCode string) (*CheckoutSession, error) {
	currency = strings.ToLower(strings.TrimSpace(currency))
	unit, ok := uc.config.UnitAmounts[currency]
	if userID == "" || packs <= 0 || !ok {
		return nil, appErrors.ErrInvalidArgument
	}

	price := decimal.NewFromInt(unit)
	if discountCode != "" {
		dc, err := uc.repo.GetDiscountCode(ctx, discountCode)
		if err != nil {
			return nil, err
		}
		price = price.Mul(dc.Multiplier).Ceil()
	}

	req := &CheckoutRequest{
		UserID:       userID,
		Currency:     currency,
		UnitAmount:   price.IntPart(),
		Quantity:     packs,
		TokenAmount:  packs * uc.config.TokensPerPack,
		DiscountCode: discountCode,
	}
	session, err := uc.checkout.CreateCheckoutSession(ctx, req)
	if err != nil {
		return nil, err
	}
	session.UnitAmount = req.UnitAmount
	session.TokenAmount = req.TokenAmount
	uc.log.Infof("checkout created: session=%s, user_id=%s, tokens=%d, unit_amount=%d %s", session.ID, userID, req.TokenAmount, req.UnitAmount, currency)
	return session, nil
}

// GetDiscountCode 查询折扣码
func (uc *SettlementUseCase) GetDiscountCode(ctx context.Context, code string) (*DiscountCode, error) {
	if code == "" {
		return nil, appErrors.ErrDiscountCodeNotFound
	}
	return uc.repo.GetDiscountCode(ctx, code)
}

// SaveDiscountCode 创建或更新折扣码
func (uc *SettlementUseCase) SaveDiscountCode(ctx context.Context, code string, multiplier decimal.Decimal) (*DiscountCode, error) {
	if code == "" || multiplier.LessThanOrEqual(decimal.Zero) || multiplier.GreaterThan(decimal.NewFromInt(1)) {
		return nil, appErrors.ErrInvalidArgument
	}
	dc := &DiscountCode{Code: code, Multiplier: multiplier}
	if err := uc.repo.SaveDiscountCode(ctx, dc); err != nil {
		return nil, err
	}
	return dc, nil
}
