package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"docflow-service/internal/biz"
	"docflow-service/internal/conf"
	"docflow-service/internal/constants"
	appErrors "docflow-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/webhook"
)

// StripeGateway Stripe 回调验签与支付会话创建
type StripeGateway struct {
	webhookSecret string
	sessions      *session.Client
	successURL    string
	cancelURL     string
	tokensPerPack int64
	log           *log.Helper
}

// NewStripeGateway 创建 Stripe 网关
func NewStripeGateway(c *conf.Bootstrap, logger log.Logger) (*StripeGateway, error) {
	if c.Payment == nil || c.Payment.WebhookSecret == "" {
		return nil, errors.New("payment webhook secret is required")
	}
	tokensPerPack := c.Payment.TokensPerPack
	if tokensPerPack <= 0 {
		tokensPerPack = 100
	}
	return &StripeGateway{
		webhookSecret: c.Payment.WebhookSecret,
		sessions:      &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: c.Payment.SecretKey},
		successURL:    c.Payment.SuccessURL,
		cancelURL:     c.Payment.CancelURL,
		tokensPerPack: tokensPerPack,
		log:           log.NewHelper(logger),
	}, nil
}

// VerifyEvent 验证签名并解析 checkout.session.completed
func (g *StripeGateway) VerifyEvent(payload []byte, signature string) (*biz.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, appErrors.ErrSignatureInvalid.WithCause(err)
	}

	ev := &biz.PaymentEvent{ID: event.ID, Type: string(event.Type)}
	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		return ev, nil
	}
	if event.Data == nil {
		return nil, appErrors.ErrPaymentEventInvalid
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, appErrors.ErrPaymentEventInvalid.WithCause(err)
	}
	ev.SessionID = sess.ID
	ev.UserID = sess.ClientReferenceID
	if ev.UserID == "" {
		ev.UserID = sess.Metadata[constants.StripeMetadataUserID]
	}
	tokens, err := strconv.ParseInt(sess.Metadata[constants.StripeMetadataTokens], 10, 64)
	if err != nil {
		return nil, appErrors.ErrPaymentEventInvalid.WithCause(fmt.Errorf("token amount: %w", err))
	}
	ev.TokenAmount = tokens
	ev.DiscountCode = sess.Metadata[constants.StripeMetadataDiscountCode]
	return ev, nil
}

// CreateCheckoutSession 创建一次性支付会话
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req *biz.CheckoutRequest) (*biz.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		ClientReferenceID: stripe.String(req.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.UnitAmount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("%d tokens", g.tokensPerPack)),
					},
				},
				Quantity: stripe.Int64(req.Quantity),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata(constants.StripeMetadataUserID, req.UserID)
	params.AddMetadata(constants.StripeMetadataTokens, strconv.FormatInt(req.TokenAmount, 10))
	if req.DiscountCode != "" {
		params.AddMetadata(constants.StripeMetadataDiscountCode, req.DiscountCode)
	}

	s, err := g.sessions.New(params)
	if err != nil {
		g.log.Errorf("Failed to create Stripe checkout session: user_id=%s, error=%v", req.UserID, err)
		return nil, fmt.Errorf("stripe: failed to create checkout session: %w", err)
	}
	return &biz.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}
