package service

import (
	"context"

	v1 "docflow-service/api/docflow/v1"
	"docflow-service/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
)

// PaymentWebhookService 支付平台回调
type PaymentWebhookService struct {
	settlement *biz.SettlementUseCase
	log        *log.Helper
}

// NewPaymentWebhookService 创建 PaymentWebhookService
func NewPaymentWebhookService(settlement *biz.SettlementUseCase, logger log.Logger) *PaymentWebhookService {
	return &PaymentWebhookService{
		settlement: settlement,
		log:        log.NewHelper(logger),
	}
}

// Handle 验签并入账；重复事件同样返回 200
func (s *PaymentWebhookService) Handle(ctx context.Context, req *v1.PaymentWebhookRequest) (*v1.PaymentWebhookReply, error) {
	settlement, err := s.settlement.HandleWebhook(ctx, req.Payload, req.Signature)
	if err != nil {
		s.log.Errorf("payment webhook rejected: %v", err)
		return nil, err
	}
	return &v1.PaymentWebhookReply{
		Received:  true,
		EventId:   settlement.EventID,
		Duplicate: settlement.Duplicate,
		Ignored:   settlement.Ignored,
	}, nil
}
