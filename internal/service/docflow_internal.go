package service

import (
	"context"

	v1 "docflow-service/api/docflow/v1"
	"docflow-service/internal/biz"
	appErrors "docflow-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// DocflowInternalService 面向认证服务与运营的内部服务
type DocflowInternalService struct {
	ledger      *biz.LedgerUseCase
	maintenance *biz.MaintenanceUseCase
	settlement  *biz.SettlementUseCase
	log         *log.Helper
}

// NewDocflowInternalService 创建 DocflowInternalService
func NewDocflowInternalService(ledger *biz.LedgerUseCase, maintenance *biz.MaintenanceUseCase, settlement *biz.SettlementUseCase, logger log.Logger) *DocflowInternalService {
	return &DocflowInternalService{
		ledger:      ledger,
		maintenance: maintenance,
		settlement:  settlement,
		log:         log.NewHelper(logger),
	}
}

// RegisterAccount 注册账户（注册时由认证服务调用）
func (s *DocflowInternalService) RegisterAccount(ctx context.Context, req *v1.RegisterAccountRequest) (*v1.AccountReply, error) {
	account, err := s.ledger.RegisterAccount(ctx, req.UserId, req.InviterId)
	if err != nil {
		s.log.Errorf("RegisterAccount failed: %v", err)
		return nil, err
	}
	return &v1.AccountReply{
		UserId:     account.UserID,
		Balance:    account.TokenBalance,
		InviterId:  account.InviterID,
		Processing: make([]*v1.ContentSummary, 0),
		Completed:  make([]*v1.ContentSummary, 0),
	}, nil
}

// RequeueContent 清除卡住标记并按当前阶段重新投递
func (s *DocflowInternalService) RequeueContent(ctx context.Context, req *v1.RequeueContentRequest) (*v1.RequeueContentReply, error) {
	c, err := s.maintenance.Requeue(ctx, req.Id)
	if err != nil {
		s.log.Errorf("RequeueContent failed: id=%s, error=%v", req.Id, err)
		return nil, err
	}
	job := biz.JobText
	if c.Status == biz.StatusProcessed {
		job = biz.JobConversion
	}
	return &v1.RequeueContentReply{Id: c.ID, Status: string(c.Status), Job: string(job)}, nil
}

// ListStuckContents 卡住的内容
func (s *DocflowInternalService) ListStuckContents(ctx context.Context, req *v1.ListStuckContentsRequest) (*v1.ListStuckContentsReply, error) {
	stuck, err := s.maintenance.ReportStuck(ctx)
	if err != nil {
		return nil, err
	}
	reply := &v1.ListStuckContentsReply{Contents: make([]*v1.ContentSummary, 0, len(stuck))}
	for _, c := range stuck {
		reply.Contents = append(reply.Contents, toContentSummary(c))
	}
	return reply, nil
}

// SaveDiscountCode 创建或更新折扣码
func (s *DocflowInternalService) SaveDiscountCode(ctx context.Context, req *v1.SaveDiscountCodeRequest) (*v1.DiscountCodeReply, error) {
	multiplier, err := decimal.NewFromString(req.Multiplier)
	if err != nil {
		return nil, appErrors.ErrInvalidArgument.WithCause(err)
	}
	dc, err := s.settlement.SaveDiscountCode(ctx, req.Code, multiplier)
	if err != nil {
		return nil, err
	}
	return &v1.DiscountCodeReply{Code: dc.Code, Multiplier: dc.Multiplier.String()}, nil
}
