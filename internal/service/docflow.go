package service

import (
	"context"

	v1 "docflow-service/api/docflow/v1"
	"docflow-service/internal/biz"
	appErrors "docflow-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
)

// DocflowService 面向登录用户的服务
type DocflowService struct {
	ingestion  *biz.IngestionUseCase
	ledger     *biz.LedgerUseCase
	settlement *biz.SettlementUseCase
	log        *log.Helper
}

// NewDocflowService 创建 DocflowService
func NewDocflowService(ingestion *biz.IngestionUseCase, ledger *biz.LedgerUseCase, settlement *biz.SettlementUseCase, logger log.Logger) *DocflowService {
	return &DocflowService{
		ingestion:  ingestion,
		ledger:     ledger,
		settlement: settlement,
		log:        log.NewHelper(logger),
	}
}

// UploadLimit 文档上传大小上限，供 HTTP 绑定层在读取前拦截
func (s *DocflowService) UploadLimit() int64 {
	return s.ingestion.MaxUploadBytes()
}

// SubmitText 提交文本；余额不足时返回 402 和 temp_content_id
func (s *DocflowService) SubmitText(ctx context.Context, req *v1.SubmitTextRequest) (*v1.SubmissionReply, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := s.ingestion.SubmitText(ctx, userID, req.Text)
	if err != nil {
		return nil, err
	}
	return s.submissionReply(sub)
}

// SubmitDocument 提交 .docx 文档
func (s *DocflowService) SubmitDocument(ctx context.Context, req *v1.SubmitDocumentRequest) (*v1.SubmissionReply, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := s.ingestion.SubmitDocument(ctx, userID, toUpload(req))
	if err != nil {
		return nil, err
	}
	return s.submissionReply(sub)
}

// CountWords 预览文档字数与所需 token
func (s *DocflowService) CountWords(ctx context.Context, req *v1.SubmitDocumentRequest) (*v1.WordCountReply, error) {
	if _, err := currentUser(ctx); err != nil {
		return nil, err
	}
	text, count, err := s.ingestion.PreviewDocument(toUpload(req))
	if err != nil {
		return nil, err
	}
	return &v1.WordCountReply{
		WordCount: int32(count),
		Tokens:    int64(count),
		Text:      text,
	}, nil
}

// PromoteContent 暂存内容转永久
func (s *DocflowService) PromoteContent(ctx context.Context, req *v1.PromoteContentRequest) (*v1.SubmissionReply, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.ingestion.Promote(ctx, userID, req.Id)
	if err != nil {
		return nil, err
	}
	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toSubmissionReply(c, balance), nil
}

// GetContent 查询内容
func (s *DocflowService) GetContent(ctx context.Context, req *v1.GetContentRequest) (*v1.Content, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.ingestion.GetContent(ctx, userID, req.Id)
	if err != nil {
		return nil, err
	}
	return toContent(c), nil
}

// GetAccount 余额与内容概览
func (s *DocflowService) GetAccount(ctx context.Context, req *v1.GetAccountRequest) (*v1.AccountReply, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	account, err := s.ledger.GetAccount(ctx, userID)
	if err != nil {
		s.log.Errorf("GetAccount failed: %v", err)
		return nil, err
	}
	contents, err := s.ingestion.ListContents(ctx, userID)
	if err != nil {
		s.log.Errorf("ListContents failed: %v", err)
		return nil, err
	}

	reply := &v1.AccountReply{
		UserId:     userID,
		Balance:    account.TokenBalance,
		InviterId:  account.InviterID,
		Processing: make([]*v1.ContentSummary, 0),
		Completed:  make([]*v1.ContentSummary, 0),
	}
	for _, c := range contents {
		if c.Status == biz.StatusPackaged {
			reply.Completed = append(reply.Completed, toContentSummary(c))
		} else {
			reply.Processing = append(reply.Processing, toContentSummary(c))
		}
	}
	return reply, nil
}

// ListTransactions 账本流水
func (s *DocflowService) ListTransactions(ctx context.Context, req *v1.ListTransactionsRequest) (*v1.ListTransactionsReply, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	page := int(req.Page)
	if page <= 0 {
		page = 1
	}
	pageSize := int(req.PageSize)
	if pageSize <= 0 {
		pageSize = 20
	}

	txs, total, err := s.ledger.ListTransactions(ctx, userID, page, pageSize)
	if err != nil {
		s.log.Errorf("ListTransactions failed: %v", err)
		return nil, err
	}
	reply := &v1.ListTransactionsReply{
		Transactions: make([]*v1.Transaction, 0, len(txs)),
		Total:        total,
		Page:         int32(page),
		PageSize:     int32(pageSize),
	}
	for _, tx := range txs {
		reply.Transactions = append(reply.Transactions, &v1.Transaction{
			Id:        tx.ID,
			Kind:      string(tx.Kind),
			Amount:    tx.Amount,
			Reference: tx.Reference,
			CreatedAt: formatTime(tx.CreatedAt),
		})
	}
	return reply, nil
}

// CreateCheckout 购买 token 包
func (s *DocflowService) CreateCheckout(ctx context.Context, req *v1.CreateCheckoutRequest) (*v1.CreateCheckoutReply, error) {
	userID, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	session, err := s.settlement.CreateCheckout(ctx, userID, req.Packs, req.Currency, req.DiscountCode)
	if err != nil {
		s.log.Errorf("CreateCheckout failed: %v", err)
		return nil, err
	}
	return &v1.CreateCheckoutReply{
		SessionId:   session.ID,
		Url:         session.URL,
		UnitAmount:  session.UnitAmount,
		TokenAmount: session.TokenAmount,
	}, nil
}

// GetDiscountCode 查询折扣码
func (s *DocflowService) GetDiscountCode(ctx context.Context, req *v1.GetDiscountCodeRequest) (*v1.DiscountCodeReply, error) {
	if _, err := currentUser(ctx); err != nil {
		return nil, err
	}
	dc, err := s.settlement.GetDiscountCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	return &v1.DiscountCodeReply{Code: dc.Code, Multiplier: dc.Multiplier.String()}, nil
}

func (s *DocflowService) submissionReply(sub *biz.Submission) (*v1.SubmissionReply, error) {
	if !sub.Admitted {
		return nil, appErrors.InsufficientBalanceStaged(sub.Content.ID)
	}
	return toSubmissionReply(sub.Content, sub.Balance), nil
}

func toUpload(req *v1.SubmitDocumentRequest) *biz.Upload {
	return &biz.Upload{Filename: req.Filename, Size: req.Size, Data: req.Data}
}
