package v1

import (
	"context"
	stderrors "errors"
	"io"
	nethttp "net/http"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/transport/http"
)

const (
	OperationDocflowServiceSubmitText       = "/docflow.v1.DocflowService/SubmitText"
	OperationDocflowServiceSubmitDocument   = "/docflow.v1.DocflowService/SubmitDocument"
	OperationDocflowServiceCountWords       = "/docflow.v1.DocflowService/CountWords"
	OperationDocflowServicePromoteContent   = "/docflow.v1.DocflowService/PromoteContent"
	OperationDocflowServiceGetContent       = "/docflow.v1.DocflowService/GetContent"
	OperationDocflowServiceGetAccount       = "/docflow.v1.DocflowService/GetAccount"
	OperationDocflowServiceListTransactions = "/docflow.v1.DocflowService/ListTransactions"
	OperationDocflowServiceCreateCheckout   = "/docflow.v1.DocflowService/CreateCheckout"
	OperationDocflowServiceGetDiscountCode  = "/docflow.v1.DocflowService/GetDiscountCode"

	OperationPaymentWebhookServiceHandle = "/docflow.v1.PaymentWebhookService/Handle"

	OperationDocflowInternalServiceRegisterAccount   = "/docflow.v1.DocflowInternalService/RegisterAccount"
	OperationDocflowInternalServiceRequeueContent    = "/docflow.v1.DocflowInternalService/RequeueContent"
	OperationDocflowInternalServiceListStuckContents = "/docflow.v1.DocflowInternalService/ListStuckContents"
	OperationDocflowInternalServiceSaveDiscountCode  = "/docflow.v1.DocflowInternalService/SaveDiscountCode"
)

// DocumentFormField 上传文档的 multipart 字段名
const DocumentFormField = "file"

// DefaultMaxUploadBytes 服务未声明上限时的文档大小上限
const DefaultMaxUploadBytes int64 = 10 << 20

const (
	maxWebhookPayload = 1 << 20
	// multipart 边界与表单头的余量
	multipartSlack = 1 << 20
	// 超出部分写入临时文件
	multipartMemory = 4 << 20
)

// UploadLimiter 由 DocflowServiceHTTPServer 可选实现，声明文档大小上限
type UploadLimiter interface {
	UploadLimit() int64
}

// DocflowServiceHTTPServer 面向用户的接口（需要登录）
type DocflowServiceHTTPServer interface {
	SubmitText(context.Context, *SubmitTextRequest) (*SubmissionReply, error)
	SubmitDocument(context.Context, *SubmitDocumentRequest) (*SubmissionReply, error)
	CountWords(context.Context, *SubmitDocumentRequest) (*WordCountReply, error)
	PromoteContent(context.Context, *PromoteContentRequest) (*SubmissionReply, error)
	GetContent(context.Context, *GetContentRequest) (*Content, error)
	GetAccount(context.Context, *GetAccountRequest) (*AccountReply, error)
	ListTransactions(context.Context, *ListTransactionsRequest) (*ListTransactionsReply, error)
	CreateCheckout(context.Context, *CreateCheckoutRequest) (*CreateCheckoutReply, error)
	GetDiscountCode(context.Context, *GetDiscountCodeRequest) (*DiscountCodeReply, error)
}

// PaymentWebhookServiceHTTPServer 支付回调（签名校验，无需登录）
type PaymentWebhookServiceHTTPServer interface {
	Handle(context.Context, *PaymentWebhookRequest) (*PaymentWebhookReply, error)
}

// DocflowInternalServiceHTTPServer 内部接口（内部 token）
type DocflowInternalServiceHTTPServer interface {
	RegisterAccount(context.Context, *RegisterAccountRequest) (*AccountReply, error)
	RequeueContent(context.Context, *RequeueContentRequest) (*RequeueContentReply, error)
	ListStuckContents(context.Context, *ListStuckContentsRequest) (*ListStuckContentsReply, error)
	SaveDiscountCode(context.Context, *SaveDiscountCodeRequest) (*DiscountCodeReply, error)
}

func RegisterDocflowServiceHTTPServer(s *http.Server, srv DocflowServiceHTTPServer) {
	limit := DefaultMaxUploadBytes
	if l, ok := srv.(UploadLimiter); ok && l.UploadLimit() > 0 {
		limit = l.UploadLimit()
	}
	bindDocument := documentBinder(limit)
	r := s.Route("/")
	r.POST("/v1/texts", handler(OperationDocflowServiceSubmitText, bindBody[SubmitTextRequest], srv.SubmitText))
	r.POST("/v1/documents", handler(OperationDocflowServiceSubmitDocument, bindDocument, srv.SubmitDocument))
	r.POST("/v1/documents/word-count", handler(OperationDocflowServiceCountWords, bindDocument, srv.CountWords))
	r.POST("/v1/contents/{id}/promote", handler(OperationDocflowServicePromoteContent, bindVars[PromoteContentRequest], srv.PromoteContent))
	r.GET("/v1/contents/{id}", handler(OperationDocflowServiceGetContent, bindVars[GetContentRequest], srv.GetContent))
	r.GET("/v1/account", handler(OperationDocflowServiceGetAccount, bindNone[GetAccountRequest], srv.GetAccount))
	r.GET("/v1/ledger/transactions", handler(OperationDocflowServiceListTransactions, bindQuery[ListTransactionsRequest], srv.ListTransactions))
	r.POST("/v1/payments/checkout", handler(OperationDocflowServiceCreateCheckout, bindBody[CreateCheckoutRequest], srv.CreateCheckout))
	r.GET("/v1/discount-codes/{code}", handler(OperationDocflowServiceGetDiscountCode, bindVars[GetDiscountCodeRequest], srv.GetDiscountCode))
}

func RegisterPaymentWebhookServiceHTTPServer(s *http.Server, srv PaymentWebhookServiceHTTPServer) {
	r := s.Route("/")
	r.POST("/v1/payments/webhook", handler(OperationPaymentWebhookServiceHandle, bindWebhook, srv.Handle))
}

func RegisterDocflowInternalServiceHTTPServer(s *http.Server, srv DocflowInternalServiceHTTPServer) {
	r := s.Route("/")
	r.POST("/internal/v1/accounts", handler(OperationDocflowInternalServiceRegisterAccount, bindBody[RegisterAccountRequest], srv.RegisterAccount))
	r.POST("/internal/v1/contents/{id}/requeue", handler(OperationDocflowInternalServiceRequeueContent, bindVars[RequeueContentRequest], srv.RequeueContent))
	r.GET("/internal/v1/contents/stuck", handler(OperationDocflowInternalServiceListStuckContents, bindNone[ListStuckContentsRequest], srv.ListStuckContents))
	r.POST("/internal/v1/discount-codes", handler(OperationDocflowInternalServiceSaveDiscountCode, bindBody[SaveDiscountCodeRequest], srv.SaveDiscountCode))
}

func handler[Req any, Reply any](operation string, bind func(http.Context, *Req) error, call func(context.Context, *Req) (*Reply, error)) http.HandlerFunc {
	return func(ctx http.Context) error {
		var in Req
		if err := bind(ctx, &in); err != nil {
			return err
		}
		http.SetOperation(ctx, operation)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(ctx, req.(*Req))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out.(*Reply))
	}
}

func bindNone[Req any](http.Context, *Req) error { return nil }

func bindBody[Req any](ctx http.Context, in *Req) error {
	return ctx.Bind(in)
}

func bindVars[Req any](ctx http.Context, in *Req) error {
	return ctx.BindVars(in)
}

func bindQuery[Req any](ctx http.Context, in *Req) error {
	return ctx.BindQuery(in)
}

// documentBinder 读取上传文档，请求体与文件都不超过 limit
func documentBinder(limit int64) func(http.Context, *SubmitDocumentRequest) error {
	tooLarge := func() error {
		return errors.BadRequest("FILE_TOO_LARGE", "upload exceeds size limit")
	}
	return func(ctx http.Context, in *SubmitDocumentRequest) error {
		req := ctx.Request()
		if req.ContentLength > limit+multipartSlack {
			return tooLarge()
		}
		req.Body = nethttp.MaxBytesReader(ctx.Response(), req.Body, limit+multipartSlack)
		if err := req.ParseMultipartForm(multipartMemory); err != nil {
			var maxErr *nethttp.MaxBytesError
			if stderrors.As(err, &maxErr) {
				return tooLarge()
			}
			return errors.BadRequest("INVALID_FILE", "multipart field \"file\" is required")
		}
		file, header, err := req.FormFile(DocumentFormField)
		if err != nil {
			return errors.BadRequest("INVALID_FILE", "multipart field \"file\" is required")
		}
		defer file.Close()
		if header.Size > limit {
			return tooLarge()
		}
		data, err := io.ReadAll(io.LimitReader(file, limit+1))
		if err != nil {
			return errors.BadRequest("INVALID_FILE", "failed to read upload")
		}
		if int64(len(data)) > limit {
			return tooLarge()
		}
		in.Filename = header.Filename
		in.Size = header.Size
		in.Data = data
		return nil
	}
}

func bindWebhook(ctx http.Context, in *PaymentWebhookRequest) error {
	req := ctx.Request()
	body, err := io.ReadAll(io.LimitReader(req.Body, maxWebhookPayload))
	if err != nil {
		return errors.BadRequest("PAYMENT_EVENT_INVALID", "failed to read payload")
	}
	in.Payload = body
	in.Signature = req.Header.Get("Stripe-Signature")
	return nil
}
