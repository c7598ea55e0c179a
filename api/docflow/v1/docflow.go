// Package v1 定义 docflow 对外与内部 HTTP 接口的请求/响应结构
package v1

// SubmitTextRequest 提交文本
type SubmitTextRequest struct {
	Text string `json:"text"`
}

// SubmitDocumentRequest 提交 .docx 文档（multipart 字段 file）
type SubmitDocumentRequest struct {
	Filename string `json:"-"`
	Size     int64  `json:"-"`
	Data     []byte `json:"-"`
}

// SubmissionReply 准入成功
type SubmissionReply struct {
	ContentId string `json:"content_id"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	WordCount int32  `json:"word_count"`
	Balance   int64  `json:"balance"`
}

// WordCountReply 文档预览
type WordCountReply struct {
	WordCount int32  `json:"word_count"`
	Tokens    int64  `json:"tokens"`
	Text      string `json:"text"`
}

// PromoteContentRequest 暂存转永久
type PromoteContentRequest struct {
	Id string `json:"id"`
}

// GetContentRequest 查询内容
type GetContentRequest struct {
	Id string `json:"id"`
}

// Content 内容视图
type Content struct {
	Id             string `json:"id"`
	Kind           string `json:"kind"`
	Status         string `json:"status"`
	WordCount      int32  `json:"word_count"`
	Stuck          bool   `json:"stuck,omitempty"`
	EnhancedText   string `json:"enhanced_text,omitempty"`
	OutputUrl      string `json:"output_url,omitempty"`
	OutputExpireAt string `json:"output_expire_at,omitempty"`
	ExpireAt       string `json:"expire_at,omitempty"`
	SubmittedAt    string `json:"submitted_at,omitempty"`
	ProcessedAt    string `json:"processed_at,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// ContentSummary 列表中的内容摘要
type ContentSummary struct {
	Id        string `json:"id"`
	Status    string `json:"status"`
	WordCount int32  `json:"word_count"`
	Stuck     bool   `json:"stuck,omitempty"`
	OutputUrl string `json:"output_url,omitempty"`
	CreatedAt string `json:"created_at"`
}

// GetAccountRequest 查询当前用户账户
type GetAccountRequest struct{}

// AccountReply 账户与内容概览
type AccountReply struct {
	UserId     string            `json:"user_id"`
	Balance    int64             `json:"balance"`
	InviterId  string            `json:"inviter_id,omitempty"`
	Processing []*ContentSummary `json:"processing"`
	Completed  []*ContentSummary `json:"completed"`
}

// ListTransactionsRequest 分页查询账本流水
type ListTransactionsRequest struct {
	Page     int32 `json:"page"`
	PageSize int32 `json:"page_size"`
}

// Transaction 账本流水
type Transaction struct {
	Id        string `json:"id"`
	Kind      string `json:"kind"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
	CreatedAt string `json:"created_at"`
}

// ListTransactionsReply 账本流水分页
type ListTransactionsReply struct {
	Transactions []*Transaction `json:"transactions"`
	Total        int64          `json:"total"`
	Page         int32          `json:"page"`
	PageSize     int32          `json:"page_size"`
}

// CreateCheckoutRequest 购买 token 包
type CreateCheckoutRequest struct {
	Packs        int64  `json:"packs"`
	Currency     string `json:"currency"`
	DiscountCode string `json:"discount_code"`
}

// CreateCheckoutReply 支付会话
type CreateCheckoutReply struct {
	SessionId   string `json:"session_id"`
	Url         string `json:"url"`
	UnitAmount  int64  `json:"unit_amount"`
	TokenAmount int64  `json:"token_amount"`
}

// GetDiscountCodeRequest 查询折扣码
type GetDiscountCodeRequest struct {
	Code string `json:"code"`
}

// DiscountCodeReply 折扣码
type DiscountCodeReply struct {
	Code       string `json:"code"`
	Multiplier string `json:"multiplier"`
}

// PaymentWebhookRequest 支付回调原始请求
type PaymentWebhookRequest struct {
	Payload   []byte `json:"-"`
	Signature string `json:"-"`
}

// PaymentWebhookReply 回调处理结果
type PaymentWebhookReply struct {
	Received  bool   `json:"received"`
	EventId   string `json:"event_id,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
}

// RegisterAccountRequest 注册 token 账户
type RegisterAccountRequest struct {
	UserId    string `json:"user_id"`
	InviterId string `json:"inviter_id"`
}

// RequeueContentRequest 重新投递卡住的内容
type RequeueContentRequest struct {
	Id string `json:"id"`
}

// RequeueContentReply 重新投递结果
type RequeueContentReply struct {
	Id     string `json:"id"`
	Status string `json:"status"`
	Job    string `json:"job"`
}

// ListStuckContentsRequest 查询卡住的内容
type ListStuckContentsRequest struct{}

// ListStuckContentsReply 卡住的内容
type ListStuckContentsReply struct {
	Contents []*ContentSummary `json:"contents"`
}

// SaveDiscountCodeRequest 创建或更新折扣码
type SaveDiscountCodeRequest struct {
	Code       string `json:"code"`
	Multiplier string `json:"multiplier"`
}
