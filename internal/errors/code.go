package errors

import (
	"strconv"

	kerrors "github.com/go-kratos/kratos/v2/errors"
)

// Docflow Service 错误原因定义
// reason 为对外稳定的机器可读标识，code 为 HTTP 状态码
//
// 模块划分：
//   通用: INVALID_ARGUMENT / UNAUTHORIZED / INTERNAL
//   入口: WORD_COUNT_OUT_OF_RANGE / FILE_TOO_LARGE / INVALID_FILE
//   账本: INSUFFICIENT_BALANCE / ACCOUNT_EXISTS
//   内容: CONTENT_NOT_FOUND / CLAIM_REJECTED / CLAIM_BUSY / CLAIM_LOST
//   外部: UPSTREAM_FAILED / STORAGE_FAILED
//   支付: SIGNATURE_INVALID / PAYMENT_EVENT_INVALID / DISCOUNT_CODE_NOT_FOUND

const (
	ReasonInvalidArgument      = "INVALID_ARGUMENT"
	ReasonUnauthorized         = "UNAUTHORIZED"
	ReasonInternal             = "INTERNAL"
	ReasonWordCountOutOfRange  = "WORD_COUNT_OUT_OF_RANGE"
	ReasonFileTooLarge         = "FILE_TOO_LARGE"
	ReasonInvalidFile          = "INVALID_FILE"
	ReasonInsufficientBalance  = "INSUFFICIENT_BALANCE"
	ReasonAccountExists        = "ACCOUNT_EXISTS"
	ReasonContentNotFound      = "CONTENT_NOT_FOUND"
	ReasonClaimRejected        = "CLAIM_REJECTED"
	ReasonClaimBusy            = "CLAIM_BUSY"
	ReasonClaimLost            = "CLAIM_LOST"
	ReasonUpstreamFailed       = "UPSTREAM_FAILED"
	ReasonStorageFailed        = "STORAGE_FAILED"
	ReasonSignatureInvalid     = "SIGNATURE_INVALID"
	ReasonPaymentEventInvalid  = "PAYMENT_EVENT_INVALID"
	ReasonDiscountCodeNotFound = "DISCOUNT_CODE_NOT_FOUND"
)

// MetadataTempContentID 402 响应中暂存内容的 id
const MetadataTempContentID = "temp_content_id"

var (
	ErrInvalidArgument      = kerrors.New(400, ReasonInvalidArgument, "invalid argument")
	ErrUnauthorized         = kerrors.New(401, ReasonUnauthorized, "unauthorized")
	ErrWordCountOutOfRange  = kerrors.New(400, ReasonWordCountOutOfRange, "word count out of range")
	ErrFileTooLarge         = kerrors.New(400, ReasonFileTooLarge, "file too large")
	ErrInvalidFile          = kerrors.New(400, ReasonInvalidFile, "invalid file")
	ErrInsufficientBalance  = kerrors.New(402, ReasonInsufficientBalance, "insufficient token balance")
	ErrAccountExists        = kerrors.New(409, ReasonAccountExists, "account already exists")
	ErrContentNotFound      = kerrors.New(404, ReasonContentNotFound, "content not found")
	ErrClaimRejected        = kerrors.New(409, ReasonClaimRejected, "content is not claimable")
	ErrClaimBusy            = kerrors.New(409, ReasonClaimBusy, "content is claimed by another worker")
	ErrClaimLost            = kerrors.New(409, ReasonClaimLost, "claim no longer held")
	ErrUpstreamFailed       = kerrors.New(502, ReasonUpstreamFailed, "enhancement service failed")
	ErrStorageFailed        = kerrors.New(502, ReasonStorageFailed, "object storage failed")
	ErrSignatureInvalid     = kerrors.New(400, ReasonSignatureInvalid, "payment signature invalid")
	ErrPaymentEventInvalid  = kerrors.New(400, ReasonPaymentEventInvalid, "payment event invalid")
	ErrDiscountCodeNotFound = kerrors.New(404, ReasonDiscountCodeNotFound, "discount code not found")
)

// InsufficientBalanceStaged 余额不足并已暂存内容
func InsufficientBalanceStaged(tempContentID string) *kerrors.Error {
	return ErrInsufficientBalance.WithMetadata(map[string]string{
		MetadataTempContentID: tempContentID,
	})
}

// WordCountOutOfRange 字数不在允许范围
func WordCountOutOfRange(count, min, max int) *kerrors.Error {
	return kerrors.BadRequest(ReasonWordCountOutOfRange, "word count out of range").WithMetadata(map[string]string{
		"word_count": strconv.Itoa(count),
		"min":        strconv.Itoa(min),
		"max":        strconv.Itoa(max),
	})
}

// Internal 包装未归类的错误
func Internal(err error) *kerrors.Error {
	return kerrors.InternalServer(ReasonInternal, "internal error").WithCause(err)
}
