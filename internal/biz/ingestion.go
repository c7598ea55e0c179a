package biz

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"strings"
	"time"

	"docflow-service/internal/constants"
	"docflow-service/internal/docx"
	appErrors "docflow-service/internal/errors"
	"docflow-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// AdmissionRepo 准入事务接口：扣费、落库与登记任务在同一事务内完成
type AdmissionRepo interface {
	// AdmitContent 扣减 c.WordCount 并写入永久内容与 text 任务
	AdmitContent(ctx context.Context, c *Content) (*OutboxEntry, error)
	// PromoteContent 把未过期的暂存内容转为永久内容并扣费，只会成功一次
	PromoteContent(ctx context.Context, ownerID, id string, now time.Time) (*Content, *OutboxEntry, error)
}

// Upload 上传的文档
type Upload struct {
	Filename string
	Size     int64
	Data     []byte
}

// Submission 提交结果
type Submission struct {
	Admitted bool
	Content  *Content
	Balance  int64
}

// IngestionUseCase 入口：字数校验、余额判断、准入或暂存
type IngestionUseCase struct {
	contents   ContentRepo
	admission  AdmissionRepo
	ledger     LedgerRepo
	dispatcher *Dispatcher
	config     *PipelineConfig
	log        *log.Helper
	metrics    *metrics.PipelineMetrics
	now        func() time.Time
}

// NewIngestionUseCase 创建入口 UseCase
func NewIngestionUseCase(
	contents ContentRepo,
	admission AdmissionRepo,
	ledger LedgerRepo,
	dispatcher *Dispatcher,
	config *PipelineConfig,
	logger log.Logger,
) *IngestionUseCase {
	return &IngestionUseCase{
		contents:   contents,
		admission:  admission,
		ledger:     ledger,
		dispatcher: dispatcher,
		config:     config,
		log:        log.NewHelper(logger),
		metrics:    metrics.GetMetrics(),
		now:        utcNow,
	}
}

// ValidateText 校验字数，返回 token 数
func (uc *IngestionUseCase) ValidateText(text string) (int, error) {
	count := CountWords(text)
	if count < uc.config.MinWords || count > uc.config.MaxWords {
		return count, appErrors.WordCountOutOfRange(count, uc.config.MinWords, uc.config.MaxWords)
	}
	return count, nil
}

// MaxUploadBytes 文档大小上限
func (uc *IngestionUseCase) MaxUploadBytes() int64 {
	return uc.config.MaxUploadBytes
}

// ExtractDocument 校验并抽取文档文本
func (uc *IngestionUseCase) ExtractDocument(upload *Upload) (string, error) {
	if upload == nil || len(upload.Data) == 0 {
		return "", appErrors.ErrInvalidFile
	}
	size := upload.Size
	if size < int64(len(upload.Data)) {
		size = int64(len(upload.Data))
	}
	if size > uc.config.MaxUploadBytes {
		return "", appErrors.ErrFileTooLarge
	}
	if !strings.EqualFold(filepath.Ext(upload.Filename), constants.DocxExtension) {
		return "", appErrors.ErrInvalidFile
	}
	text, err := docx.ExtractText(upload.Data)
	if err != nil {
		uc.log.Warnf("extract document failed: filename=%s, error=%v", upload.Filename, err)
		return "", appErrors.ErrInvalidFile
	}
	return text, nil
}

// PreviewDocument 抽取文档并返回字数，不做任何变更
func (uc *IngestionUseCase) PreviewDocument(upload *Upload) (string, int, error) {
	text, err := uc.ExtractDocument(upload)
	if err != nil {
		return "", 0, err
	}
	return text, CountWords(text), nil
}

// SubmitDocument 提交文档
func (uc *IngestionUseCase) SubmitDocument(ctx context.Context, ownerID string, upload *Upload) (*Submission, error) {
	text, err := uc.ExtractDocument(upload)
	if err != nil {
		uc.metrics.SubmissionTotal.WithLabelValues("document", constants.ResultRejected).Inc()
		return nil, err
	}
	return uc.submit(ctx, "document", ownerID, text)
}

// SubmitText 提交文本
func (uc *IngestionUseCase) SubmitText(ctx context.Context, ownerID, text string) (*Submission, error) {
	return uc.submit(ctx, "text", ownerID, text)
}

func (uc *IngestionUseCase) submit(ctx context.Context, source, ownerID, text string) (*Submission, error) {
	startTime := time.Now()
	defer func() {
		uc.metrics.SubmissionDuration.WithLabelValues(source).Observe(time.Since(startTime).Seconds())
	}()

	if ownerID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	count, err := uc.ValidateText(text)
	if err != nil {
		uc.metrics.SubmissionTotal.WithLabelValues(source, constants.ResultRejected).Inc()
		return nil, err
	}
	uc.metrics.SubmissionWords.Observe(float64(count))

	balance, err := uc.ledger.GetBalance(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	c := &Content{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		RawText:   text,
		WordCount: count,
		CreatedAt: now,
	}

	if int64(count) <= balance {
		c.Kind = ContentPermanent
		c.Status = StatusWaiting
		c.SubmittedAt = &now
		entry, err := uc.admission.AdmitContent(ctx, c)
		if err == nil {
			uc.dispatcher.Publish(ctx, entry)
			uc.metrics.LedgerDebitTotal.WithLabelValues(constants.ResultSuccess).Inc()
			uc.metrics.TokensDebited.Add(float64(count))
			uc.metrics.SubmissionTotal.WithLabelValues(source, "admitted").Inc()
			uc.log.Infof("content admitted: id=%s, owner=%s, words=%d", c.ID, ownerID, count)
			return &Submission{Admitted: true, Content: c, Balance: balance - int64(count)}, nil
		}
		if !stderrors.Is(err, appErrors.ErrInsufficientBalance) {
			return nil, err
		}
		// 预检后被并发扣费抢先，按余额不足处理
		uc.metrics.LedgerDebitTotal.WithLabelValues(constants.ResultRejected).Inc()
		uc.log.Infof("admission lost balance race, staging: owner=%s, words=%d", ownerID, count)
		c.SubmittedAt = nil
	}

	expireAt := now.Add(uc.config.TemporaryTTL)
	c.Kind = ContentTemporary
	c.Status = StatusWaiting
	c.ExpireAt = &expireAt
	if err := uc.contents.CreateTemporary(ctx, c); err != nil {
		return nil, err
	}
	uc.metrics.SubmissionTotal.WithLabelValues(source, "staged").Inc()
	uc.log.Infof("content staged: id=%s, owner=%s, words=%d, balance=%d", c.ID, ownerID, count, balance)
	return &Submission{Admitted: false, Content: c, Balance: balance}, nil
}

// Promote 余额充足后把暂存内容转为永久内容
func (uc *IngestionUseCase) Promote(ctx context.Context, ownerID, id string) (*Content, error) {
	now := uc.now()
	c, err := uc.contents.GetContent(ctx, id, now)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != ownerID || c.Kind != ContentTemporary {
		uc.metrics.PromotionTotal.WithLabelValues(constants.ResultRejected).Inc()
		return nil, appErrors.ErrContentNotFound
	}

	balance, err := uc.ledger.GetBalance(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if int64(c.WordCount) > balance {
		uc.metrics.PromotionTotal.WithLabelValues(constants.ResultRejected).Inc()
		return nil, appErrors.InsufficientBalanceStaged(c.ID)
	}

	promoted, entry, err := uc.admission.PromoteContent(ctx, ownerID, id, now)
	if err != nil {
		uc.metrics.PromotionTotal.WithLabelValues(constants.ResultFailed).Inc()
		if stderrors.Is(err, appErrors.ErrInsufficientBalance) {
			return nil, appErrors.InsufficientBalanceStaged(c.ID)
		}
		return nil, err
	}
	uc.dispatcher.Publish(ctx, entry)
	uc.metrics.LedgerDebitTotal.WithLabelValues(constants.ResultSuccess).Inc()
	uc.metrics.TokensDebited.Add(float64(promoted.WordCount))
	uc.metrics.PromotionTotal.WithLabelValues(constants.ResultSuccess).Inc()
	uc.log.Infof("content promoted: id=%s, owner=%s, words=%d", id, ownerID, promoted.WordCount)
	return promoted, nil
}

// GetContent 获取内容，仅限所有者
func (uc *IngestionUseCase) GetContent(ctx context.Context, ownerID, id string) (*Content, error) {
	c, err := uc.contents.GetContent(ctx, id, uc.now())
	if err != nil {
		return nil, err
	}
	if c.OwnerID != ownerID {
		return nil, appErrors.ErrContentNotFound
	}
	return c, nil
}

// ListContents 获取用户的永久内容
func (uc *IngestionUseCase) ListContents(ctx context.Context, ownerID string) ([]*Content, error) {
	return uc.contents.ListOwnerContents(ctx, ownerID)
}
