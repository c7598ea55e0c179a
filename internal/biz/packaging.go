package biz

import (
	"context"
	stderrors "errors"
	"regexp"
	"strings"
	"time"

	"docflow-service/internal/constants"
	"docflow-service/internal/docx"
	appErrors "docflow-service/internal/errors"
	"docflow-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// ObjectStorage 输出文件存储
type ObjectStorage interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
	// PresignDownload 生成带下载文件名的限时 URL
	PresignDownload(ctx context.Context, key, filename string, expires time.Duration) (string, error)
}

var paragraphSeparator = regexp.MustCompile(`\n\s*\n`)

// SplitParagraphs 按空行切分段落，去掉首尾空白并丢弃空段落
func SplitParagraphs(text string) []string {
	var paragraphs []string
	for _, p := range paragraphSeparator.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// PackagingUseCase 处理 conversion 任务：processed → packaged
type PackagingUseCase struct {
	contents ContentRepo
	storage  ObjectStorage
	config   *PipelineConfig
	log      *log.Helper
	metrics  *metrics.PipelineMetrics
	now      func() time.Time
}

// NewPackagingUseCase 创建打包 UseCase
func NewPackagingUseCase(contents ContentRepo, storage ObjectStorage, config *PipelineConfig, logger log.Logger) *PackagingUseCase {
	return &PackagingUseCase{
		contents: contents,
		storage:  storage,
		config:   config,
		log:      log.NewHelper(logger),
		metrics:  metrics.GetMetrics(),
		now:      utcNow,
	}
}

// ObjectKey 输出文件的对象 key
func ObjectKey(contentID string) string {
	return contentID + constants.DocxExtension
}

// Handle 处理一次投递；已打包时直接返回 nil
// 租约仍被其它 worker 持有时返回 ErrClaimBusy，由队列在稍后重投
func (uc *PackagingUseCase) Handle(ctx context.Context, id string) error {
	c, token, err := uc.contents.ClaimContent(ctx, id, []ContentStatus{StatusProcessed}, StatusProcessed, uc.config.ClaimLease, uc.now())
	if err != nil {
		if skippable(err) {
			uc.log.Infof("conversion job skipped: id=%s, reason=%v", id, err)
			uc.metrics.JobTotal.WithLabelValues(string(JobConversion), constants.ResultSkipped).Inc()
			return nil
		}
		return err
	}

	url, expireAt, err := uc.render(ctx, c)
	if err != nil {
		uc.log.Warnf("package failed: id=%s, error=%v", id, err)
		uc.release(ctx, id, token)
		return err
	}

	if err := uc.contents.CompletePackaging(ctx, id, token, url, expireAt, uc.now()); err != nil {
		if stderrors.Is(err, appErrors.ErrClaimLost) {
			uc.log.Warnf("packaging result dropped, claim lost: id=%s", id)
			return nil
		}
		uc.log.Warnf("complete packaging failed: id=%s, error=%v", id, err)
		uc.release(ctx, id, token)
		return err
	}
	uc.log.Infof("content packaged: id=%s, expire_at=%s", id, expireAt.Format(time.RFC3339))
	return nil
}

func (uc *PackagingUseCase) release(ctx context.Context, id, token string) {
	if err := uc.contents.ReleaseClaim(ctx, id, token); err != nil {
		uc.log.Warnf("release claim failed: id=%s, error=%v", id, err)
	}
}

func (uc *PackagingUseCase) render(ctx context.Context, c *Content) (string, time.Time, error) {
	body, err := docx.Build(SplitParagraphs(c.EnhancedText))
	if err != nil {
		return "", time.Time{}, err
	}
	key := ObjectKey(c.ID)
	uploadCtx, cancel := context.WithTimeout(ctx, uc.config.StorageTimeout)
	err = uc.storage.Upload(uploadCtx, key, body, constants.DocxContentType)
	cancel()
	if err != nil {
		uc.metrics.StorageTotal.WithLabelValues("upload", constants.ResultFailed).Inc()
		return "", time.Time{}, appErrors.ErrStorageFailed.WithCause(err)
	}
	uc.metrics.StorageTotal.WithLabelValues("upload", constants.ResultSuccess).Inc()

	expireAt := uc.now().Add(uc.config.OutputTTL)
	presignCtx, cancel := context.WithTimeout(ctx, uc.config.StorageTimeout)
	url, err := uc.storage.PresignDownload(presignCtx, key, constants.DocxDownloadFilename, uc.config.OutputTTL)
	cancel()
	if err != nil {
		uc.metrics.StorageTotal.WithLabelValues("presign", constants.ResultFailed).Inc()
		return "", time.Time{}, appErrors.ErrStorageFailed.WithCause(err)
	}
	uc.metrics.StorageTotal.WithLabelValues("presign", constants.ResultSuccess).Inc()
	return url, expireAt, nil
}
