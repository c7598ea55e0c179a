package biz

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"docflow-service/internal/constants"
	"docflow-service/internal/docx"
	appErrors "docflow-service/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func admitted(t *testing.T, f *fixture, owner string, n int) *Content {
	t.Helper()
	ctx := context.Background()
	_, err := f.store.Credit(ctx, owner, int64(n), TxPurchase, "seed")
	require.NoError(t, err)
	sub, err := f.ingestion.SubmitText(ctx, owner, words(n))
	require.NoError(t, err)
	require.True(t, sub.Admitted)
	return sub.Content
}

func TestSplitParagraphs(t *testing.T) {
	assert.Equal(t, []string{"a", "b c", "d"}, SplitParagraphs("  a \n\n b c\n \t\n\nd\n"))
	assert.Equal(t, []string{"single\nline break"}, SplitParagraphs("single\nline break"))
	assert.Nil(t, SplitParagraphs(" \n\n "))
}

func TestContentStatusOrder(t *testing.T) {
	assert.True(t, StatusWaiting.CanAdvanceTo(StatusProcessing))
	assert.True(t, StatusProcessed.CanAdvanceTo(StatusProcessed))
	assert.False(t, StatusWaiting.CanAdvanceTo(StatusProcessed))
	assert.False(t, StatusPackaged.CanAdvanceTo(StatusProcessed))
	assert.True(t, StatusPackaged.Beyond(StatusProcessing))
	assert.False(t, ContentStatus("done").Valid())
}

func TestPipelineRunsToPackaged(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := admitted(t, f, "u1", 420)

	require.NoError(t, f.router.Dispatch(ctx, Job{Type: JobText, ID: c.ID}))
	stored := f.store.content(c.ID)
	assert.Equal(t, StatusProcessed, stored.Status)
	assert.True(t, strings.HasPrefix(stored.EnhancedText, "Enhanced: "))
	require.NotNil(t, stored.ProcessedAt)

	jobs := f.queue.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, Job{Type: JobConversion, ID: c.ID}, jobs[1])

	require.NoError(t, f.router.Dispatch(ctx, jobs[1]))
	stored = f.store.content(c.ID)
	assert.Equal(t, StatusPackaged, stored.Status)
	assert.Contains(t, stored.OutputURL, c.ID+".docx")
	require.NotNil(t, stored.OutputExpireAt)
	assert.Equal(t, f.clock.Now().Add(72*time.Hour), *stored.OutputExpireAt)

	body := f.storage.objects[ObjectKey(c.ID)]
	require.NotEmpty(t, body)
	assert.Equal(t, constants.DocxContentType, f.storage.types[ObjectKey(c.ID)])
	text, err := docx.ExtractText(body)
	require.NoError(t, err)
	assert.Equal(t, stored.EnhancedText, text)
}

func TestDuplicateDeliveryIsNoop(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := admitted(t, f, "u1", 400)

	require.NoError(t, f.router.Dispatch(ctx, Job{Type: JobText, ID: c.ID}))
	require.NoError(t, f.router.Dispatch(ctx, Job{Type: JobText, ID: c.ID}))
	assert.Equal(t, 1, f.enhancer.calls)

	require.NoError(t, f.router.Dispatch(ctx, Job{Type: JobConversion, ID: c.ID}))
	url := f.store.content(c.ID).OutputURL
	require.NoError(t, f.router.Dispatch(ctx, Job{Type: JobConversion, ID: c.ID}))
	require.NoError(t, f.router.Dispatch(ctx, Job{Type: JobText, ID: c.ID}))
	assert.Equal(t, url, f.store.content(c.ID).OutputURL)
	assert.Equal(t, StatusPackaged, f.store.content(c.ID).Status)
	assert.Equal(t, 1, f.enhancer.calls)
}

func TestConversionBeforeProcessedIsSkipped(t *testing.T) {
	f := newFixture()
	c := admitted(t, f, "u1", 400)
	require.NoError(t, f.router.Dispatch(context.Background(), Job{Type: JobConversion, ID: c.ID}))
	assert.Equal(t, StatusWaiting, f.store.content(c.ID).Status)
	assert.Empty(t, f.storage.objects)
}

func TestEnhancementFailureIsRetryable(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := admitted(t, f, "u1", 400)

	f.enhancer.err = errBoom
	err := f.router.Dispatch(ctx, Job{Type: JobText, ID: c.ID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errBoom))
	stored := f.store.content(c.ID)
	assert.Equal(t, StatusProcessing, stored.Status)
	assert.Nil(t, stored.claimedUntil, "lease released on failure")

	f.enhancer.err = nil
	f.enhancer.out = "   "
	err = f.router.Dispatch(ctx, Job{Type: JobText, ID: c.ID})
	assert.True(t, errors.Is(err, appErrors.ErrUpstreamFailed))

	f.enhancer.out = "better text"
	require.NoError(t, f.router.Dispatch(ctx, Job{Type: JobText, ID: c.ID}))
	assert.Equal(t, StatusProcessed, f.store.content(c.ID).Status)
	assert.Equal(t, "better text", f.store.content(c.ID).EnhancedText)
}

func TestLiveLeaseBlocksSecondWorker(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := admitted(t, f, "u1", 400)

	_, token, err := f.store.ClaimContent(ctx, c.ID, []ContentStatus{StatusWaiting}, StatusProcessing, time.Minute, f.clock.Now())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	err = f.router.Dispatch(ctx, Job{Type: JobText, ID: c.ID})
	require.Error(t, err, "a held lease must be retried, not acknowledged")
	assert.True(t, errors.Is(err, appErrors.ErrClaimBusy))
	assert.Zero(t, f.enhancer.calls)
	assert.Equal(t, StatusProcessing, f.store.content(c.ID).Status)

	f.clock.Advance(2 * time.Minute)
	require.NoError(t, f.router.Dispatch(ctx, Job{Type: JobText, ID: c.ID}))
	assert.Equal(t, 1, f.enhancer.calls)
	assert.Equal(t, StatusProcessed, f.store.content(c.ID).Status)

	_, err = f.store.CompleteEnhancement(ctx, c.ID, token, "late", f.clock.Now())
	assert.True(t, errors.Is(err, appErrors.ErrClaimLost))
}

func TestStorageFailureKeepsProcessed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := admitted(t, f, "u1", 400)
	require.NoError(t, f.router.Dispatch(ctx, Job{Type: JobText, ID: c.ID}))

	f.storage.failWith = errBoom
	err := f.router.Dispatch(ctx, Job{Type: JobConversion, ID: c.ID})
	assert.True(t, errors.Is(err, appErrors.ErrStorageFailed))
	assert.Equal(t, StatusProcessed, f.store.content(c.ID).Status)

	f.storage.failWith = nil
	require.NoError(t, f.router.Dispatch(ctx, Job{Type: JobConversion, ID: c.ID}))
	assert.Equal(t, StatusPackaged, f.store.content(c.ID).Status)
}

func TestEscalateThenRequeue(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := admitted(t, f, "u1", 400)

	f.enhancer.err = errBoom
	job := Job{Type: JobText, ID: c.ID}
	err := f.router.Dispatch(ctx, job)
	require.Error(t, err)
	f.router.Escalate(ctx, job, err)

	stored := f.store.content(c.ID)
	assert.True(t, stored.Stuck)
	assert.Equal(t, StatusProcessing, stored.Status)

	stuck, err := f.maintenance.ReportStuck(ctx)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, c.ID, stuck[0].ID)

	f.enhancer.err = nil
	requeued, err := f.maintenance.Requeue(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, requeued.Stuck)
	assert.False(t, f.store.content(c.ID).Stuck)

	jobs := f.queue.Jobs()
	assert.Equal(t, job, jobs[len(jobs)-1])
	require.NoError(t, f.router.Dispatch(ctx, job))
	assert.Equal(t, StatusProcessed, f.store.content(c.ID).Status)

	require.NoError(t, f.router.Dispatch(ctx, Job{Type: JobConversion, ID: c.ID}))
	_, err = f.maintenance.Requeue(ctx, c.ID)
	assert.True(t, errors.Is(err, appErrors.ErrClaimRejected))
}

func TestUnknownJobDropped(t *testing.T) {
	f := newFixture()
	assert.NoError(t, f.router.Dispatch(context.Background(), Job{Type: "pdf", ID: "x"}))
	assert.NoError(t, f.router.Dispatch(context.Background(), Job{Type: JobText, ID: "missing"}))
}

func TestCrashedWorkerRecoveredByRedelivery(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := admitted(t, f, "u1", 400)
	job := Job{Type: JobText, ID: c.ID}

	// 认领后进程崩溃，租约未释放
	_, _, err := f.store.ClaimContent(ctx, c.ID, []ContentStatus{StatusWaiting, StatusProcessing}, StatusProcessing, f.config.ClaimLease, f.clock.Now())
	require.NoError(t, err)

	f.clock.Advance(10 * time.Second)
	err = f.router.Dispatch(ctx, job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrClaimBusy))

	f.clock.Advance(f.config.ClaimLease)
	require.NoError(t, f.router.Dispatch(ctx, job))
	assert.Equal(t, 1, f.enhancer.calls)
	assert.Equal(t, StatusProcessed, f.store.content(c.ID).Status)

	require.NoError(t, f.router.Dispatch(ctx, Job{Type: JobConversion, ID: c.ID}))
	assert.Equal(t, StatusPackaged, f.store.content(c.ID).Status)

	// 已完成阶段的重复投递直接确认
	require.NoError(t, f.router.Dispatch(ctx, job))
	require.NoError(t, f.router.Dispatch(ctx, Job{Type: JobConversion, ID: c.ID}))
	assert.Equal(t, 1, f.enhancer.calls)
}

func TestPackagingCommitFailureReleasesClaim(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := admitted(t, f, "u1", 400)
	require.NoError(t, f.router.Dispatch(ctx, Job{Type: JobText, ID: c.ID}))

	f.store.packagingErr = errBoom
	err := f.router.Dispatch(ctx, Job{Type: JobConversion, ID: c.ID})
	assert.True(t, errors.Is(err, errBoom))
	assert.Equal(t, StatusProcessed, f.store.content(c.ID).Status)
	assert.Nil(t, f.store.content(c.ID).claimedUntil)

	// 无需等待租约过期即可重试
	f.store.packagingErr = nil
	require.NoError(t, f.router.Dispatch(ctx, Job{Type: JobConversion, ID: c.ID}))
	assert.Equal(t, StatusPackaged, f.store.content(c.ID).Status)
}

func TestStorageCallsAreBounded(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := admitted(t, f, "u1", 400)
	require.NoError(t, f.router.Dispatch(ctx, Job{Type: JobText, ID: c.ID}))
	require.NoError(t, f.router.Dispatch(ctx, Job{Type: JobConversion, ID: c.ID}))

	require.Len(t, f.storage.deadlines, 2)
	for _, ok := range f.storage.deadlines {
		assert.True(t, ok, "storage call without deadline")
	}
}
