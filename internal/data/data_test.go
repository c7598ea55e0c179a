package data

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"docflow-service/internal/biz"
	"docflow-service/internal/data/model"
	appErrors "docflow-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestData(t *testing.T) *Data {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, Migrate(db))

	d, cleanup, err := NewData(log.DefaultLogger, db, nil, nil)
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return d
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newContent(owner string, words int) *biz.Content {
	return &biz.Content{
		ID:        uuid.New().String(),
		OwnerID:   owner,
		RawText:   fmt.Sprintf("%d words of text", words),
		WordCount: words,
		CreatedAt: t0,
	}
}

func countRows(t *testing.T, d *Data, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, d.db.Model(m).Count(&n).Error)
	return n
}

// credit 直接入账准备测试余额；生产中只有结算事务会调用 creditTx
func credit(t *testing.T, d *Data, userID string, amount int64, reference string) int64 {
	t.Helper()
	var balance int64
	require.NoError(t, d.db.Transaction(func(tx *gorm.DB) error {
		var err error
		balance, err = creditTx(tx, userID, amount, biz.TxPurchase, reference)
		return err
	}))
	return balance
}

func debit(d *Data, userID string, amount int64, reference string) (int64, error) {
	var balance int64
	err := d.db.Transaction(func(tx *gorm.DB) error {
		var err error
		balance, err = debitTx(tx, userID, amount, biz.TxDebit, reference)
		return err
	})
	return balance, err
}

func TestLedgerCreditDebit(t *testing.T) {
	d := newTestData(t)
	repo := NewLedgerRepo(d, log.DefaultLogger)
	ctx := context.Background()

	balance, err := repo.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, balance)

	assert.Equal(t, int64(100), credit(t, d, "u1", 100, "evt_0"))
	assert.Equal(t, int64(150), credit(t, d, "u1", 50, "evt_1"))
	assert.Equal(t, int64(1), countRows(t, d, &model.Account{}))

	balance, err = debit(d, "u1", 120, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), balance)

	_, err = debit(d, "u1", 31, "c2")
	assert.True(t, errors.Is(err, appErrors.ErrInsufficientBalance))
	_, err = debit(d, "ghost", 1, "c3")
	assert.True(t, errors.Is(err, appErrors.ErrInsufficientBalance))

	balance, err = repo.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), balance)

	txs, total, err := repo.ListTransactions(ctx, "u1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	var sum int64
	for _, tx := range txs {
		sum += tx.Amount
	}
	assert.Equal(t, int64(30), sum, "ledger rows reconcile with balance")
}

func TestConcurrentAdmissionSingleWinner(t *testing.T) {
	d := newTestData(t)
	repo := NewLedgerRepo(d, log.DefaultLogger)
	admission := NewAdmissionRepo(d, log.DefaultLogger)
	ctx := context.Background()
	credit(t, d, "u1", 100, "evt_0")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := admission.AdmitContent(ctx, newContent("u1", 60))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if errors.Is(err, appErrors.ErrInsufficientBalance) {
				failures++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, failures)
	balance, err := repo.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(40), balance)
	assert.Equal(t, int64(1), countRows(t, d, &model.Content{}))
}

func TestCreateAccountOnce(t *testing.T) {
	d := newTestData(t)
	repo := NewLedgerRepo(d, log.DefaultLogger)
	ctx := context.Background()

	acc, err := repo.CreateAccount(ctx, "buyer", "friend")
	require.NoError(t, err)
	assert.Equal(t, "friend", acc.InviterID)
	_, err = repo.CreateAccount(ctx, "buyer", "")
	assert.True(t, errors.Is(err, appErrors.ErrAccountExists))

	got, err := repo.GetAccount(ctx, "buyer")
	require.NoError(t, err)
	assert.Equal(t, "friend", got.InviterID)
	missing, err := repo.GetAccount(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAdmitContentIsAtomic(t *testing.T) {
	d := newTestData(t)
	ledger := NewLedgerRepo(d, log.DefaultLogger)
	admission := NewAdmissionRepo(d, log.DefaultLogger)
	contents := NewContentRepo(d, log.DefaultLogger)
	ctx := context.Background()
	credit(t, d, "u1", 500, "evt_0")

	c := newContent("u1", 450)
	entry, err := admission.AdmitContent(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, biz.Job{Type: biz.JobText, ID: c.ID}, entry.Job)

	stored, err := contents.GetContent(ctx, c.ID, t0)
	require.NoError(t, err)
	assert.Equal(t, biz.ContentPermanent, stored.Kind)
	assert.Equal(t, biz.StatusWaiting, stored.Status)
	balance, _ := ledger.GetBalance(ctx, "u1")
	assert.Equal(t, int64(50), balance)

	second := newContent("u1", 450)
	_, err = admission.AdmitContent(ctx, second)
	assert.True(t, errors.Is(err, appErrors.ErrInsufficientBalance))
	_, err = contents.GetContent(ctx, second.ID, t0)
	assert.True(t, errors.Is(err, appErrors.ErrContentNotFound))
	assert.Equal(t, int64(1), countRows(t, d, &model.Content{}))
	assert.Equal(t, int64(1), countRows(t, d, &model.OutboxEntry{}))
	assert.Equal(t, int64(2), countRows(t, d, &model.TokenTransaction{}))
}

func TestPromoteTemporaryContent(t *testing.T) {
	d := newTestData(t)
	ledger := NewLedgerRepo(d, log.DefaultLogger)
	admission := NewAdmissionRepo(d, log.DefaultLogger)
	contents := NewContentRepo(d, log.DefaultLogger)
	ctx := context.Background()

	c := newContent("u1", 400)
	c.Status = biz.StatusWaiting
	expireAt := t0.Add(10 * time.Minute)
	c.ExpireAt = &expireAt
	require.NoError(t, contents.CreateTemporary(ctx, c))

	_, _, err := admission.PromoteContent(ctx, "u1", c.ID, t0.Add(time.Minute))
	assert.True(t, errors.Is(err, appErrors.ErrInsufficientBalance))

	credit(t, d, "u1", 400, "evt_1")

	_, _, err = admission.PromoteContent(ctx, "u2", c.ID, t0.Add(time.Minute))
	assert.True(t, errors.Is(err, appErrors.ErrContentNotFound))

	promoted, entry, err := admission.PromoteContent(ctx, "u1", c.ID, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, c.ID, promoted.ID)
	assert.Equal(t, biz.ContentPermanent, promoted.Kind)
	assert.Equal(t, biz.JobText, entry.Job.Type)

	_, _, err = admission.PromoteContent(ctx, "u1", c.ID, t0.Add(3*time.Minute))
	assert.True(t, errors.Is(err, appErrors.ErrContentNotFound))
	balance, _ := ledger.GetBalance(ctx, "u1")
	assert.Zero(t, balance)

	stored, err := contents.GetContent(ctx, c.ID, t0.Add(time.Hour))
	require.NoError(t, err, "permanent content never expires")
	assert.Nil(t, stored.ExpireAt)
}

func TestTemporaryContentExpiry(t *testing.T) {
	d := newTestData(t)
	admission := NewAdmissionRepo(d, log.DefaultLogger)
	contents := NewContentRepo(d, log.DefaultLogger)
	ctx := context.Background()

	c := newContent("u1", 400)
	c.Status = biz.StatusWaiting
	expireAt := t0.Add(10 * time.Minute)
	c.ExpireAt = &expireAt
	require.NoError(t, contents.CreateTemporary(ctx, c))

	_, err := contents.GetContent(ctx, c.ID, t0.Add(10*time.Minute-time.Millisecond))
	require.NoError(t, err)
	_, err = contents.GetContent(ctx, c.ID, t0.Add(10*time.Minute+time.Millisecond))
	assert.True(t, errors.Is(err, appErrors.ErrContentNotFound))

	credit(t, d, "u1", 1000, "evt_1")
	_, _, err = admission.PromoteContent(ctx, "u1", c.ID, t0.Add(10*time.Minute+time.Millisecond))
	assert.True(t, errors.Is(err, appErrors.ErrContentNotFound))

	n, err := contents.PurgeExpired(ctx, t0.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = contents.PurgeExpired(ctx, t0.Add(11*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Zero(t, countRows(t, d, &model.Content{}))
}

func TestClaimLifecycle(t *testing.T) {
	d := newTestData(t)
	admission := NewAdmissionRepo(d, log.DefaultLogger)
	contents := NewContentRepo(d, log.DefaultLogger)
	ctx := context.Background()
	credit(t, d, "u1", 400, "evt_0")
	c := newContent("u1", 400)
	_, err := admission.AdmitContent(ctx, c)
	require.NoError(t, err)

	textFrom := []biz.ContentStatus{biz.StatusWaiting, biz.StatusProcessing}
	claimed, token, err := contents.ClaimContent(ctx, c.ID, textFrom, biz.StatusProcessing, time.Minute, t0)
	require.NoError(t, err)
	assert.Equal(t, biz.StatusProcessing, claimed.Status)

	_, _, err = contents.ClaimContent(ctx, c.ID, textFrom, biz.StatusProcessing, time.Minute, t0.Add(30*time.Second))
	assert.True(t, errors.Is(err, appErrors.ErrClaimBusy), "live lease blocks a second claim")
	assert.False(t, errors.Is(err, appErrors.ErrClaimRejected))

	_, _, err = contents.ClaimContent(ctx, c.ID, []biz.ContentStatus{biz.StatusWaiting}, biz.StatusProcessed, time.Minute, t0)
	assert.True(t, errors.Is(err, appErrors.ErrClaimRejected), "skipping a stage is refused")

	require.NoError(t, contents.ReleaseClaim(ctx, c.ID, token))
	_, token2, err := contents.ClaimContent(ctx, c.ID, textFrom, biz.StatusProcessing, time.Minute, t0.Add(31*time.Second))
	require.NoError(t, err)

	_, err = contents.CompleteEnhancement(ctx, c.ID, token, "stale", t0.Add(40*time.Second))
	assert.True(t, errors.Is(err, appErrors.ErrClaimLost))

	require.NoError(t, contents.MarkStuck(ctx, c.ID, true))
	entry, err := contents.CompleteEnhancement(ctx, c.ID, token2, "enhanced", t0.Add(40*time.Second))
	require.NoError(t, err)
	assert.Equal(t, biz.Job{Type: biz.JobConversion, ID: c.ID}, entry.Job)
	stuck, err := contents.ListStuck(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, stuck, "advancing a stage clears the stuck flag")

	_, _, err = contents.ClaimContent(ctx, c.ID, textFrom, biz.StatusProcessing, time.Minute, t0.Add(time.Minute))
	assert.True(t, errors.Is(err, appErrors.ErrClaimRejected), "state never moves backwards")

	convFrom := []biz.ContentStatus{biz.StatusProcessed}
	_, token3, err := contents.ClaimContent(ctx, c.ID, convFrom, biz.StatusProcessed, time.Minute, t0.Add(time.Minute))
	require.NoError(t, err)
	_, _, err = contents.ClaimContent(ctx, c.ID, convFrom, biz.StatusProcessed, time.Minute, t0.Add(90*time.Second))
	assert.True(t, errors.Is(err, appErrors.ErrClaimBusy))
	require.NoError(t, contents.CompletePackaging(ctx, c.ID, token3, "https://s3.test/x.docx", t0.Add(72*time.Hour), t0.Add(time.Minute)))
	assert.True(t, errors.Is(contents.CompletePackaging(ctx, c.ID, token3, "again", t0, t0), appErrors.ErrClaimLost))

	stored, err := contents.GetContent(ctx, c.ID, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, biz.StatusPackaged, stored.Status)
	assert.Equal(t, "enhanced", stored.EnhancedText)
	assert.Equal(t, "https://s3.test/x.docx", stored.OutputURL)
	require.NotNil(t, stored.OutputExpireAt)
	assert.True(t, stored.OutputExpireAt.Equal(t0.Add(72*time.Hour)))

	_, _, err = contents.ClaimContent(ctx, "missing", textFrom, biz.StatusProcessing, time.Minute, t0)
	assert.True(t, errors.Is(err, appErrors.ErrContentNotFound))
}

func TestStuckFlag(t *testing.T) {
	d := newTestData(t)
	admission := NewAdmissionRepo(d, log.DefaultLogger)
	contents := NewContentRepo(d, log.DefaultLogger)
	ctx := context.Background()
	credit(t, d, "u1", 400, "evt_0")
	c := newContent("u1", 400)
	_, err := admission.AdmitContent(ctx, c)
	require.NoError(t, err)

	require.NoError(t, contents.MarkStuck(ctx, c.ID, true))
	stuck, err := contents.ListStuck(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, biz.StatusWaiting, stuck[0].Status)

	require.NoError(t, contents.MarkStuck(ctx, c.ID, false))
	stuck, err = contents.ListStuck(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, stuck)
}

func TestOutboxPendingAndSent(t *testing.T) {
	d := newTestData(t)
	outbox := NewOutboxRepo(d, log.DefaultLogger)
	ctx := context.Background()

	entry, err := outbox.AddEntry(ctx, biz.Job{Type: biz.JobText, ID: "c1"})
	require.NoError(t, err)

	pending, err := outbox.ListPending(ctx, time.Now().UTC().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, entry.ID, pending[0].ID)

	require.NoError(t, outbox.MarkFailed(ctx, entry.ID, "broker down"))
	pending, err = outbox.ListPending(ctx, time.Now().UTC().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)

	require.NoError(t, outbox.MarkSent(ctx, entry.ID, time.Now().UTC()))
	pending, err = outbox.ListPending(ctx, time.Now().UTC().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSettlePurchaseOnce(t *testing.T) {
	d := newTestData(t)
	ledger := NewLedgerRepo(d, log.DefaultLogger)
	repo := NewSettlementRepo(d, log.DefaultLogger)
	ctx := context.Background()

	_, err := ledger.CreateAccount(ctx, "buyer", "friend")
	require.NoError(t, err)
	require.NoError(t, repo.SaveDiscountCode(ctx, &biz.DiscountCode{Code: "SPRING", Multiplier: decimal.RequireFromString("0.8")}))
	dc, err := repo.GetDiscountCode(ctx, "SPRING")
	require.NoError(t, err)
	assert.True(t, dc.Multiplier.Equal(decimal.RequireFromString("0.8")))

	ev := &biz.PaymentEvent{ID: "evt_1", Type: "checkout.session.completed", UserID: "buyer", TokenAmount: 1005, DiscountCode: "SPRING"}
	s, err := repo.SettlePurchase(ctx, ev, 10)
	require.NoError(t, err)
	assert.False(t, s.Duplicate)
	assert.Equal(t, int64(1005), s.Credited)
	assert.Equal(t, "friend", s.ReferrerID)
	assert.Equal(t, int64(100), s.ReferralBonus)
	assert.True(t, s.DiscountRedeemed)

	_, err = repo.GetDiscountCode(ctx, "SPRING")
	assert.True(t, errors.Is(err, appErrors.ErrDiscountCodeNotFound))

	for i := 0; i < 3; i++ {
		s, err = repo.SettlePurchase(ctx, ev, 10)
		require.NoError(t, err)
		assert.True(t, s.Duplicate)
	}

	buyer, _ := ledger.GetBalance(ctx, "buyer")
	friend, _ := ledger.GetBalance(ctx, "friend")
	assert.Equal(t, int64(1005), buyer)
	assert.Equal(t, int64(100), friend)
	assert.Equal(t, int64(1), countRows(t, d, &model.PaymentEvent{}))
	assert.Equal(t, int64(2), countRows(t, d, &model.TokenTransaction{}))
}

func TestSettlePurchaseWithoutInviter(t *testing.T) {
	d := newTestData(t)
	ledger := NewLedgerRepo(d, log.DefaultLogger)
	repo := NewSettlementRepo(d, log.DefaultLogger)
	ctx := context.Background()

	s, err := repo.SettlePurchase(ctx, &biz.PaymentEvent{ID: "evt_9", Type: "checkout.session.completed", UserID: "solo", TokenAmount: 300, DiscountCode: "GONE"}, 10)
	require.NoError(t, err)
	assert.Empty(t, s.ReferrerID)
	assert.False(t, s.DiscountRedeemed)
	balance, _ := ledger.GetBalance(ctx, "solo")
	assert.Equal(t, int64(300), balance)
}
