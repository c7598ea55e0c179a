package biz

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	appErrors "docflow-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type storedContent struct {
	Content
	claimToken   string
	claimedUntil *time.Time
}

// memStore 内存实现，覆盖账本、内容、outbox 与准入事务
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	txs      []*TokenTransaction
	contents map[string]*storedContent
	outbox   []*memOutboxEntry

	packagingErr error
}

type memOutboxEntry struct {
	OutboxEntry
	sent   bool
	failed string
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[string]*Account),
		contents: make(map[string]*storedContent),
	}
}

func (s *memStore) balance(userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[userID]; ok {
		return acc.TokenBalance
	}
	return 0
}

func (s *memStore) content(id string) *storedContent {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contents[id]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

// LedgerRepo

func (s *memStore) GetAccount(_ context.Context, userID string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[userID]
	if !ok {
		return nil, nil
	}
	cp := *acc
	return &cp, nil
}

func (s *memStore) GetBalance(_ context.Context, userID string) (int64, error) {
	return s.balance(userID), nil
}

func (s *memStore) CreateAccount(_ context.Context, userID, inviterID string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[userID]; ok {
		return nil, appErrors.ErrAccountExists
	}
	acc := &Account{UserID: userID, InviterID: inviterID}
	s.accounts[userID] = acc
	cp := *acc
	return &cp, nil
}

func (s *memStore) debitLocked(userID string, amount int64, kind TransactionKind, ref string) (int64, error) {
	acc, ok := s.accounts[userID]
	if !ok || acc.TokenBalance < amount {
		return 0, appErrors.ErrInsufficientBalance
	}
	acc.TokenBalance -= amount
	s.txs = append(s.txs, &TokenTransaction{ID: uuid.New().String(), UserID: userID, Amount: -amount, Kind: kind, Reference: ref})
	return acc.TokenBalance, nil
}

func (s *memStore) creditLocked(userID string, amount int64, kind TransactionKind, ref string) int64 {
	acc, ok := s.accounts[userID]
	if !ok {
		acc = &Account{UserID: userID}
		s.accounts[userID] = acc
	}
	acc.TokenBalance += amount
	s.txs = append(s.txs, &TokenTransaction{ID: uuid.New().String(), UserID: userID, Amount: amount, Kind: kind, Reference: ref})
	return acc.TokenBalance
}

func (s *memStore) Debit(_ context.Context, userID string, amount int64, kind TransactionKind, ref string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debitLocked(userID, amount, kind, ref)
}

func (s *memStore) Credit(_ context.Context, userID string, amount int64, kind TransactionKind, ref string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creditLocked(userID, amount, kind, ref), nil
}

func (s *memStore) ListTransactions(_ context.Context, userID string, page, pageSize int) ([]*TokenTransaction, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*TokenTransaction
	for _, tx := range s.txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, int64(len(out)), nil
}

// ContentRepo

func (s *memStore) CreateTemporary(_ context.Context, c *Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents[c.ID] = &storedContent{Content: *c}
	return nil
}

func (s *memStore) GetContent(_ context.Context, id string, now time.Time) (*Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contents[id]
	if !ok || c.Expired(now) {
		return nil, appErrors.ErrContentNotFound
	}
	cp := c.Content
	return &cp, nil
}

func (s *memStore) ListOwnerContents(_ context.Context, ownerID string) ([]*Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Content
	for _, c := range s.contents {
		if c.OwnerID == ownerID && c.Kind == ContentPermanent {
			cp := c.Content
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) ClaimContent(_ context.Context, id string, from []ContentStatus, to ContentStatus, lease time.Duration, now time.Time) (*Content, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contents[id]
	if !ok || c.Kind != ContentPermanent {
		return nil, "", appErrors.ErrContentNotFound
	}
	allowed := false
	for _, st := range from {
		if c.Status == st {
			allowed = true
		}
	}
	if !allowed {
		return nil, "", appErrors.ErrClaimRejected
	}
	if c.claimedUntil != nil && !c.claimedUntil.Before(now) {
		return nil, "", appErrors.ErrClaimBusy
	}
	until := now.Add(lease)
	c.Status = to
	c.claimToken = uuid.New().String()
	c.claimedUntil = &until
	cp := c.Content
	return &cp, c.claimToken, nil
}

func (s *memStore) CompleteEnhancement(_ context.Context, id, token, text string, now time.Time) (*OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contents[id]
	if !ok || c.claimToken != token || c.Status != StatusProcessing {
		return nil, appErrors.ErrClaimLost
	}
	c.Status = StatusProcessed
	c.EnhancedText = text
	c.ProcessedAt = &now
	c.Stuck = false
	c.claimToken = ""
	c.claimedUntil = nil
	return s.addOutboxLocked(Job{Type: JobConversion, ID: id}, now), nil
}

func (s *memStore) CompletePackaging(_ context.Context, id, token, url string, expireAt, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.packagingErr != nil {
		return s.packagingErr
	}
	c, ok := s.contents[id]
	if !ok || c.claimToken != token || c.Status != StatusProcessed {
		return appErrors.ErrClaimLost
	}
	c.Status = StatusPackaged
	c.OutputURL = url
	c.OutputExpireAt = &expireAt
	c.Stuck = false
	c.claimToken = ""
	c.claimedUntil = nil
	return nil
}

func (s *memStore) ReleaseClaim(_ context.Context, id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contents[id]; ok && c.claimToken == token {
		c.claimToken = ""
		c.claimedUntil = nil
	}
	return nil
}

func (s *memStore) MarkStuck(_ context.Context, id string, stuck bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contents[id]
	if !ok {
		return appErrors.ErrContentNotFound
	}
	c.Stuck = stuck
	return nil
}

func (s *memStore) ListStuck(_ context.Context, limit int) ([]*Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Content
	for _, c := range s.contents {
		if c.Stuck {
			cp := c.Content
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.contents {
		if c.Expired(now) {
			delete(s.contents, id)
			n++
		}
	}
	return n, nil
}

// AdmissionRepo

func (s *memStore) AdmitContent(_ context.Context, c *Content) (*OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.debitLocked(c.OwnerID, int64(c.WordCount), TxDebit, c.ID); err != nil {
		return nil, err
	}
	s.contents[c.ID] = &storedContent{Content: *c}
	return s.addOutboxLocked(Job{Type: JobText, ID: c.ID}, c.CreatedAt), nil
}

func (s *memStore) PromoteContent(_ context.Context, ownerID, id string, now time.Time) (*Content, *OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contents[id]
	if !ok || c.OwnerID != ownerID || c.Kind != ContentTemporary || c.Expired(now) {
		return nil, nil, appErrors.ErrContentNotFound
	}
	if _, err := s.debitLocked(ownerID, int64(c.WordCount), TxDebit, c.ID); err != nil {
		return nil, nil, err
	}
	c.Kind = ContentPermanent
	c.Status = StatusWaiting
	c.ExpireAt = nil
	c.SubmittedAt = &now
	cp := c.Content
	return &cp, s.addOutboxLocked(Job{Type: JobText, ID: id}, now), nil
}

// OutboxRepo

func (s *memStore) addOutboxLocked(job Job, now time.Time) *OutboxEntry {
	e := &memOutboxEntry{OutboxEntry: OutboxEntry{ID: uuid.New().String(), Job: job, CreatedAt: now}}
	s.outbox = append(s.outbox, e)
	cp := e.OutboxEntry
	return &cp
}

func (s *memStore) AddEntry(_ context.Context, job Job) (*OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addOutboxLocked(job, time.Now().UTC()), nil
}

func (s *memStore) ListPending(_ context.Context, createdBefore time.Time, limit int) ([]*OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*OutboxEntry
	for _, e := range s.outbox {
		if !e.sent && e.CreatedAt.Before(createdBefore) && len(out) < limit {
			cp := e.OutboxEntry
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) MarkSent(_ context.Context, id string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.outbox {
		if e.ID == id {
			e.sent = true
		}
	}
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, id string, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.outbox {
		if e.ID == id {
			e.Attempts++
			e.failed = cause
		}
	}
	return nil
}

func (s *memStore) pendingOutbox() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.outbox {
		if !e.sent {
			n++
		}
	}
	return n
}

type memQueue struct {
	mu   sync.Mutex
	jobs []Job
	fail error
}

func (q *memQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail != nil {
		return q.fail
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memQueue) Jobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Job(nil), q.jobs...)
}

type fakeEnhancer struct {
	mu    sync.Mutex
	calls int
	out   string
	err   error
}

func (e *fakeEnhancer) Enhance(_ context.Context, text string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return "", e.err
	}
	if e.out != "" {
		return e.out, nil
	}
	return "Enhanced: " + text, nil
}

type fakeStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	failWith error
	// 每次调用是否带有截止时间
	deadlines []bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (s *fakeStorage) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := ctx.Deadline()
	s.deadlines = append(s.deadlines, ok)
	if s.failWith != nil {
		return s.failWith
	}
	s.objects[key] = body
	s.types[key] = contentType
	return nil
}

func (s *fakeStorage) PresignDownload(ctx context.Context, key, filename string, expires time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := ctx.Deadline()
	s.deadlines = append(s.deadlines, ok)
	return "https://storage.test/" + key + "?filename=" + filename + "&expires=" + expires.String(), nil
}

// fixture 组装完整的 biz 依赖
type fixture struct {
	clock       *fakeClock
	store       *memStore
	queue       *memQueue
	enhancer    *fakeEnhancer
	storage     *fakeStorage
	config      *PipelineConfig
	dispatcher  *Dispatcher
	ledger      *LedgerUseCase
	ingestion   *IngestionUseCase
	enhancement *EnhancementUseCase
	packaging   *PackagingUseCase
	router      *JobRouter
	maintenance *MaintenanceUseCase
}

func newFixture() *fixture {
	logger := log.DefaultLogger
	f := &fixture{
		clock:    newFakeClock(),
		store:    newMemStore(),
		queue:    &memQueue{},
		enhancer: &fakeEnhancer{},
		storage:  newFakeStorage(),
		config: &PipelineConfig{
			MinWords:             400,
			MaxWords:             15000,
			MaxUploadBytes:       10 << 20,
			TemporaryTTL:         10 * time.Minute,
			OutputTTL:            72 * time.Hour,
			ClaimLease:           5 * time.Minute,
			EnhanceTimeout:       time.Minute,
			StorageTimeout:       30 * time.Second,
			ReferralBonusPercent: 10,
			OutboxBatch:          100,
			OutboxGrace:          30 * time.Second,
			TokensPerPack:        100,
			UnitAmounts:          map[string]int64{"usd": 333},
		},
	}
	f.dispatcher = NewDispatcher(f.store, f.queue, logger)
	f.dispatcher.now = f.clock.Now
	f.ledger = NewLedgerUseCase(f.store, logger)
	f.ingestion = NewIngestionUseCase(f.store, f.store, f.store, f.dispatcher, f.config, logger)
	f.ingestion.now = f.clock.Now
	f.enhancement = NewEnhancementUseCase(f.store, f.enhancer, f.dispatcher, f.config, logger)
	f.enhancement.now = f.clock.Now
	f.packaging = NewPackagingUseCase(f.store, f.storage, f.config, logger)
	f.packaging.now = f.clock.Now
	f.router = NewJobRouter(f.store, f.enhancement, f.packaging, logger)
	f.maintenance = NewMaintenanceUseCase(f.store, f.store, f.dispatcher, f.config, logger)
	f.maintenance.now = f.clock.Now
	return f
}

var errBoom = errors.New("boom")
