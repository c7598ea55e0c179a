package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docflow-service/internal/biz"
	"docflow-service/internal/constants"
	"docflow-service/internal/data/model"
	appErrors "docflow-service/internal/errors"
	"docflow-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redsync/redsync/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ledgerRepo 账本数据访问
type ledgerRepo struct {
	data    *Data
	log     *log.Helper
	metrics *metrics.PipelineMetrics
}

// NewLedgerRepo 创建账本 repo（返回 biz.LedgerRepo 接口）
func NewLedgerRepo(data *Data, logger log.Logger) biz.LedgerRepo {
	return &ledgerRepo{
		data:    data,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// GetAccount 获取账户
func (r *ledgerRepo) GetAccount(ctx context.Context, userID string) (*biz.Account, error) {
	var m model.Account
	if err := r.data.db.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return toBizAccount(&m), nil
}

// GetBalance 获取余额（缓存优先）
func (r *ledgerRepo) GetBalance(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("userID is required")
	}
	if balance, ok := r.data.cache.get(ctx, userID); ok {
		return balance, nil
	}

	acc, err := r.GetAccount(ctx, userID)
	if err != nil {
		r.log.Errorf("GetBalance failed: userID=%s, error=%v", userID, err)
		return 0, err
	}
	var balance int64
	if acc != nil {
		balance = acc.TokenBalance
	}
	r.data.cache.set(userID, balance)
	return balance, nil
}

// CreateAccount 创建账户
func (r *ledgerRepo) CreateAccount(ctx context.Context, userID, inviterID string) (*biz.Account, error) {
	var created model.Account
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Account
		err := tx.Where("user_id = ?", userID).First(&existing).Error
		if err == nil {
			return appErrors.ErrAccountExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		created = model.Account{
			AccountID: uuid.New().String(),
			UserID:    userID,
			InviterID: inviterID,
		}
		return tx.Create(&created).Error
	})
	if err != nil {
		return nil, err
	}
	return toBizAccount(&created), nil
}

// ListTransactions 获取账本流水列表
func (r *ledgerRepo) ListTransactions(ctx context.Context, userID string, page, pageSize int) ([]*biz.TokenTransaction, int64, error) {
	var (
		rows  []model.TokenTransaction
		total int64
	)
	query := func() *gorm.DB {
		return r.data.db.WithContext(ctx).Model(&model.TokenTransaction{}).Where("user_id = ?", userID)
	}
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * pageSize
	if err := query().Order("created_at DESC").Order("token_transaction_id").Offset(offset).Limit(pageSize).Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	result := make([]*biz.TokenTransaction, 0, len(rows))
	for i := range rows {
		result = append(result, &biz.TokenTransaction{
			ID:        rows[i].TokenTransactionID,
			UserID:    rows[i].UserID,
			Amount:    rows[i].Amount,
			Kind:      biz.TransactionKind(rows[i].Kind),
			Reference: rows[i].Reference,
			CreatedAt: rows[i].CreatedAt,
		})
	}
	return result, total, nil
}

// debitTx 条件扣减，余额不足时影响行数为 0，不产生任何写入
func debitTx(tx *gorm.DB, userID string, amount int64, kind biz.TransactionKind, reference string) (int64, error) {
	res := tx.Model(&model.Account{}).
		Where("user_id = ? AND token_balance >= ?", userID, amount).
		Update("token_balance", gorm.Expr("token_balance - ?", amount))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, appErrors.ErrInsufficientBalance
	}
	if err := insertTransaction(tx, userID, -amount, kind, reference); err != nil {
		return 0, err
	}
	return balanceOf(tx, userID)
}

// creditTx 入账，账户不存在时以 upsert 创建
func creditTx(tx *gorm.DB, userID string, amount int64, kind biz.TransactionKind, reference string) (int64, error) {
	acc := model.Account{
		AccountID:    uuid.New().String(),
		UserID:       userID,
		TokenBalance: amount,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"token_balance": gorm.Expr("token_balance + ?", amount),
			"updated_at":    time.Now(),
		}),
	}).Create(&acc).Error
	if err != nil {
		return 0, err
	}
	if err := insertTransaction(tx, userID, amount, kind, reference); err != nil {
		return 0, err
	}
	return balanceOf(tx, userID)
}

func insertTransaction(tx *gorm.DB, userID string, amount int64, kind biz.TransactionKind, reference string) error {
	return tx.Create(&model.TokenTransaction{
		TokenTransactionID: uuid.New().String(),
		UserID:             userID,
		Amount:             amount,
		Kind:               string(kind),
		Reference:          reference,
	}).Error
}

func balanceOf(tx *gorm.DB, userID string) (int64, error) {
	var m model.Account
	if err := tx.Select("token_balance").Where("user_id = ?", userID).First(&m).Error; err != nil {
		return 0, err
	}
	return m.TokenBalance, nil
}

// withUserLock 按用户加分布式锁；未配置 Redis 时直接执行
func withUserLock(ctx context.Context, data *Data, helper *log.Helper, m *metrics.PipelineMetrics, userID string, fn func() error) error {
	if data.rs == nil {
		return fn()
	}
	lockStartTime := time.Now()
	mutex := data.rs.NewMutex(constants.RedisKeyLedgerLock+userID, redsync.WithExpiry(constants.LedgerLockExpiry))
	if err := mutex.LockContext(ctx); err != nil {
		helper.Errorf("Failed to acquire ledger lock: user_id=%s, error=%v", userID, err)
		m.LockAcquireTotal.WithLabelValues(constants.ResultFailed).Inc()
		m.LockAcquireDuration.Observe(time.Since(lockStartTime).Seconds())
		return fmt.Errorf("acquire ledger lock: %w", err)
	}
	m.LockAcquireTotal.WithLabelValues(constants.ResultSuccess).Inc()
	m.LockAcquireDuration.Observe(time.Since(lockStartTime).Seconds())
	defer func() {
		if ok, err := mutex.UnlockContext(context.Background()); !ok || err != nil {
			helper.Warnf("Failed to unlock ledger lock: user_id=%s, error=%v", userID, err)
		}
	}()
	return fn()
}

func toBizAccount(m *model.Account) *biz.Account {
	return &biz.Account{
		UserID:       m.UserID,
		TokenBalance: m.TokenBalance,
		InviterID:    m.InviterID,
		UpdatedAt:    m.UpdatedAt,
	}
}
