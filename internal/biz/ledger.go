package biz

import (
	"context"
	"time"

	"docflow-service/internal/constants"
	appErrors "docflow-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
)

// TransactionKind 账本流水类型
type TransactionKind string

const (
	TxDebit    TransactionKind = constants.TransactionKindDebit
	TxPurchase TransactionKind = constants.TransactionKindPurchase
	TxReferral TransactionKind = constants.TransactionKindReferral
)

// Account 用户账户领域对象
type Account struct {
	UserID       string
	TokenBalance int64
	InviterID    string
	UpdatedAt    time.Time
}

// TokenTransaction 账本流水（只追加）
// Amount 为有符号数：入账为正，扣减为负
type TokenTransaction struct {
	ID        string
	UserID    string
	Amount    int64
	Kind      TransactionKind
	Reference string
	CreatedAt time.Time
}

// LedgerRepo 账本数据层接口（定义在 biz 层）
// 余额只在准入扣费（AdmissionRepo）与支付结算（SettlementRepo）的事务中变更
type LedgerRepo interface {
	// GetAccount 账户不存在时返回 nil, nil
	GetAccount(ctx context.Context, userID string) (*Account, error)
	// GetBalance 读缓存，未命中回源数据库；账户不存在视为 0
	GetBalance(ctx context.Context, userID string) (int64, error)
	CreateAccount(ctx context.Context, userID, inviterID string) (*Account, error)
	ListTransactions(ctx context.Context, userID string, page, pageSize int) ([]*TokenTransaction, int64, error)
}

// LedgerUseCase 账本业务逻辑
type LedgerUseCase struct {
	repo LedgerRepo
	log  *log.Helper
}

// NewLedgerUseCase 创建账本 UseCase
func NewLedgerUseCase(repo LedgerRepo, logger log.Logger) *LedgerUseCase {
	return &LedgerUseCase{
		repo: repo,
		log:  log.NewHelper(logger),
	}
}

// GetBalance 获取余额
func (uc *LedgerUseCase) GetBalance(ctx context.Context, userID string) (int64, error) {
	return uc.repo.GetBalance(ctx, userID)
}

// GetAccount 获取账户，不存在时返回零余额账户
func (uc *LedgerUseCase) GetAccount(ctx context.Context, userID string) (*Account, error) {
	acc, err := uc.repo.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return &Account{UserID: userID}, nil
	}
	return acc, nil
}

// RegisterAccount 创建账户并记录邀请人
func (uc *LedgerUseCase) RegisterAccount(ctx context.Context, userID, inviterID string) (*Account, error) {
	if userID == "" || userID == inviterID {
		return nil, appErrors.ErrInvalidArgument
	}
	return uc.repo.CreateAccount(ctx, userID, inviterID)
}

// ListTransactions 获取账本流水
func (uc *LedgerUseCase) ListTransactions(ctx context.Context, userID string, page, pageSize int) ([]*TokenTransaction, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return uc.repo.ListTransactions(ctx, userID, page, pageSize)
}
