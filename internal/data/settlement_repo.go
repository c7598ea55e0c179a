package data

import (
	"context"
	"errors"

	"docflow-service/internal/biz"
	"docflow-service/internal/data/model"
	appErrors "docflow-service/internal/errors"
	"docflow-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// settlementRepo 支付入账数据访问
type settlementRepo struct {
	data    *Data
	log     *log.Helper
	metrics *metrics.PipelineMetrics
}

// NewSettlementRepo 创建入账 repo（返回 biz.SettlementRepo 接口）
func NewSettlementRepo(data *Data, logger log.Logger) biz.SettlementRepo {
	return &settlementRepo{
		data:    data,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// SettlePurchase 登记事件、入账、邀请奖励、删除折扣码，全部在一个事务内
func (r *settlementRepo) SettlePurchase(ctx context.Context, ev *biz.PaymentEvent, referralPercent int64) (*biz.Settlement, error) {
	var result *biz.Settlement
	err := withUserLock(ctx, r.data, r.log, r.metrics, ev.UserID, func() error {
		return r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			out := &biz.Settlement{EventID: ev.ID, UserID: ev.UserID}

			// 1. 登记事件，主键冲突说明已处理过
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.PaymentEvent{
				EventID:      ev.ID,
				EventType:    ev.Type,
				SessionID:    ev.SessionID,
				UserID:       ev.UserID,
				TokenAmount:  ev.TokenAmount,
				DiscountCode: ev.DiscountCode,
			})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				out.Duplicate = true
				result = out
				return nil
			}

			// 2. 购买入账
			if _, err := creditTx(tx, ev.UserID, ev.TokenAmount, biz.TxPurchase, ev.ID); err != nil {
				return err
			}
			out.Credited = ev.TokenAmount

			// 3. 邀请奖励
			var buyer model.Account
			if err := tx.Where("user_id = ?", ev.UserID).First(&buyer).Error; err != nil {
				return err
			}
			if buyer.InviterID != "" && buyer.InviterID != ev.UserID {
				if bonus := biz.ReferralBonus(ev.TokenAmount, referralPercent); bonus > 0 {
					if _, err := creditTx(tx, buyer.InviterID, bonus, biz.TxReferral, ev.ID); err != nil {
						return err
					}
					out.ReferrerID = buyer.InviterID
					out.ReferralBonus = bonus
				}
			}

			// 4. 折扣码一次性使用
			if ev.DiscountCode != "" {
				del := tx.Where("code = ?", ev.DiscountCode).Delete(&model.DiscountCode{})
				if del.Error != nil {
					return del.Error
				}
				out.DiscountRedeemed = del.RowsAffected > 0
			}

			result = out
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if !result.Duplicate {
		r.data.cache.invalidate(ev.UserID, result.ReferrerID)
	}
	return result, nil
}

// GetDiscountCode 查询折扣码
func (r *settlementRepo) GetDiscountCode(ctx context.Context, code string) (*biz.DiscountCode, error) {
	var m model.DiscountCode
	if err := r.data.db.WithContext(ctx).Where("code = ?", code).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrDiscountCodeNotFound
		}
		return nil, err
	}
	return &biz.DiscountCode{Code: m.Code, Multiplier: m.Multiplier, CreatedAt: m.CreatedAt}, nil
}

// SaveDiscountCode 创建或覆盖折扣码
func (r *settlementRepo) SaveDiscountCode(ctx context.Context, dc *biz.DiscountCode) error {
	m := &model.DiscountCode{Code: dc.Code, Multiplier: dc.Multiplier}
	err := r.data.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"multiplier"}),
	}).Create(m).Error
	if err != nil {
		return err
	}
	dc.CreatedAt = m.CreatedAt
	return nil
}
