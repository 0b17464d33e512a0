package mlm

import (
	"context"

	interf "github.com/avafin/mlm/internal/interfaces"
	model "github.com/avafin/mlm/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Дифференциальные комиссии с компрессией неактивных,
// надбавка Pioneer и реферальный бонус
type CommissionService struct {
	logger    *zap.Logger
	db        interf.AccountStorage
	purchases interf.PurchaseStorage
	bonuses   interf.BonusStorage
	graph     *Graph
	rank      *RankService
	grant     *GrantService
	notify    interf.Notifier
	clock     interf.Clock
	plan      model.Plan
}

func NewCommissionService(logger *zap.Logger, db interf.AccountStorage, purchases interf.PurchaseStorage, bonuses interf.BonusStorage, graph *Graph, rank *RankService, grant *GrantService, notify interf.Notifier, clock interf.Clock, plan model.Plan) *CommissionService {
	return &CommissionService{logger, db, purchases, bonuses, graph, rank, grant, notify, clock, plan}
}

func (c *CommissionService) Log(service string, err error) {
	c.logger.Error("commission",
		zap.String("service", service),
		zap.Error(err),
	)
}

// Обработка покупки: дифференциальное распределение, надбавки Pioneer,
// присвоение статуса Pioneer, реферальный бонус. Этапы изолированы:
// ошибка одного логируется и не прерывает остальные.
func (c *CommissionService) ProcessPurchase(ctx context.Context, purchaseID uuid.UUID) (float64, []model.Bonus, error) {
	purchase, err := c.purchases.GetPurchase(ctx, purchaseID)
	if err != nil {
		return 0, nil, err
	}
	buyer, err := c.db.GetAccount(ctx, purchase.AccountID)
	if err != nil {
		return 0, nil, err
	}
	root, err := c.db.GetDefaultAccount(ctx)
	if err != nil {
		// без корневого аккаунта распределять некуда
		return 0, nil, err
	}

	entries, err := c.distribute(ctx, purchase, buyer, root)
	if err != nil {
		return 0, nil, err
	}

	var total float64
	for _, entry := range entries {
		err = c.bonuses.CreateBonus(ctx, entry)
		if err != nil {
			c.Log("distribute", err)
			continue
		}
		total += entry.Amount
	}

	err = c.checkPioneerGrant(ctx, purchase, buyer)
	if err != nil {
		c.Log("pioneer", err)
	}

	err = c.referralBonus(ctx, purchase, buyer)
	if err != nil {
		c.Log("referral", err)
	}

	return total, entries, nil
}

// Процент ранга для дифференциального расчета. Активность здесь
// не учитывается: долю неактивного решает компрессия, а не обнуление ранга.
func (c *CommissionService) rankPercent(ctx context.Context, account model.Account) (float64, error) {
	resolution, err := c.rank.ResolveRank(ctx, account)
	if err != nil {
		return 0, err
	}
	return c.plan.Percent(resolution.Rank), nil
}

// Дифференциальный проход по аплайнам от ближнего к дальнему.
// lastPct и compression - сквозное состояние между итерациями, поэтому
// порядок обхода обязателен. Неоплаченная доля неактивного уходит
// следующему активному, остаток до потолка - корневому аккаунту.
// Инвариант: сумма всех ставок равна потолку.
func (c *CommissionService) distribute(ctx context.Context, purchase model.Purchase, buyer model.Account, root model.Account) ([]model.Bonus, error) {
	month, err := c.clock.CurrentMonth(ctx)
	if err != nil {
		return nil, err
	}
	now, err := c.clock.Now(ctx)
	if err != nil {
		return nil, err
	}

	ceiling := c.plan.CeilingPercent
	lastPct := 0.0
	compression := 0.0
	var entries []model.Bonus

	err = c.graph.WalkUpline(ctx, buyer, func(ancestor model.Account, level int) (bool, error) {
		if lastPct >= ceiling {
			return true, nil
		}
		pct, err := c.rankPercent(ctx, ancestor)
		if err != nil {
			return false, err
		}
		if pct > ceiling {
			pct = ceiling
		}
		// Нулевой дифференциал не освобождает от выплаты: активный
		// аплайн все равно забирает накопленную компрессию.
		diff := pct - lastPct
		if diff < 0 {
			diff = 0
		}

		// корень - страховочный приемник, он не скипается никогда
		if ancestor.IsActive || ancestor.ID == root.ID {
			rate := diff + compression
			if rate > 0 {
				entries = append(entries, model.Bonus{
					ID:         uuid.New(),
					AccountID:  ancestor.ID,
					PurchaseID: &purchase.ID,
					SourceID:   &buyer.ID,
					Type:       model.BonusDifferential,
					Rate:       rate,
					Amount:     purchase.Total * rate / 100,
					Compressed: compression > 0,
					Status:     model.BonusPaid,
					Month:      month,
					CreatedAt:  now,
				})
				compression = 0
			}
		} else {
			compression += diff
		}
		if pct > lastPct {
			lastPct = pct
		}
		return false, nil
	}, c.plan.MaxWalkDepth)
	if err != nil {
		return nil, err
	}

	// остаток: несъеденная компрессия плюс разрыв до потолка
	leftover := (ceiling - lastPct) + compression
	if leftover > 0 {
		entries = append(entries, model.Bonus{
			ID:         uuid.New(),
			AccountID:  root.ID,
			PurchaseID: &purchase.ID,
			SourceID:   &buyer.ID,
			Type:       model.BonusCompression,
			Rate:       leftover,
			Amount:     purchase.Total * leftover / 100,
			Compressed: compression > 0,
			Status:     model.BonusPaid,
			Month:      month,
			CreatedAt:  now,
		})
	}

	// плоская надбавка Pioneer поверх уже рассчитанной комиссии
	for _, entry := range entries {
		if entry.Type != model.BonusDifferential {
			continue
		}
		// сбой на одном получателе не отменяет уже рассчитанное распределение
		beneficiary, err := c.db.GetAccount(ctx, entry.AccountID)
		if err != nil {
			c.Log("pioneer_topup", err)
			continue
		}
		if !beneficiary.Status.IsPioneer {
			continue
		}
		entries = append(entries, model.Bonus{
			ID:         uuid.New(),
			AccountID:  beneficiary.ID,
			PurchaseID: &purchase.ID,
			SourceID:   &buyer.ID,
			Type:       model.BonusPioneer,
			Rate:       c.plan.PioneerPercent,
			Amount:     purchase.Total * c.plan.PioneerPercent / 100,
			Status:     model.BonusPaid,
			Month:      month,
			CreatedAt:  now,
		})
	}
	return entries, nil
}

// Постоянный статус Pioneer первым N аккаунтам с крупной покупкой.
// Счетчик лежит на строке корневого аккаунта, check-then-increment
// выполняется под блокировкой этой строки.
func (c *CommissionService) checkPioneerGrant(ctx context.Context, purchase model.Purchase, buyer model.Account) error {
	if purchase.Total < c.plan.ReferralMinAmount {
		return nil
	}
	if buyer.Status.IsPioneer {
		return nil
	}

	slot, err := c.db.ClaimPioneerSlot(ctx, c.plan.PioneerSlots)
	if err != nil {
		if err == model.ErrNoSlots {
			return nil
		}
		return err
	}

	now, err := c.clock.Now(ctx)
	if err != nil {
		return err
	}
	status := buyer.Status
	status.IsPioneer = true
	status.PioneerDate = &now
	err = c.db.SaveStatusState(ctx, buyer.ID, status)
	if err != nil {
		return err
	}

	c.logger.Info("pioneer granted",
		zap.String("account", buyer.ID.String()),
		zap.Int("slot", slot),
	)
	if c.notify != nil {
		err = c.notify.Notify(ctx, buyer.ID, "pioneer_granted", nil)
		if err != nil {
			c.logger.Error(err.Error())
		}
	}
	return nil
}

// Разовый реферальный бонус за крупную покупку: 1% прямому активному
// аплайну, не деньгами, а единицами продукта через автопокупку
func (c *CommissionService) referralBonus(ctx context.Context, purchase model.Purchase, buyer model.Account) error {
	if purchase.Total < c.plan.ReferralMinAmount {
		return nil
	}
	if buyer.Upline == nil {
		return nil
	}

	exists, err := c.bonuses.ExistsByPurchaseType(ctx, purchase.ID, model.BonusReferral)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	upline, err := c.db.GetAccount(ctx, *buyer.Upline)
	if err != nil {
		return err
	}
	if !upline.IsActive {
		return nil
	}

	option, err := c.purchases.GetOption(ctx, purchase.OptionID)
	if err != nil {
		return err
	}
	amount := purchase.Total * c.plan.ReferralPercent / 100

	_, err = c.grant.GrantProductBonus(ctx, upline.ID, option, amount)
	if err != nil {
		return err
	}

	month, err := c.clock.CurrentMonth(ctx)
	if err != nil {
		return err
	}
	now, err := c.clock.Now(ctx)
	if err != nil {
		return err
	}
	return c.bonuses.CreateBonus(ctx, model.Bonus{
		ID:         uuid.New(),
		AccountID:  upline.ID,
		PurchaseID: &purchase.ID,
		SourceID:   &buyer.ID,
		ProductID:  &purchase.ProductID,
		Type:       model.BonusReferral,
		Rate:       c.plan.ReferralPercent,
		Amount:     amount,
		Status:     model.BonusPaid,
		Month:      month,
		CreatedAt:  now,
	})
}
