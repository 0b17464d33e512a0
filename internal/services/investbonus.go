package mlm

import (
	"context"
	"fmt"

	interf "github.com/avafin/mlm/internal/interfaces"
	model "github.com/avafin/mlm/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Накопительный инвестиционный бонус по ступеням.
// Платится только маржинальная разница, еще не выданная на нижних
// ступенях, поэтому бонус корректно накапливается через любое число
// мелких покупок.
type InvestBonusService struct {
	logger    *zap.Logger
	purchases interf.PurchaseStorage
	bonuses   interf.BonusStorage
	grant     *GrantService
	notify    interf.Notifier
	clock     interf.Clock
	plan      model.Plan
}

func NewInvestBonusService(logger *zap.Logger, purchases interf.PurchaseStorage, bonuses interf.BonusStorage, grant *GrantService, notify interf.Notifier, clock interf.Clock, plan model.Plan) *InvestBonusService {
	return &InvestBonusService{logger, purchases, bonuses, grant, notify, clock, plan}
}

func (s *InvestBonusService) ProcessPurchaseBonus(ctx context.Context, purchase model.Purchase) error {
	// автопокупки бонусов сами бонусов не порождают
	if purchase.IsAuto {
		return nil
	}

	// накоплено по продукту за все время, текущая покупка уже учтена
	total, err := s.purchases.TotalByAccountProduct(ctx, purchase.AccountID, purchase.ProductID)
	if err != nil {
		return err
	}
	tier, ok := s.plan.TierFor(total)
	if !ok {
		return nil
	}

	// положенный суммарный бонус на этом уровне минус уже выданное
	expected := total * tier.Percent / 100
	granted, err := s.bonuses.SumByAccountProduct(ctx, purchase.AccountID, purchase.ProductID, model.BonusInvestment)
	if err != nil {
		return err
	}
	delta := expected - granted
	if delta <= 0 {
		return nil
	}

	option, err := s.purchases.GetCheapestOption(ctx, purchase.ProductID)
	if err != nil {
		return fmt.Errorf("cheapest option for product %s: %w", purchase.ProductID.String(), err)
	}

	_, err = s.grant.GrantProductBonus(ctx, purchase.AccountID, option, delta)
	if err != nil {
		return err
	}

	month, err := s.clock.CurrentMonth(ctx)
	if err != nil {
		return err
	}
	now, err := s.clock.Now(ctx)
	if err != nil {
		return err
	}
	err = s.bonuses.CreateBonus(ctx, model.Bonus{
		ID:         uuid.New(),
		AccountID:  purchase.AccountID,
		PurchaseID: &purchase.ID,
		ProductID:  &purchase.ProductID,
		Type:       model.BonusInvestment,
		Rate:       tier.Percent,
		Amount:     delta,
		Status:     model.BonusPaid,
		Month:      month,
		CreatedAt:  now,
	})
	if err != nil {
		return err
	}

	s.logger.Info("investment tier bonus",
		zap.String("account", purchase.AccountID.String()),
		zap.Float64("cumulative", total),
		zap.Float64("percent", tier.Percent),
		zap.Float64("amount", delta),
	)
	if s.notify != nil {
		err = s.notify.Notify(ctx, purchase.AccountID, "investment_bonus", map[string]string{
			"amount": fmt.Sprintf("%.2f", delta),
		})
		if err != nil {
			s.logger.Error(err.Error())
		}
	}
	return nil
}
