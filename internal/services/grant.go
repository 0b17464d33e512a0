package mlm

import (
	"context"
	"fmt"

	interf "github.com/avafin/mlm/internal/interfaces"
	model "github.com/avafin/mlm/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Единый примитив товарного бонуса: кредит и дебет активного баланса
// плюс реальная автопокупка одной транзакцией. Денежный эффект нулевой,
// портфель растет. Используется реферальным, инвестиционным
// и Grace Day бонусами.
type GrantService struct {
	logger    *zap.Logger
	purchases interf.PurchaseStorage
}

func NewGrantService(logger *zap.Logger, purchases interf.PurchaseStorage) *GrantService {
	return &GrantService{logger, purchases}
}

func (g *GrantService) GrantProductBonus(ctx context.Context, account uuid.UUID, option model.ProductOption, amount float64) (model.Purchase, error) {
	if amount <= 0 {
		return model.Purchase{}, fmt.Errorf("grant amount must be positive")
	}
	if option.UnitPrice <= 0 {
		return model.Purchase{}, fmt.Errorf("option %s has no unit price", option.ID.String())
	}

	purchase, err := g.purchases.GrantProductBonus(ctx, account, option, amount)
	if err != nil {
		return model.Purchase{}, err
	}

	g.logger.Info("product bonus granted",
		zap.String("account", account.String()),
		zap.String("option", option.ID.String()),
		zap.Float64("amount", amount),
		zap.Int("quantity", purchase.Quantity),
	)
	return purchase, nil
}
