package mlm

import (
	"context"
	"testing"
	"time"

	model "github.com/avafin/mlm/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newInvestBonusService(store *memStore) *InvestBonusService {
	logger := zap.NewNop()
	plan := model.DefaultPlan()
	clk := testClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	grant := NewGrantService(logger, store)
	return NewInvestBonusService(logger, store, store, grant, nil, clk, plan)
}

// Маржинальное накопление по ступеням: нижняя ступень не платится дважды
func TestInvestmentTierMarginal(t *testing.T) {
	store := newMemStore()
	serv := newInvestBonusService(store)

	buyer := store.addAccount(model.Account{Name: "buyer", IsActive: true})
	option := store.addOption(model.ProductOption{ProductID: uuid.New(), Name: "unit", UnitPrice: 5, Active: true})

	steps := []struct {
		amount   float64
		expected float64 // прирост бонуса после покупки
	}{
		{400, 0},    // накоплено 400, ниже первой ступени
		{700, 55},   // накоплено 1100, ступень 5%: 55 - 0
		{4000, 455}, // накоплено 5100, ступень 10%: 510 - 55
	}

	var granted float64
	for _, step := range steps {
		purchase := store.addPurchase(model.Purchase{
			AccountID: buyer.ID,
			ProductID: option.ProductID,
			OptionID:  option.ID,
			Total:     step.amount,
		})
		err := serv.ProcessPurchaseBonus(context.Background(), purchase)
		require.NoError(t, err)

		sum, err := store.SumByAccountProduct(context.Background(), buyer.ID, option.ProductID, model.BonusInvestment)
		require.NoError(t, err)
		require.InDelta(t, step.expected, sum-granted, 0.01, "amount=%v", step.amount)
		granted = sum
	}

	// повторный прогон последней покупки ничего не доплачивает:
	// положенное на ступени уже выдано
	last := store.addPurchase(model.Purchase{
		AccountID: buyer.ID,
		ProductID: option.ProductID,
		OptionID:  option.ID,
		Total:     0,
	})
	err := serv.ProcessPurchaseBonus(context.Background(), last)
	require.NoError(t, err)
	sum, err := store.SumByAccountProduct(context.Background(), buyer.ID, option.ProductID, model.BonusInvestment)
	require.NoError(t, err)
	require.InDelta(t, granted, sum, 0.01)
}

func TestInvestmentTierSkipsAuto(t *testing.T) {
	store := newMemStore()
	serv := newInvestBonusService(store)

	buyer := store.addAccount(model.Account{Name: "buyer", IsActive: true})
	option := store.addOption(model.ProductOption{ProductID: uuid.New(), Name: "unit", UnitPrice: 5, Active: true})
	auto := store.addPurchase(model.Purchase{
		AccountID: buyer.ID,
		ProductID: option.ProductID,
		OptionID:  option.ID,
		Total:     5000,
		IsAuto:    true,
	})

	err := serv.ProcessPurchaseBonus(context.Background(), auto)
	require.NoError(t, err)
	require.Empty(t, store.bonusesByType(model.BonusInvestment))
}

// Бонус выдается единицами самой дешевой активной опции продукта
func TestInvestmentTierGrantUnits(t *testing.T) {
	store := newMemStore()
	serv := newInvestBonusService(store)

	buyer := store.addAccount(model.Account{Name: "buyer", IsActive: true})
	productID := uuid.New()
	expensive := store.addOption(model.ProductOption{ProductID: productID, Name: "big pack", UnitPrice: 100, Active: true})
	store.addOption(model.ProductOption{ProductID: productID, Name: "small pack", UnitPrice: 10, Active: true})
	store.addOption(model.ProductOption{ProductID: productID, Name: "retired", UnitPrice: 1, Active: false})

	purchase := store.addPurchase(model.Purchase{
		AccountID: buyer.ID,
		ProductID: productID,
		OptionID:  expensive.ID,
		Total:     2000,
	})
	err := serv.ProcessPurchaseBonus(context.Background(), purchase)
	require.NoError(t, err)

	// ступень 5% от 2000 = 100, по 10 за единицу = 10 единиц
	var autop model.Purchase
	for _, p := range store.purchases {
		if p.IsAuto {
			autop = p
		}
	}
	require.True(t, autop.IsAuto)
	require.InDelta(t, 100, autop.Total, 0.01)
	require.Equal(t, 10, autop.Quantity)
}
