package mlm

import (
	"context"
	"testing"
	"time"

	interf "github.com/avafin/mlm/internal/interfaces"
	model "github.com/avafin/mlm/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func newGraceDayService(store *memStore, clk interf.Clock, notify interf.Notifier) *GraceDayService {
	logger := zap.NewNop()
	plan := model.DefaultPlan()
	grant := NewGrantService(logger, store)
	return NewGraceDayService(logger, store, store, store, grant, notify, clk, plan)
}

func TestGraceDayBonus(t *testing.T) {
	store := newMemStore()
	clk := testClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), grace: true}
	serv := newGraceDayService(store, clk, nil)

	buyer := store.addAccount(model.Account{Name: "buyer", IsActive: true})
	option := store.addOption(model.ProductOption{ProductID: uuid.New(), Name: "pack", UnitPrice: 10, Active: true})
	purchase := store.addPurchase(model.Purchase{
		AccountID: buyer.ID,
		ProductID: option.ProductID,
		OptionID:  option.ID,
		Total:     1000,
	})

	err := serv.ProcessPurchaseBonus(context.Background(), purchase)
	require.NoError(t, err)

	bonuses := store.bonusesByType(model.BonusGraceDay)
	require.Len(t, bonuses, 1)
	require.InDelta(t, 50, bonuses[0].Amount, 0.01)

	got, err := store.GetAccount(context.Background(), buyer.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Volumes.GraceStreak)
	require.Equal(t, "2025-03", got.Volumes.LastGraceMonth)

	// повторная покупка в том же месяце серию не двигает
	second := store.addPurchase(model.Purchase{
		AccountID: buyer.ID,
		ProductID: option.ProductID,
		OptionID:  option.ID,
		Total:     200,
	})
	err = serv.ProcessPurchaseBonus(context.Background(), second)
	require.NoError(t, err)
	got, err = store.GetAccount(context.Background(), buyer.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Volumes.GraceStreak)
}

func TestGraceDaySkipped(t *testing.T) {
	store := newMemStore()
	buyer := store.addAccount(model.Account{Name: "buyer", IsActive: true})
	option := store.addOption(model.ProductOption{ProductID: uuid.New(), Name: "pack", UnitPrice: 10, Active: true})

	// обычный день
	serv := newGraceDayService(store, testClock{now: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)}, nil)
	purchase := store.addPurchase(model.Purchase{AccountID: buyer.ID, ProductID: option.ProductID, OptionID: option.ID, Total: 1000})
	require.NoError(t, serv.ProcessPurchaseBonus(context.Background(), purchase))
	require.Empty(t, store.bonusesByType(model.BonusGraceDay))

	// автопокупка в льготный день
	serv = newGraceDayService(store, testClock{now: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), grace: true}, nil)
	auto := store.addPurchase(model.Purchase{AccountID: buyer.ID, ProductID: option.ProductID, OptionID: option.ID, Total: 1000, IsAuto: true})
	require.NoError(t, serv.ProcessPurchaseBonus(context.Background(), auto))
	require.Empty(t, store.bonusesByType(model.BonusGraceDay))
}

// Третий льготный месяц подряд дает флаг лояльности
func TestGraceDayLoyaltyStreak(t *testing.T) {
	cont := gomock.NewController(t)
	defer cont.Finish()

	store := newMemStore()
	clk := testClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), grace: true}
	notify := NewMockNotifier(cont)
	serv := newGraceDayService(store, clk, notify)

	buyer := store.addAccount(model.Account{
		Name: "buyer", IsActive: true,
		Volumes: model.VolumesState{GraceStreak: 2, LastGraceMonth: "2025-02"},
	})
	option := store.addOption(model.ProductOption{ProductID: uuid.New(), Name: "pack", UnitPrice: 10, Active: true})
	purchase := store.addPurchase(model.Purchase{
		AccountID: buyer.ID,
		ProductID: option.ProductID,
		OptionID:  option.ID,
		Total:     500,
	})

	notify.EXPECT().
		Notify(gomock.Any(), buyer.ID, "loyalty_qualified", gomock.Any()).
		Return(nil).
		Times(1)

	err := serv.ProcessPurchaseBonus(context.Background(), purchase)
	require.NoError(t, err)

	got, err := store.GetAccount(context.Background(), buyer.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.Volumes.GraceStreak)
	require.True(t, got.Volumes.LoyaltyQualified)
}

// Пропуск льготного месяца начинает серию заново
func TestGraceDayStreakRestart(t *testing.T) {
	store := newMemStore()
	clk := testClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), grace: true}
	serv := newGraceDayService(store, clk, nil)

	buyer := store.addAccount(model.Account{
		Name: "buyer", IsActive: true,
		Volumes: model.VolumesState{GraceStreak: 2, LastGraceMonth: "2024-12"},
	})
	option := store.addOption(model.ProductOption{ProductID: uuid.New(), Name: "pack", UnitPrice: 10, Active: true})
	purchase := store.addPurchase(model.Purchase{
		AccountID: buyer.ID,
		ProductID: option.ProductID,
		OptionID:  option.ID,
		Total:     500,
	})

	err := serv.ProcessPurchaseBonus(context.Background(), purchase)
	require.NoError(t, err)

	got, err := store.GetAccount(context.Background(), buyer.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Volumes.GraceStreak)
}

// Граница 2-го числа: кто пропустил Grace Day, тому серию в ноль
func TestResetMonthlyStreaks(t *testing.T) {
	store := newMemStore()
	clk := testClock{now: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)}
	serv := newGraceDayService(store, clk, nil)

	missed := store.addAccount(model.Account{
		Name:    "missed",
		Volumes: model.VolumesState{GraceStreak: 2, LastGraceMonth: "2025-01", LoyaltyQualified: false},
	})
	loyal := store.addAccount(model.Account{
		Name:    "loyal",
		Volumes: model.VolumesState{GraceStreak: 4, LastGraceMonth: "2025-03", LoyaltyQualified: true},
	})

	err := serv.ResetMonthlyStreaks(context.Background())
	require.NoError(t, err)

	got, err := store.GetAccount(context.Background(), missed.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.Volumes.GraceStreak)
	require.False(t, got.Volumes.LoyaltyQualified)

	// купивший в текущем льготном месяце не трогается
	got, err = store.GetAccount(context.Background(), loyal.ID)
	require.NoError(t, err)
	require.Equal(t, 4, got.Volumes.GraceStreak)
	require.True(t, got.Volumes.LoyaltyQualified)
}
