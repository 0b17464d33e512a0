package mlm

import (
	"context"
	"time"

	model "github.com/avafin/mlm/internal/models"
	"github.com/google/uuid"
)

//go:generate mockgen -destination=./../services/mock_mlm_test.go -package=mlm . Notifier,Clock

type AccountStorage interface {
	GetAccount(ctx context.Context, id uuid.UUID) (model.Account, error)
	GetDefaultAccount(ctx context.Context) (model.Account, error)
	GetDirectDownline(ctx context.Context, id uuid.UUID) ([]model.Account, error)
	GetAllAccountIDs(ctx context.Context) ([]uuid.UUID, error)
	// PV с блокировкой строки: месячный и суммарный объем, активация по порогу
	AddPersonalVolume(ctx context.Context, id uuid.UUID, amount float64, month string, activationPV float64) (model.Account, error)
	AddFullVolume(ctx context.Context, id uuid.UUID, amount float64) error
	SaveTotalVolumeState(ctx context.Context, id uuid.UUID, state model.TotalVolumeState) error
	SaveVolumesState(ctx context.Context, id uuid.UUID, state model.VolumesState) error
	SaveStatusState(ctx context.Context, id uuid.UUID, state model.StatusState) error
	SetRank(ctx context.Context, id uuid.UUID, rank model.Rank) error
	ResetMonthlyVolumes(ctx context.Context) (int64, error)
	TotalActiveMonthlyPV(ctx context.Context, exclude uuid.UUID) (float64, error)
	// check-then-increment счетчика Pioneer под блокировкой строки корневого аккаунта
	ClaimPioneerSlot(ctx context.Context, limit int) (int, error)
}

type PurchaseStorage interface {
	CreatePurchase(ctx context.Context, purchase model.Purchase) error
	GetPurchase(ctx context.Context, id uuid.UUID) (model.Purchase, error)
	TotalByAccountProduct(ctx context.Context, account uuid.UUID, product uuid.UUID) (float64, error)
	GetOption(ctx context.Context, id uuid.UUID) (model.ProductOption, error)
	GetCheapestOption(ctx context.Context, product uuid.UUID) (model.ProductOption, error)
	// закрытый контур: кредит и дебет активного баланса плюс автопокупка одной транзакцией
	GrantProductBonus(ctx context.Context, account uuid.UUID, option model.ProductOption, amount float64) (model.Purchase, error)
}

type BonusStorage interface {
	CreateBonus(ctx context.Context, bonus model.Bonus) error
	GetBonuses(ctx context.Context, account uuid.UUID, from time.Time, to time.Time) ([]model.Bonus, error)
	SumByAccountProduct(ctx context.Context, account uuid.UUID, product uuid.UUID, bonusType string) (float64, error)
	ExistsByPurchaseType(ctx context.Context, purchase uuid.UUID, bonusType string) (bool, error)
	// выплата отложенных бонусов пула: статус paid плюс кредит пассивного баланса
	PayPoolBonuses(ctx context.Context, beforeMonth string) ([]model.Bonus, error)
}

type TaskStorage interface {
	EnqueueRecalc(ctx context.Context, account uuid.UUID, priority int) error
	ClaimBatch(ctx context.Context, batch int) ([]model.VolumeTask, error)
	CompleteTask(ctx context.Context, id uuid.UUID) error
	FailTask(ctx context.Context, id uuid.UUID, lasterr string, maxAttempts int) error
}

type PoolStorage interface {
	CreatePool(ctx context.Context, pool model.GlobalPool) error
	GetPoolByMonth(ctx context.Context, month string) (model.GlobalPool, error)
	MarkPoolDistributed(ctx context.Context, id uuid.UUID) error
}

type RankHistoryStorage interface {
	AppendRankHistory(ctx context.Context, entry model.RankHistory) error
}

type PlanStorage interface {
	GetPlan(ctx context.Context) (model.Plan, error)
	SavePlan(ctx context.Context, plan model.Plan) error
}

type CacheStorage interface {
	GetSummary(ctx context.Context, account uuid.UUID) (string, error)
	SetSummary(ctx context.Context, account uuid.UUID, summary string) error
	InvalidateSummary(ctx context.Context, account uuid.UUID) error
}

// Уведомления fire-and-forget, доставка вне ядра
type Notifier interface {
	Notify(ctx context.Context, account uuid.UUID, template string, vars map[string]string) error
}

// Виртуальные часы: реальное время или сервис симуляции
type Clock interface {
	Now(ctx context.Context) (time.Time, error)
	IsGraceDay(ctx context.Context) (bool, error)
	CurrentMonth(ctx context.Context) (string, error)
}
