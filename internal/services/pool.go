package mlm

import (
	"context"
	"fmt"
	"sync"

	interf "github.com/avafin/mlm/internal/interfaces"
	model "github.com/avafin/mlm/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Параллелизм проверки квалификации на пул
const poolScanWorkers = 8

// Глобальный пул: процент от квалификационного объема компании,
// поровну между аккаунтами с двумя директорскими ветками
type PoolService struct {
	logger  *zap.Logger
	db      interf.AccountStorage
	pools   interf.PoolStorage
	bonuses interf.BonusStorage
	volume  *VolumeService
	notify  interf.Notifier
	clock   interf.Clock
	plan    model.Plan
}

func NewPoolService(logger *zap.Logger, db interf.AccountStorage, pools interf.PoolStorage, bonuses interf.BonusStorage, volume *VolumeService, notify interf.Notifier, clock interf.Clock, plan model.Plan) *PoolService {
	return &PoolService{logger, db, pools, bonuses, volume, notify, clock, plan}
}

// Квалификация на пул: минимум две прямые ветки, в каждой из которых
// где-то в поддереве есть директор. Обе лучшие ветки, не одна.
func (p *PoolService) Qualifies(ctx context.Context, accountID uuid.UUID) (bool, error) {
	branches, err := p.volume.GetBestBranches(ctx, accountID, 2)
	if err != nil {
		return false, err
	}
	if len(branches) < 2 {
		return false, nil
	}
	return branches[0].HasDirector && branches[1].HasDirector, nil
}

// Граница 3-го числа: расчет пула за месяц. Повторный расчет
// за тот же месяц отклоняется.
// Корневой аккаунт исключен и из объема компании, и из квалификации:
// его объем системный, а его поддерево - все дерево целиком.
func (p *PoolService) CalculateMonthlyPool(ctx context.Context) (model.GlobalPool, error) {
	month, err := p.clock.CurrentMonth(ctx)
	if err != nil {
		return model.GlobalPool{}, err
	}
	_, err = p.pools.GetPoolByMonth(ctx, month)
	if err == nil {
		return model.GlobalPool{}, fmt.Errorf("pool for %s %w", month, model.ErrDuplicate)
	}

	root, err := p.db.GetDefaultAccount(ctx)
	if err != nil {
		return model.GlobalPool{}, fmt.Errorf("default account: %w", err)
	}

	companyVolume, err := p.db.TotalActiveMonthlyPV(ctx, root.ID)
	if err != nil {
		return model.GlobalPool{}, err
	}
	poolSize := companyVolume * p.plan.GlobalPoolPercent / 100

	ids, err := p.db.GetAllAccountIDs(ctx)
	if err != nil {
		return model.GlobalPool{}, err
	}

	var mu sync.Mutex
	var qualified []uuid.UUID
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(poolScanWorkers)
	for _, id := range ids {
		if id == root.ID {
			continue
		}
		g.Go(func() error {
			ok, err := p.Qualifies(gctx, id)
			if err != nil {
				return err
			}
			if ok {
				mu.Lock()
				qualified = append(qualified, id)
				mu.Unlock()
			}
			return nil
		})
	}
	err = g.Wait()
	if err != nil {
		return model.GlobalPool{}, err
	}

	var share float64
	if len(qualified) > 0 {
		share = poolSize / float64(len(qualified))
	}

	now, err := p.clock.Now(ctx)
	if err != nil {
		return model.GlobalPool{}, err
	}
	pool := model.GlobalPool{
		ID:            uuid.New(),
		Month:         month,
		CompanyVolume: companyVolume,
		Percent:       p.plan.GlobalPoolPercent,
		PoolSize:      poolSize,
		Qualified:     qualified,
		Share:         share,
		Status:        model.PoolCalculated,
		CreatedAt:     now,
	}
	err = p.pools.CreatePool(ctx, pool)
	if err != nil {
		return model.GlobalPool{}, err
	}

	p.logger.Info("global pool calculated",
		zap.String("month", month),
		zap.Float64("companyVolume", companyVolume),
		zap.Float64("poolSize", poolSize),
		zap.Int("qualified", len(qualified)),
	)
	return pool, nil
}

// Граница 5-го числа: по одному отложенному начислению на каждого
// квалифицированного. Зачисление на пассивный баланс произойдет
// через месяц при выплате отложенных бонусов.
func (p *PoolService) DistributeGlobalPool(ctx context.Context) error {
	month, err := p.clock.CurrentMonth(ctx)
	if err != nil {
		return err
	}
	pool, err := p.pools.GetPoolByMonth(ctx, month)
	if err != nil {
		return fmt.Errorf("pool for %s: %w", month, err)
	}
	if pool.Status == model.PoolDistributed {
		return fmt.Errorf("pool for %s %w", month, model.ErrDuplicate)
	}

	now, err := p.clock.Now(ctx)
	if err != nil {
		return err
	}
	for _, accountID := range pool.Qualified {
		err = p.bonuses.CreateBonus(ctx, model.Bonus{
			ID:        uuid.New(),
			AccountID: accountID,
			Type:      model.BonusGlobalPool,
			Rate:      pool.Percent,
			Amount:    pool.Share,
			Status:    model.BonusPending,
			Month:     pool.Month,
			CreatedAt: now,
		})
		if err != nil {
			p.logger.Error("pool bonus create failed",
				zap.Error(err),
				zap.String("account", accountID.String()),
			)
			continue
		}
		if p.notify != nil {
			err = p.notify.Notify(ctx, accountID, "global_pool_share", map[string]string{
				"month":  pool.Month,
				"amount": fmt.Sprintf("%.2f", pool.Share),
			})
			if err != nil {
				p.logger.Error(err.Error())
			}
		}
	}

	return p.pools.MarkPoolDistributed(ctx, pool.ID)
}

// Выплата отложенных бонусов пула прошлых месяцев
func (p *PoolService) ProcessPendingPoolBonuses(ctx context.Context) error {
	month, err := p.clock.CurrentMonth(ctx)
	if err != nil {
		return err
	}
	paid, err := p.bonuses.PayPoolBonuses(ctx, month)
	if err != nil {
		return err
	}
	for _, bonus := range paid {
		if p.notify == nil {
			break
		}
		err = p.notify.Notify(ctx, bonus.AccountID, "global_pool_paid", map[string]string{
			"month":  bonus.Month,
			"amount": fmt.Sprintf("%.2f", bonus.Amount),
		})
		if err != nil {
			p.logger.Error(err.Error())
		}
	}
	p.logger.Info("pending pool bonuses paid",
		zap.Int("count", len(paid)),
	)
	return nil
}
