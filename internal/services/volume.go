package mlm

import (
	"context"
	"sort"
	"sync"

	interf "github.com/avafin/mlm/internal/interfaces"
	model "github.com/avafin/mlm/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Задачи пересчета: после этого числа попыток задача остается в failed
const maxTaskAttempts = 5

// Параллелизм обработки пачки задач
const recalcWorkers = 3

// Объемы: PV, сырой FV по цепочке и квалификационный объем с правилом 50%
type VolumeService struct {
	logger *zap.Logger
	db     interf.AccountStorage
	tasks  interf.TaskStorage
	cache  interf.CacheStorage
	graph  *Graph
	clock  interf.Clock
	plan   model.Plan
}

func NewVolumeService(logger *zap.Logger, db interf.AccountStorage, tasks interf.TaskStorage, cache interf.CacheStorage, graph *Graph, clock interf.Clock, plan model.Plan) *VolumeService {
	return &VolumeService{logger, db, tasks, cache, graph, clock, plan}
}

// Объемы по покупке: PV покупателя, сырой FV аплайнов, задачи пересчета.
// Внутри цепочки только дешевое сложение, пересчет с капом уходит в очередь.
func (v *VolumeService) RecordPurchaseVolumes(ctx context.Context, purchase model.Purchase) error {
	month, err := v.clock.CurrentMonth(ctx)
	if err != nil {
		return err
	}

	account, err := v.db.AddPersonalVolume(ctx, purchase.AccountID, purchase.Total, month, v.plan.ActivationPV)
	if err != nil {
		return err
	}

	// FV аккаунта включает его собственные покупки
	err = v.db.AddFullVolume(ctx, account.ID, purchase.Total)
	if err != nil {
		return err
	}
	err = v.tasks.EnqueueRecalc(ctx, account.ID, 0)
	if err != nil {
		v.logger.Error("enqueue recalc",
			zap.Error(err),
			zap.String("account", account.ID.String()),
		)
	}

	return v.graph.WalkUpline(ctx, account, func(ancestor model.Account, level int) (bool, error) {
		err := v.db.AddFullVolume(ctx, ancestor.ID, purchase.Total)
		if err != nil {
			return false, err
		}
		err = v.tasks.EnqueueRecalc(ctx, ancestor.ID, 0)
		if err != nil {
			v.logger.Error("enqueue recalc",
				zap.Error(err),
				zap.String("account", ancestor.ID.String()),
			)
		}
		return false, nil
	}, v.plan.MaxWalkDepth)
}

// Полный пересчет квалификационного объема одного аккаунта.
// Правило 50%: ветка дает не больше половины требования по объему
// для следующего ранга, каким бы большим ни был ее сырой объем.
func (v *VolumeService) RecalculateTotalVolume(ctx context.Context, accountID uuid.UUID) error {
	account, err := v.db.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	nextRank := account.Rank + 1
	if nextRank > v.plan.TopRank() {
		nextRank = v.plan.TopRank()
	}
	required := v.plan.Requirement(nextRank).TeamVolume
	capLimit := required / 2

	branches, err := v.branchVolumes(ctx, account)
	if err != nil {
		return err
	}

	var qualifying float64
	for i := range branches {
		capped := branches[i].FullVolume
		if capped > capLimit {
			capped = capLimit
			branches[i].WasCapped = true
		}
		branches[i].Capped = capped
		qualifying += capped
	}

	gap := required - qualifying
	if gap < 0 {
		gap = 0
	}

	now, err := v.clock.Now(ctx)
	if err != nil {
		return err
	}
	state := model.TotalVolumeState{
		QualifyingVolume: qualifying,
		FullVolume:       account.FullVolume,
		Gap:              gap,
		Branches:         branches,
		ComputedAt:       now,
	}
	err = v.db.SaveTotalVolumeState(ctx, account.ID, state)
	if err != nil {
		return err
	}

	if v.cache != nil {
		err = v.cache.InvalidateSummary(ctx, account.ID)
		if err != nil {
			v.logger.Error(err.Error())
		}
	}
	return nil
}

// Ветки первого уровня с сырым объемом и признаком директора в поддереве,
// отсортированные по убыванию объема
func (v *VolumeService) branchVolumes(ctx context.Context, account model.Account) ([]model.BranchVolume, error) {
	children, err := v.db.GetDirectDownline(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	branches := make([]model.BranchVolume, 0, len(children))
	for _, child := range children {
		hasDirector, err := v.graph.ContainsRank(ctx, child, model.RankDirector)
		if err != nil {
			return nil, err
		}
		branches = append(branches, model.BranchVolume{
			AccountID:   child.ID,
			Name:        child.Name,
			FullVolume:  child.FullVolume,
			HasDirector: hasDirector,
		})
	}
	sort.Slice(branches, func(i, j int) bool {
		return branches[i].FullVolume > branches[j].FullVolume
	})
	return branches, nil
}

// Лучшие N веток: наличие директора в поддереве важнее объема.
// Большая ветка без директора не должна вытеснять меньшую с директором
// при квалификации на глобальный пул.
func (v *VolumeService) GetBestBranches(ctx context.Context, accountID uuid.UUID, count int) ([]model.BranchVolume, error) {
	account, err := v.db.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	branches, err := v.branchVolumes(ctx, account)
	if err != nil {
		return nil, err
	}
	sort.Slice(branches, func(i, j int) bool {
		if branches[i].HasDirector != branches[j].HasDirector {
			return branches[i].HasDirector
		}
		return branches[i].FullVolume > branches[j].FullVolume
	})
	if len(branches) > count {
		branches = branches[:count]
	}
	return branches, nil
}

// Обработка пачки задач пересчета. Ошибка одной задачи изолирована:
// попытка инкрементируется, задача ждет следующего опроса.
func (v *VolumeService) ProcessQueueBatch(ctx context.Context, batch int) (int, error) {
	tasks, err := v.tasks.ClaimBatch(ctx, batch)
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	// семафор
	semch := make(chan struct{}, recalcWorkers)
	wg := &sync.WaitGroup{}

	for _, task := range tasks {
		semch <- struct{}{}
		wg.Add(1)
		go func(task model.VolumeTask) {
			defer func() {
				wg.Done()
				<-semch
			}()

			err := v.RecalculateTotalVolume(ctx, task.AccountID)
			if err != nil {
				v.logger.Error("volume recalc failed",
					zap.Error(err),
					zap.String("account", task.AccountID.String()),
					zap.Int("attempts", task.Attempts),
				)
				ferr := v.tasks.FailTask(ctx, task.ID, err.Error(), maxTaskAttempts)
				if ferr != nil {
					v.logger.Error(ferr.Error())
				}
				return
			}
			err = v.tasks.CompleteTask(ctx, task.ID)
			if err != nil {
				v.logger.Error(err.Error())
			}
		}(task)
	}
	wg.Wait()
	return len(tasks), nil
}

// Граница 1-го числа: месячные PV в ноль, все аккаунты неактивны.
// Активность возвращается естественно с новыми покупками месяца.
func (v *VolumeService) ResetMonthlyVolumes(ctx context.Context) error {
	count, err := v.db.ResetMonthlyVolumes(ctx)
	if err != nil {
		return err
	}
	v.logger.Info("monthly volumes reset",
		zap.Int64("accounts", count),
	)
	return nil
}
