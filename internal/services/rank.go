package mlm

import (
	"context"

	interf "github.com/avafin/mlm/internal/interfaces"
	model "github.com/avafin/mlm/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Параллелизм ежедневной проверки рангов
const rankCheckWorkers = 8

// Источник эффективного ранга
const (
	RankSourceNatural         = "natural"
	RankSourceAssignedValid   = "assigned_valid"
	RankSourceAssignedRevoked = "assigned_revoked"
)

// Разрешение ранга из двух источников: естественная квалификация
// и назначение фаундером
type RankResolution struct {
	Rank   model.Rank
	Source string
}

// Ранги: квалификация, повышение, назначение фаундером.
// Ранги не понижаются.
type RankService struct {
	logger  *zap.Logger
	db      interf.AccountStorage
	history interf.RankHistoryStorage
	graph   *Graph
	notify  interf.Notifier
	clock   interf.Clock
	plan    model.Plan
}

func NewRankService(logger *zap.Logger, db interf.AccountStorage, history interf.RankHistoryStorage, graph *Graph, notify interf.Notifier, clock interf.Clock, plan model.Plan) *RankService {
	return &RankService{logger, db, history, graph, notify, clock, plan}
}

// Квалификационный объем из кэшированного состояния.
// Если пересчет еще не выполнялся, берем сырой FV с предупреждением.
func (r *RankService) qualifyingVolume(account model.Account) float64 {
	if account.TotalVolume.Computed() {
		return account.TotalVolume.QualifyingVolume
	}
	r.logger.Warn("qualifying volume not computed, falling back to raw full volume",
		zap.String("account", account.ID.String()),
	)
	return account.FullVolume
}

// Выполняются ли требования ранга: квалификационный объем
// и активные партнеры во всем даунлайне
func (r *RankService) QualifiesFor(ctx context.Context, account model.Account, rank model.Rank) (bool, error) {
	if rank == model.RankStart {
		return true, nil
	}
	req := r.plan.Requirement(rank)
	if r.qualifyingVolume(account) < req.TeamVolume {
		return false, nil
	}
	active, err := r.graph.CountActiveDownline(ctx, account)
	if err != nil {
		return false, err
	}
	return active >= req.ActivePartners, nil
}

// Первый еще не достигнутый ранг, требования которого выполнены.
// Кандидаты перебираются от высшего к низшему.
func (r *RankService) CheckRankQualification(ctx context.Context, accountID uuid.UUID) (model.Rank, bool, error) {
	account, err := r.db.GetAccount(ctx, accountID)
	if err != nil {
		return model.RankStart, false, err
	}
	for rank := r.plan.TopRank(); rank > account.Rank; rank-- {
		ok, err := r.QualifiesFor(ctx, account, rank)
		if err != nil {
			return model.RankStart, false, err
		}
		if ok {
			return rank, true, nil
		}
	}
	return model.RankStart, false, nil
}

// Повышение ранга. Все, что не строгое повышение, - no-op.
func (r *RankService) UpdateUserRank(ctx context.Context, accountID uuid.UUID, newRank model.Rank, method string) (bool, error) {
	account, err := r.db.GetAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	if newRank <= account.Rank {
		return false, nil
	}

	err = r.db.SetRank(ctx, accountID, newRank)
	if err != nil {
		return false, err
	}

	now, err := r.clock.Now(ctx)
	if err != nil {
		return false, err
	}
	err = r.history.AppendRankHistory(ctx, model.RankHistory{
		ID:        uuid.New(),
		AccountID: accountID,
		OldRank:   account.Rank,
		NewRank:   newRank,
		Method:    method,
		CreatedAt: now,
	})
	if err != nil {
		return false, err
	}

	if r.notify != nil {
		err = r.notify.Notify(ctx, accountID, "rank_promoted", map[string]string{
			"rank": r.plan.Requirement(newRank).DisplayName,
		})
		if err != nil {
			r.logger.Error(err.Error())
		}
	}
	return true, nil
}

// Назначение ранга фаундером: без проверки квалификации,
// но понизить ранг нельзя
func (r *RankService) AssignRankByFounder(ctx context.Context, founderID uuid.UUID, accountID uuid.UUID, rank model.Rank) error {
	founder, err := r.db.GetAccount(ctx, founderID)
	if err != nil {
		return err
	}
	if !founder.Status.IsFounder {
		return model.ErrNotQualified
	}

	account, err := r.db.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if rank <= account.Rank {
		return model.ErrDuplicate
	}

	status := account.Status
	status.FounderRank = &rank
	err = r.db.SaveStatusState(ctx, accountID, status)
	if err != nil {
		return err
	}

	now, err := r.clock.Now(ctx)
	if err != nil {
		return err
	}
	return r.history.AppendRankHistory(ctx, model.RankHistory{
		ID:        uuid.New(),
		AccountID: accountID,
		OldRank:   account.Rank,
		NewRank:   rank,
		Method:    model.QualifyFounder,
		CreatedAt: now,
	})
}

// Разрешение ранга: назначенный фаундером ранг действует, только пока
// аккаунт самостоятельно отвечает его требованиям
func (r *RankService) ResolveRank(ctx context.Context, account model.Account) (RankResolution, error) {
	if account.Status.FounderRank == nil {
		return RankResolution{account.Rank, RankSourceNatural}, nil
	}
	assigned := *account.Status.FounderRank
	if assigned <= account.Rank {
		return RankResolution{account.Rank, RankSourceNatural}, nil
	}
	ok, err := r.QualifiesFor(ctx, account, assigned)
	if err != nil {
		return RankResolution{}, err
	}
	if ok {
		return RankResolution{assigned, RankSourceAssignedValid}, nil
	}
	return RankResolution{account.Rank, RankSourceAssignedRevoked}, nil
}

// Эффективный ранг для расчетов. Неактивность полностью
// приостанавливает привилегии ранга: неактивный всегда Start.
func (r *RankService) GetUserActiveRank(ctx context.Context, account model.Account) (model.Rank, error) {
	if !account.IsActive {
		return model.RankStart, nil
	}
	resolution, err := r.ResolveRank(ctx, account)
	if err != nil {
		return model.RankStart, err
	}
	return resolution.Rank, nil
}

// Ежедневный батч: проверка квалификации всех аккаунтов.
// Ошибки по одному аккаунту изолированы.
func (r *RankService) CheckAllRanks(ctx context.Context) error {
	ids, err := r.db.GetAllAccountIDs(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rankCheckWorkers)
	for _, id := range ids {
		g.Go(func() error {
			rank, ok, err := r.CheckRankQualification(gctx, id)
			if err != nil {
				r.logger.Error("rank check failed",
					zap.Error(err),
					zap.String("account", id.String()),
				)
				return nil
			}
			if !ok {
				return nil
			}
			_, err = r.UpdateUserRank(gctx, id, rank, model.QualifyNatural)
			if err != nil {
				r.logger.Error("rank update failed",
					zap.Error(err),
					zap.String("account", id.String()),
				)
			}
			return nil
		})
	}
	return g.Wait()
}
