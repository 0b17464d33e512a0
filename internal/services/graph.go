package mlm

import (
	"context"

	interf "github.com/avafin/mlm/internal/interfaces"
	model "github.com/avafin/mlm/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultWalkDepth = 50

// Обход реферального дерева. Только чтение.
// Указатели аплайнов назначаются извне, поэтому на ацикличность не полагаемся:
// каждый обход несет набор посещенных id и жесткий потолок глубины.
type Graph struct {
	db     interf.AccountStorage
	logger *zap.Logger
}

func NewGraph(db interf.AccountStorage, logger *zap.Logger) *Graph {
	return &Graph{db, logger}
}

// Посетитель: stop=true прерывает обход
type VisitorFn func(account model.Account, level int) (stop bool, err error)

// Обход аплайнов от ближнего к дальнему
func (g *Graph) WalkUpline(ctx context.Context, start model.Account, fn VisitorFn, maxDepth int) error {
	if maxDepth <= 0 {
		maxDepth = DefaultWalkDepth
	}
	visited := map[uuid.UUID]struct{}{start.ID: {}}

	current := start
	for level := 1; level <= maxDepth; level++ {
		if current.Upline == nil {
			return nil
		}
		next := *current.Upline
		if _, ok := visited[next]; ok {
			// цикл в дереве - аномалия, обход завершаем
			g.logger.Warn("referral cycle detected",
				zap.String("account", next.String()),
				zap.String("start", start.ID.String()),
			)
			return nil
		}
		visited[next] = struct{}{}

		account, err := g.db.GetAccount(ctx, next)
		if err != nil {
			return err
		}
		stop, err := fn(account, level)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
		current = account
	}
	g.logger.Warn("upline walk depth limit reached",
		zap.String("start", start.ID.String()),
		zap.Int("maxDepth", maxDepth),
	)
	return nil
}

// Обход всего даунлайна в глубину
func (g *Graph) WalkDownline(ctx context.Context, start model.Account, fn VisitorFn) error {
	visited := map[uuid.UUID]struct{}{start.ID: {}}
	return g.walkDownline(ctx, start, fn, 1, visited)
}

func (g *Graph) walkDownline(ctx context.Context, parent model.Account, fn VisitorFn, level int, visited map[uuid.UUID]struct{}) error {
	if level > DefaultWalkDepth {
		g.logger.Warn("downline walk depth limit reached",
			zap.String("account", parent.ID.String()),
		)
		return nil
	}
	children, err := g.db.GetDirectDownline(ctx, parent.ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if _, ok := visited[child.ID]; ok {
			g.logger.Warn("referral cycle detected",
				zap.String("account", child.ID.String()),
			)
			continue
		}
		visited[child.ID] = struct{}{}

		stop, err := fn(child, level)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
		err = g.walkDownline(ctx, child, fn, level+1, visited)
		if err != nil {
			return err
		}
	}
	return nil
}

// Все аккаунты даунлайна
func (g *Graph) CountDownline(ctx context.Context, start model.Account) (int, error) {
	var count int
	err := g.WalkDownline(ctx, start, func(account model.Account, level int) (bool, error) {
		count++
		return false, nil
	})
	return count, err
}

// Активные аккаунты во всем даунлайне, не только на первом уровне
func (g *Graph) CountActiveDownline(ctx context.Context, start model.Account) (int, error) {
	var count int
	err := g.WalkDownline(ctx, start, func(account model.Account, level int) (bool, error) {
		if account.IsActive {
			count++
		}
		return false, nil
	})
	return count, err
}

// Есть ли в поддереве аккаунт ранга не ниже заданного
func (g *Graph) ContainsRank(ctx context.Context, start model.Account, rank model.Rank) (bool, error) {
	if start.Rank >= rank {
		return true, nil
	}
	var found bool
	err := g.WalkDownline(ctx, start, func(account model.Account, level int) (bool, error) {
		if account.Rank >= rank {
			found = true
			return true, nil
		}
		return false, nil
	})
	return found, err
}
