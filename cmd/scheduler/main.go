// Job - календарные регламенты
// Ежедневно: проверка рангов по всем аккаунтам
// 1-е число: обнуление месячных объемов и активности
// 2-е число: пересчет Grace-серий
// 3-е число: расчет глобального пула за текущий месяц
// 5-е число: распределение пула и выплата отложенных долей
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	clocksys "github.com/avafin/mlm/internal/clock"
	db "github.com/avafin/mlm/internal/db"
	clockd "github.com/avafin/mlm/internal/external/clockd"
	rabbitmq "github.com/avafin/mlm/internal/external/rabbitmq"
	interf "github.com/avafin/mlm/internal/interfaces"
	model "github.com/avafin/mlm/internal/models"
	services "github.com/avafin/mlm/internal/services"
	"go.uber.org/zap"
)

func main() {
	// log
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// database
	storage, err := db.NewStore(logger)
	if err != nil {
		panic(err)
	}

	// cache
	var redis interf.CacheStorage
	cacheserv, err := db.NewCacheService()
	if err != nil {
		logger.Error(err.Error())
	} else {
		redis = cacheserv
	}

	// notifications
	var notify interf.Notifier
	notify, err = rabbitmq.NewNotifyPublisher()
	if err != nil {
		panic(err)
	}

	// clock
	var clk interf.Clock
	clk, err = clockd.NewClient()
	if err != nil {
		logger.Error(err.Error())
		clk = clocksys.NewSystem()
	}

	// marketing plan
	plan := model.DefaultPlan()
	plandb, err := db.NewPlanDB()
	if err != nil {
		logger.Error(err.Error())
	} else {
		p, err := plandb.GetPlan(context.Background())
		if err != nil {
			logger.Error(err.Error())
		} else {
			plan = p
		}
	}

	graph := services.NewGraph(storage, logger)
	volume := services.NewVolumeService(logger, storage, storage, redis, graph, clk, plan)
	rank := services.NewRankService(logger, storage, storage, graph, notify, clk, plan)
	grace := services.NewGraceDayService(logger, storage, storage, storage, services.NewGrantService(logger, storage), notify, clk, plan)
	pool := services.NewPoolService(logger, storage, storage, storage, volume, notify, clk, plan)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// один прогон в сутки, день берем у виртуальных часов
	lastRun := ""
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-interrupt:
			cancel()
			break loop
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			now, err := clk.Now(ctx)
			if err != nil {
				logger.Error(err.Error())
				continue
			}
			day := now.Format("2006-01-02")
			if day == lastRun {
				continue
			}
			runDaily(ctx, logger, rank, volume, grace, pool, now.Day())
			lastRun = day
		}
	}
}

func runDaily(ctx context.Context, logger *zap.Logger, rank *services.RankService, volume *services.VolumeService, grace *services.GraceDayService, pool *services.PoolService, day int) {
	if day == 1 {
		if err := volume.ResetMonthlyVolumes(ctx); err != nil {
			logger.Error("monthly volume reset", zap.Error(err))
		}
	}
	if day == 2 {
		if err := grace.ResetMonthlyStreaks(ctx); err != nil {
			logger.Error("monthly streak reset", zap.Error(err))
		}
	}
	if day == 3 {
		if _, err := pool.CalculateMonthlyPool(ctx); err != nil && !isDuplicate(err) {
			logger.Error("pool calculation", zap.Error(err))
		}
	}
	if day == 5 {
		if err := pool.DistributeGlobalPool(ctx); err != nil && !isDuplicate(err) {
			logger.Error("pool distribution", zap.Error(err))
		}
		if err := pool.ProcessPendingPoolBonuses(ctx); err != nil {
			logger.Error("pool payout", zap.Error(err))
		}
	}
	if err := rank.CheckAllRanks(ctx); err != nil {
		logger.Error("rank check", zap.Error(err))
	}
	logger.Info("scheduler run finished", zap.Int("day", day))
}

func isDuplicate(err error) bool {
	return errors.Is(err, model.ErrDuplicate)
}
