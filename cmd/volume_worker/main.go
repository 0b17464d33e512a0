// Job - фоновый пересчет командных объемов
// Забирает задачи из очереди пачками и пересчитывает QV/FV по аккаунтам
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	clocksys "github.com/avafin/mlm/internal/clock"
	db "github.com/avafin/mlm/internal/db"
	clockd "github.com/avafin/mlm/internal/external/clockd"
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

	var batch int
	batchenv := os.Getenv("MLM_RECALC_BATCH")
	if batchenv == "" {
		batch = 20
	} else {
		batch, err = strconv.Atoi(batchenv)
		if err != nil || batch == 0 {
			batch = 20
		}
	}

	graph := services.NewGraph(storage, logger)
	volume := services.NewVolumeService(logger, storage, storage, redis, graph, clk, plan)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := time.NewTicker(5 * time.Second)
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
			done, err := volume.ProcessQueueBatch(ctx, batch)
			if err != nil {
				logger.Error(err.Error())
				continue
			}
			if done > 0 {
				logger.Info("recalc batch processed", zap.Int("tasks", done))
			}
		}
	}
}
