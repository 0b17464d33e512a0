// Job - обработка новых покупок
// Опрос Kafka -> объемы, бонусы дня, инвестиционные бонусы, комиссии
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	clocksys "github.com/avafin/mlm/internal/clock"
	db "github.com/avafin/mlm/internal/db"
	clockd "github.com/avafin/mlm/internal/external/clockd"
	kafka "github.com/avafin/mlm/internal/external/kafka"
	rabbitmq "github.com/avafin/mlm/internal/external/rabbitmq"
	interf "github.com/avafin/mlm/internal/interfaces"
	model "github.com/avafin/mlm/internal/models"
	services "github.com/avafin/mlm/internal/services"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	// log
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// kafka
	reader, err := kafka.NewPurchaseReader("purchases")
	if err != nil {
		panic(err)
	}
	defer reader.CloseReader()

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

	// services
	graph := services.NewGraph(storage, logger)
	grant := services.NewGrantService(logger, storage)
	volume := services.NewVolumeService(logger, storage, storage, redis, graph, clk, plan)
	rank := services.NewRankService(logger, storage, storage, graph, notify, clk, plan)
	commission := services.NewCommissionService(logger, storage, storage, storage, graph, rank, grant, notify, clk, plan)
	grace := services.NewGraceDayService(logger, storage, storage, storage, grant, notify, clk, plan)
	invest := services.NewInvestBonusService(logger, storage, storage, grant, notify, clk, plan)
	pipeline := services.NewPipeline(logger, storage, volume, grace, invest, commission)

	// start
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var semcount int
	semenv := os.Getenv("MLM_PURCHASES_COUNT")
	if semenv == "" {
		semcount = 5
	} else {
		semcount, err = strconv.Atoi(semenv)
		if err != nil {
			semcount = 5
		}
	}
	if semcount == 0 {
		semcount = 1
	}

	wg := &sync.WaitGroup{}
	semaphore := make(chan struct{}, semcount)

loop:
	for {
		select {
		case <-interrupt:
			cancel()
			break loop
		case <-ctx.Done():
			break loop
		default:

			purchase, err := reader.GetNewPurchase(ctx)
			if err != nil {
				logger.Error(err.Error())
				return
			}

			semaphore <- struct{}{}
			wg.Add(1)
			go func(purchase uuid.UUID) {
				defer wg.Done()
				defer func() { <-semaphore }()
				err = pipeline.HandlePurchase(ctx, purchase)
				if err != nil {
					logger.Error(err.Error())
					return
				}
			}(purchase)
		}
	}
	wg.Wait()
}
