package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/avafin/mlm/internal/api"
	clocksys "github.com/avafin/mlm/internal/clock"
	db "github.com/avafin/mlm/internal/db"
	clockd "github.com/avafin/mlm/internal/external/clockd"
	interf "github.com/avafin/mlm/internal/interfaces"
	model "github.com/avafin/mlm/internal/models"
	services "github.com/avafin/mlm/internal/services"
	otelinit "github.com/avafin/mlm/observability/otel"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// log
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// config
	port := os.Getenv("MLM_PORT")
	if port == "" {
		panic("env MLM_PORT is not set")
	}

	// tracing
	shutdownTracer := otelinit.InitTracer(context.Background())
	defer shutdownTracer()

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
	plandb, err := db.NewPlanDB()
	if err != nil {
		panic(err)
	}
	plan, err := plandb.GetPlan(context.Background())
	if err != nil {
		logger.Error(err.Error())
		plan = model.DefaultPlan()
	}

	graph := services.NewGraph(storage, logger)
	volume := services.NewVolumeService(logger, storage, storage, redis, graph, clk, plan)

	// api handlers
	r := api.NewHandler(storage, storage, storage, plandb, redis, volume, logger)
	srv := &http.Server{
		Handler:      r,
		Addr:         ":" + port,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	go srv.ListenAndServe()

	// metrics
	metricsPort := os.Getenv("MLM_METRICS_PORT")
	if metricsPort == "" {
		metricsPort = "9090"
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Handler: metricsMux,
		Addr:    ":" + metricsPort,
	}
	go metricsSrv.ListenAndServe()

	// shutdown
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	timeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = srv.Shutdown(timeout)
	if err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	err = metricsSrv.Shutdown(timeout)
	if err != nil {
		logger.Error("metrics shutdown error", zap.Error(err))
	}
}
