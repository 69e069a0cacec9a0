package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/songzhibin97/gkit/generator"

	"github.com/chemgate/chemgate/adapter"
	"github.com/chemgate/chemgate/config"
	"github.com/chemgate/chemgate/gateway"
	"github.com/chemgate/chemgate/logging"
	"github.com/chemgate/chemgate/metrics"
	"github.com/chemgate/chemgate/registry"
	"github.com/chemgate/chemgate/server"
	"github.com/chemgate/chemgate/storage"
	"github.com/chemgate/chemgate/workflow"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.Log.Level))
	ctx := context.Background()

	reg := registry.New()
	src := adapter.NewSource(cfg.Adapters.Seed)
	latency := time.Duration(cfg.Adapters.LatencyMs) * time.Millisecond
	if err := registerTools(ctx, reg, src, latency); err != nil {
		logger.Error("failed to register tools", "err", err)
		os.Exit(1)
	}
	logger.Info("tools registered", "count", 7)

	promReg := prometheus.NewRegistry()
	collector := metrics.NewCollector(promReg)

	gw := gateway.New(reg, collector, gateway.Config{
		DefaultTimeout:    time.Duration(cfg.Gateway.DefaultTimeoutSec) * time.Second,
		DefaultMaxRetries: cfg.Gateway.DefaultMaxRetries,
		ToolConcurrency:   cfg.Gateway.ToolConcurrency,
		BackoffBase:       time.Duration(cfg.Gateway.BackoffBaseMs) * time.Millisecond,
		BackoffCap:        time.Duration(cfg.Gateway.BackoffCapMs) * time.Millisecond,
	}, logger)

	var store storage.Storage = storage.NewMemoryStore()
	if cfg.Redis.Enable {
		redisStore, err := storage.NewRedisStore(storage.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Error("failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		store = redisStore
		logger.Info("using Redis run store", "addr", cfg.Redis.Addr)
	}

	snowflake := generator.NewSnowflake(time.Now().Add(-1*time.Second), 1)
	engine, err := workflow.NewEngine(snowflake, store, gw, nil, workflow.Config{
		MaxConcurrentRuns: cfg.Workflow.MaxConcurrentRuns,
	}, logger)
	if err != nil {
		logger.Error("failed to create workflow engine", "err", err)
		os.Exit(1)
	}

	srv := server.New(reg, gw, engine, collector, promReg, logger)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router(),
	}

	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "err", err)
	}
	if err := engine.Stop(shutdownCtx); err != nil {
		logger.Error("engine stop failed", "err", err)
	}
}
