package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/ogurasousui/codex-hr-provisioning/internal/adapters/http/handler"
	"github.com/ogurasousui/codex-hr-provisioning/internal/adapters/identity/gotrue"
	"github.com/ogurasousui/codex-hr-provisioning/internal/adapters/repository/postgres"
	"github.com/ogurasousui/codex-hr-provisioning/internal/core/employee"
	"github.com/ogurasousui/codex-hr-provisioning/internal/core/provisioning"
	"github.com/ogurasousui/codex-hr-provisioning/internal/platform/config"
	pg "github.com/ogurasousui/codex-hr-provisioning/internal/platform/db/postgres"
	"github.com/ogurasousui/codex-hr-provisioning/internal/platform/logging"
	"github.com/ogurasousui/codex-hr-provisioning/internal/platform/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "assets/local.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	dbPool, err := pg.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize database pool")
	}
	defer dbPool.Close()

	directory, err := gotrue.New(gotrue.Config{
		URL:            cfg.Identity.URL,
		ServiceKey:     cfg.Identity.ServiceKey,
		CreateTimeout:  cfg.Identity.CreateTimeout,
		RequestTimeout: cfg.Identity.RequestTimeout,
		LookupPageSize: cfg.Identity.LookupPageSize,
		LookupMaxPages: cfg.Identity.LookupMaxPages,
	}, gotrue.WithLogger(logger.WithField("component", "identity")))
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize identity client")
	}

	employeeRepo := postgres.NewEmployeeRepository(dbPool)
	txManager := pg.NewTransactionManager(dbPool, pg.WithTxLogger(logger.WithField("component", "postgres")))

	employeeSvc := employee.NewService(employeeRepo, directory, nil, txManager, logger.WithField("component", "employee"))
	saga := provisioning.New(directory, employeeRepo,
		provisioning.WithLogger(logger.WithField("component", "provisioning")),
		provisioning.WithVerifyPolicy(cfg.Identity.VerifyAttempts, cfg.Identity.VerifyInterval),
	)

	router := handler.NewRouter(handler.RouterOptions{
		Provisioner:       saga,
		Employees:         employeeSvc,
		Environment:       cfg.Environment,
		Production:        cfg.IsProduction(),
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		BackendConfigured: cfg.Identity.URL != "" && cfg.Identity.ServiceKey != "",
		Logger:            logger,
	})

	srv := server.New(router, server.Options{
		HTTPAddr:        cfg.Server.ListenAddr,
		GRPCAddr:        cfg.Server.GRPCListenAddr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Logger:          logger,
	})

	if err := srv.Run(ctx); err != nil {
		logger.WithError(err).Fatal("server stopped with error")
	}
}
