package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/pharmaops/doseflow/internal/config"
	v1 "github.com/pharmaops/doseflow/internal/handler/v1"
	"github.com/pharmaops/doseflow/internal/repository/postgres"
	"github.com/pharmaops/doseflow/internal/service"
	"github.com/pharmaops/doseflow/pkg/auth"
	"github.com/pharmaops/doseflow/pkg/database"
	"github.com/pharmaops/doseflow/pkg/logger"
	"github.com/pharmaops/doseflow/pkg/metrics"
	"github.com/pharmaops/doseflow/pkg/tracer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	tp, err := tracer.Init(cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := database.Migrate(db, cfg.Policy, log); err != nil {
		return err
	}

	collector := metrics.NewCollector("doseflow")

	controlRepo := postgres.NewControlRepo(db)
	medRepo := postgres.NewMedicationRepo(db)
	patientRepo := postgres.NewPatientRepo(db)
	dispRepo := postgres.NewDispensationRepo(db)
	userRepo := postgres.NewUserRepo(db)
	auditRepo := postgres.NewAuditRepo(db)
	tx := postgres.NewTransactor(db)

	auditSvc := service.NewAuditService(auditRepo, collector, log)
	defer auditSvc.Shutdown()

	jwtManager := auth.NewJWTManager(cfg.JWT)
	authSvc := service.NewAuthService(userRepo, jwtManager, auditSvc, log)
	calcSvc := service.NewCalculationService(medRepo, auditSvc, collector, log)
	intervalSvc := service.NewIntervalService(controlRepo, medRepo, patientRepo, auditSvc, cfg.Policy, collector, log)
	dispSvc := service.NewDispensationService(tx, dispRepo, controlRepo, medRepo, patientRepo, intervalSvc, auditSvc, cfg.Policy, collector, log)
	reportSvc := service.NewReportService(medRepo, controlRepo, log)

	router := &v1.Router{
		AuthSvc:     authSvc,
		CalcSvc:     calcSvc,
		IntervalSvc: intervalSvc,
		DispSvc:     dispSvc,
		ReportSvc:   reportSvc,
		JWTManager:  jwtManager,
		Metrics:     collector,
		Log:         log,
		Cfg:         cfg,
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router.Build(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.App.Environment),
			zap.String("version", cfg.App.Version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}

	log.Info("server stopped")
	return nil
}
