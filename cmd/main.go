package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/asaskevich/EventBus"
	"github.com/jobtrack/autopilot/internal/boards"
	"github.com/jobtrack/autopilot/internal/clients/webdriver"
	"github.com/jobtrack/autopilot/internal/config"
	"github.com/jobtrack/autopilot/internal/logger"
	"github.com/jobtrack/autopilot/internal/metrics"
	"github.com/jobtrack/autopilot/internal/notifier"
	"github.com/jobtrack/autopilot/internal/repositories"
	"github.com/jobtrack/autopilot/internal/services"
	log "github.com/sirupsen/logrus"
)

func runOrchestrator(cfg *config.Config, dbContext *repositories.DbContext, bus EventBus.Bus) *services.Orchestrator {

	rules := repositories.NewRulesRepository(dbContext.DB)
	applications := repositories.NewApplicationsRepository(dbContext.DB)
	attempts := repositories.NewAttemptsRepository(dbContext.DB)
	credentials := repositories.NewCredentialsRepository(dbContext.DB)

	registry := boards.NewRegistry(webdriver.NewFactory(cfg.Orchestrator.WebDriverURL))
	registry.SetRateLimit(cfg.Orchestrator.BoardMaxRequestsPerSecond)

	orchestrator, err := services.NewOrchestrator(bus, rules, applications, attempts, registry, credentials,
		services.OrchestratorOptions{
			TickInterval:     cfg.Orchestrator.TickInterval,
			MaxWorkers:       cfg.Orchestrator.MaxWorkers,
			ActionTimeout:    cfg.Orchestrator.ActionTimeout,
			PacingMinDelay:   cfg.Orchestrator.PacingMinDelay,
			PacingMaxDelay:   cfg.Orchestrator.PacingMaxDelay,
			PacingJitter:     cfg.Orchestrator.PacingJitter,
			RetryCeiling:     cfg.Orchestrator.RetryCeiling,
			RetryBackoffBase: cfg.Orchestrator.RetryBackoffBase,
		})
	if err != nil {
		log.Fatalf("can't create orchestrator: %v", err)
	}

	go orchestrator.Run()
	return orchestrator
}

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Get()

	logger.Setup(cfg.Logger)
	defer logger.Cleanup()

	metrics.StartMetricsServer()

	dbContext, err := repositories.NewDbContext(cfg.DB.ConnectionString, cfg.DB.LogQueries)
	if err != nil {
		log.Fatalf("can't create db context: %v", err)
	}
	defer dbContext.Close()

	err = dbContext.Migrate()
	if err != nil {
		log.Fatalf("can't migrate db context: %v", err)
	}

	bus := EventBus.New()

	if cfg.Notifier.Token != "" {
		alerts, err := notifier.NewTelegram(cfg.Notifier.Token, bus)
		if err != nil {
			log.Fatalf("can't create notifier: %v", err)
		}
		defer alerts.Stop()
	} else {
		log.Warn("notifier token is empty, pause alerts are disabled")
	}

	cleaner, err := services.NewAttemptsCleaner(
		repositories.NewAttemptsRepository(dbContext.DB), cfg.Orchestrator.AttemptRetentionDays)
	if err != nil {
		log.Fatalf("can't create attempts cleaner: %v", err)
	}
	defer cleaner.Stop()

	orchestrator := runOrchestrator(cfg, dbContext, bus)

	<-ctx.Done()

	log.Info("Shutting down services...")
	orchestrator.Stop()
	log.Info("Services stopped.")
}
