package main

import (
	"log/slog"
	"time"

	"gister/internal/api"
	"gister/internal/budget"
	"gister/internal/checkpoint"
	"gister/internal/config"
	"gister/internal/daemon"
	"gister/internal/deadletter"
	"gister/internal/discovery"
	"gister/internal/notifications"
	"gister/internal/pipeline"
	"gister/internal/retry"
	"gister/internal/stage"
	"gister/internal/stages"
	"gister/internal/store"
	"gister/internal/workflow"
)

// buildDaemon wires the full processing graph: store-backed managers, the
// state machine, stage handlers, discovery, and the operational API.
func buildDaemon(cfg *config.Config, st *store.Store, logger *slog.Logger) (*daemon.Daemon, error) {
	notifier := notifications.NewService(cfg)

	enforcer := budget.NewEnforcer(cfg, st, logger, notifier)
	checkpoints := checkpoint.NewManager(st, logger)
	deadletters := deadletter.NewManager(st, logger, notifier)
	guard := pipeline.NewGuard(st, logger)
	policy := retry.NewPolicy(time.Duration(cfg.Pipeline.RetryBaseSeconds)*time.Second, cfg.Pipeline.MaxAttempts)
	machine := pipeline.NewMachine(st, enforcer, deadletters, policy, logger)

	var (
		client discovery.Client
		sheet  discovery.Sheet
	)
	if cfg.Services.CatalogURL != "" {
		client = discovery.NewHTTPClient(cfg)
	}
	httpSheet := discovery.NewHTTPSheet(cfg)
	if httpSheet.Configured() {
		sheet = httpSheet
	}

	var runner *discovery.Runner
	if client != nil {
		runner = discovery.NewRunner(cfg, client, guard, checkpoints, enforcer, notifier, logger)
	}

	manager := workflow.NewManager(cfg, st, machine, runner, sheet, notifier, logger)
	manager.ConfigureHandlers(map[store.Stage]stage.Handler{
		store.StageTranscribe: stages.NewTranscribeHandler(stages.NewHTTPTranscriber(cfg), st, logger),
		store.StageSummarize:  stages.NewSummarizeHandler(stages.NewHTTPSummarizer(cfg), st, logger),
		store.StageFinalize:   stages.NewFinalizeHandler(sheet, logger),
	})

	svc := api.NewService(st, manager, enforcer, checkpoints, deadletters)
	return daemon.New(cfg, st, logger, manager, machine, svc)
}
