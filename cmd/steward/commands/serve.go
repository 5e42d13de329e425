package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stewardhq/steward/agent"
	"github.com/stewardhq/steward/ai/anthropic"
	"github.com/stewardhq/steward/approval"
	"github.com/stewardhq/steward/internal/util"
	"github.com/stewardhq/steward/jobfile"
	"github.com/stewardhq/steward/logger"
	"github.com/stewardhq/steward/schedule"
	"github.com/stewardhq/steward/server"
	"github.com/stewardhq/steward/store"
	"github.com/stewardhq/steward/tools"
)

// ServeCmd runs the scheduler daemon and admin API
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler daemon and admin API",
	Long: `Start steward in foreground mode.

The daemon will:
- Load job documents from the configured jobs directory
- Fire each enabled job on its cron schedule (one run per job at a time)
- Watch the jobs directory and hot-reload definitions on change
- Serve the admin API and WebSocket event feed
- Run until interrupted (Ctrl+C) with graceful shutdown`,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, cfg, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		if cfg.Log.JSON {
			if err := logger.Initialize(true); err != nil {
				return err
			}
		}
		log := logger.Named("serve")

		jobs := store.NewJobStore(database)
		executions := store.NewExecutionStore(database)
		actions := store.NewActionStore(database)

		failInterruptedRuns(executions, log)

		registry := tools.DefaultRegistry()
		client := anthropic.NewClient(anthropic.Config{
			APIKey:      cfg.Anthropic.APIKey,
			Model:       cfg.Anthropic.Model,
			MaxTokens:   cfg.Anthropic.MaxTokens,
			Temperature: cfg.Anthropic.Temperature,
		})
		if !client.IsConfigured() {
			log.Warnw("No Anthropic API key configured, runs will use simulation mode")
		}

		executor := agent.NewExecutor(client, registry, jobs, executions, actions)

		// srv is assigned below; the runner closure only dereferences it at
		// run time, after the server exists.
		var srv *server.Server
		runner := schedule.RunnerFunc(func(ctx context.Context, job *store.Job) (string, error) {
			result, err := executor.Run(ctx, job)
			if result == nil {
				return "", err
			}
			srv.Broadcast(map[string]any{
				"type":         "execution_finished",
				"job_id":       job.ID,
				"execution_id": result.ExecutionID,
				"status":       result.Status,
				"timestamp":    time.Now().Unix(),
			})
			return result.ExecutionID, err
		})
		scheduler := schedule.NewScheduler(runner, jobs,
			schedule.Config{RunTimeout: cfg.Jobs.RunTimeout()}, logger.Named("schedule"))

		workflow := approval.NewWorkflow(registry, executions, actions)
		srv = server.New(database, scheduler, workflow, jobs, executions, actions)

		// syncJobs folds a fresh load of the jobs directory into the ledger
		// and the scheduler: definitions are upserted, vanished jobs are
		// deleted, timers reconciled.
		syncJobs := func(defs []*store.Job) error {
			seen := make(map[string]bool, len(defs))
			for _, def := range defs {
				if err := jobs.Upsert(def); err != nil {
					log.Errorw("Failed to upsert job", "job_id", def.ID, "error", err)
					continue
				}
				seen[def.ID] = true
			}

			existing, err := jobs.GetAll()
			if err != nil {
				return err
			}
			for _, job := range existing {
				if !seen[job.ID] {
					log.Infow("Job source removed, deleting", "job_id", job.ID)
					if err := jobs.Delete(job.ID); err != nil {
						log.Errorw("Failed to delete job", "job_id", job.ID, "error", err)
					}
				}
			}

			scheduler.Reconcile(defs)
			return nil
		}

		if err := os.MkdirAll(cfg.Jobs.Dir, 0750); err != nil {
			return err
		}
		defs, err := jobfile.LoadDir(cfg.Jobs.Dir, logger.Named("jobfile"))
		if err != nil {
			return err
		}
		if err := syncJobs(defs); err != nil {
			return err
		}
		scheduler.Start()

		var watcher *jobfile.Watcher
		if cfg.Jobs.Watch {
			watcher, err = jobfile.NewWatcher(cfg.Jobs.Dir, logger.Named("jobfile"))
			if err != nil {
				log.Warnw("Failed to start jobs watcher, hot reload disabled", "error", err)
				watcher = nil
			} else {
				watcher.OnReload(func(defs []*store.Job) error {
					if err := syncJobs(defs); err != nil {
						return err
					}
					srv.Broadcast(map[string]any{
						"type":      "jobs_reloaded",
						"count":     len(defs),
						"timestamp": time.Now().Unix(),
					})
					return nil
				})
				watcher.Start()
			}
		}

		serveErr := make(chan error, 1)
		go func() {
			serveErr <- srv.Start(cfg.Server.Port)
		}()

		fmt.Printf("steward daemon started\n")
		fmt.Printf("  Jobs dir:   %s (%d jobs, watch=%v)\n", cfg.Jobs.Dir, len(defs), cfg.Jobs.Watch && watcher != nil)
		fmt.Printf("  Database:   %s\n", cfg.Database.Path)
		fmt.Printf("  Admin API:  http://localhost:%d\n", cfg.Server.Port)
		if client.IsConfigured() {
			fmt.Printf("  Mode:       live (%s)\n", cfg.Anthropic.Model)
		} else {
			fmt.Printf("  Mode:       simulation (no API key)\n")
		}
		fmt.Printf("\nPress Ctrl+C for graceful shutdown\n\n")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigChan:
			fmt.Printf("\nShutting down...\n")
		case err := <-serveErr:
			if err != nil {
				return err
			}
		}

		// Stop components in reverse order of startup
		if watcher != nil {
			if err := watcher.Stop(); err != nil {
				log.Warnw("Watcher stop failed", "error", err)
			}
		}
		scheduler.Stop()
		if err := srv.Stop(); err != nil {
			log.Warnw("Server stop failed", "error", err)
		}

		fmt.Printf("steward daemon stopped\n")
		return nil
	},
}

// failInterruptedRuns marks executions left running by a previous process
// as failed. The run-lock lives in memory, so anything still "running" at
// startup cannot actually be in flight.
func failInterruptedRuns(executions *store.ExecutionStore, log *zap.SugaredLogger) {
	stale, err := executions.ListByStatus(store.StatusRunning)
	if err != nil {
		log.Warnw("Failed to scan for interrupted executions", "error", err)
		return
	}

	for _, exec := range stale {
		now := time.Now().UTC()
		update := store.ExecutionUpdate{
			Status:       util.Ptr(store.StatusFailed),
			CompletedAt:  &now,
			ErrorMessage: util.Ptr("interrupted by restart"),
		}
		if err := executions.Update(exec.ID, update); err != nil {
			log.Warnw("Failed to mark interrupted execution",
				"execution_id", exec.ID, "error", err)
			continue
		}
		log.Infow("Marked interrupted execution failed",
			"execution_id", exec.ID, "job_id", exec.JobID)
	}
}
