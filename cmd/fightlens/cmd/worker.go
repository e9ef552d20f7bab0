package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-fightlens/internal/worker"
)

func newWorkerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a Temporal worker executing analysis workflows",
		Args:  cobra.NoArgs,
		RunE:  runWorker,
	}
	cmd.Flags().String("task-queue", "", "Temporal task queue (overrides temporal.task_queue)")
	cmd.Flags().String("temporal", "", "Temporal frontend host:port (overrides temporal.host_port)")
	return cmd
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd, map[string]string{
		"temporal.task_queue": "task-queue",
		"temporal.host_port":  "temporal",
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comps, err := worker.Initialize(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := comps.Close(); cerr != nil {
			logger.Warn("shutdown failed", "error", cerr)
		}
	}()
	worker.StartPromptWatcher(ctx, cfg.Prompts, comps.Prompts, logger)

	c, err := worker.Dial(cfg.Temporal, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, comps)
	if err := w.Start(); err != nil {
		return err
	}
	logger.Info("worker started",
		"task_queue", cfg.Temporal.TaskQueue,
		"agents", comps.Orchestrator.AgentNames())

	<-ctx.Done()
	w.Stop()
	logger.Info("worker stopped")
	return nil
}
