package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/conjunction-engine/internal/config"
	"github.com/signalsfoundry/conjunction-engine/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the task-queue worker",
	Long: `Drain the shared task queue: element refreshes and targeted
collision checks. Failed items are retried up to the configured ceiling
and then dead-lettered.`,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().String("element-base", worker.DefaultElementBase,
		"Base URL for the upstream element catalog")
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.close()

	elementBase, err := cmd.Flags().GetString("element-base")
	if err != nil {
		return err
	}
	if env := os.Getenv(config.EnvPrefix + "_ELEMENT_BASE"); env != "" && !cmd.Flags().Changed("element-base") {
		elementBase = env
	}

	source := worker.NewHTTPElementSource(elementBase, nil)
	w := worker.New(d.queue, d.catalog, source, d.engine, d.collector, nil, worker.Config{
		PollInterval: d.cfg.PollInterval,
		ErrorBackoff: d.cfg.ErrorBackoff,
	}, d.log)

	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
