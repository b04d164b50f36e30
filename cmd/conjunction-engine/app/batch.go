package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/conjunction-engine/internal/logging"
	"github.com/signalsfoundry/conjunction-engine/model"
)

// Exit codes for one-shot batch runs. Schedulers gate downstream
// automation on these.
const (
	exitNoThreats       = 0
	exitThreatsFound    = 1
	exitCriticalThreats = 2
	exitRunFailed       = 3
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run a single analysis cycle and exit",
	Long: `Run one full analysis cycle, persist its results, and exit with a
code describing the outcome: 0 when no threats were found, 1 when only
non-critical threats were found, 2 when at least one critical or
emergency threat was found, 3 when the cycle itself failed.`,
	Run: runBatch,
}

func runBatch(cmd *cobra.Command, _ []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.NewFromEnv()

	d, err := buildDeps(ctx, cmd)
	if err != nil {
		log.Error(ctx, "batch setup failed", logging.Err(err))
		os.Exit(exitRunFailed)
	}
	defer d.close()
	log = d.log

	stats, err := d.engine.RunOnce(ctx)
	if err != nil {
		log.Error(ctx, "batch cycle failed", logging.Err(err))
		d.close()
		os.Exit(exitRunFailed)
	}

	code := batchExitCode(stats)
	log.Info(ctx, "batch cycle finished",
		logging.Int("threats", stats.ThreatsFound),
		logging.Int("critical", stats.CriticalThreats),
		logging.Int("exit_code", code))
	d.close()
	os.Exit(code)
}

func batchExitCode(stats model.CycleStats) int {
	switch {
	case stats.CriticalThreats > 0:
		return exitCriticalThreats
	case stats.ThreatsFound > 0:
		return exitThreatsFound
	default:
		return exitNoThreats
	}
}
