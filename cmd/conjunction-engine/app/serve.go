package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/conjunction-engine/internal/api"
	"github.com/signalsfoundry/conjunction-engine/internal/logging"
	"github.com/signalsfoundry/conjunction-engine/internal/observability"
)

const gracefulTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the continuous analysis loop with the HTTP API",
	Long: `Run the engine's continuous mode: analysis cycles at the configured
interval, the HTTP query API, and Prometheus metrics. Cycles that fail
back off exponentially and resume on the next success.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cmd)
	if err != nil {
		return err
	}
	defer d.close()
	log := d.log

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	metricsSrv := serveHTTP(d.cfg.MetricsAddr, metricsMux(d.collector), log, "metrics")

	apiServer := api.NewServer(d.results, d.catalog, d.queue, d.engine, log)
	apiSrv := serveHTTP(d.cfg.ListenAddr, apiServer.Router(), log, "api")

	log.Info(ctx, "engine starting",
		logging.String("listen_addr", d.cfg.ListenAddr),
		logging.String("metrics_addr", d.cfg.MetricsAddr),
		logging.Float("interval_s", d.cfg.AnalysisInterval.Seconds()))

	err = d.engine.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
	defer cancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	if errors.Is(err, context.Canceled) {
		log.Info(context.Background(), "engine stopped")
		return nil
	}
	return err
}

func metricsMux(collector *observability.EngineCollector) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	return mux
}

func serveHTTP(addr string, handler http.Handler, log logging.Logger, name string) *http.Server {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(context.Background(), name+" server exited", logging.Err(err))
		}
	}()
	log.Info(context.Background(), "serving "+name, logging.String("addr", addr))
	return srv
}
