package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hupe1980/pawprint"
	"github.com/hupe1980/pawprint/internal/server"
	"github.com/hupe1980/pawprint/metrics/prom"
)

const shutdownTimeout = 10 * time.Second

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve match queries over HTTP",
	Long: `Serve match queries over HTTP.

The snapshot is reloaded on SIGHUP and on POST /v1/reload.`,
	Args: cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		if serveListen != "" {
			a.cfg.Server.Listen = serveListen
		}

		var (
			extra   []pawprint.Option
			metrics http.Handler
		)
		if a.cfg.Metrics.Enabled {
			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			c, err := prom.New(reg)
			if err != nil {
				return err
			}
			extra = append(extra, pawprint.WithMetricsCollector(c))
			metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
		}

		eng, err := a.engine(ctx, extra...)
		if err != nil {
			return err
		}

		cat, err := a.openCatalog()
		if err != nil {
			return err
		}
		if cat != nil {
			defer cat.Close()
		}
		h := server.New(eng, func(o *server.Options) {
			o.Logger = a.logger
			o.MaxUploadBytes = a.cfg.Server.MaxUploadBytes
			o.Metrics = metrics
			o.MetricsPath = a.cfg.Metrics.Path
			if cat != nil {
				o.Records = cat
			}
		})

		go reloadOnHangup(ctx, eng)

		return listen(ctx, &http.Server{
			Addr:              a.cfg.Server.Listen,
			Handler:           h.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}, a.logger)
	}),
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (overrides server.listen)")
}

func reloadOnHangup(ctx context.Context, eng *pawprint.Engine) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			// Reload logs the outcome itself.
			_ = eng.Reload(ctx)
		}
	}
}

func listen(ctx context.Context, srv *http.Server, logger *pawprint.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("server stopped")
	return nil
}
