package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"caching-proxy/application/proxy/admin"
	"caching-proxy/application/proxy/cache"
	"caching-proxy/application/proxy/request"
	"caching-proxy/application/proxy/server"
	"caching-proxy/config"
	"caching-proxy/transport/tcp"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func run(cmd *cobra.Command, args []string) error {
	// Arguments are fine from here on; errors are not usage errors.
	cmd.SilenceUsage = true

	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}

	logger := cfg.Log.NewLogger(os.Stderr)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := cache.New(cache.Options{
		MaxCacheSize:  cfg.Cache.MaxCacheSize,
		MaxObjectSize: cfg.Cache.MaxObjectSize,
		Metrics:       cache.NewMetrics("proxy", registry),
		Logger:        logger.With("component", "cache"),
	})

	lis, err := tcp.Listen(args[0])
	if err != nil {
		return errors.Wrap(err, "starting proxy")
	}

	srv := server.New(lis, tcp.NewDialer(), c, logger, clock.New(), serverOptions(cfg))
	srv.Start()

	var adminSrv *admin.Server
	if cfg.Admin.Address != "" {
		adminSrv, err = admin.Listen(cfg.Admin.Address, admin.NewRouter(c, registry), logger.With("component", "admin"))
		if err != nil {
			srv.Close()
			return err
		}
		adminSrv.Start()
	}

	var reporter *admin.Reporter
	if cfg.Admin.ReportSchedule != "" {
		reporter, err = admin.NewReporter(cfg.Admin.ReportSchedule, c, logger.With("component", "report"))
		if err != nil {
			srv.Close()
			return err
		}
		reporter.Start()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")

	if reporter != nil {
		reporter.Stop()
	}
	if adminSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("error when stopping admin endpoint", "error", err)
		}
	}

	return srv.Close()
}

func serverOptions(cfg *config.Config) server.Options {
	return server.Options{
		Parse:     request.ParseOptions{MaxLineLength: cfg.Proxy.MaxLineLength},
		ChunkSize: cfg.Proxy.ChunkSize,
		Timeout: server.TimeoutOptions{
			DialTimeout:  cfg.Proxy.Timeouts.Dial,
			ReadTimeout:  cfg.Proxy.Timeouts.Read,
			WriteTimeout: cfg.Proxy.Timeouts.Write,
		},
	}
}
