package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/tanmay-xvx/controller-relay/flightPlanService"
	flightPlanHTTP "github.com/tanmay-xvx/controller-relay/flightPlanService/http"
	"github.com/tanmay-xvx/controller-relay/internals/broker"
	"github.com/tanmay-xvx/controller-relay/internals/config"
	"github.com/tanmay-xvx/controller-relay/internals/logging"
	"github.com/tanmay-xvx/controller-relay/internals/metrics"
	"github.com/tanmay-xvx/controller-relay/relayService"
	relayHTTP "github.com/tanmay-xvx/controller-relay/relayService/http"
	"github.com/tanmay-xvx/controller-relay/snapshotService"
	snapshotHTTP "github.com/tanmay-xvx/controller-relay/snapshotService/http"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:]))
}

// run starts the relay and blocks until it exits, returning the process exit code.
func run(ctx context.Context, args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 2
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting controller event relay", "addr", cfg.Addr(), "exchange", cfg.Exchange, "queue", cfg.Queue)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Forced teardown hands its exit code to the main goroutine, which stops
	// the HTTP server before the process exits.
	exitCh := make(chan int, 2)
	requestExit := func(code int) {
		select {
		case exitCh <- code:
		default:
		}
	}

	relay := relayService.NewRelayService(cfg,
		broker.AMQPDialer{Timeout: cfg.DialTimeout, Name: "controller-relay"},
		relayService.WithLogger(logger),
		relayService.WithMetrics(metrics.NewMetrics(reg)),
		relayService.WithExit(requestExit))

	snapshots := snapshotService.NewSnapshotService(cfg, nil, logger)
	flightPlans := flightPlanService.NewFlightPlanService(cfg, nil, logger)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      newRouter(cfg, logger, reg, relay, snapshots, flightPlans),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	code := 0
	done := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			go relay.HandleFault(fmt.Errorf("http server: %w", err))
			return err
		}
		return nil
	})

	g.Go(func() error {
		sigCtx, stop := signal.NotifyContext(gctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		select {
		case <-sigCtx.Done():
			if gctx.Err() == nil {
				logger.Info("shutdown signal received")
				go relay.Teardown(true)
			}
		case <-done:
		}
		return nil
	})

	g.Go(func() error {
		defer close(done)

		code = <-exitCh
		if code != 0 {
			logger.Error("forcing server close", "code", code)
			return server.Close()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown error", logging.Error(err))
			return server.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil && code == 0 {
		logger.Error("relay stopped with error", logging.Error(err))
		code = 1
	}

	logger.Info("relay stopped", "code", code)
	return code
}

// newRouter builds the HTTP router with every route of the relay.
func newRouter(
	cfg *config.Config,
	logger *slog.Logger,
	gatherer prometheus.Gatherer,
	relay relayService.RelayService,
	snapshots snapshotService.SnapshotLoader,
	flightPlans flightPlanService.FlightPlanProxy,
) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(relayHTTP.Recoverer(relay.HandleFault, logger))

	relayHTTP.RegisterRelayRoutes(r, relay, cfg, logger, gatherer)
	snapshotHTTP.RegisterSnapshotRoutes(r, snapshots)
	flightPlanHTTP.RegisterFlightPlanRoutes(r, flightPlans, logger)

	return r
}
