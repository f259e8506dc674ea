package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/conduitworks/conduit/internal/config"
	"github.com/conduitworks/conduit/internal/logging"
	"github.com/conduitworks/conduit/internal/monitoring"
	"github.com/conduitworks/conduit/ipc"
)

func main() {
	socket := flag.String("socket", "", "Broker socket path (overrides CONDUIT_SOCKET)")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *socket != "" {
		cfg.Broker.Socket = *socket
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	metrics := monitoring.NewMetrics()
	host := ipc.NewHost(ipc.HostOptions{
		Socket:          cfg.Broker.Socket,
		DefaultCapacity: cfg.Broker.DefaultCapacity,
		LockLease:       cfg.Broker.LockLease,
		OpsPerSecond:    cfg.RateLimit.OpsPerSecond,
		Burst:           cfg.RateLimit.Burst,
		Logger:          logger,
		Metrics:         metrics,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return host.ListenAndServe(ctx)
	})

	if cfg.Broker.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.Broker.MetricsAddr, Handler: metrics.Handler()}
		eg.Go(func() error {
			logger.Info("metrics listening", zap.String("addr", cfg.Broker.MetricsAddr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			return srv.Close()
		})
	}

	if err := eg.Wait(); err != nil {
		logger.Fatal("broker failed", zap.Error(err))
	}
	logger.Info("broker stopped")
}
