package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mgthompo1/tapkernel/config"
	"github.com/mgthompo1/tapkernel/internal/adapters/acquirer"
	"github.com/mgthompo1/tapkernel/internal/adapters/escalation"
	"github.com/mgthompo1/tapkernel/internal/adapters/monitor"
	"github.com/mgthompo1/tapkernel/internal/adapters/persistence/memory"
	persistpg "github.com/mgthompo1/tapkernel/internal/adapters/persistence/postgres"
	persistredis "github.com/mgthompo1/tapkernel/internal/adapters/persistence/redis"
	"github.com/mgthompo1/tapkernel/internal/capability"
	"github.com/mgthompo1/tapkernel/internal/durability/reversal"
	"github.com/mgthompo1/tapkernel/internal/durability/torn"
	"github.com/mgthompo1/tapkernel/pkg/log"
	"github.com/mgthompo1/tapkernel/pkg/store"
)

// tornRetention bounds how long resolved torn records stay observable.
const tornRetention = 7 * 24 * time.Hour

// Worker runs the terminal's background durability tasks: reversal
// dispatch and torn-record sweeping.
type Worker struct {
	logger     *zap.Logger
	config     config.Configs
	tornLog    *torn.Log
	reversals  *reversal.Queue
	dispatcher *reversal.Dispatcher
}

func main() {
	logger := log.New()
	defer log.SyncLogger(logger)

	logger.Info("starting durability worker")

	cfg, err := config.New()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	persistence := newPersistence(cfg, logger)

	tornLog, err := torn.NewLog(ctx, persistence, cfg.TORN, logger)
	if err != nil {
		logger.Fatal("failed to load torn log", zap.Error(err))
	}

	reversals, err := reversal.NewQueue(ctx, persistence, cfg.REVERSAL, logger)
	if err != nil {
		logger.Fatal("failed to load reversal queue", zap.Error(err))
	}

	sender := acquirer.New(cfg.ACQUIRER, logger)

	var notifier reversal.EscalationNotifier
	if cfg.NATS.URL != "" {
		publisher, err := escalation.New(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			logger.Warn("escalation publisher unavailable", zap.Error(err))
		} else {
			defer publisher.Close()
			notifier = publisher
		}
	}

	dispatcher := reversal.NewDispatcher(reversals, sender, notifier, cfg.REVERSAL.RetryInterval, logger)

	worker := &Worker{
		logger:     logger,
		config:     cfg,
		tornLog:    tornLog,
		reversals:  reversals,
		dispatcher: dispatcher,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go dispatcher.Run(ctx)
	go worker.sweepTornRecords(ctx)

	monitorServer := monitor.New(cfg.MONITOR.Port, tornLog, reversals, logger)
	monitorServer.Start()

	logger.Info("durability worker started")

	sig := <-quit
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := monitorServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("monitor shutdown failed", zap.Error(err))
	}

	logger.Info("durability worker stopped")
}

// newPersistence picks the configured backend: postgres, then redis,
// then process memory for development setups.
func newPersistence(cfg config.Configs, logger *zap.Logger) capability.Persistence {
	if cfg.POSTGRES.DSN != "" {
		db, err := store.NewSQL(cfg.POSTGRES.DSN)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		logger.Info("using postgres persistence")
		return persistpg.New(db)
	}

	if cfg.REDIS.DSN != "" {
		r, err := store.NewRedis(cfg.REDIS.DSN)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		logger.Info("using redis persistence")
		return persistredis.New(r)
	}

	logger.Warn("no durable store configured, using process memory")
	return memory.New()
}

// sweepTornRecords periodically drops resolved torn records past
// retention.
func (w *Worker) sweepTornRecords(ctx context.Context) {
	ticker := time.NewTicker(w.config.TORN.SweepInterval)
	defer ticker.Stop()

	w.logger.Info("torn record sweeper started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("torn record sweeper stopping")
			return
		case <-ticker.C:
			if err := w.tornLog.Sweep(ctx, tornRetention); err != nil {
				w.logger.Error("torn sweep failed", zap.Error(err))
			}
		}
	}
}
