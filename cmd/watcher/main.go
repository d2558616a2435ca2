package main

// watcher: наблюдатель шины квитанций леджера.
// Логирует каждую закоммиченную транзакцию и считает события по именам.

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/treasury-vesting/internal/domain"
	"github.com/xela07ax/treasury-vesting/internal/events"
	"github.com/xela07ax/treasury-vesting/internal/infra"
)

func main() {
	configDir := flag.String("config", "", "directory with config.yaml")
	metricsAddr := flag.String("metrics", ":9101", "address for /metrics")
	flag.Parse()

	cfg, err := infra.LoadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Redis.Addr == "" {
		logger.Fatal("redis.addr is required for watcher")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	eventsSeen := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "treasury_watcher_events_total",
		Help: "Events observed on the ledger bus",
	}, []string{"event"})
	receiptsSeen := promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "treasury_watcher_receipts_total",
		Help: "Committed transactions observed on the ledger bus",
	})

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	publisher := events.NewPublisher(rdb, infra.RedisChanLedgerEvents, infra.RedisKeyLastReceipt, logger)

	var (
		mu     sync.Mutex
		lastTx string
	)

	sub := events.NewSubscriber(rdb, infra.RedisChanLedgerEvents, logger)
	// После переподключения сверяемся с последней квитанцией: пропущенные транзакции
	// видны в журнале ledger_events
	sub.OnReconnect = func(ctx context.Context) error {
		last, err := publisher.LastReceipt(ctx)
		if err != nil {
			return err
		}
		if last == nil {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		if lastTx != "" && last.TxID != lastTx {
			logger.Warn("receipts missed while disconnected",
				zap.String("seen_tx", lastTx), zap.String("bus_tx", last.TxID))
		}
		lastTx = last.TxID
		return nil
	}

	metricsSrv := &http.Server{
		Addr:    *metricsAddr,
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	logger.Info("watcher started", zap.String("chan", infra.RedisChanLedgerEvents))
	sub.Run(ctx, func(r domain.Receipt) {
		mu.Lock()
		lastTx = r.TxID
		mu.Unlock()

		receiptsSeen.Inc()
		names := make([]string, 0, len(r.Events))
		for _, e := range r.Events {
			eventsSeen.WithLabelValues(e.Name).Inc()
			names = append(names, e.Name)
		}
		logger.Info("ledger tx",
			zap.String("tx_id", r.TxID),
			zap.String("op", r.Operation),
			zap.String("caller", r.Caller.String()),
			zap.Strings("events", names))
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info("watcher exited properly")
}
