package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/xela07ax/treasury-vesting/internal/access"
	"github.com/xela07ax/treasury-vesting/internal/console/handler"
	"github.com/xela07ax/treasury-vesting/internal/console/server"
	"github.com/xela07ax/treasury-vesting/internal/console/service"
	"github.com/xela07ax/treasury-vesting/internal/domain"
	"github.com/xela07ax/treasury-vesting/internal/escrow"
	"github.com/xela07ax/treasury-vesting/internal/events"
	"github.com/xela07ax/treasury-vesting/internal/infra"
	"github.com/xela07ax/treasury-vesting/internal/infra/auth"
	"github.com/xela07ax/treasury-vesting/internal/journal"
	"github.com/xela07ax/treasury-vesting/internal/ledger"
	"github.com/xela07ax/treasury-vesting/internal/repository/postgres"
	"github.com/xela07ax/treasury-vesting/internal/transport/grpcapi"
)

func main() {
	configDir := flag.String("config", "", "directory with config.yaml")
	addUser := flag.String("adduser", "", "register console user as name:password:address and exit")
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

	// Регистрация пользователя работает рядом с запущенным леджером:
	// ей нужна только база, аренда писателя в Redis не берется
	if *addUser != "" {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		if err := addUserCmd(ctx, cfg, logger, *addUser); err != nil {
			logger.Fatal("adduser failed", zap.Error(err))
		}
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("ledger service failed", zap.Error(err))
	}
}

func run(cfg *infra.Config, logger *zap.Logger) error {
	// Контекст жизненного цикла: SIGTERM или потеря аренды писателя останавливают сервис
	appCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	owner := domain.ParseAddress(cfg.Ledger.Owner)

	// 1. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := ledger.NewMetrics(reg)

	// 2. Хранилище (Postgres или память)
	var (
		store   ledger.Store = ledger.NewMemoryStore()
		sinks   []ledger.Sink
		users   service.AuthProvider
		jrnl    *journal.Journal
		cleanup []func()
	)
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	if cfg.Database.URL != "" {
		pcfg := postgres.PoolConfig{
			URL:             cfg.Database.URL,
			MaxConns:        cfg.Database.MaxConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}
		pool, err := postgres.NewPool(appCtx, pcfg)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, pool.Close)

		if err := postgres.Migrate(appCtx, pool, logger); err != nil {
			return err
		}
		store = postgres.NewLedgerStore(pool)
		users = postgres.NewUserRepo(pool)

		sqlDB, err := postgres.OpenSQL(pcfg)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, func() { _ = sqlDB.Close() })

		// Журнал: квитанции уходят в ledger_events пачками
		jrnl = journal.New(postgres.NewEventRepo(sqlDB), journal.Config{
			BufferSize:    cfg.Journal.BufferSize,
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
		}, metrics.JournalBufferFill, logger)
		jrnl.Start()
		cleanup = append(cleanup, jrnl.Stop)
		sinks = append(sinks, jrnl)
	} else {
		logger.Warn("database.url is empty: ledger state lives in memory only")
	}

	// 3. Шина событий и аренда писателя (Redis)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cleanup = append(cleanup, func() { _ = rdb.Close() })

		lock := events.NewWriterLock(rdb, infra.RedisKeyWriterLock, cfg.Redis.LockTTL, logger)
		if err := lock.Acquire(appCtx); err != nil {
			return fmt.Errorf("writer lock: %w", err)
		}
		cleanup = append(cleanup, func() { _ = lock.Release(context.Background()) })

		lost := lock.Keep(appCtx)
		go func() {
			select {
			case <-lost:
				// Другой инстанс мог начать упорядочивать транзакции: дальше писать нельзя
				stop()
			case <-appCtx.Done():
			}
		}()

		sinks = append(sinks, events.NewPublisher(rdb, infra.RedisChanLedgerEvents, infra.RedisKeyLastReceipt, logger))
	} else {
		logger.Warn("redis.addr is empty: receipts are not published")
	}

	// 4. Токен и эскроу. Весь выпуск начисляется владельцу при старте.
	memToken := escrow.NewMemoryToken(domain.ParseAddress(cfg.Token.Address), cfg.Token.Symbol, owner, cfg.Token.Supply)
	rcfg := escrow.DefaultReliabilityConfig()
	rcfg.Name = "token-" + cfg.Token.Symbol
	rcfg.CallTimeout = cfg.Token.CallTimeout
	rcfg.Attempts = cfg.Token.RetryAttempts
	rcfg.RetryDelay = cfg.Token.RetryDelay
	rcfg.RatePerSecond = cfg.Token.RateLimit
	rcfg.Burst = cfg.Token.RateBurst
	rcfg.Timeout = cfg.Token.CBTimeout
	rcfg.MaxWait = cfg.Token.MaxWait
	token := escrow.NewReliableToken(memToken, rcfg)

	// 5. Леджер
	acl := access.New(owner,
		access.WithApprovers(domain.ParseAddresses(cfg.Ledger.Approvers)...),
		access.WithSelfApproval(cfg.Ledger.AllowSelfApproval))

	l := ledger.New(ledger.Config{
		Threshold:    cfg.Ledger.Threshold,
		FirstID:      cfg.Ledger.FirstID,
		Treasury:     domain.ParseAddress(cfg.Ledger.Treasury),
		TokenAddress: memToken.Address(),
	}, acl, escrow.New(token, domain.ParseAddress(cfg.Ledger.EscrowAddress)),
		ledger.WithStore(store),
		ledger.WithMetrics(metrics),
		ledger.WithLogger(logger),
		ledger.WithSinks(sinks...))

	if err := l.Load(appCtx); err != nil {
		return err
	}

	// 6. Аутентификация
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		return err
	}
	validator := auth.NewBaseValidator(pubKey, cfg.Auth.Issuer)

	var authHandler *handler.AuthHandler
	if users != nil && len(cfg.Auth.PrivateKey) > 0 {
		privKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
		if err != nil {
			return err
		}
		authSvc := service.NewAuthService(users, auth.NewSigner(privKey, cfg.Auth.Issuer, cfg.Auth.TokenTTL), cfg.Auth.BcryptCost, logger)
		authHandler = handler.NewAuthHandler(authSvc)
	}

	// 7. Транспорты
	treasury := service.NewTreasuryService(l, token, logger)
	api := server.NewConsoleServer(logger, validator, authHandler, handler.NewLedgerHandler(treasury, logger))

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(grpcapi.UnaryAuthInterceptor(validator, logger)))
	grpcapi.RegisterLedgerServiceServer(grpcSrv, grpcapi.NewLedgerServer(treasury, logger))

	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}

	errCh := make(chan error, 3)
	go func() {
		logger.Info("HTTP API started", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics: %w", err)
		}
	}()
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			errCh <- fmt.Errorf("grpc listen: %w", err)
			return
		}
		logger.Info("gRPC API started", zap.String("addr", addr))
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()

	// 8. Graceful Shutdown
	var runErr error
	select {
	case <-appCtx.Done():
		logger.Info("ledger service stopping...")
	case runErr = <-errCh:
		logger.Error("server failed, stopping", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	_ = metricsSrv.Shutdown(shutdownCtx)

	logger.Info("ledger service exited properly")
	return runErr
}
