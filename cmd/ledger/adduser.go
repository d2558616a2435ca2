package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xela07ax/treasury-vesting/internal/console/service"
	"github.com/xela07ax/treasury-vesting/internal/domain"
	"github.com/xela07ax/treasury-vesting/internal/infra"
	"github.com/xela07ax/treasury-vesting/internal/repository/postgres"
)

var errNoDatabase = errors.New("adduser needs database.url")

// addUserCmd заводит пользователя консоли и выходит. Трогает только Postgres.
func addUserCmd(ctx context.Context, cfg *infra.Config, logger *zap.Logger, entry string) error {
	if cfg.Database.URL == "" {
		return errNoDatabase
	}

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool, logger); err != nil {
		return err
	}
	return registerUser(ctx, postgres.NewUserRepo(pool), cfg.Auth.BcryptCost, logger, entry)
}

// registerUser разбирает name:password:address. Подпись токенов здесь не нужна.
func registerUser(ctx context.Context, users service.AuthProvider, bcryptCost int, logger *zap.Logger, entry string) error {
	parts := strings.SplitN(entry, ":", 3)
	if len(parts) != 3 {
		return fmt.Errorf("adduser: expected name:password:address, got %q", entry)
	}
	svc := service.NewAuthService(users, nil, bcryptCost, logger)
	_, err := svc.Register(ctx, parts[0], parts[1], domain.ParseAddress(parts[2]), nil)
	return err
}
