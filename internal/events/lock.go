package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockHeld: аренду держит другой инстанс.
var ErrLockHeld = errors.New("writer lock is held by another instance")

// Продление и снятие только своей аренды: сравниваем владельца атомарно.
var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// WriterLock: распределенная аренда (SetNX), чтобы транзакции леджера
// упорядочивал ровно один инстанс.
type WriterLock struct {
	rdb    *redis.Client
	key    string
	owner  string
	ttl    time.Duration
	logger *zap.Logger
}

func NewWriterLock(rdb *redis.Client, key string, ttl time.Duration, logger *zap.Logger) *WriterLock {
	return &WriterLock{
		rdb:    rdb,
		key:    key,
		owner:  uuid.NewString(),
		ttl:    ttl,
		logger: logger.With(zap.String("mod", "writer-lock")),
	}
}

func (l *WriterLock) Owner() string { return l.owner }

// Acquire берет аренду или возвращает ErrLockHeld.
func (l *WriterLock) Acquire(ctx context.Context) error {
	ok, err := l.rdb.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockHeld
	}
	l.logger.Info("writer lock acquired", zap.String("owner", l.owner), zap.Duration("ttl", l.ttl))
	return nil
}

// Refresh продлевает аренду; ErrLockHeld: аренда потеряна.
func (l *WriterLock) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, l.rdb, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockHeld
	}
	return nil
}

func (l *WriterLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.owner).Err()
}

// Keep продлевает аренду каждые ttl/3 до отмены ctx.
// Возвращенный канал закрывается, если аренда потеряна.
func (l *WriterLock) Keep(ctx context.Context) <-chan struct{} {
	lost := make(chan struct{})
	go func() {
		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := l.Refresh(ctx)
				if err == nil {
					continue
				}
				if errors.Is(err, ErrLockHeld) {
					l.logger.Error("writer lock lost", zap.String("owner", l.owner))
					close(lost)
					return
				}
				l.logger.Warn("writer lock refresh failed", zap.Error(err))
			}
		}
	}()
	return lost
}
