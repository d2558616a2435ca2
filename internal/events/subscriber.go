package events

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/treasury-vesting/internal/domain"
	"go.uber.org/zap"
)

// Subscriber: "живучая" подписка на канал квитанций.
// Переподключается после обрыва и вызывает OnReconnect для досинхронизации.
type Subscriber struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger

	// RetryDelay: пауза после неудачной подписки
	RetryDelay time.Duration
	// ReconnectDelay: пауза после закрытия канала сообщений
	ReconnectDelay time.Duration
	// OnReconnect вызывается после каждой успешной подписки
	OnReconnect func(ctx context.Context) error
}

func NewSubscriber(rdb *redis.Client, channel string, logger *zap.Logger) *Subscriber {
	return &Subscriber{
		rdb:            rdb,
		channel:        channel,
		logger:         logger.With(zap.String("mod", "subscriber")),
		RetryDelay:     5 * time.Second,
		ReconnectDelay: time.Second,
	}
}

// Run блокируется до отмены ctx.
func (s *Subscriber) Run(ctx context.Context, onReceipt func(domain.Receipt)) {
	for {
		pubsub := s.rdb.Subscribe(ctx, s.channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("failed to subscribe", zap.String("chan", s.channel), zap.Error(err))
			if !sleep(ctx, s.RetryDelay) {
				return
			}
			continue
		}

		if s.OnReconnect != nil {
			if err := s.OnReconnect(ctx); err != nil {
				s.logger.Error("sync failed on reconnect", zap.Error(err))
			}
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}
				r, err := Decode([]byte(msg.Payload))
				if err != nil {
					s.logger.Error("invalid receipt payload", zap.Int("bytes", len(msg.Payload)), zap.Error(err))
					continue
				}
				onReceipt(r)
			}
		}

		pubsub.Close()
		if !sleep(ctx, s.ReconnectDelay) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
