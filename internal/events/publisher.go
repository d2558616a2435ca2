package events

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/xela07ax/treasury-vesting/internal/domain"
	"go.uber.org/zap"
)

// Publisher транслирует квитанции закоммиченных транзакций в Redis Pub/Sub.
// Реализует ledger.Sink: ошибка публикации логируется, транзакцию она не откатывает.
type Publisher struct {
	rdb     *redis.Client
	channel string
	lastKey string
	timeout time.Duration
	logger  *zap.Logger
}

func NewPublisher(rdb *redis.Client, channel, lastKey string, logger *zap.Logger) *Publisher {
	return &Publisher{
		rdb:     rdb,
		channel: channel,
		lastKey: lastKey,
		timeout: 2 * time.Second,
		logger:  logger.With(zap.String("mod", "publisher")),
	}
}

func Encode(r domain.Receipt) ([]byte, error) { return msgpack.Marshal(r) }

func Decode(b []byte) (domain.Receipt, error) {
	var r domain.Receipt
	err := msgpack.Unmarshal(b, &r)
	return r, err
}

func (p *Publisher) Record(ctx context.Context, receipt domain.Receipt) {
	payload, err := Encode(receipt)
	if err != nil {
		p.logger.Error("failed to encode receipt", zap.String("tx_id", receipt.TxID), zap.Error(err))
		return
	}

	// Контекст запроса мог уже закончиться, а публикация должна дойти
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	pipe := p.rdb.TxPipeline()
	pipe.Set(ctx, p.lastKey, payload, 0)
	pipe.Publish(ctx, p.channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		p.logger.Warn("failed to publish receipt",
			zap.String("tx_id", receipt.TxID),
			zap.String("chan", p.channel),
			zap.Error(err))
		return
	}
	p.logger.Debug("receipt published", zap.String("tx_id", receipt.TxID), zap.Int("events", len(receipt.Events)))
}

// LastReceipt читает последнюю опубликованную квитанцию (nil, если публикаций не было).
func (p *Publisher) LastReceipt(ctx context.Context) (*domain.Receipt, error) {
	b, err := p.rdb.Get(ctx, p.lastKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
