package journal

/*
Файл journal.go — журнал квитанций леджера.

- Non-blocking: Record не ждет БД, квитанция кладется в буферизованный канал.
  Задержки записи не влияют на время ответа операций леджера.
- Batching: квитанции копятся в памяти и уходят одной пачкой (Bulk Insert)
  по таймеру или при достижении BatchSize.
- Drain Pattern: Stop закрывает вход, воркер вычитывает остаток канала
  и делает финальный flush. Квитанции, принятые до Stop, не теряются.
- Load Shedding: при переполнении буфера квитанция сбрасывается с записью в лог,
  транзакция леджера от этого не откатывается.
*/

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xela07ax/treasury-vesting/internal/domain"
	"go.uber.org/zap"
)

// Storage определяет, куда физически сохраняются квитанции
type Storage interface {
	// WriteBatch сохраняет пачку квитанций за один раз
	WriteBatch(ctx context.Context, receipts []domain.Receipt) error
}

type Config struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		BufferSize:    10000,
		BatchSize:     100,
		FlushInterval: 500 * time.Millisecond,
	}
}

type Journal struct {
	cfg    Config
	ch     chan domain.Receipt
	repo   Storage
	fill   prometheus.Gauge
	logger *zap.Logger
	wg     sync.WaitGroup

	// mu защищает закрытие канала от конкурентного Record
	mu     sync.RWMutex
	closed bool
}

func New(repo Storage, cfg Config, fill prometheus.Gauge, logger *zap.Logger) *Journal {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if fill == nil {
		fill = prometheus.NewGauge(prometheus.GaugeOpts{Name: "journal_buffer_utilization"})
	}
	return &Journal{
		cfg:    cfg,
		ch:     make(chan domain.Receipt, cfg.BufferSize),
		repo:   repo,
		fill:   fill,
		logger: logger.With(zap.String("mod", "journal")),
	}
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.worker()
}

// Stop запирает вход в канал и ждет, пока воркер все допишет.
func (j *Journal) Stop() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	j.logger.Info("stopping journal: closing channel and flushing buffer...")
	close(j.ch)
	j.mu.Unlock()

	j.wg.Wait()
	j.logger.Info("journal stopped gracefully")
}

// Record реализует ledger.Sink.
func (j *Journal) Record(_ context.Context, receipt domain.Receipt) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		j.logger.Warn("receipt dropped: journal is stopping", zap.String("tx_id", receipt.TxID))
		return
	}

	select {
	case j.ch <- receipt:
		j.fill.Set(float64(len(j.ch)))
	default:
		j.logger.Error("journal_buffer_overflow",
			zap.String("tx_id", receipt.TxID),
			zap.String("operation", receipt.Operation),
		)
	}
}

func (j *Journal) worker() {
	defer j.wg.Done()

	batch := make([]domain.Receipt, 0, j.cfg.BatchSize)
	ticker := time.NewTicker(j.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: к моменту финального flush контекст приложения уже отменен
		if err := j.repo.WriteBatch(context.Background(), batch); err != nil {
			j.logger.Error("journal flush failed", zap.Int("receipts", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
		j.fill.Set(float64(len(j.ch)))
	}

	for {
		select {
		case receipt, ok := <-j.ch:
			if !ok {
				flush()
				j.logger.Info("journal worker finished")
				return
			}
			batch = append(batch, receipt)
			if len(batch) >= j.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
