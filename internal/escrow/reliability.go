package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/treasury-vesting/internal/domain"
	"golang.org/x/time/rate"
)

type ReliabilityConfig struct {
	Name          string
	MaxRequests   uint32
	Interval      time.Duration
	Timeout       time.Duration
	FailureStreak uint32
	RatePerSecond float64
	Burst         int
	Attempts      uint
	RetryDelay    time.Duration
	CallTimeout   time.Duration
	// MaxWait ограничивает ожидание лимитера и паузу, которую просит токен (RetryAfter).
	// Вызовы идут под мьютексом леджера, поэтому дольше ждать нельзя: лучше отказ.
	MaxWait time.Duration
}

// ErrThrottled: токен или локальный лимитер не готовы принять вызов в пределах MaxWait.
var ErrThrottled = errors.New("token throttled")

func DefaultReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		Name:          "token",
		MaxRequests:   3,
		Interval:      5 * time.Second,
		Timeout:       30 * time.Second,
		FailureStreak: 5,
		RatePerSecond: 100,
		Burst:         20,
		Attempts:      3,
		RetryDelay:    100 * time.Millisecond,
		CallTimeout:   10 * time.Second,
		MaxWait:       500 * time.Millisecond,
	}
}

// ReliableToken оборачивает токен предохранителем и лимитером.
// Чтения баланса ретраятся; Transfer не ретраится никогда, повтор перевода означает двойную выплату.
type ReliableToken struct {
	next    Token
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	cfg     ReliabilityConfig
}

func NewReliableToken(next Token, cfg ReliabilityConfig) *ReliableToken {
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultReliabilityConfig().MaxWait
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > cfg.FailureStreak
		},
		// Отказ токена (false): бизнес-результат, а не сбой транспорта
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrTransferFailed)
		},
	})

	return &ReliableToken{
		next:    next,
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		cfg:     cfg,
	}
}

// State отдает состояние предохранителя для метрик
func (w *ReliableToken) State() gobreaker.State {
	return w.cb.State()
}

// wait ждет лимитер не дольше MaxWait. rate.Limiter сразу возвращает ошибку,
// если нужная задержка не укладывается в дедлайн.
func (w *ReliableToken) wait(ctx context.Context) error {
	wCtx, cancel := context.WithTimeout(ctx, w.cfg.MaxWait)
	defer cancel()
	if err := w.limiter.Wait(wCtx); err != nil {
		return fmt.Errorf("rate limit exceeded: %v: %w", err, ErrThrottled)
	}
	return nil
}

func (w *ReliableToken) BalanceOf(ctx context.Context, owner domain.Address) (uint64, error) {
	if err := w.wait(ctx); err != nil {
		return 0, err
	}

	var balance uint64
	_, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.cfg.Attempts),
			retry.Delay(w.cfg.RetryDelay),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				d := retry.BackOffDelay(n, err, config)
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					d = tErr.RetryAfter
				}
				return min(d, w.cfg.MaxWait)
			}),
		)

		return nil, r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
			defer cancel()

			var callErr error
			balance, callErr = w.next.BalanceOf(tCtx, owner)
			return callErr
		})
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (w *ReliableToken) Transfer(ctx context.Context, from, to domain.Address, amount uint64) (bool, error) {
	if err := w.wait(ctx); err != nil {
		return false, err
	}

	res, err := w.cb.Execute(func() (interface{}, error) {
		ok, err := w.next.Transfer(ctx, from, to, amount)
		if err == nil && !ok {
			return false, domain.ErrTransferFailed
		}
		return ok, err
	})
	if errors.Is(err, domain.ErrTransferFailed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}
