package ledger

/*
Файл ledger.go — исполнитель транзакций леджера.

Модель исполнения:
- Все изменяющие операции идут строго последовательно под одним мьютексом.
- На входе в кадр снимается копия состояния; любая ошибка (проверка, отказ токена,
  сбой коммита в хранилище) возвращает копию и отбрасывает события кадра.
- Внешний токен может вызвать леджер повторно из Transfer, передав тот же контекст.
  Такой вызов исполняется как вложенный кадр той же транзакции без повторного захвата мьютекса.
- Время блока фиксируется один раз на транзакцию.
- Перед внешним переводом затронутые записи пишутся в хранилище (чекпоинт), так что
  флаг released/processed долговечен раньше, чем деньги ушли. Если перевод не состоялся,
  чекпоинт компенсируется значениями из снапшота.
- Состоявшийся перевод необратим: после него транзакция уже не откатывается.
*/

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/treasury-vesting/internal/access"
	"github.com/xela07ax/treasury-vesting/internal/domain"
	"github.com/xela07ax/treasury-vesting/internal/escrow"
	"go.uber.org/zap"
)

const DefaultThreshold = 3

type Config struct {
	Threshold int
	FirstID   uint64
	// Treasury: получатель выводов; по умолчанию владелец
	Treasury domain.Address
	// TokenAddress: адрес токена, фиксируется при развертывании
	TokenAddress domain.Address
}

// Sink получает квитанции закоммиченных транзакций (шина событий, журнал).
// Вызывается вне мьютекса, строго в порядке коммитов, и не может откатить транзакцию.
type Sink interface {
	Record(ctx context.Context, receipt domain.Receipt)
}

type Ledger struct {
	mu  sync.Mutex
	st  *state
	cfg Config

	acl     access.Enforcer
	escrow  *escrow.Escrow
	store   Store
	sinks   []Sink
	clock   func() time.Time
	metrics *Metrics
	logger  *zap.Logger

	// committed: номер последнего коммита, растет под mu.
	// delivered: номер последней квитанции, отданной стокам.
	committed uint64
	sinkMu    sync.Mutex
	sinkCond  *sync.Cond
	delivered uint64
}

type Option func(*Ledger)

func WithStore(s Store) Option                { return func(l *Ledger) { l.store = s } }
func WithClock(clock func() time.Time) Option { return func(l *Ledger) { l.clock = clock } }
func WithMetrics(m *Metrics) Option           { return func(l *Ledger) { l.metrics = m } }
func WithLogger(lg *zap.Logger) Option        { return func(l *Ledger) { l.logger = lg } }
func WithSinks(s ...Sink) Option              { return func(l *Ledger) { l.sinks = append(l.sinks, s...) } }

func New(cfg Config, acl access.Enforcer, esc *escrow.Escrow, opts ...Option) *Ledger {
	if cfg.Threshold < 1 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.FirstID == 0 {
		cfg.FirstID = 1
	}
	if cfg.Treasury.IsZero() {
		cfg.Treasury = acl.Owner()
	}

	l := &Ledger{
		st:     newState(cfg.Threshold, cfg.FirstID),
		cfg:    cfg,
		acl:    acl,
		escrow: esc,
		store:  NewMemoryStore(),
		clock:  time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.metrics == nil {
		l.metrics = NewMetrics(nil)
	}
	l.sinkCond = sync.NewCond(&l.sinkMu)
	l.logger = l.logger.Named("ledger")
	return l
}

// Load поднимает состояние из хранилища (холодный старт).
func (l *Ledger) Load(ctx context.Context) error {
	snap, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("ledger: load snapshot: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	st := newState(l.cfg.Threshold, l.cfg.FirstID)
	st.restore(snap)
	l.st = st

	l.logger.Info("ledger state loaded",
		zap.Int("vestings", len(snap.Vestings)),
		zap.Int("vesting_requests", len(snap.VestingRequests)),
		zap.Int("withdraw_requests", len(snap.WithdrawRequests)))
	return nil
}

type txKey struct{}

// tx: контекст одной транзакции, общий для всех вложенных кадров.
type tx struct {
	id      string
	ledger  *Ledger
	caller  domain.Address
	now     time.Time
	events  []domain.Event
	touched *touched

	// checkpointed: записи, уже записанные в хранилище до конца транзакции
	checkpointed *touched
	// interacted: состоялся хотя бы один внешний перевод
	interacted bool
}

func (t *tx) emit(ev domain.Event) {
	t.events = append(t.events, ev)
}

func txFrom(ctx context.Context) *tx {
	t, _ := ctx.Value(txKey{}).(*tx)
	return t
}

type txFunc func(ctx context.Context, t *tx) (uint64, error)

// exec исполняет операцию атомарно: либо все изменения и события, либо ничего.
func (l *Ledger) exec(ctx context.Context, op string, caller domain.Address, fn txFunc) (*domain.Receipt, error) {
	if t := txFrom(ctx); t != nil && t.ledger == l {
		return l.execNested(ctx, t, op, fn)
	}

	start := time.Now()
	receipt, ticket, err := l.execTop(ctx, op, caller, fn)
	l.metrics.TxDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	l.metrics.TxTotal.WithLabelValues(op, resultLabel(err)).Inc()
	if err != nil {
		return nil, err
	}

	l.deliver(ctx, ticket, *receipt)
	return receipt, nil
}

// deliver отдает квитанцию стокам в порядке коммитов: ticket выдается под
// мьютексом леджера, а очередная квитанция ждет, пока уйдут все предыдущие.
func (l *Ledger) deliver(ctx context.Context, ticket uint64, receipt domain.Receipt) {
	if len(l.sinks) == 0 {
		return
	}

	l.sinkMu.Lock()
	for l.delivered+1 != ticket {
		l.sinkCond.Wait()
	}
	l.sinkMu.Unlock()

	defer func() {
		l.sinkMu.Lock()
		l.delivered = ticket
		l.sinkCond.Broadcast()
		l.sinkMu.Unlock()
	}()

	for _, s := range l.sinks {
		s.Record(ctx, receipt)
	}
}

func (l *Ledger) execTop(ctx context.Context, op string, caller domain.Address, fn txFunc) (*domain.Receipt, uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := &tx{
		id:           uuid.NewString(),
		ledger:       l,
		caller:       caller,
		now:          l.clock(),
		touched:      newTouched(),
		checkpointed: newTouched(),
	}
	ctx = context.WithValue(ctx, txKey{}, t)
	ctx = domain.WithEmitter(ctx, t.emit)

	snap := l.st.clone()
	resultID, err := fn(ctx, t)
	if err != nil {
		l.revert(ctx, t, snap, op, err)
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	if err := l.store.Commit(ctx, l.st.changeSet(t.id, t.touched)); err != nil {
		if t.interacted {
			// Деньги уже ушли, а флаги выплаты записаны чекпоинтом.
			// Откат памяти открыл бы дорогу второй выплате, поэтому состояние оставляем.
			l.logger.Error("critical: transfer done but final commit failed",
				zap.String("tx_id", t.id),
				zap.String("operation", op),
				zap.Error(err))
			return nil, 0, fmt.Errorf("%s: commit after transfer: %w", op, err)
		}
		l.revert(ctx, t, snap, op, err)
		return nil, 0, fmt.Errorf("%s: commit: %w", op, err)
	}

	l.committed++

	l.logger.Info("transaction committed",
		zap.String("tx_id", t.id),
		zap.String("operation", op),
		zap.String("caller", caller.String()),
		zap.Int("events", len(t.events)))

	return &domain.Receipt{
		TxID:      t.id,
		Operation: op,
		Caller:    caller,
		Timestamp: t.now,
		Events:    t.events,
		ResultID:  resultID,
	}, l.committed, nil
}

// revert возвращает память к снапшоту и компенсирует чекпоинты в хранилище.
func (l *Ledger) revert(ctx context.Context, t *tx, snap *state, op string, cause error) {
	l.st = snap

	if !t.checkpointed.empty() {
		cs := l.st.changeSet(t.id, t.checkpointed)
		if err := l.store.Commit(context.WithoutCancel(ctx), cs); err != nil {
			l.logger.Error("critical: checkpoint compensation failed",
				zap.String("tx_id", t.id),
				zap.String("operation", op),
				zap.Error(err))
		}
		t.checkpointed = newTouched()
	}

	l.logger.Debug("transaction reverted",
		zap.String("tx_id", t.id),
		zap.String("operation", op),
		zap.String("caller", t.caller.String()),
		zap.Error(cause))
}

// execNested: повторный вход из внешнего вызова в рамках той же транзакции.
// Ошибка откатывает только этот кадр; внешний кадр решает сам, что с ней делать.
func (l *Ledger) execNested(ctx context.Context, t *tx, op string, fn txFunc) (*domain.Receipt, error) {
	snap := l.st.clone()
	mark := len(t.events)
	touchedSnap := t.touched.clone()
	checkpointedSnap := t.checkpointed.clone()

	resultID, err := fn(ctx, t)
	if err != nil {
		l.st = snap
		t.events = t.events[:mark]
		t.touched = touchedSnap
		if t.checkpointed.size() != checkpointedSnap.size() {
			// кадр успел записать чекпоинт: возвращаем хранилище к состоянию на входе в кадр
			if cErr := l.store.Commit(context.WithoutCancel(ctx), l.st.changeSet(t.id, t.checkpointed)); cErr != nil {
				l.logger.Error("critical: nested checkpoint compensation failed",
					zap.String("tx_id", t.id), zap.Error(cErr))
			}
			t.checkpointed = checkpointedSnap
		}
		l.logger.Warn("nested call reverted",
			zap.String("tx_id", t.id),
			zap.String("operation", op),
			zap.Error(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &domain.Receipt{
		TxID:      t.id,
		Operation: op,
		Caller:    t.caller,
		Timestamp: t.now,
		Events:    append([]domain.Event(nil), t.events[mark:]...),
		ResultID:  resultID,
	}, nil
}

// pay: единственная точка взаимодействия с внешним миром внутри транзакции.
// Сначала чекпоинт эффектов, потом перевод.
func (l *Ledger) pay(ctx context.Context, t *tx, to domain.Address, amount uint64) error {
	if err := l.store.Commit(ctx, l.st.changeSet(t.id, t.touched)); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	t.checkpointed.merge(t.touched)

	if err := l.escrow.Pay(ctx, to, amount); err != nil {
		return err
	}
	t.interacted = true
	return nil
}

// view дает чтение согласованного состояния; внутри транзакции: без блокировки.
func (l *Ledger) view(ctx context.Context, fn func(s *state)) {
	if t := txFrom(ctx); t != nil && t.ledger == l {
		fn(l.st)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.st)
}

var resultLabels = []struct {
	err   error
	label string
}{
	{domain.ErrUnauthorized, "unauthorized"},
	{domain.ErrNotFound, "not_found"},
	{domain.ErrDuplicateApproval, "duplicate_approval"},
	{domain.ErrAlreadyApproved, "already_approved"},
	{domain.ErrNotYetApproved, "not_yet_approved"},
	{domain.ErrAlreadyReleased, "already_released"},
	{domain.ErrAlreadyProcessed, "already_processed"},
	{domain.ErrAlreadyStarted, "already_started"},
	{domain.ErrNotYetReleasable, "not_yet_releasable"},
	{domain.ErrInsufficientBalance, "insufficient_balance"},
	{domain.ErrSelfApproval, "self_approval"},
	{domain.ErrTransferFailed, "transfer_failed"},
	{escrow.ErrThrottled, "throttled"},
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	for _, rl := range resultLabels {
		if errors.Is(err, rl.err) {
			return rl.label
		}
	}
	return "error"
}

func (l *Ledger) Owner() domain.Address         { return l.acl.Owner() }
func (l *Ledger) Token() domain.Address         { return l.cfg.TokenAddress }
func (l *Ledger) Treasury() domain.Address      { return l.cfg.Treasury }
func (l *Ledger) Threshold() int                { return l.cfg.Threshold }
func (l *Ledger) EscrowAddress() domain.Address { return l.escrow.Address() }

func (l *Ledger) EscrowBalance(ctx context.Context) (uint64, error) {
	return l.escrow.Balance(ctx)
}

// Counters: текущие значения счетчиков идентификаторов
func (l *Ledger) Counters(ctx context.Context) domain.Counters {
	var c domain.Counters
	l.view(ctx, func(s *state) { c = s.counters() })
	return c
}
