package approval

/*
Пакет approval: обобщенный механизм порогового согласования.
Один и тот же конечный автомат (PENDING -> APPROVED) обслуживает и заявки на вестинг,
и заявки на вывод средств; каждая копия Workflow ведет собственное пространство id.
*/

import (
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/xela07ax/treasury-vesting/internal/domain"
)

// Status: состояние заявки в измерении согласования
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
)

// Request: запись заявки. Payload хранится по значению, поэтому Clone
// дает независимую копию, если P не содержит ссылок.
type Request[P any] struct {
	ID        uint64
	Payload   P
	approvals mapset.Set[domain.Address]
	approved  bool
}

func (r *Request[P]) Status() Status {
	if r.approved {
		return StatusApproved
	}
	return StatusPending
}

func (r *Request[P]) IsApproved() bool { return r.approved }

func (r *Request[P]) HasApproved(who domain.Address) bool {
	return r.approvals.Contains(who)
}

func (r *Request[P]) ApprovalCount() int { return r.approvals.Cardinality() }

// Approvals возвращает согласовавших в стабильном (отсортированном) порядке.
func (r *Request[P]) Approvals() []domain.Address {
	out := r.approvals.ToSlice()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CanApprove проверяет правила автомата для очередного голоса.
func (r *Request[P]) CanApprove(who domain.Address) error {
	if r.approvals.Contains(who) {
		return domain.ErrDuplicateApproval
	}
	if r.approved {
		return domain.ErrAlreadyApproved
	}
	return nil
}

type Workflow[P any] struct {
	threshold int
	nextID    uint64
	requests  map[uint64]*Request[P]
}

// New создает workflow с фиксированным порогом; firstID: первый выдаваемый id.
func New[P any](threshold int, firstID uint64) *Workflow[P] {
	if threshold < 1 {
		threshold = 1
	}
	return &Workflow[P]{
		threshold: threshold,
		nextID:    firstID,
		requests:  make(map[uint64]*Request[P]),
	}
}

func (w *Workflow[P]) Threshold() int { return w.threshold }

// NextID: id, который получит следующая заявка
func (w *Workflow[P]) NextID() uint64 { return w.nextID }

func (w *Workflow[P]) Len() int { return len(w.requests) }

// Create выделяет следующий id и сохраняет заявку с пустым набором голосов.
func (w *Workflow[P]) Create(payload P) uint64 {
	id := w.nextID
	w.nextID++
	w.requests[id] = &Request[P]{
		ID:        id,
		Payload:   payload,
		approvals: mapset.NewThreadUnsafeSet[domain.Address](),
	}
	return id
}

func (w *Workflow[P]) Get(id uint64) (*Request[P], bool) {
	r, ok := w.requests[id]
	return r, ok
}

// Approve засчитывает голос. crossed=true ровно один раз: на голосе,
// которым набран порог.
func (w *Workflow[P]) Approve(id uint64, who domain.Address) (crossed bool, err error) {
	r, ok := w.requests[id]
	if !ok {
		return false, fmt.Errorf("request %d: %w", id, domain.ErrNotFound)
	}
	if err := r.CanApprove(who); err != nil {
		return false, fmt.Errorf("request %d: %w", id, err)
	}

	r.approvals.Add(who)
	if r.approvals.Cardinality() >= w.threshold {
		r.approved = true
		return true, nil
	}
	return false, nil
}

// Clone: глубокая копия для снапшота транзакции.
func (w *Workflow[P]) Clone() *Workflow[P] {
	c := &Workflow[P]{
		threshold: w.threshold,
		nextID:    w.nextID,
		requests:  make(map[uint64]*Request[P], len(w.requests)),
	}
	for id, r := range w.requests {
		c.requests[id] = &Request[P]{
			ID:        r.ID,
			Payload:   r.Payload,
			approvals: r.approvals.Clone(),
			approved:  r.approved,
		}
	}
	return c
}

// Restore поднимает заявку из хранилища. Флаг approved берется из записи,
// а не пересчитывается: порог мог отличаться на момент согласования.
func (w *Workflow[P]) Restore(id uint64, payload P, approvals []domain.Address, approved bool) {
	w.requests[id] = &Request[P]{
		ID:        id,
		Payload:   payload,
		approvals: mapset.NewThreadUnsafeSet(approvals...),
		approved:  approved,
	}
	if id >= w.nextID {
		w.nextID = id + 1
	}
}

// SetNextID выставляет счетчик после загрузки; счетчик никогда не уменьшается.
func (w *Workflow[P]) SetNextID(next uint64) {
	if next > w.nextID {
		w.nextID = next
	}
}
