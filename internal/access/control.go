package access

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/xela07ax/treasury-vesting/internal/domain"
)

// Enforcer: то, что нужно леджеру от контроля доступа.
type Enforcer interface {
	Owner() domain.Address
	RequireOwner(caller domain.Address) error
	RequireApprover(caller domain.Address) error
	CheckSelfApproval(caller domain.Address, parties ...domain.Address) error
}

// Control хранит владельца и фиксированный набор согласующих.
// Набор задается при развертывании и дальше не меняется, поэтому мьютекс не нужен.
type Control struct {
	owner             domain.Address
	approvers         mapset.Set[domain.Address]
	allowSelfApproval bool
}

type Option func(*Control)

// WithApprovers ограничивает круг согласующих. Пустой список: голосовать может
// любой уникальный вызывающий.
func WithApprovers(approvers ...domain.Address) Option {
	return func(c *Control) {
		for _, a := range approvers {
			if !a.IsZero() {
				c.approvers.Add(a)
			}
		}
	}
}

// WithSelfApproval разрешает/запрещает голос инициатора или бенефициара заявки.
func WithSelfApproval(allowed bool) Option {
	return func(c *Control) { c.allowSelfApproval = allowed }
}

func New(owner domain.Address, opts ...Option) *Control {
	c := &Control{
		owner:             owner,
		approvers:         mapset.NewSet[domain.Address](),
		allowSelfApproval: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Control) Owner() domain.Address { return c.owner }

// Approvers возвращает настроенный список (пустой: круг открыт).
func (c *Control) Approvers() []domain.Address { return c.approvers.ToSlice() }

func (c *Control) RequireOwner(caller domain.Address) error {
	if caller.IsZero() || caller != c.owner {
		return fmt.Errorf("%w: %q is not the owner", domain.ErrUnauthorized, caller)
	}
	return nil
}

func (c *Control) IsApprover(caller domain.Address) bool {
	if caller.IsZero() {
		return false
	}
	if c.approvers.Cardinality() == 0 {
		return true
	}
	return c.approvers.Contains(caller)
}

func (c *Control) RequireApprover(caller domain.Address) error {
	if !c.IsApprover(caller) {
		return fmt.Errorf("%w: %q is not an approver", domain.ErrUnauthorized, caller)
	}
	return nil
}

// CheckSelfApproval отклоняет голос стороны заявки, если политика это запрещает.
func (c *Control) CheckSelfApproval(caller domain.Address, parties ...domain.Address) error {
	if c.allowSelfApproval {
		return nil
	}
	for _, p := range parties {
		if !p.IsZero() && p == caller {
			return domain.ErrSelfApproval
		}
	}
	return nil
}
