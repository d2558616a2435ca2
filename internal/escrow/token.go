package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/treasury-vesting/internal/domain"
)

// Token: граница внешнего fungible-токена.
// Transfer сам эмитит событие Transfer в журнал транзакции (domain.Emit).
type Token interface {
	BalanceOf(ctx context.Context, owner domain.Address) (uint64, error)
	Transfer(ctx context.Context, from, to domain.Address, amount uint64) (bool, error)
}

// ThrottleError: токен попросил подождать (например, лимит RPC-узла).
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }
