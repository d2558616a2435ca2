package escrow

import (
	"context"
	"fmt"

	"github.com/xela07ax/treasury-vesting/internal/domain"
)

// Escrow: баланс леджера во внешнем токене. Pay является единственным путем списания.
type Escrow struct {
	token   Token
	address domain.Address
}

func New(token Token, address domain.Address) *Escrow {
	return &Escrow{token: token, address: address}
}

func (e *Escrow) Address() domain.Address { return e.address }

func (e *Escrow) Balance(ctx context.Context) (uint64, error) {
	bal, err := e.token.BalanceOf(ctx, e.address)
	if err != nil {
		return 0, fmt.Errorf("escrow: balance query failed: %w", err)
	}
	return bal, nil
}

// Pay переводит amount получателю. Проверку баланса делает вызывающий
// до изменения состояния; здесь ловим только отказ самого токена.
func (e *Escrow) Pay(ctx context.Context, to domain.Address, amount uint64) error {
	ok, err := e.token.Transfer(ctx, e.address, to, amount)
	if err != nil {
		return fmt.Errorf("escrow: transfer to %s failed: %w", to, err)
	}
	if !ok {
		return fmt.Errorf("escrow: transfer to %s: %w", to, domain.ErrTransferFailed)
	}
	return nil
}
