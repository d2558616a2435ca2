package escrow

import (
	"context"
	"sync"

	"github.com/xela07ax/treasury-vesting/internal/domain"
)

// TransferHook вызывается после списания/зачисления, до возврата из Transfer.
// Это точка, через которую получатель может вызвать леджер повторно (reentrancy).
// На исход самого перевода хук не влияет: перевод к этому моменту уже состоялся.
type TransferHook func(ctx context.Context, from, to domain.Address, amount uint64)

// MemoryToken хранит балансы в памяти, весь выпуск начисляется развертывающему.
type MemoryToken struct {
	mu       sync.RWMutex
	address  domain.Address
	symbol   string
	balances map[domain.Address]uint64
	hook     TransferHook
}

func NewMemoryToken(address domain.Address, symbol string, holder domain.Address, supply uint64) *MemoryToken {
	t := &MemoryToken{
		address:  address,
		symbol:   symbol,
		balances: make(map[domain.Address]uint64),
	}
	if !holder.IsZero() && supply > 0 {
		t.balances[holder] = supply
	}
	return t
}

func (t *MemoryToken) Address() domain.Address { return t.address }
func (t *MemoryToken) Symbol() string          { return t.symbol }

// OnTransfer регистрирует хук получателя.
func (t *MemoryToken) OnTransfer(hook TransferHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hook = hook
}

func (t *MemoryToken) BalanceOf(_ context.Context, owner domain.Address) (uint64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balances[owner], nil
}

// Transfer возвращает false (без ошибки) при нехватке средств, как ERC-20.
// Блокировка снимается до вызова хука, иначе повторный вход зависнет.
func (t *MemoryToken) Transfer(ctx context.Context, from, to domain.Address, amount uint64) (bool, error) {
	t.mu.Lock()
	if t.balances[from] < amount {
		t.mu.Unlock()
		return false, nil
	}
	t.balances[from] -= amount
	t.balances[to] += amount
	hook := t.hook
	t.mu.Unlock()

	domain.Emit(ctx, domain.TransferEvent(from, to, amount))

	if hook != nil {
		hook(ctx, from, to, amount)
	}
	return true, nil
}
