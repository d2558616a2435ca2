package ledger

import (
	"context"
	"fmt"

	"github.com/xela07ax/treasury-vesting/internal/domain"
	"go.uber.org/zap"
)

// AddVesting: прямое создание графика владельцем, в обход согласования.
func (l *Ledger) AddVesting(ctx context.Context, caller, beneficiary domain.Address, releaseTime int64, amount uint64) (*domain.Receipt, error) {
	return l.exec(ctx, "addVesting", caller, func(ctx context.Context, t *tx) (uint64, error) {
		if err := l.acl.RequireOwner(caller); err != nil {
			return 0, err
		}
		return l.createVesting(t, beneficiary, releaseTime, amount), nil
	})
}

func (l *Ledger) createVesting(t *tx, beneficiary domain.Address, releaseTime int64, amount uint64) uint64 {
	s := l.st
	id := s.nextVestingID
	s.nextVestingID++

	s.vestings[id] = domain.VestingEntry{
		ID:          id,
		Beneficiary: beneficiary,
		ReleaseTime: releaseTime,
		Amount:      amount,
	}
	t.touched.vestings[id] = struct{}{}
	t.emit(domain.TokenVestingAdded(id, beneficiary, amount))
	return id
}

// Release выплачивает график ровно один раз и не раньше releaseTime.
// Флаг released фиксируется ДО внешнего перевода: повторный вход из токена
// увидит его и получит ErrAlreadyReleased.
func (l *Ledger) Release(ctx context.Context, caller domain.Address, id uint64) (*domain.Receipt, error) {
	return l.exec(ctx, "release", caller, func(ctx context.Context, t *tx) (uint64, error) {
		v, ok := l.st.vestings[id]
		if !ok {
			return 0, fmt.Errorf("vesting %d: %w", id, domain.ErrNotFound)
		}
		if v.Released {
			return 0, fmt.Errorf("vesting %d: %w", id, domain.ErrAlreadyReleased)
		}
		if t.now.Unix() < v.ReleaseTime {
			return 0, fmt.Errorf("vesting %d unlocks at %d: %w", id, v.ReleaseTime, domain.ErrNotYetReleasable)
		}
		if err := l.requireEscrow(ctx, v.Amount); err != nil {
			return 0, err
		}

		// effects
		v.Released = true
		l.st.vestings[id] = v
		t.touched.vestings[id] = struct{}{}

		// interactions
		if err := l.pay(ctx, t, v.Beneficiary, v.Amount); err != nil {
			return 0, err
		}
		t.emit(domain.TokenVestingReleased(id, v.Beneficiary, v.Amount))

		l.metrics.PaidOut.WithLabelValues("release").Add(float64(v.Amount))
		l.logger.Info("vesting released",
			zap.Uint64("vesting_id", id),
			zap.String("beneficiary", v.Beneficiary.String()),
			zap.Uint64("amount", v.Amount))
		return id, nil
	})
}

func (l *Ledger) requireEscrow(ctx context.Context, amount uint64) error {
	bal, err := l.escrow.Balance(ctx)
	if err != nil {
		return err
	}
	if bal < amount {
		return fmt.Errorf("need %d, have %d: %w", amount, bal, domain.ErrInsufficientBalance)
	}
	return nil
}

// Vesting читает запись; для неизвестного id: нулевое значение.
func (l *Ledger) Vesting(ctx context.Context, id uint64) domain.VestingEntry {
	var v domain.VestingEntry
	l.view(ctx, func(s *state) { v = s.vestings[id] })
	return v
}
