package ledger

import (
	"context"
	"fmt"

	"github.com/xela07ax/treasury-vesting/internal/domain"
	"go.uber.org/zap"
)

// AddVestingRequest: любой участник предлагает новый график.
func (l *Ledger) AddVestingRequest(ctx context.Context, caller, beneficiary domain.Address, releaseTime int64, amount uint64) (*domain.Receipt, error) {
	return l.exec(ctx, "addVestingRequest", caller, func(ctx context.Context, t *tx) (uint64, error) {
		id := l.st.requests.Create(vestingPayload{
			Beneficiary: beneficiary,
			RequestedBy: caller,
			Amount:      amount,
			ReleaseTime: releaseTime,
		})
		t.touched.requests[id] = struct{}{}
		t.emit(domain.VestingRequestCreated(id, beneficiary, amount, caller))
		return id, nil
	})
}

// ApproveVestingRequest засчитывает голос согласующего. На пересечении порога
// отдельного события нет: состояние видно по IsApproved.
func (l *Ledger) ApproveVestingRequest(ctx context.Context, caller domain.Address, id uint64) (*domain.Receipt, error) {
	return l.exec(ctx, "approveVestingRequest", caller, func(ctx context.Context, t *tx) (uint64, error) {
		if err := l.acl.RequireApprover(caller); err != nil {
			return 0, err
		}
		r, ok := l.st.requests.Get(id)
		if !ok {
			return 0, fmt.Errorf("vesting request %d: %w", id, domain.ErrNotFound)
		}
		if err := l.acl.CheckSelfApproval(caller, r.Payload.RequestedBy, r.Payload.Beneficiary); err != nil {
			return 0, err
		}

		crossed, err := l.st.requests.Approve(id, caller)
		if err != nil {
			return 0, fmt.Errorf("vesting %w", err)
		}
		t.touched.requests[id] = struct{}{}
		t.emit(domain.VestingRequestApprove(id, caller))

		if crossed {
			l.metrics.ThresholdReached.WithLabelValues("vesting").Inc()
			l.logger.Info("vesting request approved",
				zap.Uint64("request_id", id),
				zap.Int("approvals", r.ApprovalCount()))
		}
		return id, nil
	})
}

// StartVesting материализует согласованную заявку в график. Заявка
// потребляется один раз; вызвать может любой участник, включая бенефициара.
func (l *Ledger) StartVesting(ctx context.Context, caller domain.Address, id uint64) (*domain.Receipt, error) {
	return l.exec(ctx, "startVesting", caller, func(ctx context.Context, t *tx) (uint64, error) {
		r, ok := l.st.requests.Get(id)
		if !ok {
			return 0, fmt.Errorf("vesting request %d: %w", id, domain.ErrNotFound)
		}
		if !r.IsApproved() {
			return 0, fmt.Errorf("vesting request %d: %w", id, domain.ErrNotYetApproved)
		}
		if r.Payload.Started {
			return 0, fmt.Errorf("vesting request %d: %w", id, domain.ErrAlreadyStarted)
		}

		vestingID := l.createVesting(t, r.Payload.Beneficiary, r.Payload.ReleaseTime, r.Payload.Amount)
		r.Payload.Started = true
		r.Payload.VestingID = vestingID
		t.touched.requests[id] = struct{}{}
		return vestingID, nil
	})
}

// VestingRequest читает заявку; для неизвестного id: нулевое значение.
func (l *Ledger) VestingRequest(ctx context.Context, id uint64) domain.VestingRequest {
	var r domain.VestingRequest
	l.view(ctx, func(s *state) { r, _ = s.vestingRequest(id) })
	return r
}
