package ledger

import (
	"context"
	"fmt"

	"github.com/xela07ax/treasury-vesting/internal/domain"
	"go.uber.org/zap"
)

func (l *Ledger) AddWithdrawRequest(ctx context.Context, caller domain.Address, amount uint64) (*domain.Receipt, error) {
	return l.exec(ctx, "addWithdrawRequest", caller, func(ctx context.Context, t *tx) (uint64, error) {
		if err := l.acl.RequireOwner(caller); err != nil {
			return 0, err
		}
		id := l.st.withdrawals.Create(withdrawPayload{Amount: amount, RequestedBy: caller})
		t.touched.withdrawals[id] = struct{}{}
		t.emit(domain.WithdrawRequestCreated(id, amount))
		return id, nil
	})
}

func (l *Ledger) ApproveWithdrawRequest(ctx context.Context, caller domain.Address, id uint64) (*domain.Receipt, error) {
	return l.exec(ctx, "approveWithdrawRequest", caller, func(ctx context.Context, t *tx) (uint64, error) {
		if err := l.acl.RequireApprover(caller); err != nil {
			return 0, err
		}
		r, ok := l.st.withdrawals.Get(id)
		if !ok {
			return 0, fmt.Errorf("withdraw request %d: %w", id, domain.ErrNotFound)
		}
		if err := l.acl.CheckSelfApproval(caller, r.Payload.RequestedBy); err != nil {
			return 0, err
		}

		crossed, err := l.st.withdrawals.Approve(id, caller)
		if err != nil {
			return 0, fmt.Errorf("withdraw %w", err)
		}
		t.touched.withdrawals[id] = struct{}{}
		t.emit(domain.SignatureApproved(id, caller))

		if crossed {
			l.metrics.ThresholdReached.WithLabelValues("withdraw").Inc()
			l.logger.Info("withdraw request approved",
				zap.Uint64("request_id", id),
				zap.Int("approvals", r.ApprovalCount()))
		}
		return id, nil
	})
}

// ProcessApprovedRequest выводит сумму согласованной заявки в казначейство.
// processed выставляется до перевода, как и released в Release.
func (l *Ledger) ProcessApprovedRequest(ctx context.Context, caller domain.Address, id uint64) (*domain.Receipt, error) {
	return l.exec(ctx, "processApprovedRequest", caller, func(ctx context.Context, t *tx) (uint64, error) {
		r, ok := l.st.withdrawals.Get(id)
		if !ok {
			return 0, fmt.Errorf("withdraw request %d: %w", id, domain.ErrNotFound)
		}
		if !r.IsApproved() {
			return 0, fmt.Errorf("withdraw request %d: %w", id, domain.ErrNotYetApproved)
		}
		if r.Payload.Processed {
			return 0, fmt.Errorf("withdraw request %d: %w", id, domain.ErrAlreadyProcessed)
		}
		if err := l.requireEscrow(ctx, r.Payload.Amount); err != nil {
			return 0, err
		}

		r.Payload.Processed = true
		t.touched.withdrawals[id] = struct{}{}

		if err := l.pay(ctx, t, l.cfg.Treasury, r.Payload.Amount); err != nil {
			return 0, err
		}

		l.metrics.PaidOut.WithLabelValues("withdraw").Add(float64(r.Payload.Amount))
		l.logger.Info("withdraw request processed",
			zap.Uint64("request_id", id),
			zap.String("treasury", l.cfg.Treasury.String()),
			zap.Uint64("amount", r.Payload.Amount))
		return id, nil
	})
}

// WithdrawRequest читает заявку; для неизвестного id: нулевое значение.
func (l *Ledger) WithdrawRequest(ctx context.Context, id uint64) domain.WithdrawRequest {
	var r domain.WithdrawRequest
	l.view(ctx, func(s *state) { r, _ = s.withdrawRequest(id) })
	return r
}
