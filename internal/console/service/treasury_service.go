package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/treasury-vesting/internal/domain"
	"github.com/xela07ax/treasury-vesting/internal/escrow"
	"github.com/xela07ax/treasury-vesting/internal/ledger"
	"go.uber.org/zap"
)

// EscrowInfo: сводка по эскроу для консоли.
type EscrowInfo struct {
	Address   domain.Address  `json:"address"`
	Token     domain.Address  `json:"token"`
	Balance   uint64          `json:"balance"`
	Owner     domain.Address  `json:"owner"`
	Treasury  domain.Address  `json:"treasury"`
	Threshold int             `json:"threshold"`
	Counters  domain.Counters `json:"counters"`
}

// TreasuryService: фасад леджера для транспортов (HTTP, gRPC) плюс операции
// с самим токеном, которые в транзакции леджера не входят.
type TreasuryService struct {
	*ledger.Ledger
	token  escrow.Token
	logger *zap.Logger
}

func NewTreasuryService(l *ledger.Ledger, token escrow.Token, logger *zap.Logger) *TreasuryService {
	return &TreasuryService{
		Ledger: l,
		token:  token,
		logger: logger.Named("treasury-service"),
	}
}

func (s *TreasuryService) Escrow(ctx context.Context) (*EscrowInfo, error) {
	bal, err := s.EscrowBalance(ctx)
	if err != nil {
		return nil, err
	}
	return &EscrowInfo{
		Address:   s.EscrowAddress(),
		Token:     s.Token(),
		Balance:   bal,
		Owner:     s.Owner(),
		Treasury:  s.Treasury(),
		Threshold: s.Threshold(),
		Counters:  s.Counters(ctx),
	}, nil
}

// Transfer: перевод токена от имени вызывающего (например, пополнение эскроу).
func (s *TreasuryService) Transfer(ctx context.Context, from, to domain.Address, amount uint64) error {
	if to.IsZero() {
		return fmt.Errorf("transfer: empty recipient")
	}
	// Средства эскроу уходят только через транзакции леджера
	if from == s.EscrowAddress() {
		return fmt.Errorf("transfer from escrow: %w", domain.ErrUnauthorized)
	}
	ok, err := s.token.Transfer(ctx, from, to, amount)
	if err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	if !ok {
		return fmt.Errorf("transfer %d from %s: %w", amount, from, domain.ErrInsufficientBalance)
	}
	s.logger.Info("token transferred",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Uint64("amount", amount))
	return nil
}

func (s *TreasuryService) BalanceOf(ctx context.Context, who domain.Address) (uint64, error) {
	return s.token.BalanceOf(ctx, who)
}
