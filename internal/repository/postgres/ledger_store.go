package postgres

/*
Файл ledger_store.go — долговременное хранилище леджера в PostgreSQL.

Леджер держит рабочее состояние в памяти и после каждой транзакции отдает сюда
ChangeSet: только затронутые записи и счетчики. Commit применяет его одной
транзакцией БД, поэтому после сбоя в таблицах не бывает половины операции.
Суммы хранятся как NUMERIC(20,0) и передаются текстом: uint64 не помещается в BIGINT.
*/

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/treasury-vesting/internal/domain"
)

type LedgerStore struct {
	pool *pgxpool.Pool
}

func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Load поднимает полное состояние леджера для холодного старта.
func (s *LedgerStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{}

	var nv, nr, nw int64
	err := s.pool.QueryRow(ctx,
		`SELECT next_vesting_id, next_request_id, next_withdraw_id FROM ledger_counters WHERE id = 1`,
	).Scan(&nv, &nr, &nw)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// пустая база: счетчики возьмутся из конфигурации
	case err != nil:
		return nil, fmt.Errorf("postgres: load counters: %w", err)
	default:
		snap.Counters = domain.Counters{
			NextVestingID:  uint64(nv),
			NextRequestID:  uint64(nr),
			NextWithdrawID: uint64(nw),
		}
	}

	if snap.Vestings, err = s.loadVestings(ctx); err != nil {
		return nil, err
	}
	if snap.VestingRequests, err = s.loadVestingRequests(ctx); err != nil {
		return nil, err
	}
	if snap.WithdrawRequests, err = s.loadWithdrawRequests(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *LedgerStore) loadVestings(ctx context.Context) ([]domain.VestingEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, beneficiary, release_time, amount::text, released FROM vestings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: query vestings: %w", err)
	}
	defer rows.Close()

	res := make([]domain.VestingEntry, 0)
	for rows.Next() {
		var (
			v      domain.VestingEntry
			id     int64
			amount string
		)
		if err := rows.Scan(&id, &v.Beneficiary, &v.ReleaseTime, &amount, &v.Released); err != nil {
			return nil, fmt.Errorf("postgres: scan vesting: %w", err)
		}
		v.ID = uint64(id)
		if v.Amount, err = parseAmount(amount); err != nil {
			return nil, fmt.Errorf("postgres: vesting %d: %w", id, err)
		}
		res = append(res, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return res, nil
}

func (s *LedgerStore) loadVestingRequests(ctx context.Context) ([]domain.VestingRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, beneficiary, requested_by, amount::text, release_time, approvals, is_approved, started, vesting_id
		FROM vesting_requests ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: query vesting requests: %w", err)
	}
	defer rows.Close()

	res := make([]domain.VestingRequest, 0)
	for rows.Next() {
		var (
			r         domain.VestingRequest
			id, vid   int64
			amount    string
			approvals []string
		)
		err := rows.Scan(&id, &r.Beneficiary, &r.RequestedBy, &amount, &r.ReleaseTime,
			&approvals, &r.IsApproved, &r.Started, &vid)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan vesting request: %w", err)
		}
		r.ID, r.VestingID = uint64(id), uint64(vid)
		r.Approvals = toAddresses(approvals)
		if r.Amount, err = parseAmount(amount); err != nil {
			return nil, fmt.Errorf("postgres: vesting request %d: %w", id, err)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return res, nil
}

func (s *LedgerStore) loadWithdrawRequests(ctx context.Context) ([]domain.WithdrawRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, amount::text, requested_by, approvals, is_approved, processed
		FROM withdraw_requests ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: query withdraw requests: %w", err)
	}
	defer rows.Close()

	res := make([]domain.WithdrawRequest, 0)
	for rows.Next() {
		var (
			r         domain.WithdrawRequest
			id        int64
			amount    string
			approvals []string
		)
		if err := rows.Scan(&id, &amount, &r.RequestedBy, &approvals, &r.IsApproved, &r.Processed); err != nil {
			return nil, fmt.Errorf("postgres: scan withdraw request: %w", err)
		}
		r.ID = uint64(id)
		r.Approvals = toAddresses(approvals)
		if r.Amount, err = parseAmount(amount); err != nil {
			return nil, fmt.Errorf("postgres: withdraw request %d: %w", id, err)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return res, nil
}

const (
	upsertVesting = `
		INSERT INTO vestings (id, beneficiary, release_time, amount, released)
		VALUES ($1, $2, $3, $4::numeric, $5)
		ON CONFLICT (id) DO UPDATE SET
			beneficiary = EXCLUDED.beneficiary,
			release_time = EXCLUDED.release_time,
			amount = EXCLUDED.amount,
			released = EXCLUDED.released,
			updated_at = NOW()`

	upsertVestingRequest = `
		INSERT INTO vesting_requests (id, beneficiary, requested_by, amount, release_time, approvals, is_approved, started, vesting_id)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			approvals = EXCLUDED.approvals,
			is_approved = EXCLUDED.is_approved,
			started = EXCLUDED.started,
			vesting_id = EXCLUDED.vesting_id,
			updated_at = NOW()`

	upsertWithdrawRequest = `
		INSERT INTO withdraw_requests (id, amount, requested_by, approvals, is_approved, processed)
		VALUES ($1, $2::numeric, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			approvals = EXCLUDED.approvals,
			is_approved = EXCLUDED.is_approved,
			processed = EXCLUDED.processed,
			updated_at = NOW()`

	upsertCounters = `
		INSERT INTO ledger_counters (id, next_vesting_id, next_request_id, next_withdraw_id, last_tx_id)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			next_vesting_id = EXCLUDED.next_vesting_id,
			next_request_id = EXCLUDED.next_request_id,
			next_withdraw_id = EXCLUDED.next_withdraw_id,
			last_tx_id = EXCLUDED.last_tx_id,
			updated_at = NOW()`
)

// Commit применяет ChangeSet атомарно. Все запросы уходят одним pgx.Batch.
func (s *LedgerStore) Commit(ctx context.Context, cs *domain.ChangeSet) error {
	batch := &pgx.Batch{}

	for _, v := range cs.Vestings {
		batch.Queue(upsertVesting, int64(v.ID), v.Beneficiary.String(), v.ReleaseTime, formatAmount(v.Amount), v.Released)
	}
	for _, r := range cs.VestingRequests {
		batch.Queue(upsertVestingRequest, int64(r.ID), r.Beneficiary.String(), r.RequestedBy.String(),
			formatAmount(r.Amount), r.ReleaseTime, fromAddresses(r.Approvals), r.IsApproved, r.Started, int64(r.VestingID))
	}
	for _, r := range cs.WithdrawRequests {
		batch.Queue(upsertWithdrawRequest, int64(r.ID), formatAmount(r.Amount), r.RequestedBy.String(),
			fromAddresses(r.Approvals), r.IsApproved, r.Processed)
	}
	for _, id := range cs.Removed.Vestings {
		batch.Queue(`DELETE FROM vestings WHERE id = $1`, int64(id))
	}
	for _, id := range cs.Removed.VestingRequests {
		batch.Queue(`DELETE FROM vesting_requests WHERE id = $1`, int64(id))
	}
	for _, id := range cs.Removed.WithdrawRequests {
		batch.Queue(`DELETE FROM withdraw_requests WHERE id = $1`, int64(id))
	}
	batch.Queue(upsertCounters,
		int64(cs.Counters.NextVestingID), int64(cs.Counters.NextRequestID), int64(cs.Counters.NextWithdrawID), cs.TxID)

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("postgres: commit tx %s: %w", cs.TxID, err)
	}
	return nil
}

func parseAmount(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad amount %q: %w", s, err)
	}
	return v, nil
}

func formatAmount(v uint64) string { return strconv.FormatUint(v, 10) }

func toAddresses(ss []string) []domain.Address {
	res := make([]domain.Address, 0, len(ss))
	for _, s := range ss {
		res = append(res, domain.Address(s))
	}
	return res
}

func fromAddresses(as []domain.Address) []string {
	res := make([]string, 0, len(as))
	for _, a := range as {
		res = append(res, a.String())
	}
	return res
}
