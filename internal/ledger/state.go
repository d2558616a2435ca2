package ledger

import (
	"sort"

	"github.com/xela07ax/treasury-vesting/internal/approval"
	"github.com/xela07ax/treasury-vesting/internal/domain"
)

type vestingPayload struct {
	Beneficiary domain.Address
	RequestedBy domain.Address
	Amount      uint64
	ReleaseTime int64
	Started     bool
	VestingID   uint64
}

type withdrawPayload struct {
	Amount      uint64
	RequestedBy domain.Address
	Processed   bool
}

// state: все, что меняют транзакции. Копируется целиком на входе в кадр,
// чтобы отказ любой глубины возвращал леджер в исходную точку.
type state struct {
	vestings      map[uint64]domain.VestingEntry
	nextVestingID uint64
	requests      *approval.Workflow[vestingPayload]
	withdrawals   *approval.Workflow[withdrawPayload]
}

func newState(threshold int, firstID uint64) *state {
	return &state{
		vestings:      make(map[uint64]domain.VestingEntry),
		nextVestingID: firstID,
		requests:      approval.New[vestingPayload](threshold, firstID),
		withdrawals:   approval.New[withdrawPayload](threshold, firstID),
	}
}

func (s *state) clone() *state {
	c := &state{
		vestings:      make(map[uint64]domain.VestingEntry, len(s.vestings)),
		nextVestingID: s.nextVestingID,
		requests:      s.requests.Clone(),
		withdrawals:   s.withdrawals.Clone(),
	}
	for id, v := range s.vestings {
		c.vestings[id] = v
	}
	return c
}

func (s *state) counters() domain.Counters {
	return domain.Counters{
		NextVestingID:  s.nextVestingID,
		NextRequestID:  s.requests.NextID(),
		NextWithdrawID: s.withdrawals.NextID(),
	}
}

// restore накатывает снапшот хранилища поверх пустого состояния.
func (s *state) restore(snap *domain.Snapshot) {
	for _, v := range snap.Vestings {
		s.vestings[v.ID] = v
		if v.ID >= s.nextVestingID {
			s.nextVestingID = v.ID + 1
		}
	}
	if snap.Counters.NextVestingID > s.nextVestingID {
		s.nextVestingID = snap.Counters.NextVestingID
	}

	for _, r := range snap.VestingRequests {
		s.requests.Restore(r.ID, vestingPayload{
			Beneficiary: r.Beneficiary,
			RequestedBy: r.RequestedBy,
			Amount:      r.Amount,
			ReleaseTime: r.ReleaseTime,
			Started:     r.Started,
			VestingID:   r.VestingID,
		}, r.Approvals, r.IsApproved)
	}
	s.requests.SetNextID(snap.Counters.NextRequestID)

	for _, r := range snap.WithdrawRequests {
		s.withdrawals.Restore(r.ID, withdrawPayload{
			Amount:      r.Amount,
			RequestedBy: r.RequestedBy,
			Processed:   r.Processed,
		}, r.Approvals, r.IsApproved)
	}
	s.withdrawals.SetNextID(snap.Counters.NextWithdrawID)
}

func (s *state) vestingRequest(id uint64) (domain.VestingRequest, bool) {
	r, ok := s.requests.Get(id)
	if !ok {
		return domain.VestingRequest{}, false
	}
	return domain.VestingRequest{
		ID:          r.ID,
		Beneficiary: r.Payload.Beneficiary,
		RequestedBy: r.Payload.RequestedBy,
		Amount:      r.Payload.Amount,
		ReleaseTime: r.Payload.ReleaseTime,
		Approvals:   r.Approvals(),
		IsApproved:  r.IsApproved(),
		Started:     r.Payload.Started,
		VestingID:   r.Payload.VestingID,
	}, true
}

func (s *state) withdrawRequest(id uint64) (domain.WithdrawRequest, bool) {
	r, ok := s.withdrawals.Get(id)
	if !ok {
		return domain.WithdrawRequest{}, false
	}
	return domain.WithdrawRequest{
		ID:          r.ID,
		Amount:      r.Payload.Amount,
		RequestedBy: r.Payload.RequestedBy,
		Approvals:   r.Approvals(),
		IsApproved:  r.IsApproved(),
		Processed:   r.Payload.Processed,
	}, true
}

// touched: id записей, измененных транзакцией (для ChangeSet).
type touched struct {
	vestings    map[uint64]struct{}
	requests    map[uint64]struct{}
	withdrawals map[uint64]struct{}
}

func newTouched() *touched {
	return &touched{
		vestings:    make(map[uint64]struct{}),
		requests:    make(map[uint64]struct{}),
		withdrawals: make(map[uint64]struct{}),
	}
}

func (t *touched) clone() *touched {
	c := newTouched()
	for id := range t.vestings {
		c.vestings[id] = struct{}{}
	}
	for id := range t.requests {
		c.requests[id] = struct{}{}
	}
	for id := range t.withdrawals {
		c.withdrawals[id] = struct{}{}
	}
	return c
}

func (t *touched) merge(o *touched) {
	for id := range o.vestings {
		t.vestings[id] = struct{}{}
	}
	for id := range o.requests {
		t.requests[id] = struct{}{}
	}
	for id := range o.withdrawals {
		t.withdrawals[id] = struct{}{}
	}
}

func (t *touched) size() int {
	return len(t.vestings) + len(t.requests) + len(t.withdrawals)
}

func (t *touched) empty() bool { return t.size() == 0 }

func sortedIDs(m map[uint64]struct{}) []uint64 {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *state) changeSet(txID string, t *touched) *domain.ChangeSet {
	cs := &domain.ChangeSet{TxID: txID, Counters: s.counters()}
	for _, id := range sortedIDs(t.vestings) {
		if v, ok := s.vestings[id]; ok {
			cs.Vestings = append(cs.Vestings, v)
		} else {
			cs.Removed.Vestings = append(cs.Removed.Vestings, id)
		}
	}
	for _, id := range sortedIDs(t.requests) {
		if r, ok := s.vestingRequest(id); ok {
			cs.VestingRequests = append(cs.VestingRequests, r)
		} else {
			cs.Removed.VestingRequests = append(cs.Removed.VestingRequests, id)
		}
	}
	for _, id := range sortedIDs(t.withdrawals) {
		if r, ok := s.withdrawRequest(id); ok {
			cs.WithdrawRequests = append(cs.WithdrawRequests, r)
		} else {
			cs.Removed.WithdrawRequests = append(cs.Removed.WithdrawRequests, id)
		}
	}
	return cs
}
