package ledger

import (
	"context"
	"sync"

	"github.com/xela07ax/treasury-vesting/internal/domain"
)

// Store: долговременное хранилище леджера.
type Store interface {
	Load(ctx context.Context) (*domain.Snapshot, error)
	Commit(ctx context.Context, cs *domain.ChangeSet) error
}

// MemoryStore хранит последнее закоммиченное состояние в памяти.
type MemoryStore struct {
	mu       sync.Mutex
	snapshot domain.Snapshot
	vestings map[uint64]domain.VestingEntry
	requests map[uint64]domain.VestingRequest
	withdraw map[uint64]domain.WithdrawRequest
	commits  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vestings: make(map[uint64]domain.VestingEntry),
		requests: make(map[uint64]domain.VestingRequest),
		withdraw: make(map[uint64]domain.WithdrawRequest),
	}
}

func (m *MemoryStore) Load(_ context.Context) (*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := &domain.Snapshot{Counters: m.snapshot.Counters}
	for _, v := range m.vestings {
		snap.Vestings = append(snap.Vestings, v)
	}
	for _, r := range m.requests {
		snap.VestingRequests = append(snap.VestingRequests, r)
	}
	for _, r := range m.withdraw {
		snap.WithdrawRequests = append(snap.WithdrawRequests, r)
	}
	return snap, nil
}

func (m *MemoryStore) Commit(_ context.Context, cs *domain.ChangeSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, v := range cs.Vestings {
		m.vestings[v.ID] = v
	}
	for _, r := range cs.VestingRequests {
		m.requests[r.ID] = r
	}
	for _, r := range cs.WithdrawRequests {
		m.withdraw[r.ID] = r
	}
	for _, id := range cs.Removed.Vestings {
		delete(m.vestings, id)
	}
	for _, id := range cs.Removed.VestingRequests {
		delete(m.requests, id)
	}
	for _, id := range cs.Removed.WithdrawRequests {
		delete(m.withdraw, id)
	}
	m.snapshot.Counters = cs.Counters
	m.commits++
	return nil
}

// Commits: число успешных коммитов (для тестов и диагностики)
func (m *MemoryStore) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}
