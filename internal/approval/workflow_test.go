package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/treasury-vesting/internal/domain"
)

type payload struct {
	Amount uint64
	Done   bool
}

func TestWorkflow_ThresholdFlipsOnce(t *testing.T) {
	w := New[payload](3, 1)
	id := w.Create(payload{Amount: 100})

	voters := []domain.Address{"alice", "bob", "carol"}
	for i, v := range voters {
		crossed, err := w.Approve(id, v)
		require.NoError(t, err)

		r, _ := w.Get(id)
		if i < len(voters)-1 {
			assert.False(t, crossed)
			assert.False(t, r.IsApproved())
			assert.Equal(t, StatusPending, r.Status())
		} else {
			assert.True(t, crossed)
			assert.True(t, r.IsApproved())
			assert.Equal(t, StatusApproved, r.Status())
		}
	}

	_, err := w.Approve(id, "dave")
	assert.ErrorIs(t, err, domain.ErrAlreadyApproved)

	r, _ := w.Get(id)
	assert.Equal(t, []domain.Address{"alice", "bob", "carol"}, r.Approvals())
}

func TestWorkflow_ApproveErrors(t *testing.T) {
	w := New[payload](3, 1)
	id := w.Create(payload{})

	_, err := w.Approve(id, "alice")
	require.NoError(t, err)

	tests := []struct {
		name string
		id   uint64
		who  domain.Address
		want error
	}{
		{name: "unknown id", id: 42, who: "bob", want: domain.ErrNotFound},
		{name: "zero id", id: 0, who: "bob", want: domain.ErrNotFound},
		{name: "duplicate", id: id, who: "alice", want: domain.ErrDuplicateApproval},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := w.Approve(tc.id, tc.who)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	r, _ := w.Get(id)
	assert.Equal(t, 1, r.ApprovalCount(), "rejected votes must not change the set")
}

func TestWorkflow_DuplicateCheckedBeforeAlreadyApproved(t *testing.T) {
	w := New[payload](1, 1)
	id := w.Create(payload{})
	_, err := w.Approve(id, "alice")
	require.NoError(t, err)

	_, err = w.Approve(id, "alice")
	assert.ErrorIs(t, err, domain.ErrDuplicateApproval)
}

func TestWorkflow_IDsAreMonotonic(t *testing.T) {
	w := New[payload](3, 5)
	assert.Equal(t, uint64(5), w.Create(payload{}))
	assert.Equal(t, uint64(6), w.Create(payload{}))
	assert.Equal(t, uint64(7), w.NextID())

	w.SetNextID(3)
	assert.Equal(t, uint64(7), w.NextID(), "counter never goes back")
}

func TestWorkflow_CloneIsIndependent(t *testing.T) {
	w := New[payload](2, 1)
	id := w.Create(payload{Amount: 10})
	_, err := w.Approve(id, "alice")
	require.NoError(t, err)

	c := w.Clone()
	_, err = c.Approve(id, "bob")
	require.NoError(t, err)
	cr, _ := c.Get(id)
	cr.Payload.Done = true
	c.Create(payload{})

	r, _ := w.Get(id)
	assert.False(t, r.IsApproved())
	assert.False(t, r.Payload.Done)
	assert.Equal(t, 1, r.ApprovalCount())
	assert.Equal(t, uint64(2), w.NextID())
}

func TestWorkflow_Restore(t *testing.T) {
	w := New[payload](3, 1)
	w.Restore(4, payload{Amount: 7}, []domain.Address{"a", "b", "c"}, true)

	r, ok := w.Get(4)
	require.True(t, ok)
	assert.True(t, r.IsApproved())
	assert.True(t, r.HasApproved("b"))
	assert.Equal(t, uint64(5), w.NextID())
}
