package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xela07ax/treasury-vesting/internal/domain"
)

func TestControl_RequireOwner(t *testing.T) {
	c := New("owner")

	assert.NoError(t, c.RequireOwner("owner"))
	assert.ErrorIs(t, c.RequireOwner("mallory"), domain.ErrUnauthorized)
	assert.ErrorIs(t, c.RequireOwner(domain.ZeroAddress), domain.ErrUnauthorized)
}

func TestControl_Approvers(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		caller  domain.Address
		allowed bool
	}{
		{name: "open set accepts anyone", caller: "random", allowed: true},
		{name: "open set rejects zero address", caller: domain.ZeroAddress, allowed: false},
		{name: "listed approver", opts: []Option{WithApprovers("a", "b")}, caller: "b", allowed: true},
		{name: "unlisted caller", opts: []Option{WithApprovers("a", "b")}, caller: "c", allowed: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := New("owner", tc.opts...)
			err := c.RequireApprover(tc.caller)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrUnauthorized)
			}
		})
	}
}

func TestControl_SelfApprovalPolicy(t *testing.T) {
	open := New("owner")
	assert.NoError(t, open.CheckSelfApproval("alice", "alice"))

	strict := New("owner", WithSelfApproval(false))
	assert.ErrorIs(t, strict.CheckSelfApproval("alice", "bob", "alice"), domain.ErrSelfApproval)
	assert.NoError(t, strict.CheckSelfApproval("carol", "bob", "alice"))
	assert.NoError(t, strict.CheckSelfApproval("carol", domain.ZeroAddress))
}
