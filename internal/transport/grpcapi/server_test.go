package grpcapi

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/treasury-vesting/internal/access"
	"github.com/xela07ax/treasury-vesting/internal/domain"
	"github.com/xela07ax/treasury-vesting/internal/escrow"
	"github.com/xela07ax/treasury-vesting/internal/infra/auth"
	"github.com/xela07ax/treasury-vesting/internal/ledger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const owner domain.Address = "0xowner"

type harness struct {
	client *Client
	signer *auth.Signer
	token  *escrow.MemoryToken
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tok := escrow.NewMemoryToken("0xusdt", "USDT", owner, 10_000)
	l := ledger.New(ledger.Config{}, access.New(owner), escrow.New(tok, "0xescrow"))

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(UnaryAuthInterceptor(auth.NewBaseValidator(&key.PublicKey, ""), zap.NewNop())))
	RegisterLedgerServiceServer(srv, NewLedgerServer(l, zap.NewNop()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{client: NewClient(conn), signer: auth.NewSigner(key, "", time.Hour), token: tok}
}

func (h *harness) as(t *testing.T, who domain.Address) context.Context {
	t.Helper()
	tok, err := h.signer.Sign(&domain.User{Address: who})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok.AccessToken)
}

func TestExecute_RequiresToken(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.Call(context.Background(), "vesting", map[string]interface{}{"id": 1})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestExecute_WithdrawFlow(t *testing.T) {
	h := newHarness(t)
	ok, err := h.token.Transfer(context.Background(), owner, "0xescrow", 500)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.client.Call(h.as(t, "0xmallory"), "addWithdrawRequest", map[string]interface{}{"amount": 100})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	res, err := h.client.Call(h.as(t, owner), "addWithdrawRequest", map[string]interface{}{"amount": "100"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), res["result_id"])

	for _, who := range []domain.Address{"0xa", "0xb", "0xc"} {
		_, err = h.client.Call(h.as(t, who), "approveWithdrawRequest", map[string]interface{}{"id": 1})
		require.NoError(t, err)
	}
	_, err = h.client.Call(h.as(t, "0xa"), "approveWithdrawRequest", map[string]interface{}{"id": 1})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	_, err = h.client.Call(h.as(t, "0xa"), "processApprovedRequest", map[string]interface{}{"id": 1})
	require.NoError(t, err)

	res, err = h.client.Call(h.as(t, "0xa"), "withdrawRequest", map[string]interface{}{"id": 1})
	require.NoError(t, err)
	assert.Equal(t, true, res["processed"])
	assert.Len(t, res["approvals"], 3)
}

func TestExecute_BadArguments(t *testing.T) {
	h := newHarness(t)
	ctx := h.as(t, owner)

	tests := []struct {
		op   string
		args map[string]interface{}
		want codes.Code
	}{
		{"transmogrify", nil, codes.InvalidArgument},
		{"release", nil, codes.InvalidArgument},
		{"release", map[string]interface{}{"id": -1}, codes.InvalidArgument},
		{"release", map[string]interface{}{"id": 1.5}, codes.InvalidArgument},
		{"addVesting", map[string]interface{}{"amount": 1}, codes.InvalidArgument},
		{"addVesting", map[string]interface{}{"beneficiary": "0xb", "amount": 1}, codes.InvalidArgument},
		{"addVestingRequest", map[string]interface{}{"beneficiary": "0xb", "amount": 1, "release_time": "18446744073709551615"}, codes.InvalidArgument},
		{"addVestingRequest", map[string]interface{}{"beneficiary": "0xb", "amount": 1, "release_time": "-5"}, codes.InvalidArgument},
		{"addVestingRequest", map[string]interface{}{"beneficiary": "0xb", "amount": 1, "release_time": 1e19}, codes.InvalidArgument},
		{"release", map[string]interface{}{"id": 9}, codes.NotFound},
		{"startVesting", map[string]interface{}{"id": "9"}, codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			// ни один отклоненный вызов не создает записей
			defer func() {
				res, err := h.client.Call(ctx, "vestingRequest", map[string]interface{}{"id": 1})
				require.NoError(t, err)
				assert.Equal(t, float64(0), res["id"])
			}()
			_, err := h.client.Call(ctx, tt.op, tt.args)
			assert.Equal(t, tt.want, status.Code(err))
		})
	}
}

func TestExecute_ReleaseTimeKeepsFarFutureLocked(t *testing.T) {
	h := newHarness(t)
	ok, err := h.token.Transfer(context.Background(), owner, "0xescrow", 500)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := h.client.Call(h.as(t, owner), "addVesting", map[string]interface{}{
		"beneficiary": "0xb", "amount": 10, "release_time": "9223372036854775807",
	})
	require.NoError(t, err)
	id := res["result_id"]

	_, err = h.client.Call(h.as(t, "0xb"), "release", map[string]interface{}{"id": id})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	bal, err := h.token.BalanceOf(context.Background(), "0xescrow")
	require.NoError(t, err)
	assert.Equal(t, uint64(500), bal)
}

func TestExecute_VestingReadsZeroValue(t *testing.T) {
	h := newHarness(t)

	res, err := h.client.Call(h.as(t, "0xa"), "vesting", map[string]interface{}{"id": 42})
	require.NoError(t, err)
	assert.Equal(t, float64(0), res["amount"])
	assert.Equal(t, "", res["beneficiary"])
	assert.Equal(t, false, res["released"])
}
