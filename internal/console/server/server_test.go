package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/treasury-vesting/internal/access"
	"github.com/xela07ax/treasury-vesting/internal/console/handler"
	"github.com/xela07ax/treasury-vesting/internal/console/service"
	"github.com/xela07ax/treasury-vesting/internal/domain"
	"github.com/xela07ax/treasury-vesting/internal/escrow"
	"github.com/xela07ax/treasury-vesting/internal/infra/auth"
	"github.com/xela07ax/treasury-vesting/internal/ledger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	owner     domain.Address = "0xowner"
	escrowAdr domain.Address = "0xescrow"
)

type memUsers struct {
	users map[string]*domain.User
}

func (m *memUsers) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	return m.users[username], nil
}

func (m *memUsers) CreateUser(_ context.Context, u *domain.User) error {
	m.users[u.Username] = u
	return nil
}

type testAPI struct {
	srv    *httptest.Server
	signer *auth.Signer
	token  *escrow.MemoryToken
	clock  time.Time
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	api := &testAPI{clock: time.Unix(1_700_000_000, 0)}
	api.signer = auth.NewSigner(key, "test", time.Hour)
	api.token = escrow.NewMemoryToken("0xusdt", "USDT", owner, 10_000)

	l := ledger.New(ledger.Config{TokenAddress: api.token.Address()}, access.New(owner),
		escrow.New(api.token, escrowAdr), ledger.WithClock(func() time.Time { return api.clock }))

	users := &memUsers{users: map[string]*domain.User{}}
	authSvc := service.NewAuthService(users, api.signer, bcrypt.MinCost, zap.NewNop())
	_, err = authSvc.Register(context.Background(), "root", "secret", owner, nil)
	require.NoError(t, err)

	s := NewConsoleServer(zap.NewNop(),
		auth.NewBaseValidator(&key.PublicKey, "test"),
		handler.NewAuthHandler(authSvc),
		handler.NewLedgerHandler(service.NewTreasuryService(l, api.token, zap.NewNop()), zap.NewNop()),
	)
	api.srv = httptest.NewServer(s)
	t.Cleanup(api.srv.Close)
	return api
}

func (a *testAPI) bearer(t *testing.T, who domain.Address) string {
	t.Helper()
	tok, err := a.signer.Sign(&domain.User{ID: string(who), Address: who})
	require.NoError(t, err)
	return tok.AccessToken
}

func (a *testAPI) do(t *testing.T, who domain.Address, method, path string, body interface{}) (int, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(t, err)
	if who != "" {
		req.Header.Set("Authorization", "Bearer "+a.bearer(t, who))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, buf.Bytes()
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(b, &v), string(b))
	return v
}

func TestPublicRoutes(t *testing.T) {
	api := newTestAPI(t)

	code, _ := api.do(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)

	code, body := api.do(t, "", http.MethodPost, "/auth/token", domain.LoginRequest{Username: "root", Password: "secret"})
	require.Equal(t, http.StatusOK, code)
	tok := decode[domain.TokenResponse](t, body)
	assert.NotEmpty(t, tok.AccessToken)

	code, _ = api.do(t, "", http.MethodPost, "/auth/token", domain.LoginRequest{Username: "root", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = api.do(t, "", http.MethodGet, "/v1/vestings/1", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestWithdrawFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	code, _ := api.do(t, owner, http.MethodPost, "/v1/token/transfer", handler.TransferBody{To: string(escrowAdr), Amount: 1000})
	require.Equal(t, http.StatusNoContent, code)

	code, _ = api.do(t, "0xstranger", http.MethodPost, "/v1/withdraw-requests", handler.WithdrawBody{Amount: 100})
	assert.Equal(t, http.StatusForbidden, code)

	code, body := api.do(t, owner, http.MethodPost, "/v1/withdraw-requests", handler.WithdrawBody{Amount: 100})
	require.Equal(t, http.StatusOK, code)
	rcpt := decode[domain.Receipt](t, body)
	assert.Equal(t, uint64(1), rcpt.ResultID)

	code, _ = api.do(t, "0xa", http.MethodPost, "/v1/withdraw-requests/1/process", nil)
	assert.Equal(t, http.StatusPreconditionFailed, code)

	for _, who := range []domain.Address{"0xa", "0xb", "0xc"} {
		code, _ = api.do(t, who, http.MethodPost, "/v1/withdraw-requests/1/approve", nil)
		require.Equal(t, http.StatusOK, code)
	}
	code, _ = api.do(t, "0xa", http.MethodPost, "/v1/withdraw-requests/1/approve", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, body = api.do(t, "0xa", http.MethodPost, "/v1/withdraw-requests/1/process", nil)
	require.Equal(t, http.StatusOK, code)
	rcpt = decode[domain.Receipt](t, body)
	require.Len(t, rcpt.Events, 1)
	assert.Equal(t, domain.EventTransfer, rcpt.Events[0].Name)

	code, body = api.do(t, "0xa", http.MethodGet, "/v1/withdraw-requests/1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decode[domain.WithdrawRequest](t, body).Processed)

	code, _ = api.do(t, "0xa", http.MethodPost, "/v1/withdraw-requests/1/process", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, body = api.do(t, "0xa", http.MethodGet, "/v1/escrow", nil)
	require.Equal(t, http.StatusOK, code)
	info := decode[service.EscrowInfo](t, body)
	assert.Equal(t, uint64(900), info.Balance)
	assert.Equal(t, owner, info.Treasury)
}

func TestVestingFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	releaseAt := api.clock.Unix() + 10

	code, body := api.do(t, "0xdave", http.MethodPost, "/v1/vesting-requests",
		handler.VestingBody{Beneficiary: "0xbene", ReleaseTime: &releaseAt, Amount: 100})
	require.Equal(t, http.StatusOK, code)
	reqID := decode[domain.Receipt](t, body).ResultID

	for _, who := range []domain.Address{"0xa", "0xb", "0xc"} {
		code, _ = api.do(t, who, http.MethodPost, "/v1/vesting-requests/1/approve", nil)
		require.Equal(t, http.StatusOK, code)
	}
	assert.Equal(t, uint64(1), reqID)

	code, body = api.do(t, "0xbene", http.MethodPost, "/v1/vesting-requests/1/start", nil)
	require.Equal(t, http.StatusOK, code)
	vestingID := decode[domain.Receipt](t, body).ResultID

	code, body = api.do(t, "0xbene", http.MethodGet, "/v1/vestings/1", nil)
	require.Equal(t, http.StatusOK, code)
	v := decode[domain.VestingEntry](t, body)
	assert.Equal(t, uint64(100), v.Amount)
	assert.Equal(t, domain.Address("0xbene"), v.Beneficiary)

	// эскроу пуст и срок не наступил
	code, _ = api.do(t, "0xbene", http.MethodPost, "/v1/vestings/1/release", nil)
	assert.Equal(t, http.StatusPreconditionFailed, code)

	api.clock = api.clock.Add(10 * time.Second)
	code, _ = api.do(t, "0xbene", http.MethodPost, "/v1/vestings/1/release", nil)
	assert.Equal(t, http.StatusPaymentRequired, code)

	code, _ = api.do(t, owner, http.MethodPost, "/v1/token/transfer", handler.TransferBody{To: string(escrowAdr), Amount: 1000})
	require.Equal(t, http.StatusNoContent, code)

	code, _ = api.do(t, "0xbene", http.MethodPost, "/v1/vestings/1/release", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, uint64(1), vestingID)

	code, body = api.do(t, "0xbene", http.MethodGet, "/v1/token/balances/0xbene", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(100), decode[map[string]interface{}](t, body)["balance"])
}

func TestBadInput(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		method, path string
		body         interface{}
		want         int
	}{
		{http.MethodGet, "/v1/vestings/abc", nil, http.StatusBadRequest},
		{http.MethodPost, "/v1/vestings", handler.VestingBody{Amount: 1}, http.StatusBadRequest},
		{http.MethodPost, "/v1/vestings", handler.VestingBody{Beneficiary: "0xb", Amount: 1}, http.StatusBadRequest},
		{http.MethodPost, "/v1/vesting-requests", handler.VestingBody{Beneficiary: "0xb", Amount: 1}, http.StatusBadRequest},
		{http.MethodPost, "/v1/vesting-requests", map[string]interface{}{"beneficiary": "0xb", "amount": 1, "release_time": "18446744073709551615"}, http.StatusBadRequest},
		{http.MethodPost, "/v1/vesting-requests/-1/approve", nil, http.StatusBadRequest},
		{http.MethodPost, "/v1/vesting-requests/9/approve", nil, http.StatusNotFound},
		{http.MethodPost, "/v1/token/transfer", handler.TransferBody{Amount: 1}, http.StatusBadRequest},
		{http.MethodPost, "/v1/token/transfer", handler.TransferBody{To: "0xz", Amount: 1}, http.StatusPaymentRequired},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			code, _ := api.do(t, "0xnobody", tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, code)
		})
	}

	// с адреса эскроу напрямую не перевести
	code, _ := api.do(t, escrowAdr, http.MethodPost, "/v1/token/transfer", handler.TransferBody{To: "0xz", Amount: 1})
	assert.Equal(t, http.StatusForbidden, code)

	// неизвестный id читается как нулевая запись
	code, body := api.do(t, "0xnobody", http.MethodGet, "/v1/vestings/77", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.VestingEntry{}, decode[domain.VestingEntry](t, body))
}
