package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/treasury-vesting/internal/domain"
	"go.uber.org/zap"
)

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestSignAndVerify(t *testing.T) {
	key := newKey(t)
	signer := NewSigner(key, "treasury-ledger", time.Hour)
	v := NewBaseValidator(&key.PublicKey, "treasury-ledger")

	tok, err := signer.Sign(&domain.User{ID: "u1", Address: "0xalice", Scopes: map[string]bool{"approver": true}})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, int64(3600), tok.ExpiresIn)

	claims, err := v.VerifyToken("Bearer " + tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.Address("0xalice"), claims.Address)
	assert.Equal(t, "u1", claims.UserID)
	assert.True(t, claims.Scopes["approver"])
}

func TestVerifyToken_Rejects(t *testing.T) {
	key := newKey(t)
	v := NewBaseValidator(&key.PublicKey, "treasury-ledger")

	expired := NewSigner(key, "treasury-ledger", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	foreign := NewSigner(newKey(t), "treasury-ledger", time.Hour)
	otherIssuer := NewSigner(key, "someone", time.Hour)
	noAddress := NewSigner(key, "treasury-ledger", time.Hour)

	tests := []struct {
		name   string
		signer *Signer
		user   *domain.User
	}{
		{name: "expired", signer: expired, user: &domain.User{Address: "0xa"}},
		{name: "foreign key", signer: foreign, user: &domain.User{Address: "0xa"}},
		{name: "other issuer", signer: otherIssuer, user: &domain.User{Address: "0xa"}},
		{name: "no address", signer: noAddress, user: &domain.User{ID: "u1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := tt.signer.Sign(tt.user)
			require.NoError(t, err)
			_, err = v.VerifyToken(tok.AccessToken)
			assert.Error(t, err)
		})
	}

	_, err := v.VerifyToken("garbage")
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	key := newKey(t)
	signer := NewSigner(key, "", time.Hour)
	mw := NewMiddleware(NewBaseValidator(&key.PublicKey, ""), zap.NewNop())

	var seen domain.Address
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CallerFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := signer.Sign(&domain.User{Address: "0xbob"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, domain.Address("0xbob"), seen)
}

func TestParseRSAKeys(t *testing.T) {
	key := newKey(t)

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	priv, err := ParseRSAPrivateKey(privPEM)
	require.NoError(t, err)
	assert.True(t, priv.Equal(key))

	pub, err := ParseRSAPublicKey(pubPEM)
	require.NoError(t, err)
	assert.True(t, pub.Equal(&key.PublicKey))

	_, err = ParseRSAPublicKey(nil)
	assert.Error(t, err)
	_, err = ParseRSAPrivateKey([]byte("nope"))
	assert.Error(t, err)
}
