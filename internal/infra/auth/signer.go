package auth

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xela07ax/treasury-vesting/internal/domain"
)

// Signer выпускает RS256 токены. Subject: адрес пользователя в леджере.
type Signer struct {
	privateKey *rsa.PrivateKey
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

func NewSigner(privateKey *rsa.PrivateKey, issuer string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Signer{privateKey: privateKey, issuer: issuer, ttl: ttl, now: time.Now}
}

func (s *Signer) Sign(user *domain.User) (*domain.TokenResponse, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := &domain.CustomClaims{
		UserID:  user.ID,
		Address: user.Address,
		Scopes:  user.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.Address.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	// Подпись токена ЗАКРЫТЫМ КЛЮЧОМ (RS256)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.ttl.Seconds()),
	}, nil
}
