package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xela07ax/treasury-vesting/internal/domain"
	"github.com/xela07ax/treasury-vesting/internal/infra/auth"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type AuthProvider interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	CreateUser(ctx context.Context, u *domain.User) error
}

type AuthService struct {
	repo       AuthProvider
	signer     *auth.Signer
	bcryptCost int
	logger     *zap.Logger
}

func NewAuthService(repo AuthProvider, signer *auth.Signer, bcryptCost int, logger *zap.Logger) *AuthService {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		repo:       repo,
		signer:     signer,
		bcryptCost: bcryptCost,
		logger:     logger.Named("auth-service"),
	}
}

func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	// 1. Аутентификация (Источник правды: Postgres)
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		s.logger.Error("user lookup failed", zap.String("username", username), zap.Error(err))
		return nil, ErrInvalidCredentials
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	// 2. Проверка пароля (используем bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// 3. Токен несет адрес пользователя: это его идентичность в леджере
	return s.signer.Sign(user)
}

// Register заводит пользователя с адресом в леджере.
func (s *AuthService) Register(ctx context.Context, username, password string, address domain.Address, scopes map[string]bool) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" || address.IsZero() {
		return nil, errors.New("username, password and address are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if scopes == nil {
		scopes = map[string]bool{}
	}

	u := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Address:      address,
		Scopes:       scopes,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.String("username", username), zap.String("address", address.String()))
	return u, nil
}
