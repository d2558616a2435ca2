package auth

import (
	"context"
	"net/http"

	"github.com/xela07ax/treasury-vesting/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator: интерфейс, который реализуют и HTTP, и gRPC входы
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

type ctxKey int

const (
	callerKey ctxKey = iota
	claimsKey
)

// WithCaller кладет идентичность вызывающего в контекст.
func WithCaller(ctx context.Context, claims *domain.CustomClaims) context.Context {
	ctx = context.WithValue(ctx, callerKey, claims.Address)
	return context.WithValue(ctx, claimsKey, claims)
}

// CallerFrom достает адрес вызывающего; false: запрос не аутентифицирован.
func CallerFrom(ctx context.Context) (domain.Address, bool) {
	a, ok := ctx.Value(callerKey).(domain.Address)
	return a, ok && !a.IsZero()
}

func ClaimsFrom(ctx context.Context) (*domain.CustomClaims, bool) {
	c, ok := ctx.Value(claimsKey).(*domain.CustomClaims)
	return c, ok
}

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.String("path", r.URL.Path), zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Прокидываем данные в контекст
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), claims)))
		})
	}
}
