package grpcapi

import (
	"context"

	"github.com/xela07ax/treasury-vesting/internal/infra/auth"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryAuthInterceptor проверяет RS256 токен в метаданных gRPC вызова
// и кладет адрес вызывающего в контекст так же, как HTTP middleware.
func UnaryAuthInterceptor(v auth.TokenValidator, logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		// 1. Извлекаем метаданные из контекста
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Errorf(codes.Unauthenticated, "missing metadata")
		}

		// 2. Ищем токен (в gRPC заголовки в нижнем регистре)
		tokens := md.Get("authorization")
		if len(tokens) == 0 {
			return nil, status.Errorf(codes.Unauthenticated, "missing access token")
		}

		// 3. Та же проверка, что и в HTTP
		claims, err := v.VerifyToken(tokens[0])
		if err != nil {
			logger.Warn("grpc auth failure", zap.String("method", info.FullMethod), zap.Error(err))
			return nil, status.Errorf(codes.Unauthenticated, "invalid access token")
		}

		// Идем дальше по цепочке
		return handler(auth.WithCaller(ctx, claims), req)
	}
}
