package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/treasury-vesting/internal/console/handler"
	"github.com/xela07ax/treasury-vesting/internal/infra/auth"
	"go.uber.org/zap"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Интерфейс для проверки токенов (RS256)
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler   *handler.AuthHandler   // /auth/token
	ledgerHandler *handler.LedgerHandler // /v1/...
}

// NewConsoleServer инициализирует HTTP API леджера со всеми зависимостями
func NewConsoleServer(
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	ledgerH *handler.LedgerHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("console-api"),
		authValidator: validator,
		authHandler:   authH,
		ledgerHandler: ledgerH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		if s.authHandler != nil {
			r.Post("/auth/token", s.authHandler.Login)
		}

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	// Адрес из токена: единственный источник идентичности вызывающего
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))
		r.Mount("/v1", s.ledgerHandler.Routes())
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
