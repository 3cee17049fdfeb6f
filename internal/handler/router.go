package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/presence/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	StatusRecorder    middleware.StatusRecorder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 在席統計
	PresenceService PresenceServiceInterface
	UserDirectory   UserDirectory

	// MetricsHandler が nil でない場合は /metrics に登録する。
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS → RateLimit(/api/v1のみ)
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusRecorder))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.Get("/health", jsonify(func(r *http.Request) (any, error) {
		return map[string]string{"status": "ok"}, nil
	}))

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	h := NewPresenceHandler(deps.PresenceService, deps.UserDirectory)

	r.Route("/api/v1", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Get("/users", jsonify(h.Users))
		r.Get("/mean_time_weekday/{id}", jsonify(h.MeanTimeWeekday))
		r.Get("/presence_weekday/{id}", jsonify(h.PresenceWeekday))
		r.Get("/presence_start_end/{id}", jsonify(h.PresenceStartEnd))
		r.Get("/days", jsonify(h.Days))
		r.Get("/employees/{date}", jsonify(h.Employees))
	})

	return r
}

// NewWorkerRouter はworkerプロセス用の /health と /metrics だけを持つルーターを返す。
func NewWorkerRouter(logger *slog.Logger, recorder middleware.StatusRecorder, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, recorder))
	r.Use(middleware.NewRecoveryMiddleware(logger))

	r.Get("/health", jsonify(func(r *http.Request) (any, error) {
		return map[string]string{"status": "ok"}, nil
	}))
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	return r
}
