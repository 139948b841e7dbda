package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/salesdigest/internal/metrics"
	"github.com/hitoshi/salesdigest/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// HealthChecker はnilの場合フィクスチャモードとして扱う。
	HealthChecker HealthChecker
	// Scheduler は次回実行予定の表示に使う。nil可。
	Scheduler NextRunReporter
	// Gatherer は/metricsで公開するPrometheusレジストリ。
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewRouter は運用エンドポイント（/health, /metrics）のルーティングを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))

	healthHandler := NewHealthHandler(deps.HealthChecker, deps.Scheduler, deps.Logger)

	r.Get("/health", healthHandler.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	return r
}
