package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/salesdigest/internal/middleware"
)

// healthCheckTimeout はDB疎通確認の上限時間。
const healthCheckTimeout = 3 * time.Second

// HealthChecker はデータベースの疎通確認を行うインターフェース。
// *sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// NextRunReporter は次回のバッチ実行予定時刻を返すインターフェース。
type NextRunReporter interface {
	NextRun() time.Time
}

// HealthResponse は/healthのレスポンスボディ。
type HealthResponse struct {
	Status   string     `json:"status"`
	Database string     `json:"database"`
	NextRun  *time.Time `json:"next_run,omitempty"`
}

// HealthHandler はヘルスチェックエンドポイントのハンドラー。
type HealthHandler struct {
	db        HealthChecker
	scheduler NextRunReporter
	logger    *slog.Logger
}

// NewHealthHandler はHealthHandlerを生成する。
// dbがnilの場合はフィクスチャモードとしてDB確認を省略する。
func NewHealthHandler(db HealthChecker, scheduler NextRunReporter, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, scheduler: scheduler, logger: logger}
}

// Health はDB疎通を確認し、結果をJSONで返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Database: "fixture"}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := h.db.PingContext(ctx); err != nil {
			h.logger.Warn("ヘルスチェック: データベースに接続できません",
				slog.String("error", err.Error()),
			)
			middleware.WriteErrorResponse(w, http.StatusServiceUnavailable,
				"DATABASE_UNAVAILABLE", "データベースに接続できません。")
			return
		}
		resp.Database = "ok"
	}

	if h.scheduler != nil {
		if next := h.scheduler.NextRun(); !next.IsZero() {
			resp.NextRun = &next
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
