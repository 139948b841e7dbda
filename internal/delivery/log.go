package delivery

import (
	"context"
	"log/slog"

	"github.com/hitoshi/salesdigest/internal/model"
)

// LogDeliverer はダイジェストをログに出力して成功を返す。
// 配信先Webhookが未設定の環境やフィクスチャを使った確認に使用する。
type LogDeliverer struct {
	sanitizer TextSanitizer
	logger    *slog.Logger
}

// NewLogDeliverer はLogDelivererを生成する。
func NewLogDeliverer(sanitizer TextSanitizer, logger *slog.Logger) *LogDeliverer {
	return &LogDeliverer{sanitizer: sanitizer, logger: logger}
}

// Deliver はダイジェストの内容をログに出力する。
func (d *LogDeliverer) Deliver(ctx context.Context, userID string, digest *model.DigestResult) (model.DeliveryResult, error) {
	payload := BuildPayload(userID, digest, d.sanitizer)

	titles := make([]string, len(payload.Articles))
	for i, a := range payload.Articles {
		titles[i] = a.Title
	}

	d.logger.Info("ダイジェストを配信しました（ログ出力のみ）",
		slog.String("run_id", payload.RunID),
		slog.String("user_id", userID),
		slog.String("email", payload.Recipient.Email),
		slog.Int("article_count", payload.ArticleCount),
		slog.Any("titles", titles),
	)
	return model.DeliveryResult{Success: true}, nil
}
