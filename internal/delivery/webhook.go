package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/salesdigest/internal/model"
)

// maxErrorBodySize は失敗応答から読み取る本文の上限。
const maxErrorBodySize = 1024

// StatusRecorder は配信Webhookの応答を記録するインターフェース。
type StatusRecorder interface {
	RecordDeliveryStatus(statusCode int)
	RecordDeliveryLatency(duration time.Duration)
}

// AttemptPacer は配信呼び出しの間隔を制御する。バッチジョブのPacerと共有する。
type AttemptPacer interface {
	Wait(ctx context.Context) error
}

// WebhookDeliverer はダイジェストをJSONで通知サービスのWebhookへPOSTする。
type WebhookDeliverer struct {
	httpClient *http.Client
	endpoint   string
	sanitizer  TextSanitizer
	metrics    StatusRecorder
	logger     *slog.Logger
	retry      RetryPolicy
	pacer      AttemptPacer
}

// NewWebhookDeliverer はWebhookDelivererを生成する。
// httpClientには本番ではSSRFGuardServiceが生成したクライアントを渡す。
// 再送はSetRetryPolicyで設定するまで行わない。
func NewWebhookDeliverer(
	httpClient *http.Client,
	endpoint string,
	sanitizer TextSanitizer,
	metrics StatusRecorder,
	logger *slog.Logger,
) *WebhookDeliverer {
	return &WebhookDeliverer{
		httpClient: httpClient,
		endpoint:   endpoint,
		sanitizer:  sanitizer,
		metrics:    metrics,
		logger:     logger,
	}
}

// SetRetryPolicy は一時的な失敗（通信エラー、408/429/5xx）に対する再送方針を設定する。
func (d *WebhookDeliverer) SetRetryPolicy(p RetryPolicy) {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	d.retry = p
}

// SetPacer は再送の前に待つPacerを設定する。
// 初回の送信は呼び出し側で待機済みのため、待つのは再送のみ。
func (d *WebhookDeliverer) SetPacer(p AttemptPacer) {
	d.pacer = p
}

// Deliver はダイジェストをWebhookへ送信する。
// 2xxは成功、それ以外のステータスはSuccess=false、通信エラーはエラーとして返す。
// 一時的な失敗は再送方針に従って再送し、最後の試行の結果を返す。
func (d *WebhookDeliverer) Deliver(ctx context.Context, userID string, digest *model.DigestResult) (model.DeliveryResult, error) {
	body, err := json.Marshal(BuildPayload(userID, digest, d.sanitizer))
	if err != nil {
		return model.DeliveryResult{}, fmt.Errorf("failed to encode digest payload: %w", err)
	}

	start := time.Now()
	for attempt := 0; ; attempt++ {
		result, resp, err := d.send(ctx, userID, digest, body)

		retryable := err != nil
		if resp != nil {
			retryable = ClassifyHTTPStatus(resp.StatusCode) == StatusClassRetry
		}
		if !retryable || attempt >= d.retry.MaxRetries || ctx.Err() != nil {
			if err == nil && result.Success {
				d.logger.Info("ダイジェストを配信しました",
					slog.String("user_id", userID),
					slog.Int("article_count", len(digest.Articles)),
					slog.Int("http_status", resp.StatusCode),
					slog.Int("attempts", attempt+1),
					slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
				)
			}
			return result, err
		}

		wait := d.retry.retryAfter(resp, d.retry.Backoff(attempt))
		d.logger.Warn("配信Webhookを再送します",
			slog.String("user_id", userID),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", wait),
		)
		if sleepErr := sleepCtx(ctx, wait); sleepErr != nil {
			return result, err
		}
		if d.pacer != nil {
			if waitErr := d.pacer.Wait(ctx); waitErr != nil {
				return result, err
			}
		}
	}
}

// send はWebhookを1回呼び出す。
// 応答を受け取れた場合はステータス確認用にレスポンス（本文は読み捨て済み）を返す。
func (d *WebhookDeliverer) send(ctx context.Context, userID string, digest *model.DigestResult, body []byte) (model.DeliveryResult, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return model.DeliveryResult{}, nil, fmt.Errorf("failed to create delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "salesdigest/1.0")
	if digest.RunID != "" {
		req.Header.Set("Idempotency-Key", IdempotencyKey(digest.RunID, userID))
	}

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	d.metrics.RecordDeliveryLatency(time.Since(start))
	if err != nil {
		d.logger.Error("配信Webhookの呼び出しに失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return model.DeliveryResult{}, nil, fmt.Errorf("%w: %w", model.ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	d.metrics.RecordDeliveryStatus(resp.StatusCode)

	if ClassifyHTTPStatus(resp.StatusCode) != StatusClassOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		msg := fmt.Sprintf("webhook returned status %d", resp.StatusCode)
		if s := strings.TrimSpace(string(snippet)); s != "" {
			msg += ": " + s
		}
		d.logger.Warn("配信Webhookがエラーステータスを返しました",
			slog.String("user_id", userID),
			slog.Int("http_status", resp.StatusCode),
		)
		return model.DeliveryResult{Success: false, Error: msg}, resp, nil
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))
	return model.DeliveryResult{Success: true}, resp, nil
}
