package delivery

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// StatusClass はWebhook応答のHTTPステータスコードの分類。
type StatusClass int

const (
	// StatusClassOK は配信成功（2xx）。
	StatusClassOK StatusClass = iota
	// StatusClassRetry は再送で回復しうるステータス（408/429/5xx）。
	StatusClassRetry
	// StatusClassPermanent は再送しても結果が変わらないステータス（その他の4xxなど）。
	StatusClassPermanent
)

// ClassifyHTTPStatus はHTTPステータスコードを配信結果に分類する。
func ClassifyHTTPStatus(statusCode int) StatusClass {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusClassOK
	case statusCode == http.StatusRequestTimeout:
		return StatusClassRetry
	case statusCode == http.StatusTooManyRequests:
		return StatusClassRetry
	case statusCode >= 500:
		return StatusClassRetry
	default:
		return StatusClassPermanent
	}
}

// RetryPolicy はWebhook配信の再送方針。
// 再送時も同じIdempotency-Keyを送るため、配信先で重複排除される。
type RetryPolicy struct {
	// MaxRetries は初回に加えて再送する最大回数。0なら再送しない。
	MaxRetries int
	// InitialBackoff は初回の再送までの待ち時間。
	InitialBackoff time.Duration
	// MaxBackoff は待ち時間の上限。
	MaxBackoff time.Duration
}

// DefaultRetryPolicy は再送2回、500msから倍々で最大5秒の方針を返す。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

// Backoff はretry回目（0始まり）の再送までの待ち時間を返す。
// 初回InitialBackoff、2倍ずつ増加、最大MaxBackoff。
func (p RetryPolicy) Backoff(retry int) time.Duration {
	delay := p.InitialBackoff
	for i := 0; i < retry; i++ {
		delay *= 2
		if p.MaxBackoff > 0 && delay > p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}

// retryAfter はRetry-Afterヘッダー（秒数）を解釈する。上限はMaxBackoff。
// ヘッダーがない、または解釈できない場合はfallbackを返す。
func (p RetryPolicy) retryAfter(resp *http.Response, fallback time.Duration) time.Duration {
	if resp == nil {
		return fallback
	}
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 0 {
		return fallback
	}
	d := time.Duration(secs) * time.Second
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// sleepCtx はdだけ待機する。コンテキストが先に終了した場合はそのエラーを返す。
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
