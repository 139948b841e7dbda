package batch

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer は配信呼び出しの間隔をワーカープール全体で制御する。
// 待機するのは配信直前だけで、フィルタや組み立ての処理は止めない。
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer はintervalごとに1回の配信を許可するPacerを生成する。
// intervalが0以下の場合は待機しない。
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait は次の配信が許可されるまで待機する。
// コンテキストが終了した場合、または期限内に許可されない場合はエラーを返す。
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
