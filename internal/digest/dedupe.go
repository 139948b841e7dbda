// Package digest はダイジェストの重複除外と組み立てを提供する。
package digest

import (
	"context"
	"fmt"

	"github.com/hitoshi/salesdigest/internal/ledger"
	"github.com/hitoshi/salesdigest/internal/model"
)

// DefaultLookbackDays は重複判定で参照する配信履歴の日数。
const DefaultLookbackDays = 3

// SentLookup は配信済み記事の照会インターフェース。
type SentLookup interface {
	SentSet(ctx context.Context, userID string, withinDays int) (*ledger.SentSet, error)
}

// Deduplicator は直近に配信済みの記事を候補から除外する。
type Deduplicator struct {
	ledger       SentLookup
	lookbackDays int
}

// NewDeduplicator はDeduplicatorを生成する。lookbackDaysが0以下の場合はデフォルト値を使用する。
func NewDeduplicator(l SentLookup, lookbackDays int) *Deduplicator {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	return &Deduplicator{ledger: l, lookbackDays: lookbackDays}
}

// LookbackDays は参照期間の日数を返す。
func (d *Deduplicator) LookbackDays() int {
	return d.lookbackDays
}

// Dedupe はユーザーへ直近lookbackDays日以内に配信済みの記事を除いた候補を返す。
// 台帳はユーザーごとに1回だけ照会する。入力スライスは変更しない。
func (d *Deduplicator) Dedupe(ctx context.Context, user model.UserProfile, candidates []model.Article) ([]model.Article, error) {
	kept := make([]model.Article, 0, len(candidates))
	if len(candidates) == 0 {
		return kept, nil
	}

	sent, err := d.ledger.SentSet(ctx, user.ID, d.lookbackDays)
	if err != nil {
		return nil, fmt.Errorf("failed to load sent articles for dedupe: %w", err)
	}

	for _, a := range candidates {
		if sent.Contains(a) {
			continue
		}
		kept = append(kept, a)
	}
	return kept, nil
}
