// Package ledger はユーザーごとの配信済み記事台帳を提供する。
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/salesdigest/internal/model"
	"github.com/hitoshi/salesdigest/internal/repository"
)

const digestDateLayout = "2006-01-02"

// Ledger は配信済み記事の記録と照会を行う。
// 記録は配信成功が確認された後にのみ追加され、保持期間による削除以外で消えることはない。
type Ledger struct {
	repo     repository.SentArticleRepository
	location *time.Location
	now      func() time.Time
}

// NewLedger はLedgerを生成する。locationがnilの場合はUTCを使用する。
func NewLedger(repo repository.SentArticleRepository, location *time.Location) *Ledger {
	if location == nil {
		location = time.UTC
	}
	return &Ledger{
		repo:     repo,
		location: location,
		now:      time.Now,
	}
}

// SetClock は現在時刻の取得関数を差し替える。
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Now は台帳が基準とする現在時刻を返す。
func (l *Ledger) Now() time.Time {
	return l.now()
}

// WasSent は記事が直近withinDays日以内にユーザーへ配信済みかを返す。
// 記事IDまたは正規化URLのハッシュのいずれかが一致すれば配信済みとみなす。
// 単発の照会用。Deduplicatorはユーザーごとに1回で済むSentSetを使う。
func (l *Ledger) WasSent(ctx context.Context, userID, articleID, articleURL string, withinDays int) (bool, error) {
	since := l.windowStart(withinDays)
	sent, err := l.repo.ExistsSince(ctx, userID, articleID, HashURL(articleURL), since)
	if err != nil {
		return false, fmt.Errorf("failed to check sent article: %w", err)
	}
	return sent, nil
}

// SentSet はユーザーの直近withinDays日分の配信済み記事をまとめて読み込む。
func (l *Ledger) SentSet(ctx context.Context, userID string, withinDays int) (*SentSet, error) {
	records, err := l.repo.ListRecent(ctx, userID, l.windowStart(withinDays))
	if err != nil {
		return nil, fmt.Errorf("failed to list sent articles: %w", err)
	}

	set := &SentSet{
		ids:    make(map[string]struct{}, len(records)),
		hashes: make(map[string]struct{}, len(records)),
	}
	for _, r := range records {
		set.ids[r.ArticleID] = struct{}{}
		if r.ArticleURLHash != "" {
			set.hashes[r.ArticleURLHash] = struct{}{}
		}
	}
	return set, nil
}

// Record は配信した記事をユーザーの台帳に追記する。
// 同一呼び出し内で重複する記事は1件にまとめる。
func (l *Ledger) Record(ctx context.Context, userID string, articles []model.Article) error {
	if len(articles) == 0 {
		return nil
	}

	sentAt := l.now()
	digestDate := sentAt.In(l.location).Format(digestDateLayout)

	seen := make(map[string]struct{}, len(articles))
	records := make([]model.SentArticleRecord, 0, len(articles))
	for _, a := range articles {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		records = append(records, model.SentArticleRecord{
			UserID:         userID,
			ArticleID:      a.ID,
			ArticleURLHash: HashURL(a.URL),
			SentAt:         sentAt,
			DigestDate:     digestDate,
		})
	}

	if err := l.repo.InsertBatch(ctx, records); err != nil {
		return fmt.Errorf("%w: %w", model.ErrLedgerWrite, err)
	}
	return nil
}

func (l *Ledger) windowStart(withinDays int) time.Time {
	return l.now().Add(-time.Duration(withinDays) * 24 * time.Hour)
}

// SentSet はユーザー1人分の配信済み記事IDとURLハッシュの集合。
type SentSet struct {
	ids    map[string]struct{}
	hashes map[string]struct{}
}

// Contains は記事が集合に含まれるかを返す。判定規則はWasSentと同じ。
func (s *SentSet) Contains(article model.Article) bool {
	if _, ok := s.ids[article.ID]; ok {
		return true
	}
	h := HashURL(article.URL)
	if h == "" {
		return false
	}
	_, ok := s.hashes[h]
	return ok
}

// Len は集合に含まれる記事IDの数を返す。
func (s *SentSet) Len() int {
	return len(s.ids)
}
