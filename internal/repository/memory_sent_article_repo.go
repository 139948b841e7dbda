package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/salesdigest/internal/model"
)

// MemorySentArticleRepo はプロセス内メモリに保持する配信済み記事台帳。
// フィクスチャを使ったドライランとテストで使用する。プロセス終了とともに内容は失われる。
type MemorySentArticleRepo struct {
	mu      sync.RWMutex
	records map[string][]model.SentArticleRecord // user_id -> records
}

// NewMemorySentArticleRepo はMemorySentArticleRepoを生成する。
func NewMemorySentArticleRepo() *MemorySentArticleRepo {
	return &MemorySentArticleRepo{records: make(map[string][]model.SentArticleRecord)}
}

// ListRecent は指定ユーザーのsince以降に配信された記録を新しい順に返す。
func (r *MemorySentArticleRepo) ListRecent(ctx context.Context, userID string, since time.Time) ([]model.SentArticleRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.SentArticleRecord
	for _, rec := range r.records[userID] {
		if !rec.SentAt.Before(since) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	return out, nil
}

// ExistsSince はsince以降に記事IDまたはURLハッシュが一致する記録があるかを返す。
func (r *MemorySentArticleRepo) ExistsSince(ctx context.Context, userID, articleID, urlHash string, since time.Time) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rec := range r.records[userID] {
		if rec.SentAt.Before(since) {
			continue
		}
		if rec.ArticleID == articleID || (urlHash != "" && rec.ArticleURLHash == urlHash) {
			return true, nil
		}
	}
	return false, nil
}

// InsertBatch は記録を追加する。同一(ユーザー, 記事, 配信日)の記録は無視する。
func (r *MemorySentArticleRepo) InsertBatch(ctx context.Context, records []model.SentArticleRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range records {
		if r.containsLocked(rec) {
			continue
		}
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		r.records[rec.UserID] = append(r.records[rec.UserID], rec)
	}
	return nil
}

// DeleteOlderThan はcutoffより前に配信された記録を削除する。
func (r *MemorySentArticleRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for userID, recs := range r.records {
		kept := recs[:0]
		for _, rec := range recs {
			if rec.SentAt.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(r.records, userID)
		} else {
			r.records[userID] = kept
		}
	}
	return deleted, nil
}

// Len は保持している記録の総数を返す。テスト用。
func (r *MemorySentArticleRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, recs := range r.records {
		n += len(recs)
	}
	return n
}

func (r *MemorySentArticleRepo) containsLocked(rec model.SentArticleRecord) bool {
	for _, existing := range r.records[rec.UserID] {
		if existing.ArticleID == rec.ArticleID && existing.DigestDate == rec.DigestDate {
			return true
		}
	}
	return false
}
