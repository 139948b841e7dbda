package repository

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/salesdigest/internal/model"
)

func TestMemorySentArticleRepo_ImplementsInterface(t *testing.T) {
	var _ SentArticleRepository = (*MemorySentArticleRepo)(nil)
}

func TestMemorySentArticleRepo_ExistsSince_MatchesIDOrURLHash(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySentArticleRepo()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	err := repo.InsertBatch(ctx, []model.SentArticleRecord{
		{UserID: "u1", ArticleID: "a1", ArticleURLHash: "h1", SentAt: now, DigestDate: "2026-03-10"},
	})
	if err != nil {
		t.Fatalf("InsertBatch がエラーを返した: %v", err)
	}

	since := now.Add(-72 * time.Hour)

	tests := []struct {
		name      string
		userID    string
		articleID string
		urlHash   string
		since     time.Time
		want      bool
	}{
		{"記事ID一致", "u1", "a1", "", since, true},
		{"URLハッシュ一致", "u1", "a-regenerated", "h1", since, true},
		{"どちらも不一致", "u1", "a2", "h2", since, false},
		{"空のURLハッシュは照合しない", "u1", "a2", "", since, false},
		{"別ユーザー", "u2", "a1", "h1", since, false},
		{"期間外", "u1", "a1", "h1", now.Add(time.Second), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ExistsSince(ctx, tt.userID, tt.articleID, tt.urlHash, tt.since)
			if err != nil {
				t.Fatalf("ExistsSince がエラーを返した: %v", err)
			}
			if got != tt.want {
				t.Errorf("ExistsSince() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMemorySentArticleRepo_InsertBatch_IgnoresSameDayDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySentArticleRepo()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	rec := model.SentArticleRecord{UserID: "u1", ArticleID: "a1", SentAt: now, DigestDate: "2026-03-10"}
	_ = repo.InsertBatch(ctx, []model.SentArticleRecord{rec, rec})
	_ = repo.InsertBatch(ctx, []model.SentArticleRecord{rec})

	if repo.Len() != 1 {
		t.Errorf("Len() = %d, want 1", repo.Len())
	}

	next := rec
	next.SentAt = now.Add(24 * time.Hour)
	next.DigestDate = "2026-03-11"
	_ = repo.InsertBatch(ctx, []model.SentArticleRecord{next})
	if repo.Len() != 2 {
		t.Errorf("別日の配信は記録されるべき: Len() = %d, want 2", repo.Len())
	}
}

func TestMemorySentArticleRepo_ListRecentAndDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySentArticleRepo()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	_ = repo.InsertBatch(ctx, []model.SentArticleRecord{
		{UserID: "u1", ArticleID: "old", SentAt: base.Add(-10 * 24 * time.Hour), DigestDate: "2026-02-28"},
		{UserID: "u1", ArticleID: "mid", SentAt: base.Add(-2 * 24 * time.Hour), DigestDate: "2026-03-08"},
		{UserID: "u1", ArticleID: "new", SentAt: base, DigestDate: "2026-03-10"},
		{UserID: "u2", ArticleID: "old2", SentAt: base.Add(-9 * 24 * time.Hour), DigestDate: "2026-03-01"},
	})

	recent, err := repo.ListRecent(ctx, "u1", base.Add(-3*24*time.Hour))
	if err != nil {
		t.Fatalf("ListRecent がエラーを返した: %v", err)
	}
	if len(recent) != 2 || recent[0].ArticleID != "new" || recent[1].ArticleID != "mid" {
		t.Errorf("ListRecent() = %+v, want [new mid]", recent)
	}
	for _, rec := range recent {
		if rec.ID == "" {
			t.Error("記録にはIDが採番されるべき")
		}
	}

	deleted, err := repo.DeleteOlderThan(ctx, base.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan がエラーを返した: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if repo.Len() != 2 {
		t.Errorf("Len() = %d, want 2", repo.Len())
	}
}
