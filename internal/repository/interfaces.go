// Package repository はデータ永続化と外部データソースのインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/salesdigest/internal/model"
)

// ArticleSource はスコアリング済み記事の取得元のインターフェース。
// 取り込み・スコアリングは外部で完了しており、ここでは現時点の記事プールを返すだけ。
type ArticleSource interface {
	// FetchScoredArticles は現在の記事プールを返す。
	FetchScoredArticles(ctx context.Context) ([]model.Article, error)
}

// RosterSource はダイジェスト配信対象ユーザー名簿のインターフェース。
type RosterSource interface {
	// UsersWithEmailEnabled はダイジェストメールを有効にしているユーザーを返す。
	UsersWithEmailEnabled(ctx context.Context) ([]model.UserProfile, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	// メール設定が無効なユーザーも返す（呼び出し側で判定する）。
	FindByID(ctx context.Context, id string) (*model.UserProfile, error)
}

// SentArticleRepository は配信済み記事台帳の永続化インターフェース。
type SentArticleRepository interface {
	// ListRecent は指定ユーザーのsince以降に配信された記録を返す。
	ListRecent(ctx context.Context, userID string, since time.Time) ([]model.SentArticleRecord, error)

	// ExistsSince はsince以降に記事IDまたはURLハッシュが一致する記録があるかを返す。
	// urlHashが空の場合はURLでの照合を行わない。
	// Ledger.WasSentの単発照会で使う。重複除外はListRecentでまとめて読み込む。
	ExistsSince(ctx context.Context, userID, articleID, urlHash string, since time.Time) (bool, error)

	// InsertBatch は記録を一括で追加する。
	// 同一(ユーザー, 記事, 配信日)の記録が既にある場合は無視する。
	InsertBatch(ctx context.Context, records []model.SentArticleRecord) error

	// DeleteOlderThan はcutoffより前に配信された記録を削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
