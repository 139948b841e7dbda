package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/salesdigest/internal/model"
)

// PostgresArticleRepo はscored_articlesテーブルを記事ソースとして扱うリポジトリ。
// 取り込み・スコアリングサービスが書き込んだ記事のうち、鮮度期間内のものを返す。
type PostgresArticleRepo struct {
	db        *sql.DB
	freshness time.Duration
	now       func() time.Time
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
// freshnessが0以下の場合は72時間を使用する。
func NewPostgresArticleRepo(db *sql.DB, freshness time.Duration) *PostgresArticleRepo {
	if freshness <= 0 {
		freshness = 72 * time.Hour
	}
	return &PostgresArticleRepo{db: db, freshness: freshness, now: time.Now}
}

// FetchScoredArticles は鮮度期間内に公開された記事を公開日時の降順で返す。
func (r *PostgresArticleRepo) FetchScoredArticles(ctx context.Context) ([]model.Article, error) {
	since := r.now().Add(-r.freshness)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, url, title, summary, published_at, relevance_score, sentiment,
		        sectors, companies, is_breaking
		 FROM scored_articles
		 WHERE published_at >= $1
		 ORDER BY published_at DESC, id`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("スコアリング済み記事の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		var a model.Article
		var sectors, companies pq.StringArray
		if err := rows.Scan(
			&a.ID, &a.URL, &a.Title, &a.Summary, &a.PublishedAt, &a.RelevanceScore, &a.Sentiment,
			&sectors, &companies, &a.IsBreaking,
		); err != nil {
			return nil, fmt.Errorf("記事のスキャンに失敗しました: %w", err)
		}
		a.Sectors = []string(sectors)
		a.Companies = []string(companies)
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事の読み取りに失敗しました: %w", err)
	}

	return articles, nil
}
