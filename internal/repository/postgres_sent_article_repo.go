package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/salesdigest/internal/model"
)

// PostgresSentArticleRepo はPostgreSQLを使用した配信済み記事台帳リポジトリ。
type PostgresSentArticleRepo struct {
	db *sql.DB
}

// NewPostgresSentArticleRepo はPostgresSentArticleRepoを生成する。
func NewPostgresSentArticleRepo(db *sql.DB) *PostgresSentArticleRepo {
	return &PostgresSentArticleRepo{db: db}
}

// ListRecent は指定ユーザーのsince以降に配信された記録を返す。
func (r *PostgresSentArticleRepo) ListRecent(ctx context.Context, userID string, since time.Time) ([]model.SentArticleRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, article_id, article_url_hash, sent_at, to_char(digest_date, 'YYYY-MM-DD')
		 FROM sent_articles
		 WHERE user_id = $1 AND sent_at >= $2
		 ORDER BY sent_at DESC`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("配信済み記事の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var records []model.SentArticleRecord
	for rows.Next() {
		var rec model.SentArticleRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ArticleID, &rec.ArticleURLHash, &rec.SentAt, &rec.DigestDate); err != nil {
			return nil, fmt.Errorf("配信済み記事のスキャンに失敗しました: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("配信済み記事の読み取りに失敗しました: %w", err)
	}

	return records, nil
}

// ExistsSince はsince以降に記事IDまたはURLハッシュが一致する記録があるかを返す。
func (r *PostgresSentArticleRepo) ExistsSince(ctx context.Context, userID, articleID, urlHash string, since time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM sent_articles
		     WHERE user_id = $1
		       AND sent_at >= $2
		       AND (article_id = $3 OR ($4 <> '' AND article_url_hash = $4))
		 )`,
		userID, since, articleID, urlHash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("配信済み判定に失敗しました: %w", err)
	}
	return exists, nil
}

// InsertBatch は記録を1トランザクションで一括追加する。
// IDが空の記録にはUUIDを採番する。同一(ユーザー, 記事, 配信日)の記録は無視する。
func (r *PostgresSentArticleRepo) InsertBatch(ctx context.Context, records []model.SentArticleRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sent_articles (id, user_id, article_id, article_url_hash, sent_at, digest_date)
		 VALUES ($1, $2, $3, $4, $5, $6::date)
		 ON CONFLICT (user_id, article_id, digest_date) DO NOTHING`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		id := rec.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx, id, rec.UserID, rec.ArticleID, rec.ArticleURLHash, rec.SentAt, rec.DigestDate); err != nil {
			return fmt.Errorf("配信済み記事の記録に失敗しました (article_id=%s): %w", rec.ArticleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteOlderThan はcutoffより前に配信された記録を削除する。
func (r *PostgresSentArticleRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sent_articles WHERE sent_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("古い配信記録の削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}
