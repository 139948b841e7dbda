// Package delivery はダイジェストを配信コラボレーターへ引き渡す実装を提供する。
// メール本文のレンダリングと送信は配信先の通知サービスが担う。
package delivery

import (
	"context"
	"time"

	"github.com/hitoshi/salesdigest/internal/model"
)

// Deliverer は配信コラボレーターのインターフェース。
// 配信先が失敗を報告した場合はSuccess=falseのDeliveryResultを、
// 通信自体が失敗した場合はエラーを返す。
type Deliverer interface {
	Deliver(ctx context.Context, userID string, digest *model.DigestResult) (model.DeliveryResult, error)
}

// TextSanitizer は記事テキストをプレーンテキスト化するインターフェース。
type TextSanitizer interface {
	Text(raw string) string
}

// Payload はWebhookに送信するダイジェストのJSON表現。
type Payload struct {
	RunID          string           `json:"run_id"`
	UserID         string           `json:"user_id"`
	Recipient      PayloadRecipient `json:"recipient"`
	GeneratedAt    time.Time        `json:"generated_at"`
	ArticleCount   int              `json:"article_count"`
	CandidateCount int              `json:"candidate_count"`
	DuplicateCount int              `json:"duplicate_count"`
	TotalCount     int              `json:"total_count"`
	Articles       []PayloadArticle `json:"articles"`
}

// PayloadRecipient は宛先情報のJSON表現。
type PayloadRecipient struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role"`
	Timezone string `json:"timezone,omitempty"`
}

// PayloadArticle は記事1件のJSON表現。
type PayloadArticle struct {
	ID             string    `json:"id"`
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary,omitempty"`
	PublishedAt    time.Time `json:"published_at"`
	RelevanceScore int       `json:"relevance_score"`
	Sentiment      string    `json:"sentiment,omitempty"`
	IsBreaking     bool      `json:"is_breaking"`
	Sectors        []string  `json:"sectors"`
	Companies      []string  `json:"companies"`
}

// BuildPayload はダイジェストから送信用ペイロードを組み立てる。
// タイトルと要約はsanitizerでプレーンテキストにする。記事の並び順は維持する。
func BuildPayload(userID string, digest *model.DigestResult, sanitizer TextSanitizer) Payload {
	articles := make([]PayloadArticle, 0, len(digest.Articles))
	for _, a := range digest.Articles {
		articles = append(articles, PayloadArticle{
			ID:             a.ID,
			URL:            a.URL,
			Title:          sanitizer.Text(a.Title),
			Summary:        sanitizer.Text(a.Summary),
			PublishedAt:    a.PublishedAt.UTC(),
			RelevanceScore: a.RelevanceScore,
			Sentiment:      a.Sentiment,
			IsBreaking:     a.IsBreaking,
			Sectors:        nonNil(a.Sectors),
			Companies:      nonNil(a.Companies),
		})
	}

	return Payload{
		RunID:  digest.RunID,
		UserID: userID,
		Recipient: PayloadRecipient{
			Email:    digest.Recipient.Email,
			Name:     digest.Recipient.Name,
			Role:     string(digest.Recipient.Role),
			Timezone: digest.Recipient.Timezone,
		},
		GeneratedAt:    digest.GeneratedAt.UTC(),
		ArticleCount:   len(articles),
		CandidateCount: digest.CandidateCount,
		DuplicateCount: digest.DuplicateCount,
		TotalCount:     digest.TotalCount,
		Articles:       articles,
	}
}

// IdempotencyKey は配信先が再送を重複排除するためのキーを返す。
func IdempotencyKey(runID, userID string) string {
	return runID + ":" + userID
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
